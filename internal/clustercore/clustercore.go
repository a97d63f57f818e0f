// Package clustercore holds the state the Sync Training Loop (C4) and Async
// Training Coordinator (C5) share: registry access, gossip and readiness
// gating (spec.md §9, "No inheritance... model as a shared component"). Go
// composition over an embedded *clustercore.Core is the idiomatic fit here,
// not a strategy interface.
package clustercore

import (
	"context"

	"github.com/muchq/sgdmaster/internal/clock"
	"github.com/muchq/sgdmaster/internal/registry"
)

// Core bundles the cluster-facing collaborators both training strategies
// need: the worker registry and a clock for deterministic timestamps.
type Core struct {
	Registry *registry.Registry
	Clock    clock.Clock
}

// New builds a Core over an existing registry and clock.
func New(reg *registry.Registry, c clock.Clock) *Core {
	return &Core{Registry: reg, Clock: c}
}

// WithClusterReady defers f until the registry's readiness latch fires, or
// returns ctx's error if ctx is cancelled first.
func (c *Core) WithClusterReady(ctx context.Context, f func()) error {
	return c.Registry.WithClusterReady(ctx, f)
}
