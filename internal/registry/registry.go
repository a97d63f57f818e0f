// Package registry is the Worker Registry (spec.md §4.1, C1): a
// concurrency-safe Node -> Worker Stub map with a one-shot readiness latch
// and full-mesh gossip, gated by an expectedNodeCount invariant.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/muchq/sgdmaster/internal/node"
	"github.com/muchq/sgdmaster/internal/wsrpc"
)

// ErrClusterOverflow is returned when a register would push the registry
// past expectedNodeCount (spec.md §7, ClusterOverflow).
var ErrClusterOverflow = errors.New("registry: cluster overflow")

// Registry is the concurrent Node -> WorkerStub map. Use New to construct
// one; the zero value is not usable.
type Registry struct {
	mu       sync.Mutex
	workers  map[node.Node]wsrpc.WorkerStub
	order    []node.Node // registration order, for deterministic dispatch
	expected int
	latch    *Latch
}

// New returns an empty Registry expecting exactly expectedNodeCount workers.
func New(expectedNodeCount int) *Registry {
	return &Registry{
		workers:  make(map[node.Node]wsrpc.WorkerStub),
		expected: expectedNodeCount,
		latch:    NewLatch(),
	}
}

// Size returns the current number of registered workers.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Ready returns a channel closed once the registry first reaches
// expectedNodeCount.
func (r *Registry) Ready() <-chan struct{} {
	return r.latch.Ready()
}

// WithClusterReady defers f until the readiness latch fires, or returns
// ctx's error if ctx is cancelled first (spec.md §4.1, "gate that defers f
// until the latch is completed").
func (r *Registry) WithClusterReady(ctx context.Context, f func()) error {
	select {
	case <-r.latch.Ready():
		f()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds n with its stub to the registry, broadcasts full-mesh
// gossip, and fires the readiness latch if this registration brings the
// registry to exactly expectedNodeCount. Fails with ErrClusterOverflow
// without mutating the registry if it is already full (spec.md §4.1).
func (r *Registry) Register(n node.Node, stub wsrpc.WorkerStub) error {
	r.mu.Lock()
	if len(r.workers) >= r.expected {
		r.mu.Unlock()
		return fmt.Errorf("%w: expected %d, have %d", ErrClusterOverflow, r.expected, len(r.workers))
	}
	if _, exists := r.workers[n]; exists {
		r.mu.Unlock()
		return nil
	}

	existing := make([]wsrpc.WorkerStub, 0, len(r.workers))
	for _, s := range r.workers {
		existing = append(existing, s)
	}
	r.workers[n] = stub
	r.order = append(r.order, n)
	size := len(r.workers)
	r.mu.Unlock()

	// Gossip is fire-and-forget: the ack to the joining worker does not
	// await peer broadcasts (spec.md §4.1 "Ordering").
	for _, peer := range existing {
		peer := peer
		go func() {
			if err := peer.RegisterSlavePeer(context.Background(), n); err != nil {
				slog.Warn("registry: gossip to existing peer failed", "peer", peer.Node(), "new", n, "error", err)
			}
		}()
		go func() {
			if err := stub.RegisterSlavePeer(context.Background(), peer.Node()); err != nil {
				slog.Warn("registry: gossip to new peer failed", "new", n, "peer", peer.Node(), "error", err)
			}
		}()
	}

	if size == r.expected {
		r.latch.Fire()
		slog.Info("registry: cluster ready", "size", size)
	}
	return nil
}

// Unregister removes n, broadcasting the removal to every remaining
// worker. Unregistering an unknown node is a no-op (spec.md §4.1,
// "Idempotent").
func (r *Registry) Unregister(n node.Node) {
	r.mu.Lock()
	stub, ok := r.workers[n]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.workers, n)
	for i, on := range r.order {
		if on == n {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	remaining := make([]wsrpc.WorkerStub, 0, len(r.workers))
	for _, s := range r.workers {
		remaining = append(remaining, s)
	}
	r.mu.Unlock()

	_ = stub.Close()
	for _, peer := range remaining {
		peer := peer
		go func() {
			if err := peer.UnregisterSlavePeer(context.Background(), n); err != nil {
				slog.Warn("registry: unregister gossip failed", "peer", peer.Node(), "removed", n, "error", err)
			}
		}()
	}
}

// Snapshot returns the current workers in registration order, the stable
// dispatch order the Forward Orchestrator and Sync Training Loop need to
// assign ranges and reassemble replies (spec.md §4.2).
func (r *Registry) Snapshot() []wsrpc.WorkerStub {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wsrpc.WorkerStub, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.workers[n])
	}
	return out
}
