// Package rpcserver is the RPC Surface (spec.md §4.6/§6, C7): the
// master-side handlers for the inbound RPCs workers issue over their wsrpc
// connection — registerSlave, unregisterSlave, updateGrad.
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/muchq/sgdmaster/internal/asyncmaster"
	"github.com/muchq/sgdmaster/internal/node"
	"github.com/muchq/sgdmaster/internal/registry"
	"github.com/muchq/sgdmaster/internal/vector"
	"github.com/muchq/sgdmaster/internal/wsrpc"
)

// ErrUnsupportedOnSync is returned when updateGrad reaches a master with no
// active async coordinator (spec.md §7, UnsupportedOnSync).
var ErrUnsupportedOnSync = errors.New("rpcserver: updateGrad is unsupported on a sync master")

// Server wires inbound worker connections to the registry and, if present,
// the async coordinator's gradient-update handler. Async is nil for a
// sync-only deployment, in which case updateGrad always fails with
// ErrUnsupportedOnSync.
type Server struct {
	Registry *registry.Registry
	Async    *asyncmaster.Master
	MaxSteps int64
}

// HandleUpgrade upgrades an inbound HTTP request to a worker's persistent
// wsrpc connection, installs the registerSlave/unregisterSlave/updateGrad
// handlers, and runs the connection's pumps until it closes.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := wsrpc.Accept(w, r)
	if err != nil {
		return
	}

	conn.Handle(wsrpc.MethodRegisterSlavePeer, s.handleRegisterSlave(conn))
	conn.Handle(wsrpc.MethodUnregisterSlavePeer, s.handleUnregisterSlave)
	conn.Handle(wsrpc.MethodUpdateGrad, s.handleUpdateGrad)

	conn.Run()
}

// handleRegisterSlave answers the worker's own registerSlave call: it reads
// the worker's advertised (host, port), wraps this same connection as its
// WorkerStub, and adds it to the registry (spec.md §6 registerSlave RPC).
func (s *Server) handleRegisterSlave(conn *wsrpc.Conn) wsrpc.Handler {
	return func(_ context.Context, payload json.RawMessage) (any, error) {
		var req wsrpc.RegisterSlaveRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("rpcserver: registerSlave: %w", err)
		}
		n := node.Node{Host: req.Host, Port: req.Port}
		stub := wsrpc.NewStub(n, conn)
		if err := s.Registry.Register(n, stub); err != nil {
			return nil, err
		}
		slog.Info("rpcserver: worker registered", "node", n)
		return wsrpc.Ack{}, nil
	}
}

func (s *Server) handleUnregisterSlave(_ context.Context, payload json.RawMessage) (any, error) {
	var req wsrpc.RegisterSlaveRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("rpcserver: unregisterSlave: %w", err)
	}
	n := node.Node{Host: req.Host, Port: req.Port}
	s.Registry.Unregister(n)
	slog.Info("rpcserver: worker unregistered", "node", n)
	return wsrpc.Ack{}, nil
}

// handleUpdateGrad is spec.md §4.6's updateGrad handler. The payload is the
// worker's gradient ∇L, which HandleGradUpdate subtracts from the current
// weights (grad -= delta). On an async master every well-formed update is
// acked, including stragglers after termination, which asyncmaster.Master
// drops. It returns ErrUnsupportedOnSync when no async coordinator is
// wired, and an error for a malformed or NaN-carrying payload.
func (s *Server) handleUpdateGrad(ctx context.Context, payload json.RawMessage) (any, error) {
	if s.Async == nil {
		return nil, ErrUnsupportedOnSync
	}
	var req wsrpc.UpdateGradRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("rpcserver: updateGrad: %w", err)
	}
	delta, err := vector.New(req.GradUpdate)
	if err != nil {
		return nil, fmt.Errorf("rpcserver: updateGrad: %w", err)
	}
	s.Async.HandleGradUpdate(ctx, delta, s.MaxSteps)
	return wsrpc.Ack{}, nil
}
