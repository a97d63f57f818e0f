package wsrpc

import (
	"context"
	"time"

	"github.com/muchq/sgdmaster/internal/node"
)

// WorkerStub is the opaque handle the master holds for a remote worker
// (spec.md §3, "Worker Stub"), supporting the RPCs the master calls on
// workers: forward, gradient, initAsync, stopAsync, registerSlave,
// unregisterSlave (for peer gossip).
type WorkerStub interface {
	Node() node.Node
	Forward(ctx context.Context, lo, hi int, weights []float64) ([]float64, error)
	Gradient(ctx context.Context, lo, hi int, weights []float64) (grad []float64, startedAt, endedAt time.Time, err error)
	InitAsync(ctx context.Context, weights []float64, lo, hi, batchSize int) error
	StopAsync(ctx context.Context) error
	RegisterSlavePeer(ctx context.Context, peer node.Node) error
	UnregisterSlavePeer(ctx context.Context, peer node.Node) error
	Close() error
}

// Stub is a WorkerStub backed by one wsrpc.Conn.
type Stub struct {
	node node.Node
	conn *Conn
}

// NewStub wraps conn as a WorkerStub for the given node identity. The
// caller is responsible for having already started conn.Run in a goroutine.
func NewStub(n node.Node, conn *Conn) *Stub {
	return &Stub{node: n, conn: conn}
}

func (s *Stub) Node() node.Node { return s.node }

func (s *Stub) Forward(ctx context.Context, lo, hi int, weights []float64) ([]float64, error) {
	var resp ForwardResponse
	err := s.conn.Call(ctx, MethodForward, ForwardRequest{Lo: lo, Hi: hi, Weights: weights}, &resp)
	return resp.Predictions, err
}

func (s *Stub) Gradient(ctx context.Context, lo, hi int, weights []float64) ([]float64, time.Time, time.Time, error) {
	var resp GradientResponse
	err := s.conn.Call(ctx, MethodGradient, GradientRequest{Lo: lo, Hi: hi, Weights: weights}, &resp)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	return resp.Grad, time.Unix(resp.StartedAtUnix, 0), time.Unix(resp.EndedAtUnix, 0), nil
}

func (s *Stub) InitAsync(ctx context.Context, weights []float64, lo, hi, batchSize int) error {
	return s.conn.Call(ctx, MethodInitAsync, InitAsyncRequest{Weights: weights, Lo: lo, Hi: hi, BatchSize: batchSize}, &Ack{})
}

func (s *Stub) StopAsync(ctx context.Context) error {
	return s.conn.Call(ctx, MethodStopAsync, Ack{}, &Ack{})
}

func (s *Stub) RegisterSlavePeer(ctx context.Context, peer node.Node) error {
	return s.conn.Call(ctx, MethodRegisterSlavePeer, RegisterSlaveRequest{Host: peer.Host, Port: peer.Port}, &Ack{})
}

func (s *Stub) UnregisterSlavePeer(ctx context.Context, peer node.Node) error {
	return s.conn.Call(ctx, MethodUnregisterSlavePeer, RegisterSlaveRequest{Host: peer.Host, Port: peer.Port}, &Ack{})
}

func (s *Stub) Close() error {
	return s.conn.Close()
}
