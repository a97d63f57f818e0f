package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/muchq/sgdmaster/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStub struct {
	n              node.Node
	mu             sync.Mutex
	registeredPeer []node.Node
}

func newFakeStub(n node.Node) *fakeStub { return &fakeStub{n: n} }

func (f *fakeStub) Node() node.Node { return f.n }
func (f *fakeStub) Forward(context.Context, int, int, []float64) ([]float64, error) {
	return nil, nil
}
func (f *fakeStub) Gradient(context.Context, int, int, []float64) ([]float64, time.Time, time.Time, error) {
	return nil, time.Time{}, time.Time{}, nil
}
func (f *fakeStub) InitAsync(context.Context, []float64, int, int, int) error { return nil }
func (f *fakeStub) StopAsync(context.Context) error                          { return nil }
func (f *fakeStub) RegisterSlavePeer(_ context.Context, peer node.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registeredPeer = append(f.registeredPeer, peer)
	return nil
}
func (f *fakeStub) UnregisterSlavePeer(context.Context, node.Node) error { return nil }
func (f *fakeStub) Close() error                                        { return nil }

func (f *fakeStub) peers() []node.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]node.Node(nil), f.registeredPeer...)
}

func TestRegisterFiresLatchExactlyAtQuorum(t *testing.T) {
	r := New(3)
	ready := r.Ready()

	a := node.Node{Host: "a", Port: 1}
	b := node.Node{Host: "b", Port: 2}
	c := node.Node{Host: "c", Port: 3}

	require.NoError(t, r.Register(a, newFakeStub(a)))
	select {
	case <-ready:
		t.Fatal("latch must not fire before quorum")
	default:
	}

	require.NoError(t, r.Register(b, newFakeStub(b)))
	select {
	case <-ready:
		t.Fatal("latch must not fire before quorum")
	default:
	}

	require.NoError(t, r.Register(c, newFakeStub(c)))
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("latch must fire once quorum reached")
	}

	assert.Equal(t, 3, r.Size())
}

func TestRegisterOverflowRejected(t *testing.T) {
	r := New(2)
	a := node.Node{Host: "a", Port: 1}
	b := node.Node{Host: "b", Port: 2}
	c := node.Node{Host: "c", Port: 3}

	require.NoError(t, r.Register(a, newFakeStub(a)))
	require.NoError(t, r.Register(b, newFakeStub(b)))

	err := r.Register(c, newFakeStub(c))
	require.ErrorIs(t, err, ErrClusterOverflow)
	assert.Equal(t, 2, r.Size())
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	r := New(1)
	r.Unregister(node.Node{Host: "ghost", Port: 9})
	assert.Equal(t, 0, r.Size())
}

func TestWithClusterReadyBlocksUntilQuorum(t *testing.T) {
	r := New(1)
	fired := make(chan struct{})
	go func() {
		_ = r.WithClusterReady(context.Background(), func() { close(fired) })
	}()

	select {
	case <-fired:
		t.Fatal("must not run before quorum")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, r.Register(node.Node{Host: "a", Port: 1}, newFakeStub(node.Node{Host: "a", Port: 1})))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("must run once quorum reached")
	}
}

func TestGossipNotifiesExistingAndNewPeers(t *testing.T) {
	r := New(3)
	a := node.Node{Host: "a", Port: 1}
	b := node.Node{Host: "b", Port: 2}
	c := node.Node{Host: "c", Port: 3}

	stubA := newFakeStub(a)
	stubB := newFakeStub(b)
	stubC := newFakeStub(c)

	require.NoError(t, r.Register(a, stubA))
	require.NoError(t, r.Register(b, stubB))
	require.NoError(t, r.Register(c, stubC))

	require.Eventually(t, func() bool {
		return len(stubC.peers()) == 2
	}, time.Second, 10*time.Millisecond, "new node should learn about both existing peers")

	require.Eventually(t, func() bool {
		return len(stubA.peers()) == 2 && len(stubB.peers()) == 2
	}, time.Second, 10*time.Millisecond, "existing peers should learn about every later node")
}
