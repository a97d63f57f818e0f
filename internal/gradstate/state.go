// Package gradstate holds the shared mutable state at the heart of both
// training loops: GradState, BestTracker, and the completion promise for an
// async run (spec.md §3, §9). A single sync.Mutex-protected Cell guards all
// three together, because spec.md §9 requires that termination observe a
// consistent (grad, updates, best, end) tuple — sharding the critical
// section would break that invariant. This mirrors the teacher's
// TokenBucketRateLimiter: "should always be passed and accessed by pointer
// because it contains a sync.Mutex field."
package gradstate

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/muchq/sgdmaster/internal/vector"
)

// ErrAlreadyRunning is returned by Cell.Start when a run is already active.
var ErrAlreadyRunning = errors.New("gradstate: a run is already active")

// State is the tuple (grad, updates, start, end, finalLoss) spec.md §3
// calls GradState.
type State struct {
	Grad      vector.Vector
	Updates   int64
	Start     time.Time
	End       *time.Time // nil while the run is active
	FinalLoss *float64
}

// Done reports whether the run this State describes is terminal.
func (s State) Done() bool {
	return s.End != nil
}

// BestTracker is the (bestLoss, bestGrad) pair spec.md §3 defines: bestGrad
// always corresponds to the grad snapshot taken when bestLoss was observed.
type BestTracker struct {
	BestLoss float64
	BestGrad vector.Vector
}

// Completion is a single-shot completion channel, modeling the "promise"
// spec.md §9 calls for: TrySet reports whether it actually completed the
// run (false if already completed).
type Completion struct {
	mu   sync.Mutex
	done bool
	ch   chan State
}

// NewCompletion returns a fresh, uncompleted Completion.
func NewCompletion() *Completion {
	return &Completion{ch: make(chan State, 1)}
}

// TrySet completes the promise with the given terminal state. Returns false
// if the promise was already completed — callers rely on this for the
// idempotent-termination invariant (spec.md §4.5, §8 property 5).
func (c *Completion) TrySet(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	c.done = true
	c.ch <- s
	return true
}

// Wait blocks until the promise completes and returns the terminal state.
func (c *Completion) Wait() State {
	return <-c.ch
}

// Cell is the single transactional cell holding GradState, BestTracker and
// the pending completion for one run. Every mutating access happens inside
// Cell's mutex, so a reader or the monitor never observes a torn update.
type Cell struct {
	mu         sync.Mutex
	state      State
	best       BestTracker
	completion *Completion
	hasRun     bool
}

// NewCell returns an empty Cell (no run has started yet).
func NewCell() *Cell {
	return &Cell{}
}

// Snapshot returns an immutable copy of the current State.
func (c *Cell) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Best returns an immutable copy of the current BestTracker.
func (c *Cell) Best() BestTracker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.best
}

// Active reports whether a run exists and has not reached its terminal
// state — the precondition spec.md §4.5 calls "no run currently active."
func (c *Cell) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasRun && !c.state.Done()
}

// Start seeds a fresh run: GradState = start(initialWeights), clears
// BestTracker to (+Inf, zeros), installs a fresh Completion, and fails with
// ErrAlreadyRunning if a run is already active (spec.md §4.5 atomic init
// steps 1-3). Returns the new Completion for the caller to await.
func (c *Cell) Start(initial vector.Vector, now time.Time) (*Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasRun && !c.state.Done() {
		return nil, ErrAlreadyRunning
	}
	c.state = State{Grad: initial, Start: now}
	c.best = BestTracker{BestLoss: math.Inf(1), BestGrad: vector.Zeros(initial.Len())}
	c.completion = NewCompletion()
	c.hasRun = true
	return c.completion, nil
}

// Update applies an incoming gradient delta: grad -= delta, updates++. It
// is the operation behind C4's batch step, which runs under
// Registry.WithClusterReady and never races a terminal Finish.
func (c *Cell) Update(delta vector.Vector) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Grad = c.state.Grad.Sub(delta)
	c.state.Updates++
	return c.state
}

// UpdateIfActive applies grad -= delta, updates++ only if the run is still
// active, checking Done() and mutating (grad, updates) inside the same
// critical section. This is C7's updateGrad handler's only safe path
// (spec.md §3 "once end is set, further mutations are forbidden", §4.6 "if
// the run is not active... do not mutate"): a straggler's update dispatched
// concurrently with EndComputation must never land after Finish stamps end.
// Returns the resulting state and whether it mutated.
func (c *Cell) UpdateIfActive(delta vector.Vector) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRun || c.state.Done() {
		return c.state, false
	}
	c.state.Grad = c.state.Grad.Sub(delta)
	c.state.Updates++
	return c.state, true
}

// ReplaceGrad swaps the current gradient vector, used by termination to
// install the best-tracked weights (spec.md §3 "replaceGrad(w)").
func (c *Cell) ReplaceGrad(w vector.Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Grad = w
}

// UpdateIfBetterActive atomically compares loss against the current best
// and, if it improves on it, records (loss, grad) as the new best — gated
// on the run still being active, with the Done() check and the
// best-tracker mutation performed inside one critical section. This is
// C6's step 5 (invariant §8 property 4: bestLoss never exceeds the minimum
// loss ever reported). The monitor can be parked inside loss.LocalFull
// while a concurrent EndComputation calls Finish; without this atomicity it
// could still commit a stale best after termination, leaving Best()
// inconsistent with the already-frozen (grad, finalLoss) pair (spec.md §8
// property 3). Returns (updated, active).
func (c *Cell) UpdateIfBetterActive(loss float64, grad vector.Vector) (updated, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRun || c.state.Done() {
		return false, false
	}
	if loss < c.best.BestLoss {
		c.best = BestTracker{BestLoss: loss, BestGrad: grad}
		return true, true
	}
	return false, true
}

// Finish stamps the run terminal with (grad, finalLoss) and completes the
// pending promise. Idempotent: if the run is already terminal, it is a
// no-op and returns false (spec.md §4.5 "Idempotent: a second call after
// end is a no-op").
func (c *Cell) Finish(grad vector.Vector, finalLoss float64, now time.Time) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Done() {
		return c.state, false
	}
	end := now
	c.state.Grad = grad
	c.state.End = &end
	c.state.FinalLoss = &finalLoss
	if c.completion != nil {
		c.completion.TrySet(c.state)
	}
	return c.state, true
}
