package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weftworks/weft/internal/domain/model/thread"
)

// Outcome is the structured per-thread result a waiter receives.
type Outcome struct {
	ThreadID string      `json:"thread_id"`
	Status   string      `json:"status"`
	Cost     thread.Cost `json:"cost"`
	Result   string      `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// completionSignal fires exactly once regardless of how the thread
// ends. Created eagerly at spawn, before the runner's first turn, so a
// waiter can never arrive before the signal exists.
type completionSignal struct {
	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

func (s *completionSignal) fire(outcome Outcome) {
	s.once.Do(func() {
		s.outcome = outcome
		close(s.done)
	})
}

// CompletionCoordinator is the in-process registry of completion
// signals plus per-parent spawn bookkeeping. Session scoped: one
// instance per orchestration session, injected, never global.
type CompletionCoordinator struct {
	mu      sync.Mutex
	signals map[string]*completionSignal
	active  map[string]struct{} // threads whose runner has not signalled yet
	spawns  map[string]int      // parent id -> children spawned this session
	depths  map[string]int      // thread id -> resolved depth allowance
}

// NewCompletionCoordinator creates an empty coordinator.
func NewCompletionCoordinator() *CompletionCoordinator {
	return &CompletionCoordinator{
		signals: make(map[string]*completionSignal),
		active:  make(map[string]struct{}),
		spawns:  make(map[string]int),
		depths:  make(map[string]int),
	}
}

// CreateSignal registers the signal for a thread about to start.
func (c *CompletionCoordinator) CreateSignal(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.signals[threadID]; ok {
		return
	}
	c.signals[threadID] = &completionSignal{done: make(chan struct{})}
	c.active[threadID] = struct{}{}
}

// ResetSignal replaces a fired signal with a fresh one so a resumed
// thread can settle again, and re-marks the thread active until its
// runner signals.
func (c *CompletionCoordinator) ResetSignal(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals[threadID] = &completionSignal{done: make(chan struct{})}
	c.active[threadID] = struct{}{}
}

// Signal fires a thread's completion signal with its outcome. Safe to
// call more than once; only the first outcome sticks.
func (c *CompletionCoordinator) Signal(threadID string, outcome Outcome) {
	c.mu.Lock()
	sig, ok := c.signals[threadID]
	delete(c.active, threadID)
	c.mu.Unlock()
	if ok {
		sig.fire(outcome)
	}
}

// HasSignal reports whether a completion signal exists for the id.
func (c *CompletionCoordinator) HasSignal(threadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.signals[threadID]
	return ok
}

// IsActive reports whether a thread's runner is live in this process
// and has not yet signalled completion.
func (c *CompletionCoordinator) IsActive(threadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[threadID]
	return ok
}

// RecordSpawn bumps the parent's session spawn count.
func (c *CompletionCoordinator) RecordSpawn(parentID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spawns[parentID]++
	return c.spawns[parentID]
}

// SetDepth records a thread's resolved depth allowance.
func (c *CompletionCoordinator) SetDepth(threadID string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depths[threadID] = depth
}

// Depth returns the recorded depth allowance, -1 when unknown.
func (c *CompletionCoordinator) Depth(threadID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.depths[threadID]; ok {
		return d
	}
	return -1
}

// WaitResult is what Wait returns: per-thread outcomes plus the ids
// still outstanding when fail-fast or timeout cut the wait short.
type WaitResult struct {
	Outcomes    map[string]Outcome
	Outstanding []string
}

// Wait blocks on the completion signals for the given ids. A thread
// reaching any terminal status or suspended satisfies its wait. An id
// with no known signal is a hard per-id error, not a missing key.
// With failFast, the first error outcome returns immediately and the
// rest are reported outstanding.
func (c *CompletionCoordinator) Wait(ctx context.Context, threadIDs []string, failFast bool, timeout time.Duration) (*WaitResult, error) {
	result := &WaitResult{Outcomes: make(map[string]Outcome, len(threadIDs))}

	type fired struct {
		id      string
		outcome Outcome
	}
	pending := make(map[string]struct{})
	ch := make(chan fired, len(threadIDs))

	// waiter goroutines exit when Wait returns, fired or not
	waitCtx, cancelWaiters := context.WithCancel(ctx)
	defer cancelWaiters()

	for _, id := range threadIDs {
		c.mu.Lock()
		sig, ok := c.signals[id]
		c.mu.Unlock()
		if !ok {
			result.Outcomes[id] = Outcome{
				ThreadID: id,
				Status:   "error",
				Error:    fmt.Sprintf("No active task for thread_id %s", id),
			}
			continue
		}
		pending[id] = struct{}{}
		go func(id string, sig *completionSignal) {
			select {
			case <-sig.done:
				ch <- fired{id: id, outcome: sig.outcome}
			case <-waitCtx.Done():
			}
		}(id, sig)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for len(pending) > 0 {
		select {
		case f := <-ch:
			delete(pending, f.id)
			result.Outcomes[f.id] = f.outcome
			if failFast && f.outcome.Status == string(thread.StatusError) {
				for id := range pending {
					result.Outstanding = append(result.Outstanding, id)
				}
				return result, nil
			}
		case <-timeoutCh:
			// no fabricated outcome for a thread that has not settled;
			// timed-out ids are reported outstanding only
			for id := range pending {
				result.Outstanding = append(result.Outstanding, id)
			}
			return result, nil
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}
	return result, nil
}
