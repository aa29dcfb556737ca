package jitter

import (
	"sync"
	"sync/atomic"

	"github.com/eluv-io/utc-go"

	"github.com/eluvio/rtpjitter/util/timeutil"
)

// WaitResult is the outcome of a Clock.Wait call.
type WaitResult int

const (
	// WaitOk means the wait ran to completion at or after its target time.
	WaitOk WaitResult = iota
	// WaitEarly means the clock returned before the target time (a
	// SystemClock never does this; it exists for collaborators that can
	// wake a waiter early without an explicit Unschedule).
	WaitEarly
	// WaitUnscheduled means Unschedule was called before the target time
	// elapsed.
	WaitUnscheduled
)

func (r WaitResult) String() string {
	switch r {
	case WaitOk:
		return "Ok"
	case WaitEarly:
		return "Early"
	case WaitUnscheduled:
		return "Unscheduled"
	default:
		return "Unknown"
	}
}

// ClockID identifies one outstanding single-shot wait.
type ClockID uint64

// Clock is the abstract release scheduler the pacing engine consumes. It is
// deliberately narrow: one way to ask the time, one way to arm a single-shot
// wait for a target time, one way to block on it, one way to cancel it from
// another goroutine.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() utc.UTC
	// NewSingleShot arms a wait that fires at target and returns its id.
	NewSingleShot(target utc.UTC) ClockID
	// Wait blocks until the wait identified by id fires or is unscheduled.
	// Undefined for an id that was never returned by NewSingleShot or that
	// has already been waited on.
	Wait(id ClockID) WaitResult
	// Unschedule cancels the wait identified by id. Safe to call
	// concurrently with Wait on the same id; harmless if the wait already
	// fired or was already unscheduled.
	Unschedule(id ClockID)
	// BaseTime returns the pipeline base time added to running-time values
	// to produce absolute clock targets.
	BaseTime() utc.UTC
}

type pendingWait struct {
	timer  *timeutil.Timer
	result chan WaitResult
	fired  atomic.Bool
}

// SystemClock is the real-time Clock backed by util/timeutil's AfterFunc
// Timer (itself a thin wrapper around time.AfterFunc that reports whether
// Stop raced a firing timer), exposing the arm/wait/unschedule split the
// pacing engine's suspension-point contract requires (the consumer must be
// able to block on Wait with the coordination mutex released, so that the
// producer can take that mutex, insert, and then call Unschedule after
// releasing it). The fired atomic.Bool is
// the actual race arbiter between a concurrent Unschedule and a firing timer;
// Timer.Stop()'s own bool return is only a best-effort hint, not relied on
// for correctness here.
type SystemClock struct {
	mu       sync.Mutex
	waits    map[ClockID]*pendingWait
	nextID   uint64
	baseTime utc.UTC
}

// NewSystemClock returns a SystemClock anchored at the given base time.
func NewSystemClock(baseTime utc.UTC) *SystemClock {
	return &SystemClock{
		waits:    make(map[ClockID]*pendingWait),
		baseTime: baseTime,
	}
}

func (c *SystemClock) Now() utc.UTC {
	return utc.Now()
}

func (c *SystemClock) BaseTime() utc.UTC {
	return c.baseTime
}

func (c *SystemClock) NewSingleShot(target utc.UTC) ClockID {
	c.mu.Lock()
	c.nextID++
	id := ClockID(c.nextID)
	pw := &pendingWait{result: make(chan WaitResult, 1)}
	c.waits[id] = pw
	c.mu.Unlock()

	delay := target.Sub(utc.Now())
	if delay < 0 {
		delay = 0
	}
	pw.timer = timeutil.AfterFunc(delay, func() {
		if pw.fired.CompareAndSwap(false, true) {
			pw.result <- WaitOk
		}
	})
	return id
}

func (c *SystemClock) Wait(id ClockID) WaitResult {
	c.mu.Lock()
	pw, ok := c.waits[id]
	c.mu.Unlock()
	if !ok {
		return WaitUnscheduled
	}
	r := <-pw.result
	c.mu.Lock()
	delete(c.waits, id)
	c.mu.Unlock()
	return r
}

func (c *SystemClock) Unschedule(id ClockID) {
	c.mu.Lock()
	pw, ok := c.waits[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	if pw.fired.CompareAndSwap(false, true) {
		pw.timer.Stop()
		pw.result <- WaitUnscheduled
	}
}
