package jitter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eluv-io/utc-go"
)

var errSink = errors.New("fake sink push failed")

// fakeClock is a deterministic Clock test double. It never sleeps: every
// NewSingleShot call is announced on the Armed channel so a test can learn
// about it, and the associated wait only resolves when the test calls Fire
// or when the engine itself calls Unschedule.
type fakeClock struct {
	mu    sync.Mutex
	waits map[ClockID]chan WaitResult
	next  uint64

	Armed chan ClockID

	base utc.UTC
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		waits: make(map[ClockID]chan WaitResult),
		Armed: make(chan ClockID, 256),
		base:  utc.UnixMilli(0),
	}
}

func (c *fakeClock) Now() utc.UTC { return utc.Now() }

func (c *fakeClock) BaseTime() utc.UTC { return c.base }

func (c *fakeClock) NewSingleShot(_ utc.UTC) ClockID {
	c.mu.Lock()
	c.next++
	id := ClockID(c.next)
	ch := make(chan WaitResult, 1)
	c.waits[id] = ch
	c.mu.Unlock()
	c.Armed <- id
	return id
}

func (c *fakeClock) Wait(id ClockID) WaitResult {
	c.mu.Lock()
	ch, ok := c.waits[id]
	c.mu.Unlock()
	if !ok {
		return WaitUnscheduled
	}
	r := <-ch
	c.mu.Lock()
	delete(c.waits, id)
	c.mu.Unlock()
	return r
}

// Unschedule and Fire leave the map entry in place for Wait to find and
// remove: Fire may run before the engine has even entered Wait for a freshly
// armed id, and the buffered channel keeps the result until then.
func (c *fakeClock) Unschedule(id ClockID) {
	c.mu.Lock()
	ch, ok := c.waits[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- WaitUnscheduled:
	default:
	}
}

// Fire resolves the wait identified by id as having reached its target time.
func (c *fakeClock) Fire(id ClockID) {
	c.mu.Lock()
	ch, ok := c.waits[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- WaitOk:
	default:
	}
}

// nextArmed waits for the next armed wait id and returns it.
func (c *fakeClock) nextArmed(t *testing.T) ClockID {
	t.Helper()
	select {
	case id := <-c.Armed:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a clock wait to be armed")
		return 0
	}
}

// pace drains every armed wait and fires it immediately, as a background
// goroutine, for tests that don't care about precise interleaving around the
// clock wait.
func (c *fakeClock) pace() {
	go func() {
		for id := range c.Armed {
			c.Fire(id)
		}
	}()
}

// fakeSink records every packet pushed downstream, in order, and can be
// configured to fail on a given attempt.
type fakeSink struct {
	mu       sync.Mutex
	pushed   []*Packet
	eosCount int
	failAt   int // 1-based index of the push call that should fail, 0 = never
	failErr  error

	Pushed chan *Packet // optional: if non-nil, every push is also sent here
}

func newFakeSink() *fakeSink {
	return &fakeSink{}
}

func (s *fakeSink) Push(pkt *Packet) error {
	s.mu.Lock()
	s.pushed = append(s.pushed, pkt)
	n := len(s.pushed)
	fail := s.failAt != 0 && n == s.failAt
	err := s.failErr
	s.mu.Unlock()

	if s.Pushed != nil {
		s.Pushed <- pkt
	}
	if fail {
		if err == nil {
			err = errSink
		}
		return err
	}
	return nil
}

func (s *fakeSink) EOS() error {
	s.mu.Lock()
	s.eosCount++
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) seqs() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint16, len(s.pushed))
	for i, p := range s.pushed {
		out[i] = p.Seq
	}
	return out
}

func (s *fakeSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushed)
}

func (s *fakeSink) discontAt(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed[i].Discont
}

// fixedPtMap is a PtMapResolver stub that always resolves to the same Caps.
type fixedPtMap struct {
	caps Caps
	ok   bool
}

func (m fixedPtMap) ResolvePt(uint8) (Caps, bool) {
	return m.caps, m.ok
}

// waitFor polls cond until it is true or the timeout elapses, failing the
// test on timeout. Used sparingly, only where a channel-based signal isn't
// available (e.g. waiting for the consumer task to park on the condvar).
func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}
