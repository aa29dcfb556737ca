package jitter

import (
	"time"

	"github.com/eluvio/rtpjitter/collections/slidingwindow"
	"github.com/eluvio/rtpjitter/format/duration"
	"github.com/eluvio/rtpjitter/util/jsonutil"
	"github.com/eluvio/rtpjitter/util/statsutil"
	"github.com/eluvio/rtpjitter/util/timeutil"
)

// waitWindowCapacity bounds the recent-wait-time sliding window used for
// p50/p99 reporting; it is not a pacing-affecting limit, purely observability.
const waitWindowCapacity = 512

// statsState is the observability side of the buffer: nothing in it feeds
// back into pacing decisions.
type statsState struct {
	TotalEmitted uint64
	Gaps         uint64

	wait       statsutil.Periodic[duration.Spec]
	waitLast   statsutil.Statistics[duration.Spec]
	waitWindow *slidingwindow.SlidingWindow[duration.Spec]
}

func (s *statsState) init() {
	*s = statsState{
		waitWindow: slidingwindow.New[duration.Spec](waitWindowCapacity),
	}
}

// recordWait records how far the actual resume time (relative to base time)
// overshot the computed target (relative to base time) for a packet the
// consumer had to sync on.
func (b *Buffer) recordWait(target, actual time.Duration) {
	overslept := duration.Spec(actual - target)
	if b.stats.wait.Update(overslept) {
		b.stats.waitLast = b.stats.wait.Previous
	}
	b.stats.waitWindow.Add(overslept)
}

func (b *Buffer) recordEmit() {
	b.stats.TotalEmitted++
}

// Tick implements timeutil.TickListener: it logs an aggregate snapshot at
// the configured stats period.
func (b *Buffer) Tick() {
	b.mu.Lock()
	snap := b.snapshotStatsLocked()
	b.mu.Unlock()
	statsLog.Info("jitter: stats", "stats", jsonutil.Stringer(snap))
}

func (b *Buffer) restartStatsLogger() {
	b.mu.Lock()
	period := b.cfg.StatsLogPeriod.Duration()
	old := b.statsTicker
	b.mu.Unlock()

	if old != nil {
		old.Unregister(b)
	}
	if period <= 0 {
		b.mu.Lock()
		b.statsTicker = nil
		b.mu.Unlock()
		return
	}

	t := timeutil.NewTicker(period)
	t.Register(b)
	b.mu.Lock()
	b.statsTicker = t
	b.mu.Unlock()
}

func (b *Buffer) stopStatsTicker() {
	b.mu.Lock()
	t := b.statsTicker
	b.statsTicker = nil
	b.mu.Unlock()
	if t != nil {
		t.Unregister(b)
	}
}

// Stats is a point-in-time snapshot of a Buffer's counters, suitable for
// logging or a status query. None of it affects pacing.
type Stats struct {
	Uptime        time.Duration                        `json:"uptime"`
	TotalEmitted  uint64                               `json:"total_emitted"`
	NumLate       uint64                               `json:"num_late"`
	NumDuplicates uint64                                `json:"num_duplicates"`
	Gaps          uint64                                `json:"gaps"`
	QueueLen      int                                   `json:"queue_len"`
	WaitLast      statsutil.Statistics[duration.Spec]   `json:"wait_last"`
	WaitP50       duration.Spec                         `json:"wait_p50"`
	WaitP99       duration.Spec                         `json:"wait_p99"`
}

// Stats returns a snapshot of the buffer's current counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotStatsLocked()
}

func (b *Buffer) snapshotStatsLocked() Stats {
	s := Stats{
		TotalEmitted:  b.stats.TotalEmitted,
		Uptime:        b.uptimeLocked(),
		NumLate:       b.numLate,
		NumDuplicates: b.numDuplicates,
		Gaps:          b.stats.Gaps,
		QueueLen:      b.store.Len(),
		WaitLast:      b.stats.waitLast,
	}
	if b.stats.waitWindow.Count() > 0 {
		win := b.stats.waitWindow.Statistics()
		s.WaitP50 = win.QuantileInterpolated(0.5)
		s.WaitP99 = win.QuantileInterpolated(0.99)
	}
	return s
}

func (b *Buffer) uptimeLocked() time.Duration {
	if b.uptime == nil {
		return 0
	}
	return b.uptime.Duration()
}
