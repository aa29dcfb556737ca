package jitter

import (
	"sync"
	"time"

	elog "github.com/eluv-io/log-go"

	"github.com/eluvio/rtpjitter/media/pktpool"
	"github.com/eluvio/rtpjitter/util/ifutil"
	"github.com/eluvio/rtpjitter/util/timeutil"
)

var log = elog.Get("/eluvio/media/transport/rtpjitter")
var statsLog = elog.Get("/eluvio/media/transport/rtpjitter/stats")

const nsPerSec = int64(time.Second)

// activeWait is the clock wait the consumer is currently sleeping on, if any.
type activeWait struct {
	id  ClockID
	seq uint16
}

// Buffer is the reordering/pacing engine: one instance coordinates one RTP
// stream's ingress producer and its single egress consumer over one mutex
// and one condition variable, exactly the concurrency contract the
// surrounding framework's element would otherwise have to hand-roll with
// raw channels.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg Config

	store *OrderedStore
	state State

	// Pacing state, guarded by mu. cfg.TsOffsetNs included: the pop path
	// snapshots it under mu before applying it.
	lastPoppedSeq *uint16
	nextSeq       *uint16
	eos           bool
	blocked       bool

	srcRes srcResult
	srcErr error

	clockRateSet bool
	clockRate    uint32
	clockBaseSet bool
	clockBase    uint64
	extTs        ExtTimestampTracker

	prevTsOffsetNs int64
	peerLatencyNs  int64

	wait    *activeWait
	waiting bool

	numLate       uint64
	numDuplicates uint64

	clock   Clock
	sink    Sink
	segment Segment
	ptMap   PtMapResolver
	pool    *pktpool.PacketPool

	consumerRunning bool
	consumerDone    chan struct{}

	statsTicker  timeutil.Ticker
	warnThrottle timeutil.Periodic
	uptime       *timeutil.StopWatch

	stats statsState
}

// NewBuffer creates a Buffer in the Idle state. Call Prepare to arm it. An
// initial Segment may be supplied; it defaults to IdentitySegment until
// WithSegment installs the real one from new_segment.
func NewBuffer(sink Sink, clock Clock, pool *pktpool.PacketPool, segment ...Segment) *Buffer {
	b := &Buffer{
		cfg:          DefaultConfig(),
		store:        NewOrderedStore(),
		state:        StateIdle,
		clock:        clock,
		sink:         sink,
		segment:      ifutil.FirstOrDefault(segment, Segment(IdentitySegment{})),
		pool:         pool,
		warnThrottle: timeutil.NewPeriodic(time.Second),
	}
	b.cond = sync.NewCond(&b.mu)
	b.stats.init()
	return b
}

// State returns the current lifecycle state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Prepare transitions Idle -> Armed, resetting PacingState to its initial
// form (including counters) and arming the consumer task. Also used for a
// PLAYING->PAUSED->PLAYING re-arm from scratch.
func (b *Buffer) Prepare() {
	b.mu.Lock()
	b.resetFullLocked()
	b.state = StateArmed
	b.blocked = true
	b.uptime = timeutil.StartWatch()
	b.mu.Unlock()
	b.startConsumer()
}

// Start transitions Armed -> Running: the consumer stops blocking
// unconditionally and re-evaluates the queue.
func (b *Buffer) Start() {
	b.mu.Lock()
	b.blocked = false
	b.state = StateRunning
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Pause transitions Running -> Armed: the consumer blocks unconditionally
// again, regardless of queue contents.
func (b *Buffer) Pause() {
	b.mu.Lock()
	b.blocked = true
	b.state = StateArmed
	b.mu.Unlock()
}

// FlushStart cancels any in-flight clock wait, empties the store, and marks
// the consumer task for exit. It corresponds to a flush-start event.
func (b *Buffer) FlushStart() {
	b.mu.Lock()
	b.state = StateFlushing
	b.srcRes = srcFlushing
	var id ClockID
	hasWait := b.waiting
	if hasWait {
		id = b.wait.id
	}
	b.cond.Broadcast()
	b.mu.Unlock()

	if hasWait {
		b.clock.Unschedule(id)
	}
	b.waitConsumerDone()

	b.mu.Lock()
	b.store.Flush()
	b.mu.Unlock()
}

// FlushStop leaves Flushing: the seq/timestamp/clock-rate state that's
// meaningless across a flush is reset, src_result returns to OK, and the
// consumer task is restarted. The blocked flag is kept as it was before the
// flush, so the buffer returns to Running if it was playing and to Armed if
// it was paused.
func (b *Buffer) FlushStop() {
	b.mu.Lock()
	b.resetStreamStateLocked()
	b.srcRes = srcOK
	b.srcErr = nil
	if b.blocked {
		b.state = StateArmed
	} else {
		b.state = StateRunning
	}
	b.mu.Unlock()
	b.startConsumer()
}

// Shutdown disposes of the Buffer: it flushes (cancelling any in-flight
// wait and joining the consumer task) and releases the store.
func (b *Buffer) Shutdown() {
	b.mu.Lock()
	if b.state == StateShutdown {
		b.mu.Unlock()
		return
	}
	b.state = StateShutdown
	b.srcRes = srcFlushing
	var id ClockID
	hasWait := b.waiting
	if hasWait {
		id = b.wait.id
	}
	b.cond.Broadcast()
	b.mu.Unlock()

	if hasWait {
		b.clock.Unschedule(id)
	}
	b.waitConsumerDone()
	b.stopStatsTicker()

	b.mu.Lock()
	b.store.Flush()
	b.mu.Unlock()
}

// EOS marks the stream as ended. A second call is a no-op.
func (b *Buffer) EOS() error {
	b.mu.Lock()
	if b.eos {
		b.mu.Unlock()
		return nil
	}
	b.eos = true
	b.cond.Broadcast()
	b.mu.Unlock()
	return nil
}

func (b *Buffer) resetFullLocked() {
	b.resetStreamStateLocked()
	b.numLate = 0
	b.numDuplicates = 0
	b.peerLatencyNs = 0
	b.prevTsOffsetNs = b.cfg.TsOffsetNs
	b.stats.init()
}

func (b *Buffer) resetStreamStateLocked() {
	b.lastPoppedSeq = nil
	b.nextSeq = nil
	if b.cfg.SeqNumBase != nil {
		sb := *b.cfg.SeqNumBase
		b.nextSeq = &sb
	}
	b.clockRateSet = false
	b.clockRate = 0
	b.clockBaseSet = false
	b.clockBase = 0
	b.extTs = ExtTimestampTracker{}
	b.eos = false
	b.waiting = false
	b.wait = nil
	b.prevTsOffsetNs = b.cfg.TsOffsetNs
}

func (b *Buffer) startConsumer() {
	b.mu.Lock()
	if b.consumerRunning {
		b.mu.Unlock()
		return
	}
	b.consumerRunning = true
	done := make(chan struct{})
	b.consumerDone = done
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			b.consumerRunning = false
			b.mu.Unlock()
			close(done)
		}()
		b.popLoop()
	}()
}

func (b *Buffer) waitConsumerDone() {
	b.mu.Lock()
	done := b.consumerDone
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}

// srcFailureErrorLocked builds the error a producer push should see given the
// current src_result, while the mutex is held.
func (b *Buffer) srcFailureErrorLocked(op string) error {
	switch b.srcRes {
	case srcFlushing:
		return errFlushing(op)
	case srcEOS:
		return errUnexpectedEOS(op)
	case srcError:
		return wrapDownstream(op, b.srcErr)
	default:
		return errFlushing(op)
	}
}

// SetCaps installs negotiated stream properties ahead of the first push, as
// delivered by a caps event. Returns false without touching any state if
// caps carries no valid clock rate.
func (b *Buffer) SetCaps(caps Caps) bool {
	if caps.ClockRate < 1 {
		return false
	}
	b.mu.Lock()
	b.applyCapsLocked(caps)
	b.mu.Unlock()
	return true
}

func (b *Buffer) applyCapsLocked(caps Caps) {
	b.clockRate = caps.ClockRate
	b.clockRateSet = true
	if caps.SeqNumBase != nil && b.nextSeq == nil {
		sb := *caps.SeqNumBase
		b.nextSeq = &sb
	}
	if caps.ClockBase != nil && !b.clockBaseSet {
		b.clockBase = uint64(*caps.ClockBase)
		b.clockBaseSet = true
	}
}

// PushRaw decodes raw as an RTP packet using the Buffer's own pool and pushes
// it (see Push). Unlike the not-negotiated and flushing failures, which are
// returned silently for the caller to handle, a malformed header is fatal to
// the stream and is logged here as well as returned.
func (b *Buffer) PushRaw(raw []byte) error {
	const op = "Buffer.PushRaw"

	pkt, err := ParsePacket(b.pool, raw)
	if err != nil {
		log.Error("jitter: malformed RTP packet", "op", op, "error", err)
		return err
	}
	return b.Push(pkt)
}

// Push hands one parsed RTP packet to the buffer. It never blocks on queue
// depth: late packets and duplicates are counted and dropped, and with
// drop-on-latency enabled the oldest held packets are evicted to make room.
// If the newly inserted packet sorts before the one the consumer is currently
// timing, the consumer's clock wait is unscheduled so it re-evaluates.
func (b *Buffer) Push(pkt *Packet) error {
	const op = "Buffer.Push"

	b.mu.Lock()
	clockRateSet := b.clockRateSet
	clockRate := b.clockRate
	ptMap := b.ptMap
	b.mu.Unlock()

	if !clockRateSet {
		var caps Caps
		var ok bool
		if ptMap != nil {
			caps, ok = ptMap.ResolvePt(pkt.PT)
		}
		if !ok || caps.ClockRate == 0 {
			pkt.Release()
			return errNotNegotiated(op, pkt.PT)
		}

		b.mu.Lock()
		if !b.clockRateSet {
			b.applyCapsLocked(caps)
		}
		clockRate = b.clockRate
		b.mu.Unlock()
	}

	b.mu.Lock()

	if b.srcRes != srcOK {
		err := b.srcFailureErrorLocked(op)
		b.mu.Unlock()
		pkt.Release()
		return err
	}
	if b.eos {
		b.mu.Unlock()
		pkt.Release()
		return errUnexpectedEOS(op)
	}

	if b.lastPoppedSeq != nil && seqLT(*b.lastPoppedSeq, pkt.Seq) < 0 {
		b.numLate++
		b.mu.Unlock()
		pkt.Release()
		return nil
	}

	if b.cfg.DropOnLatency && b.cfg.Latency.Duration() > 0 && clockRate > 0 {
		latencyTicks := int64(b.cfg.Latency.Duration()) * int64(clockRate) / nsPerSec
		for b.store.Len() > 0 && int64(b.store.TsSpan()) >= latencyTicks {
			evicted := b.store.PopHead()
			evicted.Release()
		}
	}

	if !b.store.Insert(pkt) {
		b.numDuplicates++
		b.mu.Unlock()
		pkt.Release()
		return nil
	}

	b.cond.Signal()

	if b.waiting && seqLT(pkt.Seq, b.wait.seq) > 0 {
		id := b.wait.id
		b.mu.Unlock()
		b.clock.Unschedule(id)
		return nil
	}

	b.mu.Unlock()
	return nil
}

// popLoop is the consumer task. It runs from Prepare or
// FlushStop until a flush, shutdown or downstream error ends it.
func (b *Buffer) popLoop() {
	for {
		b.mu.Lock()

		if b.srcRes != srcOK {
			b.mu.Unlock()
			return
		}

		for b.blocked || (b.store.Len() == 0 && !b.eos) {
			b.cond.Wait()
			if b.srcRes != srcOK {
				b.mu.Unlock()
				return
			}
		}

		if b.store.Len() == 0 && b.eos && !b.blocked {
			b.srcRes = srcEOS
			b.mu.Unlock()
			if err := b.sink.EOS(); err != nil {
				log.Warn("jitter: downstream EOS failed", err)
			}
			return
		}

		outbuf := b.store.PopHead()
		seq := outbuf.Seq
		extTs := b.extTs.Update(outbuf.RtpTs)

		needsSync := b.nextSeq == nil || *b.nextSeq != seq
		if needsSync {
			if !b.clockBaseSet {
				b.clockBase = extTs
				b.clockBaseSet = true
			}
			adjTs := extTs - b.clockBase
			clockRate := b.clockRate
			segment := b.segment
			latencyNs := int64(b.cfg.Latency.Duration())
			peerLatencyNs := b.peerLatencyNs
			baseTime := b.clock.BaseTime()

			var ns int64
			if clockRate > 0 {
				ns = int64(adjTs) * nsPerSec / int64(clockRate)
			}
			runningTimeNs := segment.ToRunningTime(ns) + latencyNs + peerLatencyNs
			target := baseTime.Add(time.Duration(runningTimeNs))

			id := b.clock.NewSingleShot(target)
			b.waiting = true
			b.wait = &activeWait{id: id, seq: seq}
			b.mu.Unlock()

			r := b.clock.Wait(id)

			b.mu.Lock()
			b.waiting = false
			b.wait = nil

			if b.srcRes != srcOK {
				b.mu.Unlock()
				outbuf.Release()
				return
			}

			if r == WaitUnscheduled {
				if !b.store.Insert(outbuf) {
					outbuf.Release()
				}
				b.mu.Unlock()
				continue
			}
			b.recordWait(time.Duration(runningTimeNs), b.clock.Now().Sub(baseTime))
		}

		if b.nextSeq != nil && *b.nextSeq != seq {
			dropped := seqLT(*b.nextSeq, seq)
			if dropped > 0 {
				b.numLate += uint64(dropped)
			}
			b.stats.Gaps++
			outbuf.Discont = true
			expected := *b.nextSeq
			b.warnThrottle.Do(func() {
				log.Warn("jitter: gap detected", "expected", expected, "got", seq, "dropped", dropped)
			})
		}

		tsOffsetNs := b.cfg.TsOffsetNs
		if tsOffsetNs != 0 && b.clockRate > 0 {
			offRtp := tsOffsetNs * int64(b.clockRate) / nsPerSec
			outbuf.RtpTs = uint32(int64(outbuf.RtpTs) + offRtp)
		}
		if tsOffsetNs != b.prevTsOffsetNs {
			outbuf.Discont = true
			b.prevTsOffsetNs = tsOffsetNs
		}

		lp := seq
		b.lastPoppedSeq = &lp
		ns2 := seqNext(seq)
		b.nextSeq = &ns2

		b.recordEmit()

		b.mu.Unlock()

		if err := b.sink.Push(outbuf); err != nil {
			b.mu.Lock()
			b.srcRes = srcError
			b.srcErr = err
			b.mu.Unlock()
			return
		}
	}
}
