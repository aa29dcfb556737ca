package jitter

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/eluv-io/errors-go"
	"github.com/stretchr/testify/require"

	"github.com/eluvio/rtpjitter/media/pktpool"
)

const testClockRate = 8000

func newTestBuffer(t *testing.T, clock Clock, sink Sink) *Buffer {
	t.Helper()
	b := NewBuffer(sink, clock, pktpool.NewPacketPool())
	b.WithPtMapResolver(fixedPtMap{caps: Caps{ClockRate: testClockRate}, ok: true})
	return b
}

func push(t *testing.T, b *Buffer, seq uint16, rtpTs uint32) error {
	t.Helper()
	return b.Push(&Packet{Seq: seq, RtpTs: rtpTs, PT: 96})
}

func TestBuffer_InOrder(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	for i, seq := range []uint16{100, 101, 102, 103, 104, 105} {
		require.NoError(t, push(t, b, seq, uint32(i)*160))
	}

	waitFor(t, func() bool { return sink.len() == 6 }, 2*time.Second)
	require.Equal(t, []uint16{100, 101, 102, 103, 104, 105}, sink.seqs())

	for i := 1; i < 6; i++ {
		require.False(t, sink.discontAt(i), "DISCONT must not be set after the first packet on a clean run")
	}

	st := b.Stats()
	require.Zero(t, st.NumLate)
	require.Zero(t, st.NumDuplicates)
}

func TestBuffer_SwapReordersViaUnscheduleRetry(t *testing.T) {
	clock := newFakeClock()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	// 100 arrives alone; the consumer pops it immediately and arms a wait.
	require.NoError(t, push(t, b, 100, 0))
	id := clock.nextArmed(t)
	clock.Fire(id)
	waitFor(t, func() bool { return sink.len() == 1 }, 2*time.Second)

	// 102 arrives next (101 is still missing); consumer pops it as the sole
	// entry (next_seq=101 != 102, so it's a resync point) and arms a wait
	// for its target time.
	require.NoError(t, push(t, b, 102, 320))
	id = clock.nextArmed(t)

	// 101 arrives while the consumer is timing 102. Since 101 sorts before
	// the packet currently being timed, Push must unschedule the wait.
	require.NoError(t, push(t, b, 101, 160))

	// The unscheduled wait re-inserts 102 and the consumer re-evaluates the
	// head: 101 now matches next_seq exactly, so it's emitted without a new
	// wait, and 102 immediately follows (it too now matches next_seq).
	// Neither packet forces a fresh clock arm.
	waitFor(t, func() bool { return sink.len() == 3 }, 2*time.Second)
	select {
	case extra := <-clock.Armed:
		t.Fatalf("unexpected extra clock wait armed: %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
	_ = id // the unscheduled id is consumed internally by the engine

	require.Equal(t, []uint16{100, 101, 102}, sink.seqs())
	st := b.Stats()
	require.Zero(t, st.NumLate)
	require.Zero(t, st.NumDuplicates)
}

func TestBuffer_LossCausesDiscont(t *testing.T) {
	clock := newFakeClock()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	require.NoError(t, push(t, b, 100, 0))
	require.NoError(t, push(t, b, 101, 160))
	require.NoError(t, push(t, b, 103, 480)) // 102 never arrives
	require.NoError(t, push(t, b, 104, 640))
	require.NoError(t, push(t, b, 105, 800))

	// Only two packets force a clock wait: 100 (first packet) and 103 (the
	// resync point after the gap left by the missing 102). 101, 104 and 105
	// each match next_seq exactly and are emitted without waiting.
	for i := 0; i < 2; i++ {
		id := clock.nextArmed(t)
		clock.Fire(id)
	}

	waitFor(t, func() bool { return sink.len() == 5 }, 2*time.Second)
	require.Equal(t, []uint16{100, 101, 103, 104, 105}, sink.seqs())
	require.True(t, sink.discontAt(2), "packet 103 must carry DISCONT after the gap left by 102")

	st := b.Stats()
	require.Equal(t, uint64(1), st.NumLate)
}

func TestBuffer_DuplicateDropped(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	require.NoError(t, push(t, b, 100, 0))
	require.NoError(t, push(t, b, 101, 160))
	require.NoError(t, push(t, b, 101, 160)) // duplicate
	require.NoError(t, push(t, b, 102, 320))

	waitFor(t, func() bool { return sink.len() == 3 }, 2*time.Second)
	require.Equal(t, []uint16{100, 101, 102}, sink.seqs())
	require.Equal(t, uint64(1), b.Stats().NumDuplicates)
}

func TestBuffer_LateAfterPopIsDroppedSilently(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	require.NoError(t, push(t, b, 100, 0))
	require.NoError(t, push(t, b, 101, 160))
	require.NoError(t, push(t, b, 102, 320))

	waitFor(t, func() bool { return sink.len() == 3 }, 2*time.Second)

	require.NoError(t, push(t, b, 101, 160)) // already popped; late
	require.Equal(t, uint64(1), b.Stats().NumLate)
	require.Equal(t, 3, sink.len(), "a late packet must never be re-emitted")
}

func TestBuffer_WrapAround(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	seqs := []uint16{65534, 65535, 0, 1}
	for i, seq := range seqs {
		require.NoError(t, push(t, b, seq, uint32(i)*160))
	}

	waitFor(t, func() bool { return sink.len() == 4 }, 2*time.Second)
	require.Equal(t, seqs, sink.seqs())
}

func TestBuffer_EOSDrainsThenRejectsFurtherPushes(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	for i, seq := range []uint16{100, 101, 102, 103, 104} {
		require.NoError(t, push(t, b, seq, uint32(i)*160))
	}
	require.NoError(t, b.EOS())

	waitFor(t, func() bool { return sink.len() == 5 }, 2*time.Second)
	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.eosCount == 1
	}, 2*time.Second)

	err := push(t, b, 200, 0)
	require.Error(t, err)
}

func TestBuffer_FlushMidWaitThenRestart(t *testing.T) {
	clock := newFakeClock()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()

	require.NoError(t, push(t, b, 100, 0))
	id := clock.nextArmed(t)
	clock.Fire(id)
	waitFor(t, func() bool { return sink.len() == 1 }, 2*time.Second)

	require.NoError(t, push(t, b, 102, 320)) // consumer now times 102, waiting on 101
	clock.nextArmed(t)

	b.FlushStart()
	b.FlushStop()

	clock.pace()
	require.NoError(t, push(t, b, 200, 0))
	waitFor(t, func() bool { return sink.len() == 2 }, 2*time.Second)
	require.Equal(t, uint16(200), sink.seqs()[1], "the first packet after flush-stop starts a fresh sequence")

	b.Shutdown()
}

func TestBuffer_DownstreamErrorPausesConsumerAndIsReturnedToPush(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	sink.failAt = 1
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	require.NoError(t, push(t, b, 100, 0))

	waitFor(t, func() bool { return sink.len() == 1 }, 2*time.Second)

	waitFor(t, func() bool {
		err := push(t, b, 101, 160)
		return err != nil
	}, 2*time.Second)
}

func TestBuffer_PauseBlocksConsumerRegardlessOfQueue(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	b.Pause()
	require.NoError(t, push(t, b, 100, 0))

	// give the consumer a chance to (incorrectly) wake up
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, sink.len(), "a paused consumer must not emit")

	b.Start()
	waitFor(t, func() bool { return sink.len() == 1 }, 2*time.Second)
}

func TestBuffer_NotNegotiatedWithoutClockRate(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := NewBuffer(sink, clock, pktpool.NewPacketPool())
	b.WithPtMapResolver(fixedPtMap{ok: false})
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	err := push(t, b, 100, 0)
	require.Error(t, err)
	require.Equal(t, 0, sink.len())
}

func TestBuffer_DropOnLatencyEvictsOldest(t *testing.T) {
	clock := newFakeClock()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.WithLatency(10 * time.Millisecond) // 80 ticks at 8000 Hz
	b.WithDropOnLatency(true)
	b.Prepare() // Armed + blocked: the consumer never drains the store here

	require.NoError(t, push(t, b, 100, 0))
	require.NoError(t, push(t, b, 101, 40))
	require.NoError(t, push(t, b, 102, 200))
	// Before this insert the store spans 200-0=200 >= 80 ticks: seq 100 and
	// 101 are evicted to make room, in that order, until the span drops
	// back under the latency budget.
	require.NoError(t, push(t, b, 103, 240))

	b.mu.Lock()
	length := b.store.Len()
	head := b.store.PeekHead()
	b.mu.Unlock()

	require.Equal(t, 2, length)
	require.Equal(t, uint16(102), head.Seq)

	b.Shutdown()
}

func TestBuffer_ShutdownIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()

	b.Shutdown()
	b.Shutdown() // must not block or panic
	require.Equal(t, StateShutdown, b.State())
}

// rtpBytes builds a minimal wire-format RTP packet (12-byte header, version
// 2, no CSRCs or extensions) followed by the given payload.
func rtpBytes(seq uint16, rtpTs uint32, pt uint8, payload []byte) []byte {
	raw := make([]byte, 12+len(payload))
	raw[0] = 0x80
	raw[1] = pt
	binary.BigEndian.PutUint16(raw[2:], seq)
	binary.BigEndian.PutUint32(raw[4:], rtpTs)
	binary.BigEndian.PutUint32(raw[8:], 0xdecafbad)
	copy(raw[12:], payload)
	return raw
}

func TestBuffer_PushRaw_MalformedHeaderLogsAndReturnsError(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	err := b.PushRaw([]byte{0x80, 96, 0}) // truncated header
	require.Error(t, err)
	require.True(t, errors.IsKind(KindDecode, err))
	require.Equal(t, 0, sink.len())
}

func TestBuffer_PushRaw_ValidPacketIsParsedAndEmitted(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	require.NoError(t, b.PushRaw(rtpBytes(321, 1600, 96, []byte{1, 2, 3, 4})))
	waitFor(t, func() bool { return sink.len() == 1 }, 2*time.Second)

	sink.mu.Lock()
	p := sink.pushed[0]
	sink.mu.Unlock()
	require.Equal(t, uint16(321), p.Seq)
	require.Equal(t, uint8(96), p.PT)
	require.NotNil(t, p.Payload)
	require.Equal(t, []byte{1, 2, 3, 4}, p.Payload.Data)
}

// TestBuffer_PushNeverBlocksOnQueueDepth checks that pushing a large run of
// in-order packets in a tight loop never blocks the producer on the store
// (the store is unbounded from the producer's point of view), exercising the
// mutex/condvar handoff under sustained load rather than single packets.
func TestBuffer_PushNeverBlocksOnQueueDepth(t *testing.T) {
	clock := newFakeClock()
	clock.pace()
	sink := newFakeSink()
	b := newTestBuffer(t, clock, sink)
	b.Prepare()
	b.Start()
	defer b.Shutdown()

	const n = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			require.NoError(t, push(t, b, uint16(i), uint32(i)*160))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked pushing a long in-order run")
	}

	waitFor(t, func() bool { return sink.len() == n }, 5*time.Second)
	seqs := sink.seqs()
	for i := 1; i < len(seqs); i++ {
		require.Less(t, seqs[i-1], seqs[i], "emitted sequence must be strictly increasing")
	}
}
