package jitter

// Sink is the single downstream consumer a Buffer pushes released packets
// to. It is the only external collaborator on the hot path; everything else
// (element/pad wiring, property dispatch) lives in the surrounding
// framework and is out of scope here.
type Sink interface {
	// Push delivers a released packet downstream. The Sink takes ownership
	// of pkt, including its pooled payload, and must call pkt.Release()
	// once done with it.
	Push(pkt *Packet) error
	// EOS notifies the sink that no further packets will follow.
	EOS() error
}

// Caps describes the negotiated properties of an RTP stream, as would be
// carried by a set_caps event in the surrounding framework.
type Caps struct {
	// ClockRate is required; Push fails with NotNegotiated while it is
	// unknown.
	ClockRate uint32
	// ClockBase, if non-nil, sets clock_base (the RTP timestamp that maps to
	// running time zero on the pop path) instead of taking it from the first
	// packet the consumer has to sync on.
	ClockBase *uint32
	// SeqNumBase, if non-nil, seeds next_seq before the first pop.
	SeqNumBase *uint16
}

// PtMapResolver resolves a payload type to stream Caps, mirroring the
// request-pt-map signal of the surrounding framework. It is consulted only
// when the clock rate is still unknown at push time.
type PtMapResolver interface {
	ResolvePt(pt uint8) (Caps, bool)
}

// Segment converts an RTP-timestamp-derived duration (nanoseconds since the
// clock base) to pipeline running time (nanoseconds), mirroring a TIME
// segment's to-running-time conversion in the surrounding framework.
// NewBuffer uses IdentitySegment when no Segment is supplied.
type Segment interface {
	ToRunningTime(ns int64) int64
}

// IdentitySegment is a Segment with start=0, rate=1: running time equals the
// input unchanged. Useful as a default and in tests.
type IdentitySegment struct{}

func (IdentitySegment) ToRunningTime(ns int64) int64 { return ns }
