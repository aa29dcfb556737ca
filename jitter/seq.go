package jitter

// seqLT compares two 16-bit RTP sequence numbers on the circular number line.
// It returns b-a interpreted as a signed 16-bit quantity: negative if a is
// "after" b in stream order, positive if a is "before" b, zero if equal.
//
// Wrapping is transparent because uint16 subtraction already reduces mod
// 2^16, and reinterpreting the result as int16 picks the shorter arc around
// the circle. Equivalently: if the plain (non-modular) difference b-a has
// magnitude > 2^15, the short arc runs the other way around the circle and
// the sign flips, which is exactly what the int16 reinterpretation produces.
func seqLT(a, b uint16) int32 {
	return int32(int16(b - a))
}

// seqNext returns the sequence number following seq, wrapping from 65535 to 0.
func seqNext(seq uint16) uint16 {
	return seq + 1
}

// SequenceTracker extends a 16-bit wrap-around RTP sequence number to a
// 64-bit counter that does not wrap. Each call moves the counter by the
// signed distance seqLT reports, so successive inputs must be less than 2^15
// apart. It is a standalone helper: Buffer does not use it, and its gap and
// duplicate handling works on raw 16-bit numbers through seqLT.
type SequenceTracker struct {
	hasLast  bool
	last     uint16
	current  int64
	previous int64
}

// Update returns the previous and current unwrapped sequence number for the
// given wrapped sequence number. On the first call, previous is fabricated
// as current-1.
func (t *SequenceTracker) Update(seq uint16) (previous, current int64) {
	if !t.hasLast {
		t.hasLast = true
		t.last = seq
		t.current = int64(seq)
		t.previous = t.current - 1
		return t.previous, t.current
	}
	diff := seqLT(t.last, seq)
	t.previous = t.current
	t.current += int64(diff)
	t.last = seq
	return t.previous, t.current
}

// Previous returns the previous unwrapped sequence number.
func (t *SequenceTracker) Previous() int64 { return t.previous }

// Current returns the most recent unwrapped sequence number.
func (t *SequenceTracker) Current() int64 { return t.current }
