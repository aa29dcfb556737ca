// Package jitter implements a real-time RTP reordering and pacing buffer.
//
// It sits between an RTP ingress path and a single downstream consumer. It
// reorders packets that arrive out of order, drops duplicates and packets
// that arrive too late, waits a bounded amount of time for packets that
// never arrive, and releases packets on a schedule derived from their RTP
// timestamps and a reference clock. The element/pad/caps/negotiation
// machinery of a surrounding streaming framework is represented only
// through the interfaces this package consumes (see collaborators.go); it
// is not implemented here.
package jitter
