package jitter

import (
	"github.com/eluv-io/errors-go"
)

// The error kinds a Buffer produces: Decode is fatal and reported to the
// caller as well as logged; NotNegotiated and Flushing are returned silently
// (the caller decides); a downstream failure wraps whatever the sink
// returned.
var (
	// KindDecode marks a malformed RTP packet. Fatal to the stream.
	KindDecode = errors.K.Invalid
	// KindNotNegotiated marks a push before the clock rate could be resolved.
	KindNotNegotiated = errors.K.NotFound
	// KindFlushing marks an operation aborted by a flush or shutdown in progress.
	KindFlushing = errors.K.Cancelled
	// KindUnexpectedEOS marks an operation that is invalid because EOS was
	// already delivered.
	KindUnexpectedEOS = errors.K.Finalized
)

func errDecode(op string, cause error, fields ...interface{}) error {
	args := append([]interface{}{op, KindDecode, cause}, fields...)
	return errors.E(args...)
}

func errNotNegotiated(op string, pt uint8) error {
	return errors.E(op, KindNotNegotiated, "reason", "clock rate not negotiated", "pt", pt)
}

func errFlushing(op string) error {
	return errors.E(op, KindFlushing, "reason", "flushing")
}

func errUnexpectedEOS(op string) error {
	return errors.E(op, KindUnexpectedEOS, "reason", "eos already received")
}

// wrapDownstream wraps an error returned by the downstream Sink so that it can
// be distinguished from the other taxonomy members while preserving the
// sink's own error as the cause.
func wrapDownstream(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return errors.E(op, errors.K.IO, cause, "reason", "downstream push failed")
}
