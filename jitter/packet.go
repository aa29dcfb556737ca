package jitter

import (
	"github.com/pion/rtp"

	"github.com/eluv-io/errors-go"

	"github.com/eluvio/rtpjitter/media/pktpool"
)

// Packet is one buffered RTP packet together with the header fields the
// engine needs to order, pace and tag it. The raw bytes backing Payload are
// pool-owned (see media/pktpool): the packet must be released with Release
// exactly once, by whichever side last holds it (store, discard path, or the
// downstream Sink after a successful emit).
type Packet struct {
	Seq    uint16
	RtpTs  uint32
	PT     uint8
	Marker bool

	// Discont is set by the pop path when the emitted packet is not
	// contiguous with the previous one, either because of a detected gap or
	// a changed ts-offset.
	Discont bool

	Payload *pktpool.Packet
}

// Release returns the packet's pooled payload buffer. Safe to call on a
// Packet whose Payload is nil (e.g. fabricated in tests).
func (p *Packet) Release() {
	if p != nil && p.Payload != nil {
		p.Payload.Release()
		p.Payload = nil
	}
}

// ParsePacket validates and decodes the RTP header of raw, returning a Packet
// backed by a buffer drawn from pool. On error the caller still owns raw;
// nothing is allocated from the pool.
func ParsePacket(pool *pktpool.PacketPool, raw []byte) (*Packet, error) {
	const op = "jitter.ParsePacket"
	hdr := rtp.Header{}
	n, err := hdr.Unmarshal(raw)
	if err != nil {
		return nil, errDecode(op, err, "reason", "failed to unmarshal RTP header")
	}
	if n > len(raw) {
		return nil, errDecode(op, errors.E(op, errors.K.Invalid, "reason", "header longer than packet"))
	}

	payload := pool.GetPacket()
	body := raw[n:]
	if cap(payload.Data) < len(body) {
		payload.Data = make([]byte, len(body))
	}
	payload.Data = payload.Data[:len(body)]
	copy(payload.Data, body)

	return &Packet{
		Seq:     hdr.SequenceNumber,
		RtpTs:   hdr.Timestamp,
		PT:      hdr.PayloadType,
		Marker:  hdr.Marker,
		Payload: payload,
	}, nil
}
