package jitter

import "sort"

// OrderedStore is a sorted queue of packets keyed by circular RTP sequence
// number. It rejects duplicate sequence numbers and gives O(1) access to the
// lowest-seq element, at O(n) insertion cost. n is bounded by
// latency * packet rate, typically tens to a few thousand entries.
type OrderedStore struct {
	packets []*Packet
}

// NewOrderedStore returns an empty store.
func NewOrderedStore() *OrderedStore {
	return &OrderedStore{}
}

// Insert positions packet in order and returns true, or returns false
// without modifying the store if a packet with the same sequence number is
// already present.
func (s *OrderedStore) Insert(p *Packet) bool {
	idx, found := sort.Find(len(s.packets), func(i int) int {
		return int(seqLT(s.packets[i].Seq, p.Seq))
	})
	if found {
		return false
	}
	s.packets = append(s.packets, nil)
	copy(s.packets[idx+1:], s.packets[idx:])
	s.packets[idx] = p
	return true
}

// PopHead removes and returns the lowest-seq packet. Undefined (nil) when
// the store is empty.
func (s *OrderedStore) PopHead() *Packet {
	if len(s.packets) == 0 {
		return nil
	}
	p := s.packets[0]
	s.packets[0] = nil
	s.packets = s.packets[1:]
	return p
}

// PeekHead returns the lowest-seq packet without removing it, or nil if the
// store is empty.
func (s *OrderedStore) PeekHead() *Packet {
	if len(s.packets) == 0 {
		return nil
	}
	return s.packets[0]
}

// Len returns the number of packets currently held.
func (s *OrderedStore) Len() int {
	return len(s.packets)
}

// TsSpan returns rtp_ts(tail) - rtp_ts(head) as a signed 32-bit difference,
// or 0 if the store holds fewer than two packets.
func (s *OrderedStore) TsSpan() int32 {
	if len(s.packets) < 2 {
		return 0
	}
	head := s.packets[0]
	tail := s.packets[len(s.packets)-1]
	return int32(int32(tail.RtpTs) - int32(head.RtpTs))
}

// Flush removes and releases every packet currently held.
func (s *OrderedStore) Flush() {
	for _, p := range s.packets {
		p.Release()
	}
	s.packets = s.packets[:0]
}
