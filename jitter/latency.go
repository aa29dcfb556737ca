package jitter

import "time"

// LatencyResult is the aggregated answer to a latency query: the minimum
// and (optional) maximum latency the pipeline should budget for, folding in
// this buffer's own contribution.
type LatencyResult struct {
	Live bool
	Min  time.Duration
	Max  *time.Duration
}

// LatencyQuery aggregates an upstream peer's reported latency with this
// buffer's own configured latency: min = peer.min + latency, and
// max = peer.max + latency when the peer reports a bounded max. A nil
// peerMax means the peer's max is unbounded/unknown and is propagated
// unchanged. The buffer's own latency contributes identically to both
// bounds.
func (b *Buffer) LatencyQuery(peerLive bool, peerMin time.Duration, peerMax *time.Duration) LatencyResult {
	b.mu.Lock()
	ourLatency := b.cfg.Latency.Duration()
	b.mu.Unlock()

	res := LatencyResult{
		Live: peerLive,
		Min:  peerMin + ourLatency,
	}
	if peerMax != nil {
		m := *peerMax + ourLatency
		res.Max = &m
	}
	return res
}
