package jitter

import (
	"encoding/json"
	"time"

	"github.com/eluv-io/errors-go"

	"github.com/eluvio/rtpjitter/format/duration"
	"github.com/eluvio/rtpjitter/util/jsonutil"
)

// DefaultLatency is the buffering latency applied when no WithLatency call
// overrides it.
const DefaultLatency = duration.Spec(200 * time.Millisecond)

// Config holds the configuration options of a Buffer: the buffering
// latency, the drop-on-latency backpressure policy, and the RTP timestamp
// offset nudge. It is mutated through the chainable With* setters on Buffer
// rather than directly.
type Config struct {
	// tracker records which fields a JSON document unmarshaled into this
	// Config explicitly set, so ConfigFromJSON knows which ones to leave
	// alone when filling in the rest from DefaultConfig().
	tracker jsonutil.FieldTracker

	// Latency is the buffering target: the pop path waits this long past a
	// packet's computed running time before giving up on earlier packets
	// still in flight, and it also contributes to the latency query.
	Latency duration.Spec `json:"latency"`
	// DropOnLatency, when true, makes the push path evict the oldest held
	// packet whenever the store's ts_span reaches the latency budget,
	// rather than letting the store grow without bound.
	DropOnLatency bool `json:"drop_on_latency"`
	// TsOffsetNs shifts every emitted packet's RTP timestamp by this many
	// nanoseconds (converted to RTP units at pop time). Changing it sets
	// DISCONT on the next emitted packet.
	TsOffsetNs int64 `json:"ts_offset_ns"`
	// SeqNumBase, if set, seeds next_seq before the first pop instead of
	// leaving it to be discovered from the first popped packet.
	SeqNumBase *uint16 `json:"seqnum_base,omitempty"`
	// StatsLogPeriod, if non-zero, enables periodic aggregate stats
	// logging at this interval (see stats.go). Zero disables it.
	StatsLogPeriod duration.Spec `json:"stats_log_period"`
}

// UnmarshalJSON decodes cfg from a JSON document while also recording which
// fields it set into cfg.tracker, the same tracked-unmarshal idiom
// util/jsonutil/defaults_test.go's model type uses: a second, throwaway
// unmarshal into the tracker field captures the key set of the document
// without caring about the values.
func (c *Config) UnmarshalJSON(bts []byte) error {
	type alias Config
	var a alias
	if err := json.Unmarshal(bts, &a); err != nil {
		return err
	}
	*c = Config(a)
	return json.Unmarshal(bts, &c.tracker)
}

// DefaultConfig returns the Config a freshly armed Buffer starts with.
func DefaultConfig() Config {
	return Config{
		Latency: DefaultLatency,
	}
}

// ConfigFromJSON parses a possibly-partial JSON configuration document (e.g.
// the buffering section of a larger pipeline config file) and fills in any
// field the document left unset with DefaultConfig()'s value, via
// jsonutil.SetDefaults.
func ConfigFromJSON(data []byte) (Config, error) {
	const op = "jitter.ConfigFromJSON"

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.E(op, errors.K.Invalid, err)
	}
	if err := jsonutil.SetDefaults(DefaultConfig(), &cfg, cfg.tracker); err != nil {
		return Config{}, errors.E(op, errors.K.Invalid, err)
	}
	return cfg, nil
}

// WithLatency sets the buffering latency.
func (b *Buffer) WithLatency(d time.Duration) *Buffer {
	b.mu.Lock()
	b.cfg.Latency = duration.Spec(d)
	b.mu.Unlock()
	return b
}

// WithDropOnLatency enables or disables drop-on-latency backpressure.
func (b *Buffer) WithDropOnLatency(drop bool) *Buffer {
	b.mu.Lock()
	b.cfg.DropOnLatency = drop
	b.mu.Unlock()
	return b
}

// WithTsOffset sets the RTP timestamp offset, in nanoseconds.
func (b *Buffer) WithTsOffset(ns int64) *Buffer {
	b.mu.Lock()
	b.cfg.TsOffsetNs = ns
	b.mu.Unlock()
	return b
}

// WithSeqNumBase seeds next_seq for the first pop, ahead of caps discovery.
// The value is applied when next_seq is reset, on the next Prepare or
// FlushStop; a call after that does not change the current next_seq.
func (b *Buffer) WithSeqNumBase(seq uint16) *Buffer {
	b.mu.Lock()
	b.cfg.SeqNumBase = &seq
	b.mu.Unlock()
	return b
}

// WithStatsLogPeriod enables periodic aggregate stats logging at the given
// interval. Zero disables it.
func (b *Buffer) WithStatsLogPeriod(d time.Duration) *Buffer {
	b.mu.Lock()
	b.cfg.StatsLogPeriod = duration.Spec(d)
	b.mu.Unlock()
	b.restartStatsLogger()
	return b
}

// WithPtMapResolver installs the pt-map resolution hook consulted when the
// clock rate is unknown at push time.
func (b *Buffer) WithPtMapResolver(r PtMapResolver) *Buffer {
	b.mu.Lock()
	b.ptMap = r
	b.mu.Unlock()
	return b
}

// WithSegment installs the segment used to convert RTP-timestamp-derived
// durations to running time.
func (b *Buffer) WithSegment(seg Segment) *Buffer {
	b.mu.Lock()
	b.segment = seg
	b.mu.Unlock()
	return b
}

// WithPeerLatency records the latency reported by the upstream peer, used
// in latency query aggregation.
func (b *Buffer) WithPeerLatency(ns int64) *Buffer {
	b.mu.Lock()
	b.peerLatencyNs = ns
	b.mu.Unlock()
	return b
}

// ClearPtMap forces re-resolution of the clock rate on the next push.
func (b *Buffer) ClearPtMap() {
	b.mu.Lock()
	b.clockRateSet = false
	b.mu.Unlock()
}
