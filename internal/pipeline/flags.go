// Package pipeline implements the market streaming engine: the
// producer/conflation/consumer tasks, sequence-integrity and resync
// handling, clock synchronization, candle aggregation, historical
// bootstrapping and the session lifecycle controller.
package pipeline

import (
	"math"
	"sync/atomic"

	"marketstream/internal/model"
)

// SessionFlags holds the per-session options that may be refreshed in place
// while the pipeline keeps running. The producer and consumer read them on
// the hot path, so each one is an independent atomic.
type SessionFlags struct {
	minNotionalBits       atomic.Uint64
	emitIntervalMs        atomic.Int64
	emitLegacyPriceEvent  atomic.Bool
	emitLegacyFrameEvents atomic.Bool
	perfTelemetry         atomic.Bool
}

// NewSessionFlags seeds the flags from a realized configuration.
func NewSessionFlags(cfg model.StreamConfig) *SessionFlags {
	flags := &SessionFlags{}
	flags.Refresh(cfg)
	return flags
}

// Refresh replaces every refreshable flag with the configuration's values.
func (f *SessionFlags) Refresh(cfg model.StreamConfig) {
	f.minNotionalBits.Store(math.Float64bits(cfg.MinNotionalUsdt))
	f.emitIntervalMs.Store(cfg.EmitIntervalMs)
	f.emitLegacyPriceEvent.Store(cfg.EmitLegacyPriceEvent)
	f.emitLegacyFrameEvents.Store(cfg.EmitLegacyFrameEvents)
	f.perfTelemetry.Store(cfg.PerfTelemetry)
}

// MinNotionalUsdt returns the current notional filter threshold.
func (f *SessionFlags) MinNotionalUsdt() float64 {
	return math.Float64frombits(f.minNotionalBits.Load())
}

// EmitIntervalMs returns the current consumer tick period.
func (f *SessionFlags) EmitIntervalMs() int64 {
	return f.emitIntervalMs.Load()
}

// EmitLegacyPriceEvent reports whether per-tick price events are enabled.
func (f *SessionFlags) EmitLegacyPriceEvent() bool {
	return f.emitLegacyPriceEvent.Load()
}

// EmitLegacyFrameEvents reports whether legacy candle/delta events are
// enabled.
func (f *SessionFlags) EmitLegacyFrameEvents() bool {
	return f.emitLegacyFrameEvents.Load()
}

// PerfTelemetry reports whether periodic perf snapshots are enabled.
func (f *SessionFlags) PerfTelemetry() bool {
	return f.perfTelemetry.Load()
}
