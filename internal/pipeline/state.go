package pipeline

import (
	"sync"

	"marketstream/internal/model"
)

// ApplyKind classifies the outcome of offering one trade to the conflated
// state.
type ApplyKind int

const (
	// ApplyAccepted means the trade advanced the sequence and mutated the
	// candle state.
	ApplyAccepted ApplyKind = iota

	// ApplyFiltered means the trade advanced the sequence but fell below the
	// notional threshold, so no candle state was touched.
	ApplyFiltered

	// ApplyStale means the aggregate id was at or behind the last applied id
	// (duplicate or out-of-order delivery); dropped silently.
	ApplyStale

	// ApplyGap means the aggregate id skipped ahead; the caller must resync.
	ApplyGap
)

// ApplyOutcome reports how a trade was handled. Expected and Found are set
// only for ApplyGap.
type ApplyOutcome struct {
	Kind     ApplyKind
	Expected uint64
	Found    uint64
}

// Missed is the number of aggregate ids skipped by a gap.
func (o ApplyOutcome) Missed() uint64 {
	if o.Kind != ApplyGap || o.Found <= o.Expected {
		return 0
	}
	return o.Found - o.Expected
}

// ConflatedState is the single mutable rendezvous between the producer and
// the consumer: the latest candle, delta candle and tick snapshot plus the
// dirty flag the consumer clears on every emit.
//
// The mutex contract is strict: critical sections contain only arithmetic
// and field reads/writes. Wall-clock reads, I/O and allocation happen
// outside. Telemetry gauges read by the heartbeat live in Telemetry atomics,
// not here.
type ConflatedState struct {
	mu sync.Mutex

	currentCandle      model.Candle
	hasCandle          bool
	currentDeltaCandle model.DeltaCandle
	hasDeltaCandle     bool
	lastTick           model.Tick
	hasTick            bool
	dirty              bool

	lastAggID    uint64
	hasLastAggID bool
}

// NewConflatedState returns an empty rendezvous.
func NewConflatedState() *ConflatedState {
	return &ConflatedState{}
}

// ApplyTrade validates sequence continuity and, for trades at or above the
// notional threshold, folds the trade into the current candle, delta candle
// and tick. Sub-notional trades advance the sequence but mutate nothing
// else. Called only by the producer.
func (s *ConflatedState) ApplyTrade(trade model.AggTrade, minNotionalUsdt float64, timeframe model.Timeframe) ApplyOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasLastAggID {
		if trade.AggregateID <= s.lastAggID {
			return ApplyOutcome{Kind: ApplyStale}
		}
		expected := s.lastAggID + 1
		if trade.AggregateID != expected {
			return ApplyOutcome{Kind: ApplyGap, Expected: expected, Found: trade.AggregateID}
		}
	}

	s.lastAggID = trade.AggregateID
	s.hasLastAggID = true

	if trade.Notional() < minNotionalUsdt {
		return ApplyOutcome{Kind: ApplyFiltered}
	}

	bucketOpen := model.BucketOpenTime(trade.TradeTimeMs, timeframe.DurationMs())
	s.applyCandle(trade, bucketOpen)
	s.applyDeltaCandle(trade, bucketOpen)

	s.lastTick = model.Tick{
		T: trade.TradeTimeMs,
		P: trade.Price,
		V: trade.Quantity,
		D: trade.Direction(),
	}
	s.hasTick = true
	s.dirty = true

	return ApplyOutcome{Kind: ApplyAccepted}
}

func (s *ConflatedState) applyCandle(trade model.AggTrade, bucketOpen int64) {
	switch {
	case s.hasCandle && bucketOpen < s.currentCandle.T:
		// A trade from an already-rolled bucket; the candle for it is gone.
	case s.hasCandle && bucketOpen == s.currentCandle.T:
		s.currentCandle.ApplyTrade(trade.Price, trade.Quantity)
	default:
		s.currentCandle = model.CandleFromTrade(bucketOpen, trade.Price, trade.Quantity)
		s.hasCandle = true
	}
}

func (s *ConflatedState) applyDeltaCandle(trade model.AggTrade, bucketOpen int64) {
	signed := trade.Quantity * float64(trade.Direction())
	switch {
	case s.hasDeltaCandle && bucketOpen < s.currentDeltaCandle.T:
	case s.hasDeltaCandle && bucketOpen == s.currentDeltaCandle.T:
		s.currentDeltaCandle.ApplySignedVolume(signed, trade.Quantity)
	default:
		s.currentDeltaCandle = model.DeltaCandleFromTrade(bucketOpen, signed, trade.Quantity)
		s.hasDeltaCandle = true
	}
}

// EmitSnapshot is the consumer's view of the state at one tick.
type EmitSnapshot struct {
	Candle      *model.Candle
	DeltaCandle *model.DeltaCandle
	Tick        *model.Tick
	WasDirty    bool
}

// SnapshotForEmit copies the current candle, delta candle and tick, reports
// whether anything changed since the previous snapshot, and clears the dirty
// flag. Called only by the consumer.
func (s *ConflatedState) SnapshotForEmit() EmitSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := EmitSnapshot{WasDirty: s.dirty}
	s.dirty = false

	if s.hasCandle {
		candle := s.currentCandle
		snapshot.Candle = &candle
	}
	if s.hasDeltaCandle {
		deltaCandle := s.currentDeltaCandle
		snapshot.DeltaCandle = &deltaCandle
	}
	if s.hasTick {
		tick := s.lastTick
		snapshot.Tick = &tick
	}
	return snapshot
}

// ApplySnapshot resets the sequence cursor from a REST snapshot during
// resync. Candle state is left intact; the live stream extends it forward.
func (s *ConflatedState) ApplySnapshot(aggregateID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAggID = aggregateID
	s.hasLastAggID = true
}

// ApplyHistory seeds the current candle and delta candle from the newest
// entries of a historical bootstrap, unless live trading already produced a
// newer bucket. Does not mark the state dirty; the bootstrap events carry
// the history to the shell.
func (s *ConflatedState) ApplyHistory(candles []model.Candle, deltaCandles []model.DeltaCandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(candles) > 0 {
		newest := candles[len(candles)-1]
		if !s.hasCandle || newest.T >= s.currentCandle.T {
			s.currentCandle = newest
			s.hasCandle = true
		}
	}
	if len(deltaCandles) > 0 {
		newest := deltaCandles[len(deltaCandles)-1]
		if !s.hasDeltaCandle || newest.T >= s.currentDeltaCandle.T {
			s.currentDeltaCandle = newest
			s.hasDeltaCandle = true
		}
	}
}

// LastAggID returns the last applied aggregate id, if any.
func (s *ConflatedState) LastAggID() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAggID, s.hasLastAggID
}
