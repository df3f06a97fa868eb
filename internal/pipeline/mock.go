package pipeline

import (
	"context"
	"time"

	"marketstream/internal/model"
)

const mockTickInterval = 4 * time.Millisecond

// MockProducer replaces the websocket producer with a deterministic local
// generator, for development and tests without network access. Synthetic
// trades alternate direction and walk the price so candles and delta candles
// exercise both sides.
type MockProducer struct {
	cfg       model.StreamConfig
	flags     *SessionFlags
	state     *ConflatedState
	telemetry *Telemetry
	perf      *PerfRecorder
	status    *statusPublisher
}

// NewMockProducer builds the generator for one session.
func NewMockProducer(cfg model.StreamConfig, flags *SessionFlags, state *ConflatedState, telemetry *Telemetry, perf *PerfRecorder, status *statusPublisher) *MockProducer {
	return &MockProducer{
		cfg:       cfg,
		flags:     flags,
		state:     state,
		telemetry: telemetry,
		perf:      perf,
		status:    status,
	}
}

// Run generates trades until cancellation.
func (m *MockProducer) Run(ctx context.Context) {
	m.status.publish(model.StateConnecting, "starting deterministic mock stream")
	m.status.publish(model.StateLive, "mock mode active")

	ticker := time.NewTicker(mockTickInterval)
	defer ticker.Stop()

	var aggregateID uint64
	price := 100_000.0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			aggregateID++
			upward := aggregateID%2 == 0
			if upward {
				price += 0.6
			} else {
				price -= 0.4
			}
			quantity := 0.12 + float64(aggregateID%5)*0.01
			nowMs := time.Now().UnixMilli()

			trade := model.AggTrade{
				EventTimeMs:  nowMs,
				AggregateID:  aggregateID,
				Price:        price,
				Quantity:     quantity,
				TradeTimeMs:  nowMs,
				IsBuyerMaker: !upward,
			}

			ingestStart := time.Now()
			outcome := m.state.ApplyTrade(trade, m.flags.MinNotionalUsdt(), m.cfg.Timeframe)
			if outcome.Kind == ApplyAccepted || outcome.Kind == ApplyFiltered {
				m.perf.IncIngest()
				m.telemetry.SetLastAggID(aggregateID)
				offsetMs, offsetKnown := m.telemetry.ClockOffset()
				m.telemetry.SetNetworkLatencies(0, adjustedNetworkLatency(0, offsetMs, offsetKnown))
				m.telemetry.SetLocalPipelineLatency(time.Since(ingestStart).Milliseconds())
			}
		}
	}
}

// BuildMockHistory synthesizes a deterministic candle bootstrap ending at
// the current bucket.
func BuildMockHistory(timeframe model.Timeframe, limit int64, nowMs int64) []model.Candle {
	timeframeMs := timeframe.DurationMs()
	alignedNow := model.BucketOpenTime(nowMs, timeframeMs)
	start := alignedNow - limit*timeframeMs

	candles := make([]model.Candle, 0, limit)
	price := 100_000.0
	for step := int64(0); step < limit; step++ {
		openTime := start + step*timeframeMs
		drift := (float64(step%7) - 3.0) * 2.1
		open := price
		closePrice := open + drift
		if closePrice < 1 {
			closePrice = 1
		}
		high := open
		if closePrice > high {
			high = closePrice
		}
		low := open
		if closePrice < low {
			low = closePrice
		}
		candles = append(candles, model.Candle{
			T: openTime,
			O: open,
			H: high + 1.25,
			L: low - 1.1,
			C: closePrice,
			V: 2.0 + float64(step%5)*0.3,
		})
		price = closePrice
	}
	return candles
}

// BuildMockDeltaHistory synthesizes the matching delta-candle bootstrap.
func BuildMockDeltaHistory(timeframe model.Timeframe, limit int64, nowMs int64) []model.DeltaCandle {
	timeframeMs := timeframe.DurationMs()
	alignedNow := model.BucketOpenTime(nowMs, timeframeMs)
	start := alignedNow - limit*timeframeMs

	candles := make([]model.DeltaCandle, 0, limit)
	for step := int64(0); step < limit; step++ {
		direction := 1.0
		if step%2 != 0 {
			direction = -1.0
		}
		magnitude := 1.0 + float64(step%7)*0.35
		closeDelta := direction * magnitude

		high := closeDelta
		if high < 0 {
			high = 0
		}
		low := closeDelta
		if low > 0 {
			low = 0
		}
		candles = append(candles, model.DeltaCandle{
			T: start + step*timeframeMs,
			O: 0,
			H: high,
			L: low,
			C: closeDelta,
			V: magnitude,
		})
	}
	return candles
}
