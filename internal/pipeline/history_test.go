package pipeline

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketstream/internal/model"
)

// fakeHistoryGateway serves klines from an in-memory ascending series the
// way the exchange does: the newest `limit` buckets at or before endTime.
type fakeHistoryGateway struct {
	candles      []model.Candle
	deltaCandles []model.DeltaCandle
	requests     atomic.Int32
}

func newFakeHistoryGateway(buckets int, timeframe model.Timeframe) *fakeHistoryGateway {
	gateway := &fakeHistoryGateway{}
	timeframeMs := timeframe.DurationMs()
	for i := 0; i < buckets; i++ {
		openTime := int64(i) * timeframeMs
		price := 100.0 + float64(i)
		gateway.candles = append(gateway.candles, model.Candle{
			T: openTime, O: price, H: price + 1, L: price - 1, C: price + 0.5, V: 10,
		})
		gateway.deltaCandles = append(gateway.deltaCandles, model.DeltaCandle{
			T: openTime, O: 0, H: 2, L: 0, C: 2, V: 10,
		})
	}
	return gateway
}

func (f *fakeHistoryGateway) Klines(ctx context.Context, symbol string, timeframe model.Timeframe, startMs, endMs *int64, limit int) ([]model.Candle, []model.DeltaCandle, error) {
	f.requests.Add(1)

	end := len(f.candles)
	if endMs != nil {
		for end > 0 && f.candles[end-1].T > *endMs {
			end--
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	page := append([]model.Candle(nil), f.candles[start:end]...)
	deltaPage := append([]model.DeltaCandle(nil), f.deltaCandles[start:end]...)
	return page, deltaPage, nil
}

func (f *fakeHistoryGateway) OldestKlineOpenTime(ctx context.Context, symbol string, timeframe model.Timeframe) (*int64, error) {
	if len(f.candles) == 0 {
		return nil, nil
	}
	oldest := f.candles[0].T
	return &oldest, nil
}

func historyConfig(limit int64, all bool) model.StreamConfig {
	cfg := defaultTestConfig()
	cfg.HistoryLimit = limit
	cfg.HistoryAll = all
	return cfg
}

func Test_SinglePageBootstrap(t *testing.T) {
	gateway := newFakeHistoryGateway(500, model.Timeframe1m)
	sink := &captureSink{}
	state := NewConflatedState()

	loader := NewHistoryLoader(gateway, historyConfig(200, false), state, sink)
	require.NoError(t, loader.Run(context.Background()))

	bootstraps := sink.payloads(model.EventCandlesBootstrap)
	require.Len(t, bootstraps, 1)
	payload := bootstraps[0].(model.CandlesBootstrap)
	require.Len(t, payload.Candles, 200)

	// The newest 200 buckets, ascending.
	assert.Equal(t, int64(300)*60_000, payload.Candles[0].T)
	assert.Equal(t, int64(499)*60_000, payload.Candles[199].T)
	for i := 1; i < len(payload.Candles); i++ {
		assert.Equal(t, int64(60_000), payload.Candles[i].T-payload.Candles[i-1].T)
	}

	deltaBootstraps := sink.payloads(model.EventDeltaCandlesBoot)
	require.Len(t, deltaBootstraps, 1)
	deltaPayload := deltaBootstraps[0].(model.DeltaCandlesBootstrap)
	assert.Len(t, deltaPayload.Candles, 200)

	// No progress events for a plain bootstrap.
	assert.Empty(t, sink.payloads(model.EventHistoryLoadProgress))
}

func Test_LargeLimitPaginatesInternally(t *testing.T) {
	gateway := newFakeHistoryGateway(2_500, model.Timeframe1m)
	sink := &captureSink{}

	loader := NewHistoryLoader(gateway, historyConfig(1_500, false), NewConflatedState(), sink)
	require.NoError(t, loader.Run(context.Background()))

	payload := sink.payloads(model.EventCandlesBootstrap)[0].(model.CandlesBootstrap)
	require.Len(t, payload.Candles, 1_500)
	assert.GreaterOrEqual(t, gateway.requests.Load(), int32(2))
}

func Test_PaginatedFullHistoryProgress(t *testing.T) {
	// Three pages: 1000, 1000, 237.
	gateway := newFakeHistoryGateway(2_237, model.Timeframe1m)
	sink := &captureSink{}

	loader := NewHistoryLoader(gateway, historyConfig(1_000, true), NewConflatedState(), sink)
	require.NoError(t, loader.Run(context.Background()))

	var progress []model.HistoryLoadProgress
	for _, payload := range sink.payloads(model.EventHistoryLoadProgress) {
		progress = append(progress, payload.(model.HistoryLoadProgress))
	}
	require.Len(t, progress, 4, "one event per page plus the terminal event")

	assert.Equal(t, uint32(1), progress[0].PagesFetched)
	assert.Equal(t, uint64(1_000), progress[0].CandlesFetched)
	assert.Equal(t, uint32(2), progress[1].PagesFetched)
	assert.Equal(t, uint64(2_000), progress[1].CandlesFetched)
	assert.Equal(t, uint32(3), progress[2].PagesFetched)
	assert.Equal(t, uint64(2_237), progress[2].CandlesFetched)

	for _, p := range progress[:3] {
		assert.False(t, p.Done)
		require.NotNil(t, p.EstimatedTotalCandles)
		assert.Equal(t, uint64(2_237), *p.EstimatedTotalCandles)
		require.NotNil(t, p.ProgressPct)
		assert.LessOrEqual(t, *p.ProgressPct, 99.9)
	}

	terminal := progress[3]
	assert.True(t, terminal.Done)
	require.NotNil(t, terminal.ProgressPct)
	assert.Equal(t, 100.0, *terminal.ProgressPct)
	assert.Equal(t, uint64(2_237), terminal.CandlesFetched)

	// Monotonicity across the whole sequence.
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i].PagesFetched, progress[i-1].PagesFetched)
		assert.GreaterOrEqual(t, progress[i].CandlesFetched, progress[i-1].CandlesFetched)
	}

	payload := sink.payloads(model.EventCandlesBootstrap)[0].(model.CandlesBootstrap)
	assert.Len(t, payload.Candles, 2_237)
	assert.Equal(t, int64(0), payload.Candles[0].T)
}

func Test_HistorySeedsConflatedState(t *testing.T) {
	gateway := newFakeHistoryGateway(10, model.Timeframe1m)
	state := NewConflatedState()

	loader := NewHistoryLoader(gateway, historyConfig(10, false), state, &captureSink{})
	require.NoError(t, loader.Run(context.Background()))

	snapshot := state.SnapshotForEmit()
	assert.False(t, snapshot.WasDirty)
	require.NotNil(t, snapshot.Candle)
	assert.Equal(t, int64(9)*60_000, snapshot.Candle.T)
}

func Test_MockHistoryBootstrap(t *testing.T) {
	cfg := historyConfig(50, false)
	cfg.MockMode = true
	sink := &captureSink{}

	loader := NewHistoryLoader(nil, cfg, NewConflatedState(), sink)
	require.NoError(t, loader.Run(context.Background()))

	payload := sink.payloads(model.EventCandlesBootstrap)[0].(model.CandlesBootstrap)
	require.Len(t, payload.Candles, 50)
	for _, candle := range payload.Candles {
		assert.Zero(t, candle.T%60_000, "mock buckets must be timeframe-aligned")
		assert.LessOrEqual(t, candle.L, candle.O)
		assert.GreaterOrEqual(t, candle.H, candle.C)
	}

	deltaPayload := sink.payloads(model.EventDeltaCandlesBoot)[0].(model.DeltaCandlesBootstrap)
	assert.Len(t, deltaPayload.Candles, 50)
}
