package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_BucketOpenTime(t *testing.T) {
	tests := []struct {
		name        string
		timestampMs int64
		timeframeMs int64
		want        int64
	}{
		{name: "already aligned", timestampMs: 60_000, timeframeMs: 60_000, want: 60_000},
		{name: "inside bucket", timestampMs: 60_900, timeframeMs: 60_000, want: 60_000},
		{name: "last millisecond", timestampMs: 119_999, timeframeMs: 60_000, want: 60_000},
		{name: "next bucket", timestampMs: 120_001, timeframeMs: 60_000, want: 120_000},
		{name: "negative timestamp floors", timestampMs: -1, timeframeMs: 60_000, want: -60_000},
		{name: "zero timeframe passthrough", timestampMs: 1_234, timeframeMs: 0, want: 1_234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketOpenTime(tt.timestampMs, tt.timeframeMs))
		})
	}
}

func Test_TimeframeDurations(t *testing.T) {
	tests := []struct {
		timeframe Timeframe
		wantMs    int64
	}{
		{Timeframe1m, 60_000},
		{Timeframe5m, 300_000},
		{Timeframe1h, 3_600_000},
		{Timeframe4h, 14_400_000},
		{Timeframe1d, 86_400_000},
		{Timeframe1w, 604_800_000},
		{Timeframe1M, 2_592_000_000},
	}

	for _, tt := range tests {
		t.Run(string(tt.timeframe), func(t *testing.T) {
			assert.Equal(t, tt.wantMs, tt.timeframe.DurationMs())
			assert.Equal(t, tt.wantMs/1_000, tt.timeframe.BucketSeconds())
		})
	}
}

func Test_CandleApplyTrade(t *testing.T) {
	candle := CandleFromTrade(60_000, 100.0, 2.0)
	candle.ApplyTrade(101.0, 1.0)
	candle.ApplyTrade(100.5, 1.0)

	assert.Equal(t, int64(60_000), candle.T)
	assert.Equal(t, 100.0, candle.O)
	assert.Equal(t, 101.0, candle.H)
	assert.Equal(t, 100.0, candle.L)
	assert.Equal(t, 100.5, candle.C)
	assert.InDelta(t, 4.0, candle.V, 1e-9)

	// OHLC ordering must hold after any sequence of trades.
	assert.LessOrEqual(t, candle.L, candle.O)
	assert.LessOrEqual(t, candle.L, candle.C)
	assert.GreaterOrEqual(t, candle.H, candle.O)
	assert.GreaterOrEqual(t, candle.H, candle.C)
}

func Test_DeltaCandleRunningExtremes(t *testing.T) {
	// Buy 2, sell 1, buy 1: running sums +2, +1, +2.
	delta := DeltaCandleFromTrade(60_000, 2.0, 2.0)
	delta.ApplySignedVolume(-1.0, 1.0)
	delta.ApplySignedVolume(1.0, 1.0)

	assert.Equal(t, 2.0, delta.O)
	assert.Equal(t, 2.0, delta.H)
	assert.Equal(t, 1.0, delta.L)
	assert.Equal(t, 2.0, delta.C)
	assert.InDelta(t, 4.0, delta.V, 1e-9)

	// The running-sum invariants: l <= c <= h and |c-o| bounded by v.
	assert.LessOrEqual(t, delta.L, delta.C)
	assert.LessOrEqual(t, delta.C, delta.H)
	assert.LessOrEqual(t, delta.C-delta.O, delta.V)
}

func Test_DeltaCandleSellPressure(t *testing.T) {
	delta := DeltaCandleFromTrade(0, -3.0, 3.0)
	delta.ApplySignedVolume(-2.0, 2.0)

	assert.Equal(t, -3.0, delta.O)
	assert.Equal(t, -3.0, delta.H)
	assert.Equal(t, -5.0, delta.L)
	assert.Equal(t, -5.0, delta.C)
	assert.InDelta(t, 5.0, delta.V, 1e-9)
}

func Test_DeltaCandleFromTakerVolume(t *testing.T) {
	tests := []struct {
		name       string
		total      float64
		takerBuy   float64
		wantSigned float64
	}{
		{name: "balanced", total: 10, takerBuy: 5, wantSigned: 0},
		{name: "buy heavy", total: 10, takerBuy: 8, wantSigned: 6},
		{name: "sell heavy", total: 10, takerBuy: 2, wantSigned: -6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta := DeltaCandleFromTakerVolume(60_000, tt.total, tt.takerBuy)
			require.Equal(t, tt.wantSigned, delta.C)
			assert.Equal(t, 0.0, delta.O)
			assert.Equal(t, tt.total, delta.V)
			assert.LessOrEqual(t, delta.L, delta.C)
			assert.LessOrEqual(t, delta.C, delta.H)
		})
	}
}
