package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DrawingUpsertNormalize(t *testing.T) {
	label := "  Test label  "
	args := DrawingUpsertArgs{
		ID:          "  draw-1  ",
		MarketKind:  MarketSpot,
		Symbol:      " ethusdt ",
		Timeframe:   Timeframe1m,
		DrawingType: "trendLine",
		Color:       "#aabbcc",
		Label:       &label,
		PayloadJSON: ` {"foo":1} `,
	}

	normalized, err := args.Normalize()
	require.NoError(t, err)

	assert.Equal(t, "draw-1", normalized.ID)
	assert.Equal(t, "ETHUSDT", normalized.Symbol)
	assert.Equal(t, "#AABBCC", normalized.Color)
	require.NotNil(t, normalized.Label)
	assert.Equal(t, "Test label", *normalized.Label)
	assert.Equal(t, `{"foo":1}`, normalized.PayloadJSON)
}

func Test_DrawingUpsertRejections(t *testing.T) {
	valid := DrawingUpsertArgs{
		ID:          "draw-1",
		MarketKind:  MarketSpot,
		Symbol:      "BTCUSDT",
		Timeframe:   Timeframe1m,
		DrawingType: "ruler",
		Color:       "#FFFFFF",
		PayloadJSON: "{}",
	}

	tests := []struct {
		name   string
		mutate func(a DrawingUpsertArgs) DrawingUpsertArgs
	}{
		{name: "empty id", mutate: func(a DrawingUpsertArgs) DrawingUpsertArgs { a.ID = "  "; return a }},
		{name: "unknown type", mutate: func(a DrawingUpsertArgs) DrawingUpsertArgs { a.DrawingType = "circle"; return a }},
		{name: "short color", mutate: func(a DrawingUpsertArgs) DrawingUpsertArgs { a.Color = "#FFF"; return a }},
		{name: "non-hex color", mutate: func(a DrawingUpsertArgs) DrawingUpsertArgs { a.Color = "#GGGGGG"; return a }},
		{name: "empty payload", mutate: func(a DrawingUpsertArgs) DrawingUpsertArgs { a.PayloadJSON = "  "; return a }},
		{name: "oversized label", mutate: func(a DrawingUpsertArgs) DrawingUpsertArgs {
			long := strings.Repeat("x", MaxDrawingLabelLen+1)
			a.Label = &long
			return a
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.mutate(valid).Normalize()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArgs))
		})
	}
}

func Test_EmptyLabelBecomesNil(t *testing.T) {
	empty := "   "
	args := DrawingUpsertArgs{
		ID:          "draw-1",
		MarketKind:  MarketSpot,
		Symbol:      "BTCUSDT",
		Timeframe:   Timeframe1m,
		DrawingType: "horizontalLine",
		Color:       "#000000",
		Label:       &empty,
		PayloadJSON: "{}",
	}

	normalized, err := args.Normalize()
	require.NoError(t, err)
	assert.Nil(t, normalized.Label)
}

func Test_SavePreferencesNormalize(t *testing.T) {
	normalized, err := SavePreferencesArgs{
		MarketKind:   MarketFuturesUsdm,
		Symbol:       "btcusdt",
		Timeframe:    Timeframe5m,
		MagnetStrong: true,
	}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", normalized.Symbol)
	assert.True(t, normalized.MagnetStrong)

	_, err = SavePreferencesArgs{MarketKind: "margin", Symbol: "BTCUSDT", Timeframe: Timeframe1m}.Normalize()
	assert.Error(t, err)
}
