package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketstream/internal/model"
)

func newTestRepository(t *testing.T) *MarketRepository {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMarketRepository(db)
}

func Test_PreferencesSeededOnFirstOpen(t *testing.T) {
	repo := newTestRepository(t)

	prefs, err := repo.GetPreferences(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.MarketSpot, prefs.MarketKind)
	assert.Equal(t, "BTCUSDT", prefs.Symbol)
	assert.Equal(t, model.Timeframe1m, prefs.Timeframe)
	assert.False(t, prefs.MagnetStrong)
	assert.Positive(t, prefs.UpdatedAtMs)
}

func Test_SaveAndReloadPreferences(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.SavePreferences(ctx, model.SavePreferencesArgs{
		MarketKind:   model.MarketFuturesUsdm,
		Symbol:       "ethusdt",
		Timeframe:    model.Timeframe4h,
		MagnetStrong: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", saved.Symbol)
	assert.True(t, saved.MagnetStrong)

	reloaded, err := repo.GetPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.MarketKind, reloaded.MarketKind)
	assert.Equal(t, saved.Symbol, reloaded.Symbol)
	assert.Equal(t, saved.Timeframe, reloaded.Timeframe)
}

func Test_SavePreferencesRejectsBadArgs(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.SavePreferences(context.Background(), model.SavePreferencesArgs{
		MarketKind: "margin",
		Symbol:     "BTCUSDT",
		Timeframe:  model.Timeframe1m,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidArgs)
}

func drawingArgs(id, symbol string) model.DrawingUpsertArgs {
	return model.DrawingUpsertArgs{
		ID:          id,
		MarketKind:  model.MarketSpot,
		Symbol:      symbol,
		Timeframe:   model.Timeframe1m,
		DrawingType: "trendLine",
		Color:       "#FF8800",
		PayloadJSON: `{"points":[[1,2],[3,4]]}`,
	}
}

func Test_DrawingCRUDWithinScope(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.UpsertDrawing(ctx, drawingArgs("draw-1", "BTCUSDT"))
	require.NoError(t, err)
	assert.Equal(t, "draw-1", created.ID)
	assert.Equal(t, "#FF8800", created.Color)
	assert.Positive(t, created.CreatedAtMs)

	scope := model.DrawingScope{MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.Timeframe1m}
	listed, err := repo.ListDrawings(ctx, scope)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	// Upsert replaces in place and keeps created_at.
	update := drawingArgs("draw-1", "BTCUSDT")
	update.Color = "#00FF00"
	update.CreatedAtMs = &created.CreatedAtMs
	updated, err := repo.UpsertDrawing(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, "#00FF00", updated.Color)
	assert.Equal(t, created.CreatedAtMs, updated.CreatedAtMs)

	listed, err = repo.ListDrawings(ctx, scope)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	deleted, err := repo.DeleteDrawing(ctx, model.DrawingDeleteArgs{
		ID: "draw-1", MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.Timeframe1m,
	})
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)

	again, err := repo.DeleteDrawing(ctx, model.DrawingDeleteArgs{
		ID: "draw-1", MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.Timeframe1m,
	})
	require.NoError(t, err)
	assert.False(t, again.Deleted)
}

func Test_DrawingsAreScoped(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.UpsertDrawing(ctx, drawingArgs("btc-1", "BTCUSDT"))
	require.NoError(t, err)
	_, err = repo.UpsertDrawing(ctx, drawingArgs("eth-1", "ETHUSDT"))
	require.NoError(t, err)

	btc, err := repo.ListDrawings(ctx, model.DrawingScope{MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.Timeframe1m})
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, "btc-1", btc[0].ID)

	// A scope mismatch deletes nothing.
	result, err := repo.DeleteDrawing(ctx, model.DrawingDeleteArgs{
		ID: "btc-1", MarketKind: model.MarketSpot, Symbol: "ETHUSDT", Timeframe: model.Timeframe1m,
	})
	require.NoError(t, err)
	assert.False(t, result.Deleted)
}

func Test_ListDrawingsEmptyScopeReturnsEmptySlice(t *testing.T) {
	repo := newTestRepository(t)

	listed, err := repo.ListDrawings(context.Background(), model.DrawingScope{
		MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.Timeframe1h,
	})
	require.NoError(t, err)
	assert.NotNil(t, listed)
	assert.Empty(t, listed)
}
