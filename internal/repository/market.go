package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"marketstream/internal/model"
)

// MarketRepository stores the preferences singleton and the drawings table.
type MarketRepository struct {
	db *sqlx.DB
}

// NewMarketRepository wraps an open database.
func NewMarketRepository(db *sqlx.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

func nowUnixMs() int64 {
	return time.Now().UnixMilli()
}

type preferencesRow struct {
	MarketKind   string `db:"market_kind"`
	Symbol       string `db:"symbol"`
	Timeframe    string `db:"timeframe"`
	MagnetStrong int64  `db:"magnet_strong"`
	UpdatedAtMs  int64  `db:"updated_at_ms"`
}

func (r preferencesRow) toSnapshot() (model.PreferencesSnapshot, error) {
	kind, err := model.ParseMarketKind(r.MarketKind)
	if err != nil {
		return model.PreferencesSnapshot{}, err
	}
	timeframe, err := model.ParseTimeframe(r.Timeframe)
	if err != nil {
		return model.PreferencesSnapshot{}, err
	}
	return model.PreferencesSnapshot{
		MarketKind:   kind,
		Symbol:       r.Symbol,
		Timeframe:    timeframe,
		MagnetStrong: r.MagnetStrong != 0,
		UpdatedAtMs:  r.UpdatedAtMs,
	}, nil
}

// GetPreferences returns the singleton row, writing the defaults on first
// open.
func (r *MarketRepository) GetPreferences(ctx context.Context) (model.PreferencesSnapshot, error) {
	if err := r.seedPreferences(ctx); err != nil {
		return model.PreferencesSnapshot{}, err
	}

	var row preferencesRow
	err := r.db.GetContext(ctx, &row,
		`SELECT market_kind, symbol, timeframe, magnet_strong, updated_at_ms FROM market_preferences WHERE id = 1`)
	if err != nil {
		return model.PreferencesSnapshot{}, fmt.Errorf("load preferences: %w", err)
	}
	return row.toSnapshot()
}

func (r *MarketRepository) seedPreferences(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO market_preferences (id, market_kind, symbol, timeframe, magnet_strong, updated_at_ms)
		 VALUES (1, ?, ?, ?, 0, ?)`,
		string(model.DefaultMarketKind), model.DefaultSymbol, string(model.DefaultTimeframe), nowUnixMs())
	if err != nil {
		return fmt.Errorf("seed preferences: %w", err)
	}
	return nil
}

// SavePreferences replaces the singleton and returns the stored snapshot.
func (r *MarketRepository) SavePreferences(ctx context.Context, args model.SavePreferencesArgs) (model.PreferencesSnapshot, error) {
	normalized, err := args.Normalize()
	if err != nil {
		return model.PreferencesSnapshot{}, err
	}

	magnet := int64(0)
	if normalized.MagnetStrong {
		magnet = 1
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO market_preferences (id, market_kind, symbol, timeframe, magnet_strong, updated_at_ms)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   market_kind = excluded.market_kind,
		   symbol = excluded.symbol,
		   timeframe = excluded.timeframe,
		   magnet_strong = excluded.magnet_strong,
		   updated_at_ms = excluded.updated_at_ms`,
		string(normalized.MarketKind), normalized.Symbol, string(normalized.Timeframe), magnet, nowUnixMs())
	if err != nil {
		return model.PreferencesSnapshot{}, fmt.Errorf("save preferences: %w", err)
	}

	return r.GetPreferences(ctx)
}

// ListDrawings returns the drawings of one chart scope ordered by update
// time, oldest first.
func (r *MarketRepository) ListDrawings(ctx context.Context, scope model.DrawingScope) ([]model.Drawing, error) {
	normalized, err := scope.Normalize()
	if err != nil {
		return nil, err
	}

	var drawings []model.Drawing
	err = r.db.SelectContext(ctx, &drawings,
		`SELECT id, market_kind, symbol, timeframe, drawing_type, color, label, payload_json, created_at_ms, updated_at_ms
		 FROM market_drawings
		 WHERE market_kind = ? AND symbol = ? AND timeframe = ?
		 ORDER BY updated_at_ms ASC, id ASC`,
		string(normalized.MarketKind), normalized.Symbol, string(normalized.Timeframe))
	if err != nil {
		return nil, fmt.Errorf("list drawings: %w", err)
	}
	if drawings == nil {
		drawings = []model.Drawing{}
	}
	return drawings, nil
}

// UpsertDrawing creates or replaces one drawing and returns the stored row.
func (r *MarketRepository) UpsertDrawing(ctx context.Context, args model.DrawingUpsertArgs) (model.Drawing, error) {
	normalized, err := args.Normalize()
	if err != nil {
		return model.Drawing{}, err
	}

	nowMs := nowUnixMs()
	createdAtMs := nowMs
	if normalized.CreatedAtMs != nil {
		createdAtMs = *normalized.CreatedAtMs
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO market_drawings (id, market_kind, symbol, timeframe, drawing_type, color, label, payload_json, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   market_kind = excluded.market_kind,
		   symbol = excluded.symbol,
		   timeframe = excluded.timeframe,
		   drawing_type = excluded.drawing_type,
		   color = excluded.color,
		   label = excluded.label,
		   payload_json = excluded.payload_json,
		   updated_at_ms = excluded.updated_at_ms`,
		normalized.ID, string(normalized.MarketKind), normalized.Symbol, string(normalized.Timeframe),
		normalized.DrawingType, normalized.Color, normalized.Label, normalized.PayloadJSON,
		createdAtMs, nowMs)
	if err != nil {
		return model.Drawing{}, fmt.Errorf("upsert drawing: %w", err)
	}

	var drawing model.Drawing
	err = r.db.GetContext(ctx, &drawing,
		`SELECT id, market_kind, symbol, timeframe, drawing_type, color, label, payload_json, created_at_ms, updated_at_ms
		 FROM market_drawings WHERE id = ?`,
		normalized.ID)
	if err != nil {
		return model.Drawing{}, fmt.Errorf("reload drawing: %w", err)
	}
	return drawing, nil
}

// DeleteDrawing removes one drawing within its scope.
func (r *MarketRepository) DeleteDrawing(ctx context.Context, args model.DrawingDeleteArgs) (model.DrawingDeleteResult, error) {
	normalized, err := args.Normalize()
	if err != nil {
		return model.DrawingDeleteResult{}, err
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM market_drawings WHERE id = ? AND market_kind = ? AND symbol = ? AND timeframe = ?`,
		normalized.ID, string(normalized.MarketKind), normalized.Symbol, string(normalized.Timeframe))
	if err != nil {
		return model.DrawingDeleteResult{}, fmt.Errorf("delete drawing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return model.DrawingDeleteResult{}, err
	}
	return model.DrawingDeleteResult{Deleted: affected > 0}, nil
}
