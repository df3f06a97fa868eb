// Package repository persists user-facing chart state: the preferences
// singleton and the scoped drawings table. It lives strictly off the
// streaming hot path; the pipeline never touches it.
package repository

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS market_preferences (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	market_kind   TEXT    NOT NULL,
	symbol        TEXT    NOT NULL,
	timeframe     TEXT    NOT NULL,
	magnet_strong INTEGER NOT NULL DEFAULT 0,
	updated_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS market_drawings (
	id            TEXT PRIMARY KEY,
	market_kind   TEXT    NOT NULL,
	symbol        TEXT    NOT NULL,
	timeframe     TEXT    NOT NULL,
	drawing_type  TEXT    NOT NULL,
	color         TEXT    NOT NULL,
	label         TEXT,
	payload_json  TEXT    NOT NULL,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_market_drawings_scope
	ON market_drawings (market_kind, symbol, timeframe, updated_at_ms);
`

// Open connects to the SQLite database at path, creating the file and
// migrating the schema when needed. Use ":memory:" for tests.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}
