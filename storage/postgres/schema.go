package postgres

import (
	"context"
	"database/sql"
)

// activeImportKey is the skimap_meta key holding the active import id.
const activeImportKey = "active_import"

// schemaStatements create the tables and indexes on first use.
//
// search_tokens holds the folded index tokens separated by spaces, so the
// 'simple' text search configuration sees exactly the tokens the application
// produced. search_text is the folded, space-joined searchable text used by
// the substring fallback.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS skimap_features (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		geometry JSONB,
		properties JSONB NOT NULL,
		searchable_text TEXT[] NOT NULL,
		search_text TEXT NOT NULL,
		search_tokens TEXT NOT NULL,
		searchable_tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', search_tokens)) STORED,
		rank DOUBLE PRECISION NOT NULL,
		import_id TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_skimap_features_tsv ON skimap_features USING GIN (searchable_tsv)`,
	`CREATE INDEX IF NOT EXISTS idx_skimap_features_import ON skimap_features (import_id)`,
	`CREATE TABLE IF NOT EXISTS skimap_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// EnsureSchema creates the skimap tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
