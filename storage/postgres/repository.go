package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/paulmach/orb/geojson"
	"github.com/poiesic/skimap/core"
	"github.com/poiesic/skimap/storage"
)

// connectBaseDelay is the wait after the first failed ping.
const connectBaseDelay = 200 * time.Millisecond

// FeatureRepository implements storage.FeatureRepository on PostgreSQL.
//
// Each feature is one row written by a single INSERT ... ON CONFLICT
// statement. Matching runs in SQL; ranking stays in the search package.
type FeatureRepository struct {
	db      *sql.DB
	ownDB   bool
	closed  atomic.Bool
	logger  *slog.Logger
	options options
}

var _ storage.FeatureRepository = (*FeatureRepository)(nil)

type options struct {
	maxOpenConns    int
	maxIdleConns    int
	connectAttempts int
	logger          *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithMaxOpenConns sets the pool's open connection limit. Default 50.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		o.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the pool's idle connection limit. Default 25.
func WithMaxIdleConns(n int) Option {
	return func(o *options) {
		o.maxIdleConns = n
	}
}

// WithConnectAttempts bounds the pings made before Open gives up. Default 5.
func WithConnectAttempts(n int) Option {
	return func(o *options) {
		o.connectAttempts = n
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func defaultOptions() options {
	return options{
		maxOpenConns:    50,
		maxIdleConns:    25,
		connectAttempts: 5,
	}
}

// Open connects to dsn, waits for the server with exponential backoff and
// ensures the schema exists. The repository closes the pool on Close.
func Open(ctx context.Context, dsn string, opts ...Option) (*FeatureRepository, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)

	logger := o.logger.With("component", "postgres")
	ping := func() error { return db.PingContext(ctx) }
	if err := retryWithBackoff(ctx, logger, ping, o.connectAttempts, connectBaseDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &FeatureRepository{
		db:      db,
		ownDB:   true,
		logger:  logger,
		options: o,
	}, nil
}

// Attach wraps an existing connection pool whose schema is already in place.
// The caller keeps ownership of db.
func Attach(db *sql.DB, opts ...Option) (*FeatureRepository, error) {
	if db == nil {
		return nil, storage.ErrBackendRequired
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &FeatureRepository{
		db:      db,
		logger:  o.logger.With("component", "postgres"),
		options: o,
	}, nil
}

// DB returns the underlying connection pool.
func (r *FeatureRepository) DB() *sql.DB {
	return r.db
}

// Close closes the pool if Open created it.
func (r *FeatureRepository) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !r.ownDB {
		return nil
	}
	return r.db.Close()
}

func (r *FeatureRepository) checkOpen() error {
	if r.closed.Load() {
		return storage.ErrStorageClosed
	}
	return nil
}

// Has reports whether a feature exists.
func (r *FeatureRepository) Has(ctx context.Context, id string) (bool, error) {
	if err := r.checkOpen(); err != nil {
		return false, err
	}
	var found bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM skimap_features WHERE id = $1)`, id).Scan(&found)
	return found, err
}

// GetFeature retrieves a single feature by id.
func (r *FeatureRepository) GetFeature(ctx context.Context, id string) (core.Feature, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	var geometry, properties []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT geometry, properties FROM skimap_features WHERE id = $1`, id).Scan(&geometry, &properties)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(geometry, properties)
}

// GetFeatures retrieves multiple features by id in the requested order,
// skipping missing ones.
func (r *FeatureRepository) GetFeatures(ctx context.Context, ids ...string) ([]core.Feature, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []core.Feature{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, geometry, properties FROM skimap_features WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]core.Feature, len(ids))
	for rows.Next() {
		var id string
		var geometry, properties []byte
		if err := rows.Scan(&id, &geometry, &properties); err != nil {
			return nil, err
		}
		feature, err := decodeRow(geometry, properties)
		if err != nil {
			return nil, err
		}
		byID[id] = feature
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]core.Feature, 0, len(byID))
	for _, id := range ids {
		if feature, ok := byID[id]; ok {
			result = append(result, feature)
		}
	}
	return result, nil
}

func decodeRow(geometry, properties []byte) (core.Feature, error) {
	var props geojson.Properties
	if err := json.Unmarshal(properties, &props); err != nil {
		return nil, fmt.Errorf("%w: properties: %w", storage.ErrSerializationFailed, err)
	}
	return storage.DecodeFeature(geometry, props)
}

// UpsertFeature writes or replaces a feature's row in one statement.
func (r *FeatureRepository) UpsertFeature(ctx context.Context, feature core.Feature, importID string) error {
	if err := core.ValidateFeature(feature); err != nil {
		return err
	}
	if err := core.ValidateImportID(importID); err != nil {
		return err
	}
	if err := r.checkOpen(); err != nil {
		return err
	}

	record := core.NewStoredRecord(feature, importID)
	base := feature.Base()

	geometry, err := storage.MarshalGeometry(base.Geometry)
	if err != nil {
		return err
	}
	properties, err := json.Marshal(core.ToGeoJSON(feature).Properties)
	if err != nil {
		return fmt.Errorf("%w: properties: %w", storage.ErrSerializationFailed, err)
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO skimap_features
		(id, type, name, geometry, properties, searchable_text, search_text, search_tokens, rank, import_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			geometry = EXCLUDED.geometry,
			properties = EXCLUDED.properties,
			searchable_text = EXCLUDED.searchable_text,
			search_text = EXCLUDED.search_text,
			search_tokens = EXCLUDED.search_tokens,
			rank = EXCLUDED.rank,
			import_id = EXCLUDED.import_id`,
		base.ID,
		string(feature.Type()),
		base.Name,
		string(geometry),
		string(properties),
		pq.Array(record.SearchableText),
		core.Fold(core.JoinSearchableText(record.SearchableText)),
		strings.Join(core.IndexTokens(record.SearchableText), " "),
		record.Rank,
		importID,
	)
	return err
}

// RemoveExceptImport deletes every feature not written by importID and
// records importID as active, in one transaction.
func (r *FeatureRepository) RemoveExceptImport(ctx context.Context, importID string) (int, error) {
	if err := core.ValidateImportID(importID); err != nil {
		return 0, err
	}
	if err := r.checkOpen(); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM skimap_features WHERE import_id <> $1`, importID)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO skimap_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, activeImportKey, importID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	r.logger.Debug("removed stale features", "importID", importID, "removed", removed)
	return int(removed), nil
}

// ActiveImport returns the import id recorded by the last RemoveExceptImport.
// Returns "" if no purge has completed yet.
func (r *FeatureRepository) ActiveImport(ctx context.Context) (string, error) {
	if err := r.checkOpen(); err != nil {
		return "", err
	}
	var importID string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM skimap_meta WHERE key = $1`, activeImportKey).Scan(&importID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return importID, err
}

// FindCandidates runs the token-prefix and substring tiers in one statement.
func (r *FeatureRepository) FindCandidates(ctx context.Context, query core.TextQuery) ([]*core.Candidate, error) {
	if query.IsEmpty() {
		return nil, nil
	}
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	stmt, args := buildCandidateQuery(query)
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []*core.Candidate
	for rows.Next() {
		var c core.Candidate
		var featureType string
		if err := rows.Scan(&c.ID, &featureType, &c.Name, &c.Rank, &c.WordBoundary); err != nil {
			return nil, err
		}
		c.Type = core.FeatureType(featureType)
		candidates = append(candidates, &c)
	}
	return candidates, rows.Err()
}
