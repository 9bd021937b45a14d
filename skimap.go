// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package skimap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/skimap/cache"
	"github.com/poiesic/skimap/config"
	"github.com/poiesic/skimap/core"
	"github.com/poiesic/skimap/featurefile"
	"github.com/poiesic/skimap/importer"
	"github.com/poiesic/skimap/metrics"
	"github.com/poiesic/skimap/search"
	"github.com/poiesic/skimap/storage"
	"github.com/poiesic/skimap/storage/badger"
	"github.com/poiesic/skimap/storage/postgres"
)

// Database is a feature store opened from a Config, with its searcher and
// import pipelines.
type Database struct {
	config   *config.Config
	repo     storage.FeatureRepository
	cache    cache.Cache
	searcher *search.Searcher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	logger     *slog.Logger
	repository storage.FeatureRepository
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// WithRepository uses repo instead of opening the configured backend.
// The Database takes ownership and closes it.
func WithRepository(repo storage.FeatureRepository) DatabaseOption {
	return func(o *databaseOptions) {
		o.repository = repo
	}
}

// Open opens the backend named by cfg and, when cfg configures Redis, the
// search result cache. A nil cfg uses config.DefaultConfig.
func Open(ctx context.Context, cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo := options.repository
	if repo == nil {
		var err error
		repo, err = openRepository(ctx, cfg, options.logger)
		if err != nil {
			return nil, err
		}
	}

	var resultCache cache.Cache = cache.NullCache{}
	if cfg.CacheEnabled() {
		redisCache, err := cache.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to open search cache: %w", err)
		}
		resultCache = redisCache
	}

	m := metrics.New()
	searcher, err := search.NewSearcher(repo, repo,
		search.WithLogger(options.logger),
		search.WithCache(resultCache, cfg.Search.CacheTTL),
		search.WithMetrics(m),
	)
	if err != nil {
		resultCache.Close()
		repo.Close()
		return nil, err
	}

	return &Database{
		config:   cfg,
		repo:     repo,
		cache:    resultCache,
		searcher: searcher,
		metrics:  m,
		logger:   options.logger,
	}, nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.FeatureRepository, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return badger.NewMemoryRepository()
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.Postgres.DSN,
			postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
			postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
			postgres.WithConnectAttempts(cfg.Postgres.ConnectAttempts),
			postgres.WithLogger(logger),
		)
	default:
		return badger.NewRepository(cfg.Badger.Path)
	}
}

// Close closes the cache and the repository.
func (db *Database) Close() error {
	if err := db.cache.Close(); err != nil {
		db.logger.Error("error closing search cache", "err", err)
	}
	if err := db.repo.Close(); err != nil {
		db.logger.Error("error closing feature repository", "err", err)
		return err
	}
	return nil
}

func (db *Database) Config() *config.Config {
	return db.config
}

func (db *Database) Repository() storage.FeatureRepository {
	return db.repo
}

func (db *Database) Metrics() *metrics.Metrics {
	return db.metrics
}

func (db *Database) Searcher() *search.Searcher {
	return db.searcher
}

// Has reports whether a feature with id is stored.
func (db *Database) Has(ctx context.Context, id string) (bool, error) {
	return db.repo.Has(ctx, id)
}

// Get returns the feature with id, or an error wrapping storage.ErrNotFound.
func (db *Database) Get(ctx context.Context, id string) (core.Feature, error) {
	return db.repo.GetFeature(ctx, id)
}

// Search returns up to limit features matching text, best first.
func (db *Database) Search(ctx context.Context, text string, limit int) ([]*core.SearchResult, error) {
	return db.searcher.Search(ctx, text, limit)
}

// Upsert writes feature under importID.
//
// With the Redis cache enabled, cached results are keyed by the active import
// id, so an upsert outside an import cutover can stay invisible to a repeated
// query until its cache entry expires (Search.CacheTTL) or RemoveExceptImport
// changes the active import.
func (db *Database) Upsert(ctx context.Context, feature core.Feature, importID string) error {
	return db.repo.UpsertFeature(ctx, feature, importID)
}

// RemoveExceptImport deletes the features of every other import and makes
// importID active.
func (db *Database) RemoveExceptImport(ctx context.Context, importID string) (int, error) {
	return db.repo.RemoveExceptImport(ctx, importID)
}

// NewImportPipeline creates a pipeline writing to this database, configured
// from the import settings. opts are applied after the configured ones.
func (db *Database) NewImportPipeline(opts ...importer.Option) (*importer.Pipeline, error) {
	base := []importer.Option{
		importer.WithConcurrency(db.config.Import.Concurrency),
		importer.WithMetrics(db.metrics),
		importer.WithLogger(db.logger),
	}
	return importer.NewPipeline(db.repo, append(base, opts...)...)
}

// ImportFiles imports the GeoJSON files at paths under a new import id and
// purges the previous dataset if every file imported cleanly.
func (db *Database) ImportFiles(ctx context.Context, paths []string, opts ...importer.Option) (*importer.Result, error) {
	pipeline, err := db.NewImportPipeline(opts...)
	if err != nil {
		return nil, err
	}
	defer pipeline.Release()

	sources := make([]importer.Source, len(paths))
	for i, path := range paths {
		sources[i] = featurefile.Open(path)
	}
	return pipeline.Run(ctx, sources, importer.NewImportID())
}
