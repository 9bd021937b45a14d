package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/skimap/core"
	"github.com/poiesic/skimap/metrics"
	"github.com/poiesic/skimap/storage"
)

// DefaultReportInterval is the number of features between progress lines.
const DefaultReportInterval = 1000

// Pipeline imports feature sources into a repository under one importID.
type Pipeline struct {
	repository     storage.FeatureWriter
	pool           *ants.Pool
	progressWriter io.Writer
	reportInterval int
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithConcurrency upserts up to n features of a source at once.
// Default is 1, which upserts strictly in source order.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) error {
		// Release old pool
		if p.pool != nil {
			p.pool.Release()
			p.pool = nil
		}
		if n <= 1 {
			return nil
		}

		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithProgress writes a status line to w every interval features.
// An interval < 1 uses DefaultReportInterval.
func WithProgress(w io.Writer, interval int) Option {
	return func(p *Pipeline) error {
		if interval < 1 {
			interval = DefaultReportInterval
		}
		p.progressWriter = w
		p.reportInterval = interval
		return nil
	}
}

// WithMetrics records upserted, skipped and purged counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new import pipeline.
func NewPipeline(repository storage.FeatureWriter, opts ...Option) (*Pipeline, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}

	p := &Pipeline{
		repository:     repository,
		reportInterval: DefaultReportInterval,
		logger:         slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}

	return p, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// NewImportID returns a fresh, unique import id.
func NewImportID() string {
	return uuid.NewString()
}

// SourceResult counts the features of one source.
type SourceResult struct {
	Name     string
	Upserted int
	Skipped  int
}

// Result summarizes an import run.
type Result struct {
	ImportID string
	Upserted int
	Skipped  int
	// Removed is the number of stale features purged by Run.
	Removed   int
	PerSource []SourceResult
	Duration  time.Duration
}

// Run imports sources under importID and, if every source imported cleanly,
// purges the features of all other imports.
func (p *Pipeline) Run(ctx context.Context, sources []Source, importID string) (*Result, error) {
	result, err := p.Import(ctx, sources, importID)
	if err != nil {
		p.logger.Error("import failed, keeping previous dataset", "importID", importID, "err", err)
		return result, err
	}

	removed, err := p.PurgeOldData(ctx, importID)
	if err != nil {
		return result, err
	}
	result.Removed = removed
	return result, nil
}

// Import upserts every feature of sources under importID.
//
// Sources are drained one after another. Malformed features are skipped and
// counted; the first other error stops the import and is returned together
// with the counts so far.
func (p *Pipeline) Import(ctx context.Context, sources []Source, importID string) (*Result, error) {
	if err := core.ValidateImportID(importID); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{
		ImportID:  importID,
		PerSource: make([]SourceResult, 0, len(sources)),
	}

	var progress *ProgressTracker
	if p.progressWriter != nil {
		progress = NewProgressTracker(p.progressWriter, p.reportInterval)
		progress.Start()
	}

	var importErr error
	for _, source := range sources {
		if source == nil {
			importErr = ErrSourceRequired
			break
		}

		p.logger.Info("importing source", "source", source.Name(), "importID", importID)
		counts, err := p.importSource(ctx, source, importID, progress)
		result.PerSource = append(result.PerSource, SourceResult{
			Name:     source.Name(),
			Upserted: int(counts.upserted.Load()),
			Skipped:  int(counts.skipped.Load()),
		})
		result.Upserted += int(counts.upserted.Load())
		result.Skipped += int(counts.skipped.Load())
		if err != nil {
			importErr = err
			break
		}
	}

	if progress != nil {
		progress.Finish()
	}
	result.Duration = time.Since(start)
	p.metrics.ObserveImport(result.Duration)

	if importErr != nil {
		return result, importErr
	}

	p.logger.Info("import complete",
		"importID", importID,
		"upserted", result.Upserted,
		"skipped", result.Skipped,
		"duration", result.Duration)
	return result, nil
}

// PurgeOldData removes every feature not written under importID and makes
// importID the active dataset.
func (p *Pipeline) PurgeOldData(ctx context.Context, importID string) (int, error) {
	if err := core.ValidateImportID(importID); err != nil {
		return 0, err
	}

	removed, err := p.repository.RemoveExceptImport(ctx, importID)
	if err != nil {
		return removed, fmt.Errorf("failed to purge old data: %w", err)
	}
	p.metrics.Purged(removed)

	p.logger.Info("purged old data", "importID", importID, "removed", removed)
	return removed, nil
}

type sourceCounts struct {
	upserted atomic.Int64
	skipped  atomic.Int64
}

// importSource drains one source. With a pool it fans upserts out and waits
// for all of them before returning.
func (p *Pipeline) importSource(ctx context.Context, source Source, importID string, progress *ProgressTracker) (*sourceCounts, error) {
	counts := &sourceCounts{}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for feature, err := range source.Features(ctx) {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			if errors.Is(err, core.ErrInvalidFeature) {
				p.skip(source, err, counts, progress)
				continue
			}
			fail(fmt.Errorf("failed to read %s: %w", source.Name(), err))
			break
		}

		if p.pool == nil {
			if err := p.upsert(ctx, source, feature, importID, counts, progress); err != nil {
				fail(err)
				break
			}
			continue
		}

		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			if err := p.upsert(ctx, source, feature, importID, counts, progress); err != nil {
				fail(err)
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(submitErr)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return counts, firstErr
	}
	// The parent context was cancelled.
	if err := ctx.Err(); err != nil {
		return counts, err
	}
	return counts, nil
}

func (p *Pipeline) upsert(ctx context.Context, source Source, feature core.Feature, importID string, counts *sourceCounts, progress *ProgressTracker) error {
	err := p.repository.UpsertFeature(ctx, feature, importID)
	if errors.Is(err, core.ErrInvalidFeature) {
		p.skip(source, err, counts, progress)
		return nil
	}
	if err != nil {
		id := ""
		if feature != nil {
			id = feature.Base().ID
		}
		return fmt.Errorf("failed to upsert feature %q from %s: %w", id, source.Name(), err)
	}

	counts.upserted.Add(1)
	p.metrics.FeatureUpserted()
	if progress != nil {
		progress.Increment(false)
	}
	return nil
}

func (p *Pipeline) skip(source Source, err error, counts *sourceCounts, progress *ProgressTracker) {
	p.logger.Warn("skipping invalid feature", "source", source.Name(), "err", err)
	counts.skipped.Add(1)
	p.metrics.FeatureSkipped()
	if progress != nil {
		progress.Increment(true)
	}
}
