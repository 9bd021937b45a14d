package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/poiesic/skimap/core"
	"github.com/poiesic/skimap/featurefile"
	"github.com/poiesic/skimap/metrics"
	"github.com/poiesic/skimap/storage"
	"github.com/poiesic/skimap/storage/badger"
	"github.com/poiesic/skimap/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter implements storage.FeatureWriter, recording upsert order
// and optionally failing on one feature id.
type recordingWriter struct {
	mu       sync.Mutex
	upserted []string
	failOn   string
	purged   []string
}

var _ storage.FeatureWriter = (*recordingWriter)(nil)

func (w *recordingWriter) UpsertFeature(ctx context.Context, feature core.Feature, importID string) error {
	if err := core.ValidateFeature(feature); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	id := feature.Base().ID
	if id == w.failOn {
		return errors.New("disk full")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.upserted = append(w.upserted, id)
	return nil
}

func (w *recordingWriter) RemoveExceptImport(_ context.Context, importID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.purged = append(w.purged, importID)
	return 0, nil
}

// erroringSource yields its features and then err.
type erroringSource struct {
	features []core.Feature
	err      error
}

func (s *erroringSource) Name() string { return "erroring" }

func (s *erroringSource) Features(_ context.Context) iter.Seq2[core.Feature, error] {
	return func(yield func(core.Feature, error) bool) {
		for _, f := range s.features {
			if !yield(f, nil) {
				return
			}
		}
		yield(nil, s.err)
	}
}

func lift(id string) core.Feature {
	return &core.Lift{FeatureBase: core.FeatureBase{
		ID:       id,
		Name:     "Lift " + id,
		Geometry: orb.LineString{{11, 47}, {11.01, 47.01}},
	}}
}

func lifts(prefix string, n int) []core.Feature {
	features := make([]core.Feature, n)
	for i := range features {
		features[i] = lift(fmt.Sprintf("%s-%03d", prefix, i))
	}
	return features
}

func fixtureSources() []Source {
	var sources []Source
	for _, path := range testutil.FixturePaths() {
		sources = append(sources, featurefile.Open(path))
	}
	return sources
}

func newMemoryRepository(t *testing.T) storage.FeatureRepository {
	t.Helper()
	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewPipeline(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		pipeline, err := NewPipeline(&recordingWriter{})
		require.NoError(t, err)
		defer pipeline.Release()
		assert.Nil(t, pipeline.pool, "sequential by default")
	})

	t.Run("with options", func(t *testing.T) {
		pipeline, err := NewPipeline(&recordingWriter{},
			WithConcurrency(4),
			WithLogger(slog.Default()),
			WithProgress(&bytes.Buffer{}, 0),
			WithMetrics(metrics.New()),
		)
		require.NoError(t, err)
		defer pipeline.Release()
		require.NotNil(t, pipeline.pool)
		assert.Equal(t, 4, pipeline.pool.Cap())
		assert.Equal(t, DefaultReportInterval, pipeline.reportInterval)
	})

	t.Run("concurrency of one disables the pool", func(t *testing.T) {
		pipeline, err := NewPipeline(&recordingWriter{}, WithConcurrency(4), WithConcurrency(1))
		require.NoError(t, err)
		assert.Nil(t, pipeline.pool)
	})

	t.Run("nil repository", func(t *testing.T) {
		_, err := NewPipeline(nil)
		assert.Equal(t, ErrRepositoryRequired, err)
	})
}

func TestNewImportID(t *testing.T) {
	a, b := NewImportID(), NewImportID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestImport_Fixtures(t *testing.T) {
	repo := newMemoryRepository(t)
	pipeline, err := NewPipeline(repo)
	require.NoError(t, err)
	ctx := context.Background()

	result, err := pipeline.Import(ctx, fixtureSources(), "import-1")
	require.NoError(t, err)

	assert.Equal(t, "import-1", result.ImportID)
	assert.Equal(t, testutil.FixtureCount, result.Upserted)
	assert.Zero(t, result.Skipped)
	require.Len(t, result.PerSource, 3)
	assert.Equal(t, 4, result.PerSource[0].Upserted)
	assert.Equal(t, 5, result.PerSource[1].Upserted)
	assert.Equal(t, 4, result.PerSource[2].Upserted)
	assert.True(t, strings.HasSuffix(result.PerSource[2].Name, "runs.geojsonl"))

	for _, feature := range testutil.LoadFixtures(t) {
		found, err := repo.Has(ctx, feature.Base().ID)
		require.NoError(t, err)
		assert.True(t, found, feature.Base().ID)
	}
}

func TestImport_Sequential(t *testing.T) {
	writer := &recordingWriter{}
	pipeline, err := NewPipeline(writer)
	require.NoError(t, err)

	features := lifts("a", 20)
	_, err = pipeline.Import(context.Background(), []Source{NewSliceSource("a", features...)}, "i1")
	require.NoError(t, err)

	want := make([]string, len(features))
	for i, f := range features {
		want[i] = f.Base().ID
	}
	assert.Equal(t, want, writer.upserted, "sequential import keeps source order")
}

func TestImport_ConcurrentBarrierBetweenSources(t *testing.T) {
	writer := &recordingWriter{}
	pipeline, err := NewPipeline(writer, WithConcurrency(8))
	require.NoError(t, err)
	defer pipeline.Release()

	sources := []Source{
		NewSliceSource("first", lifts("a", 200)...),
		NewSliceSource("second", lifts("b", 200)...),
	}
	result, err := pipeline.Import(context.Background(), sources, "i1")
	require.NoError(t, err)
	assert.Equal(t, 400, result.Upserted)
	require.Len(t, writer.upserted, 400)

	for i, id := range writer.upserted {
		if i < 200 {
			assert.True(t, strings.HasPrefix(id, "a-"), "position %d holds %s", i, id)
		} else {
			assert.True(t, strings.HasPrefix(id, "b-"), "position %d holds %s", i, id)
		}
	}
}

func TestImport_SkipsInvalidFeatures(t *testing.T) {
	writer := &recordingWriter{}
	m := metrics.New()
	pipeline, err := NewPipeline(writer, WithMetrics(m))
	require.NoError(t, err)

	data := []byte(`{"type": "FeatureCollection", "features": [
		{"type": "Feature", "geometry": null, "properties": {"id": "ok-1", "type": "lift", "name": "A"}},
		{"type": "Feature", "geometry": null, "properties": {"type": "lift", "name": "No id"}},
		{"type": "Feature", "geometry": null, "properties": {"id": "ok-2", "type": "run", "name": "B"}}
	]}`)
	sources := []Source{
		featurefile.FromBytes("inline", data, featurefile.FormatCollection),
		NewSliceSource("memory", lift("ok-3"), lift(""), nil),
	}

	result, err := pipeline.Import(context.Background(), sources, "i1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Upserted)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, SourceResult{Name: "inline", Upserted: 2, Skipped: 1}, result.PerSource[0])
	assert.Equal(t, SourceResult{Name: "memory", Upserted: 1, Skipped: 2}, result.PerSource[1])
	assert.Equal(t, []string{"ok-1", "ok-2", "ok-3"}, writer.upserted)

	assert.Equal(t, 3.0, promtest.ToFloat64(m.ImportedFeaturesTotal.WithLabelValues("upserted")))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.ImportedFeaturesTotal.WithLabelValues("skipped")))
}

func TestImport_EmptyImportID(t *testing.T) {
	pipeline, err := NewPipeline(&recordingWriter{})
	require.NoError(t, err)

	_, err = pipeline.Import(context.Background(), nil, " ")
	assert.ErrorIs(t, err, core.ErrEmptyImportID)
}

func TestImport_NilSource(t *testing.T) {
	pipeline, err := NewPipeline(&recordingWriter{})
	require.NoError(t, err)

	_, err = pipeline.Import(context.Background(), []Source{nil}, "i1")
	assert.ErrorIs(t, err, ErrSourceRequired)
}

func TestImport_Progress(t *testing.T) {
	var buf bytes.Buffer
	pipeline, err := NewPipeline(&recordingWriter{}, WithProgress(&buf, 5))
	require.NoError(t, err)

	_, err = pipeline.Import(context.Background(), []Source{NewSliceSource("a", lifts("a", 12)...)}, "i1")
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Imported: 10 features")
	assert.Contains(t, output, "Imported: 12 features (0 skipped)")
}

func TestRun_FailingUpsertAbortsWithoutPurge(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			writer := &recordingWriter{failOn: "a-050"}
			pipeline, err := NewPipeline(writer, WithConcurrency(concurrency))
			require.NoError(t, err)
			defer pipeline.Release()

			sources := []Source{
				NewSliceSource("first", lifts("a", 100)...),
				NewSliceSource("second", lifts("b", 100)...),
			}
			result, err := pipeline.Run(context.Background(), sources, "i1")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "disk full")
			assert.Contains(t, err.Error(), "a-050")

			assert.Empty(t, writer.purged, "failed import must not purge")
			require.NotNil(t, result)
			assert.Less(t, result.Upserted, 200)
			for _, id := range writer.upserted {
				assert.False(t, strings.HasPrefix(id, "b-"), "second source must not start")
			}
		})
	}
}

func TestRun_SourceErrorAborts(t *testing.T) {
	writer := &recordingWriter{}
	pipeline, err := NewPipeline(writer)
	require.NoError(t, err)

	source := &erroringSource{features: lifts("a", 3), err: errors.New("connection reset")}
	result, err := pipeline.Run(context.Background(), []Source{source}, "i1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 3, result.Upserted)
	assert.Empty(t, writer.purged)
}

func TestRun_InvalidSourceErrorIsSkipped(t *testing.T) {
	writer := &recordingWriter{}
	pipeline, err := NewPipeline(writer)
	require.NoError(t, err)

	source := &erroringSource{
		features: lifts("a", 2),
		err:      fmt.Errorf("%w: bad geometry", core.ErrInvalidFeature),
	}
	result, err := pipeline.Run(context.Background(), []Source{source}, "i1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Upserted)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"i1"}, writer.purged)
}

func TestRun_CancelledContext(t *testing.T) {
	writer := &recordingWriter{}
	pipeline, err := NewPipeline(writer)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pipeline.Run(ctx, []Source{NewSliceSource("a", lifts("a", 3)...)}, "i1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, writer.purged)
}

func TestRun_PurgesStaleFeatures(t *testing.T) {
	repo := newMemoryRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertFeature(ctx, lift("stale-lift"), "import-0"))

	m := metrics.New()
	pipeline, err := NewPipeline(repo, WithConcurrency(4), WithMetrics(m))
	require.NoError(t, err)
	defer pipeline.Release()

	result, err := pipeline.Run(ctx, fixtureSources(), "import-1")
	require.NoError(t, err)
	assert.Equal(t, testutil.FixtureCount, result.Upserted)
	assert.Equal(t, 1, result.Removed)

	found, err := repo.Has(ctx, "stale-lift")
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.Has(ctx, "lift-kreuzeckbahn")
	require.NoError(t, err)
	assert.True(t, found)

	active, err := repo.ActiveImport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "import-1", active)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.PurgedFeaturesTotal))
}

func TestRun_ReimportIsIdempotent(t *testing.T) {
	repo := newMemoryRepository(t)
	pipeline, err := NewPipeline(repo)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = pipeline.Run(ctx, fixtureSources(), "import-1")
	require.NoError(t, err)
	result, err := pipeline.Run(ctx, fixtureSources(), "import-2")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Removed, "every feature was rewritten under the new import")

	features, err := repo.GetFeatures(ctx, "sa-zugspitze", "lift-graseckbahn", "run-olympiaabfahrt")
	require.NoError(t, err)
	assert.Len(t, features, 3)
}

func TestPurgeOldData_EmptyImportID(t *testing.T) {
	writer := &recordingWriter{}
	pipeline, err := NewPipeline(writer)
	require.NoError(t, err)

	_, err = pipeline.PurgeOldData(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrEmptyImportID)
	assert.Empty(t, writer.purged)
}
