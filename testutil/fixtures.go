// Package testutil provides shared fixtures for package tests.
//
// The fixtures in testdata/ describe a small Garmisch-Partenkirchen dataset:
// four ski areas, five lifts and four runs.
package testutil

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/poiesic/skimap/core"
	"github.com/poiesic/skimap/featurefile"
	"github.com/poiesic/skimap/storage"
	"github.com/stretchr/testify/require"
)

// FixtureCount is the number of features across all fixture files.
const FixtureCount = 13

// FixtureFiles are the fixture file names under testdata/.
var FixtureFiles = []string{
	"ski_areas.geojson",
	"lifts.geojson",
	"runs.geojsonl",
}

// TestdataDir returns the absolute path of the repository's testdata directory.
func TestdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "testdata")
}

// FixturePaths returns the absolute paths of all fixture files.
func FixturePaths() []string {
	dir := TestdataDir()
	paths := make([]string, len(FixtureFiles))
	for i, name := range FixtureFiles {
		paths[i] = filepath.Join(dir, name)
	}
	return paths
}

// LoadFixtures reads every fixture feature, failing the test on any error.
func LoadFixtures(t testing.TB) []core.Feature {
	t.Helper()
	var features []core.Feature
	for _, path := range FixturePaths() {
		for feature, err := range featurefile.Open(path).Features(context.Background()) {
			require.NoError(t, err, path)
			features = append(features, feature)
		}
	}
	require.Len(t, features, FixtureCount)
	return features
}

// ImportFixtures upserts every fixture feature under importID and returns the count.
func ImportFixtures(t testing.TB, w storage.FeatureWriter, importID string) int {
	t.Helper()
	ctx := context.Background()
	features := LoadFixtures(t)
	for _, feature := range features {
		require.NoError(t, w.UpsertFeature(ctx, feature, importID))
	}
	return len(features)
}
