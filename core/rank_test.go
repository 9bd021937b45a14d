package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func skiAreaWithRuns(byActivity map[string]ActivityStatistics) *SkiArea {
	return &SkiArea{FeatureBase: FeatureBase{
		ID:         "sa",
		Name:       "Test Area",
		Statistics: &Statistics{Runs: &RunStatistics{ByActivity: byActivity}},
	}}
}

func TestCalculateTotalRunLength(t *testing.T) {
	t.Run("sums every activity and difficulty", func(t *testing.T) {
		feature := skiAreaWithRuns(map[string]ActivityStatistics{
			"downhill": {ByDifficulty: map[string]DifficultyStatistics{
				"easy":         {LengthInKm: 10.5},
				"intermediate": {LengthInKm: 20.25},
				"advanced":     {LengthInKm: 5},
			}},
			"nordic": {ByDifficulty: map[string]DifficultyStatistics{
				"easy": {LengthInKm: 15},
			}},
		})
		assert.InDelta(t, 50.75, CalculateTotalRunLength(feature), 1e-9)
	})

	t.Run("no statistics is zero", func(t *testing.T) {
		feature := &SkiArea{FeatureBase: FeatureBase{ID: "sa"}}
		assert.Equal(t, 0.0, CalculateTotalRunLength(feature))
	})

	t.Run("no runs block is zero", func(t *testing.T) {
		feature := &SkiArea{FeatureBase: FeatureBase{ID: "sa", Statistics: &Statistics{}}}
		assert.Equal(t, 0.0, CalculateTotalRunLength(feature))
	})

	t.Run("activity without difficulties is zero", func(t *testing.T) {
		feature := skiAreaWithRuns(map[string]ActivityStatistics{"downhill": {}})
		assert.Equal(t, 0.0, CalculateTotalRunLength(feature))
	})

	t.Run("bucket without length is zero", func(t *testing.T) {
		feature := skiAreaWithRuns(map[string]ActivityStatistics{
			"downhill": {ByDifficulty: map[string]DifficultyStatistics{
				"easy":   {Count: 3},
				"expert": {LengthInKm: 2},
			}},
		})
		assert.Equal(t, 2.0, CalculateTotalRunLength(feature))
	})

	t.Run("nil feature is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, CalculateTotalRunLength(nil))
	})
}

func TestNormalizeToRank(t *testing.T) {
	tests := []struct {
		name   string
		length float64
		want   float64
		delta  float64
	}{
		{"zero", 0, 0, 0},
		{"negative", -10, 0, 0},
		{"ten km", 10, 2.603, 0.001},
		{"fifty km", 50, 4.269, 0.001},
		{"hundred km", 100, 5, 1e-9},
		{"thousand km is capped", 1000, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizeToRank(tt.length), tt.delta)
		})
	}

	t.Run("monotonic below the cap", func(t *testing.T) {
		prev := 0.0
		for _, km := range []float64{0.5, 1, 2, 5, 10, 20, 40, 80} {
			rank := NormalizeToRank(km)
			assert.Greater(t, rank, prev, "rank at %v km", km)
			prev = rank
		}
	})
}

func TestCalculateRank(t *testing.T) {
	feature := skiAreaWithRuns(map[string]ActivityStatistics{
		"downhill": {ByDifficulty: map[string]DifficultyStatistics{"easy": {LengthInKm: 10}}},
	})
	assert.Equal(t, NormalizeToRank(10), CalculateRank(feature))

	lift := &Lift{FeatureBase: FeatureBase{ID: "l", Name: "Lift"}}
	assert.Equal(t, 0.0, CalculateRank(lift))
}
