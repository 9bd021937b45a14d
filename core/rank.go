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


package core

import (
	"maps"
	"math"
	"slices"
)

// MaxRank is the upper bound of CalculateRank.
const MaxRank = 5.0

// CalculateRank returns the popularity rank of a feature in [0, MaxRank].
func CalculateRank(feature Feature) float64 {
	return NormalizeToRank(CalculateTotalRunLength(feature))
}

// CalculateTotalRunLength sums lengthInKm over every activity and difficulty bucket.
// Missing statistics, activities or lengths count as zero.
func CalculateTotalRunLength(feature Feature) float64 {
	if feature == nil {
		return 0
	}
	stats := feature.Base().Statistics
	if stats == nil || stats.Runs == nil {
		return 0
	}

	// Iterate in key order so repeated calls produce bit-identical sums.
	var total float64
	for _, activity := range slices.Sorted(maps.Keys(stats.Runs.ByActivity)) {
		byDifficulty := stats.Runs.ByActivity[activity].ByDifficulty
		for _, difficulty := range slices.Sorted(maps.Keys(byDifficulty)) {
			total += byDifficulty[difficulty].LengthInKm
		}
	}
	return total
}

// NormalizeToRank maps a run length onto a saturating logarithmic curve:
// about 2.6 at 10 km, 4.3 at 50 km, capped at MaxRank from 100 km on.
func NormalizeToRank(lengthInKm float64) float64 {
	if lengthInKm <= 0 || math.IsNaN(lengthInKm) {
		return 0
	}
	return math.Min(MaxRank, math.Max(0, math.Log10(lengthInKm+1)*2.5))
}
