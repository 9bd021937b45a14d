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


package search

import (
	"cmp"
	"strings"

	"github.com/poiesic/skimap/core"
)

// Scoring constants. A result's score is
//
//	TypeScore*TypeWeight + NameScore + WordBoundaryBonus (primary tier only) + rank*RankWeight
//
// RankWeight keeps the rank contribution below one NameScore step, so
// popularity only orders results whose other components tie.
const (
	TypeWeight        = 10.0
	WordBoundaryBonus = 20.0
	RankWeight        = 0.18
)

// TypeScore weights ski areas above lifts above runs.
func TypeScore(t core.FeatureType) float64 {
	switch t {
	case core.FeatureTypeSkiArea:
		return 3
	case core.FeatureTypeLift:
		return 2
	case core.FeatureTypeRun:
		return 1
	default:
		return 0
	}
}

// NameScore compares a feature name with the folded query:
// 3 for an exact match, 2 for a prefix, 1 for a substring, 0 otherwise.
func NameScore(name string, query core.TextQuery) float64 {
	if query.IsEmpty() {
		return 0
	}
	folded := core.Fold(name)
	switch {
	case folded == query.Folded:
		return 3
	case strings.HasPrefix(folded, query.Folded):
		return 2
	case strings.Contains(folded, query.Folded):
		return 1
	default:
		return 0
	}
}

// Score returns the combined relevance of a candidate.
func Score(candidate *core.Candidate, query core.TextQuery) float64 {
	score := TypeScore(candidate.Type)*TypeWeight + NameScore(candidate.Name, query)
	if candidate.WordBoundary {
		score += WordBoundaryBonus
	}
	return score + candidate.Rank*RankWeight
}

// hit is a ranked candidate, the unit stored in the result cache.
type hit struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// compareHits orders by score descending, then name and id ascending.
func compareHits(a, b hit) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
