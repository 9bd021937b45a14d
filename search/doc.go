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


// Package search ranks ski areas, lifts and runs against a free-text query.
//
// The Searcher asks a storage.TextMatcher for candidates in two tiers:
//   - Primary: every query token prefix-matches a token of the feature's
//     searchable text. These candidates earn the word-boundary bonus.
//   - Fallback: the folded query is a substring of the searchable text.
//
// Candidates are scored in application code (see Score), sorted by score
// descending with ties broken by name and id, truncated to the limit, and
// resolved to full features through a storage.FeatureReader.
//
// Ranked hits can be cached (see WithCache). Cache keys include the active
// import id, so a dataset cutover invalidates every cached ranking.
package search
