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


package storage

//go:generate go run ../cmd/musgen

import "errors"

// RecordEnvelope is the binary form of a StoredRecord. Geometry and
// Properties carry pre-encoded GeoJSON since both are open-ended documents.
type RecordEnvelope struct {
	ID             string
	Type           string
	SearchableText []string
	// Geometry is a GeoJSON geometry object, or "null".
	Geometry string
	// Properties is the feature's GeoJSON property object.
	Properties string
	Rank       float64
	ImportID   string
}

// IndexEntry is the small per-feature document read while matching text.
// It keeps candidate scans from decoding full records and geometries.
type IndexEntry struct {
	Type     string
	Name     string
	Rank     float64
	ImportID string
	// Text is the folded, space-joined searchable text.
	Text string
	// Tokens are the sorted unique tokens posted in the inverted index.
	Tokens []string
}

var (
	errNegativeLength = errors.New("negative length")
	errShortBuffer    = errors.New("length exceeds buffer")
)
