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


// Package storage provides the storage abstraction layer for skimap.
//
// This package defines the Feature Store capability as a set of small
// interfaces that decouple the ranking engine and the import pipeline from any
// particular backend.
//
// # Architecture
//
//   - FeatureReader: point lookups (Has, GetFeature, GetFeatures)
//   - FeatureWriter: per-record upsert and the import cutover (RemoveExceptImport)
//   - TextMatcher: two-tier candidate matching for ranked search
//   - FeatureRepository: all of the above plus Close
//
// Two backends implement FeatureRepository:
//
//   - storage/badger: embedded key-value store with an inverted token index
//   - storage/postgres: relational store with a generated tsvector column
//
// # Stored Records
//
// A stored record is a Feature plus its derived searchable text and rank and
// the import id of the batch that last wrote it. Backends derive the fields at
// write time through core.NewStoredRecord and replace the whole record in one
// transaction, so readers observe either the old or the new record, never a mix.
//
// # Usage
//
// Create a repository instance:
//
//	repo, err := badger.NewRepository("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// Use in tests with in-memory storage:
//
//	repo, err := badger.NewMemoryRepository()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// # Errors
//
// A missing id is reported as ErrNotFound from GetFeature. Every other backend
// failure is returned as produced by the backend; no retries are made here.
//
// # Import Cutover
//
// RemoveExceptImport is only safe when a single import runs at a time. Two
// concurrent imports interleave their tags and the later purge removes the
// other run's records.
package storage
