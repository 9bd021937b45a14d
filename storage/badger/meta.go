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


package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/skimap/storage"
)

// ActiveImport returns the import id recorded by the last RemoveExceptImport.
// Returns "" if no purge has completed yet.
func (r *FeatureRepository) ActiveImport(ctx context.Context) (string, error) {
	if r.backend.IsClosed() {
		return "", storage.ErrStorageClosed
	}
	var importID string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(activeImportKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			importID = string(val)
			return nil
		})
	}, false)

	return importID, err
}

// setActiveImport persists the active import id.
func (r *FeatureRepository) setActiveImport(importID string) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(activeImportKey), []byte(importID))
	})
}
