package badger

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/skimap/core"
	"github.com/poiesic/skimap/storage"
)

// purgeBatchSize is the number of stale features deleted per transaction.
// Badger rejects transactions beyond its batch limits, so a purge of a large
// dataset is split into several commits.
const purgeBatchSize = 500

// FeatureRepository implements storage.FeatureRepository for BadgerDB.
//
// Each feature is stored under three kinds of keys written in one transaction:
// the full record, a small index entry used for matching, and one posting key
// per searchable token.
type FeatureRepository struct {
	backend      *Backend
	closeBackend bool
}

var _ storage.FeatureRepository = (*FeatureRepository)(nil)

// NewFeatureRepository creates a FeatureRepository on an open backend.
// The caller keeps ownership of the backend.
func NewFeatureRepository(backend *Backend) (*FeatureRepository, error) {
	if backend == nil {
		return nil, storage.ErrBackendRequired
	}
	return &FeatureRepository{
		backend: backend,
	}, nil
}

// NewRepository opens a BadgerDB database at path and returns a repository
// that closes the database on Close.
func NewRepository(path string) (storage.FeatureRepository, error) {
	return openOwnedRepository(path, false)
}

func openOwnedRepository(path string, inMemory bool) (*FeatureRepository, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	return &FeatureRepository{
		backend:      backend,
		closeBackend: true,
	}, nil
}

// Close closes the backend if the repository opened it.
func (r *FeatureRepository) Close() error {
	if !r.closeBackend {
		return nil
	}
	return r.backend.Close()
}

// Has reports whether a feature exists.
func (r *FeatureRepository) Has(ctx context.Context, id string) (bool, error) {
	if r.backend.IsClosed() {
		return false, storage.ErrStorageClosed
	}
	var found bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		entry, err := readIndexEntry(tx, id)
		if err != nil {
			return err
		}
		found = entry != nil
		return nil
	}, false)
	return found, err
}

// GetFeature retrieves a single feature by id.
func (r *FeatureRepository) GetFeature(ctx context.Context, id string) (core.Feature, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var result core.Feature
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		record, err := readRecord(tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		result = record.Feature
		return nil
	}, false)
	return result, err
}

// GetFeatures retrieves multiple features by id, skipping missing ones.
func (r *FeatureRepository) GetFeatures(ctx context.Context, ids ...string) ([]core.Feature, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	result := make([]core.Feature, 0, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			record, err := readRecord(tx, id)
			if err != nil {
				return err
			}
			if record != nil {
				result = append(result, record.Feature)
			}
		}
		return nil
	}, false)
	return result, err
}

// UpsertFeature writes or replaces the record, index entry and token postings
// of a feature in a single transaction.
func (r *FeatureRepository) UpsertFeature(ctx context.Context, feature core.Feature, importID string) error {
	if err := core.ValidateFeature(feature); err != nil {
		return err
	}
	if err := core.ValidateImportID(importID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	id := feature.Base().ID
	record := core.NewStoredRecord(feature, importID)
	value, err := storage.MarshalRecord(record)
	if err != nil {
		return err
	}
	entry := newIndexEntry(record)
	entryValue := storage.MarshalIndexEntry(entry)

	return r.backend.Update(func(tx *badger.Txn) error {
		old, err := readIndexEntry(tx, id)
		if err != nil {
			return err
		}
		if old != nil {
			for _, token := range old.Tokens {
				if _, keep := slices.BinarySearch(entry.Tokens, token); keep {
					continue
				}
				if err := tx.Delete(makeTokenKey(token, id)); err != nil {
					return err
				}
			}
		}

		if err := tx.Set(makeFeatureKey(id), value); err != nil {
			return err
		}
		if err := tx.Set(makeEntryKey(id), entryValue); err != nil {
			return err
		}
		for _, token := range entry.Tokens {
			if err := tx.Set(makeTokenKey(token, id), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveExceptImport deletes every feature not written by importID.
//
// Stale ids are collected from a snapshot and deleted in batches. Each feature
// is re-checked inside its delete transaction, so a feature re-imported under
// importID after the snapshot survives.
func (r *FeatureRepository) RemoveExceptImport(ctx context.Context, importID string) (int, error) {
	if err := core.ValidateImportID(importID); err != nil {
		return 0, err
	}
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	stale, err := r.staleIDs(importID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for batch := range slices.Chunk(stale, purgeBatchSize) {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		var n int
		err := r.backend.Update(func(tx *badger.Txn) error {
			n = 0
			for _, id := range batch {
				entry, err := readIndexEntry(tx, id)
				if err != nil {
					return err
				}
				if entry == nil || entry.ImportID == importID {
					continue
				}
				if err := deleteFeature(tx, id, entry); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		removed += n
	}

	if err := r.setActiveImport(importID); err != nil {
		return removed, err
	}

	r.backend.logger.Debug("removed stale features", "importID", importID, "removed", removed)
	return removed, nil
}

func (r *FeatureRepository) staleIDs(importID string) ([]string, error) {
	var stale []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(featureEntryPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			var entry *storage.IndexEntry
			err := item.Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalIndexEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			if entry.ImportID != importID {
				stale = append(stale, parseEntryKey(item.Key()))
			}
		}
		return nil
	}, false)
	return stale, err
}

func deleteFeature(tx *badger.Txn, id string, entry *storage.IndexEntry) error {
	for _, token := range entry.Tokens {
		if err := tx.Delete(makeTokenKey(token, id)); err != nil {
			return err
		}
	}
	if err := tx.Delete(makeEntryKey(id)); err != nil {
		return err
	}
	return tx.Delete(makeFeatureKey(id))
}

// FindCandidates runs the primary token-prefix match and the substring fallback
// against one read snapshot.
func (r *FeatureRepository) FindCandidates(ctx context.Context, query core.TextQuery) ([]*core.Candidate, error) {
	if query.IsEmpty() {
		return nil, nil
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var candidates []*core.Candidate
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		primary, err := matchTokens(tx, query.Tokens)
		if err != nil {
			return err
		}

		for id := range primary {
			entry, err := readIndexEntry(tx, id)
			if err != nil {
				return err
			}
			if entry != nil {
				candidates = append(candidates, entryCandidate(id, entry, true))
			}
		}

		// Fallback: substring scan over the entries the primary tier missed.
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(featureEntryPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			id := parseEntryKey(item.Key())
			if _, ok := primary[id]; ok {
				continue
			}

			var entry *storage.IndexEntry
			err := item.Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalIndexEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			if strings.Contains(entry.Text, query.Folded) {
				candidates = append(candidates, entryCandidate(id, entry, false))
			}
		}
		return nil
	}, false)

	return candidates, err
}

// matchTokens returns the ids whose postings prefix-match every token.
func matchTokens(tx *badger.Txn, tokens []string) (map[string]struct{}, error) {
	var matched map[string]struct{}
	for _, token := range tokens {
		ids, err := scanTokenPrefix(tx, token)
		if err != nil {
			return nil, err
		}
		if matched == nil {
			matched = ids
		} else {
			for id := range matched {
				if _, ok := ids[id]; !ok {
					delete(matched, id)
				}
			}
		}
		if len(matched) == 0 {
			break
		}
	}
	if matched == nil {
		matched = map[string]struct{}{}
	}
	return matched, nil
}

func scanTokenPrefix(tx *badger.Txn, token string) (map[string]struct{}, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = makeTokenPrefix(token)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	ids := make(map[string]struct{})
	for iter.Rewind(); iter.Valid(); iter.Next() {
		if id, ok := parseTokenKey(iter.Item().Key()); ok {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}
