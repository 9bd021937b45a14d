package badger

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/skimap/core"
	"github.com/poiesic/skimap/storage"
)

func newIndexEntry(record *core.StoredRecord) *storage.IndexEntry {
	base := record.Feature.Base()
	return &storage.IndexEntry{
		Type:     string(record.Feature.Type()),
		Name:     base.Name,
		Rank:     record.Rank,
		ImportID: record.ImportID,
		Text:     core.Fold(core.JoinSearchableText(record.SearchableText)),
		Tokens:   core.IndexTokens(record.SearchableText),
	}
}

func entryCandidate(id string, e *storage.IndexEntry, wordBoundary bool) *core.Candidate {
	return &core.Candidate{
		ID:           id,
		Type:         core.FeatureType(e.Type),
		Name:         e.Name,
		Rank:         e.Rank,
		WordBoundary: wordBoundary,
	}
}

// readIndexEntry reads the index entry of id. Returns nil, nil if absent.
func readIndexEntry(tx *badger.Txn, id string) (*storage.IndexEntry, error) {
	item, err := tx.Get(makeEntryKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry *storage.IndexEntry
	err = item.Value(func(val []byte) error {
		var err error
		entry, err = storage.UnmarshalIndexEntry(val)
		return err
	})
	return entry, err
}

// readRecord reads the stored record of id. Returns nil, nil if absent.
func readRecord(tx *badger.Txn, id string) (*core.StoredRecord, error) {
	item, err := tx.Get(makeFeatureKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record *core.StoredRecord
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalRecord(val)
		return err
	})
	return record, err
}
