// Package badger implements storage.FeatureRepository on BadgerDB.
//
// # Layout
//
// Each feature is stored under three key families:
//
//   - feature:<id>  the mus-encoded stored record
//   - fentry:<id>   a small index entry (type, name, rank, import id, folded text)
//   - ftoken:<token>\x00<id>  one posting per unique token of the searchable text
//
// UpsertFeature replaces all three in one transaction. Token-prefix matching
// scans ftoken: keys; the substring fallback scans fentry: values.
//
// # Purge
//
// RemoveExceptImport is not one atomic commit. Badger caps the size of a
// transaction, so stale features are deleted in batches of purgeBatchSize,
// each committed on its own, and the active import id is recorded only after
// the last batch. A purge that fails or is cancelled part way leaves some stale
// features deleted and the others in place, with the active import unchanged.
// Running RemoveExceptImport again with the same import id finishes the job.
package badger
