// Package importer loads ski-area datasets into a feature store and cuts
// over to them.
//
// An import run tags every written feature with one importID:
//   - Import drains each Source in order and upserts its features.
//   - PurgeOldData removes every feature carrying a different importID.
//   - Run does both, purging only after a successful import.
//
// Features that fail decoding or validation are skipped and counted. Any
// other error aborts the import, leaves written features in place and skips
// the purge, so the previous dataset stays searchable.
//
// With WithConcurrency the features of one source are upserted on a worker
// pool; the next source starts only after every upsert of the current one
// has finished. Two imports running against the same store at the same time
// are not coordinated: the later purge removes the other import's features.
package importer
