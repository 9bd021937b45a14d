// Package postgres stores ski features in PostgreSQL.
//
// Features live in a single table keyed by id. The searchable text is kept
// twice: as space separated index tokens behind a generated tsvector column
// for token-prefix matching, and as one folded string for substring
// matching. The active import id is held in a small key/value table.
//
// Open creates the schema on first use. Attach wraps a pool whose schema is
// managed elsewhere.
package postgres
