package storage

import (
	"context"

	"github.com/poiesic/skimap/core"
)

// FeatureReader provides point lookups of stored features.
// Implementations must serve reads concurrently with ongoing writes and never
// expose a partially written record.
type FeatureReader interface {
	// Has reports whether a feature with the given id exists.
	// A missing id is not an error.
	Has(ctx context.Context, id string) (bool, error)

	// GetFeature retrieves a single feature by id.
	// Returns ErrNotFound if the feature doesn't exist.
	GetFeature(ctx context.Context, id string) (core.Feature, error)

	// GetFeatures retrieves multiple features by id, in the order requested.
	// Returns only the features that exist (no error for missing ids).
	GetFeatures(ctx context.Context, ids ...string) ([]core.Feature, error)
}

// FeatureWriter provides the write side used by the import pipeline.
type FeatureWriter interface {
	// UpsertFeature validates the feature, derives its searchable text and rank,
	// and writes or replaces the stored record tagged with importID.
	// The replacement is atomic per record and idempotent.
	UpsertFeature(ctx context.Context, feature core.Feature, importID string) error

	// RemoveExceptImport deletes every record whose import id differs from
	// importID and records importID as the active dataset version.
	// Returns the number of records removed.
	RemoveExceptImport(ctx context.Context, importID string) (int, error)
}

// TextMatcher runs the two-tier text match behind ranked search.
type TextMatcher interface {
	// FindCandidates returns every feature matching the query.
	//
	// Primary tier: each query token prefix-matches some indexed token; these
	// candidates have WordBoundary set. Fallback tier: the folded query is a
	// substring of the folded searchable text; only ids absent from the primary
	// tier are returned, with WordBoundary unset.
	// Order is unspecified; scoring happens in the caller.
	FindCandidates(ctx context.Context, query core.TextQuery) ([]*core.Candidate, error)

	// ActiveImport returns the import id passed to the last RemoveExceptImport,
	// or "" when no purge has happened yet.
	ActiveImport(ctx context.Context) (string, error)
}

// FeatureRepository is the complete Feature Store capability.
// Implementations must be thread-safe and support concurrent access.
type FeatureRepository interface {
	FeatureReader
	FeatureWriter
	TextMatcher

	// Close closes the storage backend and releases resources.
	Close() error
}
