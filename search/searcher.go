package search

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/skimap/cache"
	"github.com/poiesic/skimap/core"
	"github.com/poiesic/skimap/metrics"
	"github.com/poiesic/skimap/storage"
	"golang.org/x/sync/singleflight"
)

// DefaultLimit is the number of results returned when a caller has no preference.
const DefaultLimit = 10

// DefaultCacheTTL is how long ranked hits stay cached when WithCache is given no TTL.
const DefaultCacheTTL = 5 * time.Minute

// Searcher ranks features matching a text query.
type Searcher struct {
	matcher  storage.TextMatcher
	reader   storage.FeatureReader
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	group    singleflight.Group
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCache caches ranked hits in c for ttl. A ttl <= 0 uses DefaultCacheTTL.
// Default is no caching.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Searcher) error {
		if c == nil {
			c = cache.NullCache{}
		}
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		s.cache = c
		s.cacheTTL = ttl
		return nil
	}
}

// WithMetrics records search counts, durations and cache lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) error {
		s.metrics = m
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(matcher storage.TextMatcher, reader storage.FeatureReader, opts ...Option) (*Searcher, error) {
	if matcher == nil {
		return nil, ErrMatcherRequired
	}
	if reader == nil {
		return nil, ErrReaderRequired
	}

	s := &Searcher{
		matcher:  matcher,
		reader:   reader,
		cache:    cache.NullCache{},
		cacheTTL: DefaultCacheTTL,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search returns up to limit features matching text, best first.
// A blank text or a limit <= 0 yields an empty result.
//
// Identical concurrent queries share one ranking pass, and rankings are
// served from the cache when one is configured.
func (s *Searcher) Search(ctx context.Context, text string, limit int) ([]*core.SearchResult, error) {
	query := core.NewTextQuery(text)
	if query.IsEmpty() || limit <= 0 {
		return []*core.SearchResult{}, nil
	}

	start := time.Now()
	defer func() { s.metrics.ObserveSearch(time.Since(start)) }()

	key, err := s.cacheKey(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if hits, ok := s.cachedHits(ctx, key); ok {
		return s.resolve(ctx, hits, &noopMonitor{})
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		hits, err := s.rank(ctx, query, limit, &noopMonitor{})
		if err != nil {
			return nil, err
		}
		s.storeHits(ctx, key, hits)
		return hits, nil
	})
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, v.([]hit), &noopMonitor{})
}

// SearchWithMonitor ranks like Search but reports every stage to monitor.
// It always ranks from the store, bypassing the cache.
func (s *Searcher) SearchWithMonitor(ctx context.Context, text string, limit int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	query := core.NewTextQuery(text)
	if query.IsEmpty() || limit <= 0 {
		return []*core.SearchResult{}, nil
	}

	monitor.Start(query)
	hits, err := s.rank(ctx, query, limit, monitor)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, hits, monitor)
}

// rank fetches candidates, scores and orders them, and truncates to limit.
func (s *Searcher) rank(ctx context.Context, query core.TextQuery, limit int, monitor SearchMonitor) ([]hit, error) {
	candidates, err := s.matcher.FindCandidates(ctx, query)
	if err != nil {
		s.logger.Error("error finding candidates", "query", query.Raw, "err", err)
		return nil, err
	}
	monitor.AfterCandidateMatch(candidates)

	hits := make([]hit, 0, len(candidates))
	for _, candidate := range candidates {
		score := Score(candidate, query)
		monitor.Scored(candidate, score)
		hits = append(hits, hit{ID: candidate.ID, Name: candidate.Name, Score: score})
	}

	slices.SortFunc(hits, compareHits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// resolve loads the features of hits, keeping hit order. Features removed
// since ranking are dropped.
func (s *Searcher) resolve(ctx context.Context, hits []hit, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if len(hits) == 0 {
		results := []*core.SearchResult{}
		monitor.Finish(results)
		return results, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}

	features, err := s.reader.GetFeatures(ctx, ids...)
	if err != nil {
		s.logger.Error("error retrieving features", "featureCount", len(ids), "err", err)
		return nil, err
	}
	monitor.AfterFeatureRetrieval(features)

	byID := make(map[string]core.Feature, len(features))
	for _, feature := range features {
		byID[feature.Base().ID] = feature
	}

	results := make([]*core.SearchResult, 0, len(hits))
	for _, h := range hits {
		feature, ok := byID[h.ID]
		if !ok {
			s.logger.Debug("ranked feature no longer stored", "id", h.ID)
			continue
		}
		results = append(results, &core.SearchResult{
			Feature: feature,
			Score:   h.Score,
		})
	}
	monitor.Finish(results)

	return results, nil
}

// cacheKey hashes the active import id, folded query and limit.
func (s *Searcher) cacheKey(ctx context.Context, query core.TextQuery, limit int) (string, error) {
	var importID string
	if _, disabled := s.cache.(cache.NullCache); !disabled {
		var err error
		importID, err = s.matcher.ActiveImport(ctx)
		if err != nil {
			s.logger.Error("error reading active import", "err", err)
			return "", err
		}
	}

	h, _ := blake2b.New(16, nil)
	h.Write([]byte(importID))
	h.Write([]byte{0})
	h.Write([]byte(query.Folded))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(limit)))
	return "search:" + hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Searcher) cachedHits(ctx context.Context, key string) ([]hit, bool) {
	if _, disabled := s.cache.(cache.NullCache); disabled {
		return nil, false
	}

	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("error reading search cache", "key", key, "err", err)
		s.metrics.CacheLookup("error")
		return nil, false
	}
	if !found {
		s.metrics.CacheLookup("miss")
		return nil, false
	}

	var hits []hit
	if err := json.Unmarshal(data, &hits); err != nil {
		s.logger.Warn("discarding corrupt search cache entry", "key", key, "err", err)
		s.metrics.CacheLookup("error")
		return nil, false
	}
	s.metrics.CacheLookup("hit")
	return hits, true
}

func (s *Searcher) storeHits(ctx context.Context, key string, hits []hit) {
	if _, disabled := s.cache.(cache.NullCache); disabled {
		return
	}

	data, err := json.Marshal(hits)
	if err != nil {
		s.logger.Warn("error encoding search cache entry", "key", key, "err", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("error writing search cache", "key", key, "err", err)
	}
}
