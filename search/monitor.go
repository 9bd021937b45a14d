package search

import (
	"github.com/poiesic/skimap/core"
)

// SearchMonitor provides hooks to observe the ranking process.
// Implement this interface to see how each result's score was composed.
type SearchMonitor interface {
	Start(query core.TextQuery)
	AfterCandidateMatch(candidates []*core.Candidate)
	Scored(candidate *core.Candidate, score float64)
	AfterFeatureRetrieval(features []core.Feature)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.TextQuery)                  {}
func (n *noopMonitor) AfterCandidateMatch(_ []*core.Candidate) {}
func (n *noopMonitor) Scored(_ *core.Candidate, _ float64)     {}
func (n *noopMonitor) AfterFeatureRetrieval(_ []core.Feature)  {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)           {}
