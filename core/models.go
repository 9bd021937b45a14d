package core

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureType is the discriminator of a Feature.
type FeatureType string

const (
	// FeatureTypeSkiArea marks a ski area.
	FeatureTypeSkiArea FeatureType = "skiArea"
	// FeatureTypeLift marks a lift.
	FeatureTypeLift FeatureType = "lift"
	// FeatureTypeRun marks a run.
	FeatureTypeRun FeatureType = "run"
)

// DefaultLocale is the locale whose place names are indexed.
const DefaultLocale = "en"

// Feature is one indexed geographic entity.
// The set of implementations is closed: *SkiArea, *Lift and *Run.
type Feature interface {
	// Type returns the variant discriminator.
	Type() FeatureType
	// Base returns the attributes shared by every variant.
	Base() *FeatureBase

	isFeature()
}

// FeatureBase holds the attributes common to all feature variants.
type FeatureBase struct {
	ID       string
	Name     string
	Geometry orb.Geometry
	// Properties is the full property map as read from the source.
	Properties geojson.Properties
	Places     []Place
	Statistics *Statistics
}

// Base returns the receiver.
func (b *FeatureBase) Base() *FeatureBase { return b }

func (*FeatureBase) isFeature() {}

// SkiArea is a ski resort or cross-country area.
type SkiArea struct {
	FeatureBase
	Location *Place
}

// Type returns FeatureTypeSkiArea.
func (*SkiArea) Type() FeatureType { return FeatureTypeSkiArea }

// Lift is an aerial or surface lift.
type Lift struct {
	FeatureBase
	SkiAreas []SkiAreaSummary
}

// Type returns FeatureTypeLift.
func (*Lift) Type() FeatureType { return FeatureTypeLift }

// Run is a downhill or nordic run.
type Run struct {
	FeatureBase
	SkiAreas []SkiAreaSummary
}

// Type returns FeatureTypeRun.
func (*Run) Type() FeatureType { return FeatureTypeRun }

var (
	_ Feature = (*SkiArea)(nil)
	_ Feature = (*Lift)(nil)
	_ Feature = (*Run)(nil)
)

// SkiAreaSummary is a read-only copy of the ski area a lift or run belongs to.
// It is taken when the lift or run is decoded and never refreshed.
type SkiAreaSummary struct {
	ID     string
	Name   string
	Places []Place
}

// PlaceName is the localized name of a place.
type PlaceName struct {
	Country  string `json:"country,omitempty"`
	Region   string `json:"region,omitempty"`
	Locality string `json:"locality,omitempty"`
}

// Place is a locale-keyed place description.
type Place struct {
	ISO3166_1Alpha2 string               `json:"iso3166_1Alpha2,omitempty"`
	ISO3166_2       string               `json:"iso3166_2,omitempty"`
	Localized       map[string]PlaceName `json:"localized,omitempty"`
}

// Locality returns the locality name for locale, or "" when unknown.
func (p Place) Locality(locale string) string {
	return p.Localized[locale].Locality
}

// Statistics is the statistics block of a feature.
type Statistics struct {
	Runs *RunStatistics `json:"runs,omitempty"`
}

// RunStatistics groups run statistics by activity (downhill, nordic, ...).
type RunStatistics struct {
	ByActivity map[string]ActivityStatistics `json:"byActivity,omitempty"`
}

// ActivityStatistics groups an activity's runs by difficulty.
type ActivityStatistics struct {
	ByDifficulty map[string]DifficultyStatistics `json:"byDifficulty,omitempty"`
}

// DifficultyStatistics aggregates the runs of one difficulty bucket.
type DifficultyStatistics struct {
	Count      int     `json:"count,omitempty"`
	LengthInKm float64 `json:"lengthInKm,omitempty"`
}

// StoredRecord is the persisted projection of a Feature.
type StoredRecord struct {
	Feature        Feature
	SearchableText []string
	Rank           float64
	ImportID       string
}

// NewStoredRecord derives the searchable text and rank of feature and tags it with importID.
func NewStoredRecord(feature Feature, importID string) *StoredRecord {
	return &StoredRecord{
		Feature:        feature,
		SearchableText: SearchableText(feature),
		Rank:           CalculateRank(feature),
		ImportID:       importID,
	}
}

// Candidate is a text match returned by a store before scoring.
type Candidate struct {
	ID   string
	Type FeatureType
	Name string
	Rank float64
	// WordBoundary is true when every query token prefix-matched an indexed token.
	WordBoundary bool
}

// SearchResult pairs a feature with its combined ranking score.
type SearchResult struct {
	Feature Feature
	Score   float64
}
