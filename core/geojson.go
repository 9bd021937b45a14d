package core

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/paulmach/orb/geojson"
)

// Property keys read from a GeoJSON feature.
const (
	propID         = "id"
	propType       = "type"
	propName       = "name"
	propPlaces     = "places"
	propLocation   = "location"
	propSkiAreas   = "skiAreas"
	propStatistics = "statistics"
)

// indexProperties are store-internal fields that never leave the store, even
// when a source file carries them.
var indexProperties = []string{"searchableText", "rank", "importID"}

// FromGeoJSON converts a decoded GeoJSON feature into its Feature variant.
// The id and type are read from the properties; the top-level feature id is
// used when properties carry none. Errors wrap ErrInvalidFeature.
func FromGeoJSON(gf *geojson.Feature) (Feature, error) {
	if gf == nil {
		return nil, fmt.Errorf("%w: feature is nil", ErrInvalidFeature)
	}

	props := gf.Properties
	if props == nil {
		props = geojson.Properties{}
	}

	id := stringProperty(props, propID)
	if id == "" {
		if s, ok := gf.ID.(string); ok {
			id = s
		}
	}

	base := FeatureBase{
		ID:         id,
		Name:       stringProperty(props, propName),
		Geometry:   gf.Geometry,
		Properties: props,
	}
	if err := decodeProperty(props, propPlaces, &base.Places); err != nil {
		return nil, err
	}
	if err := decodeProperty(props, propStatistics, &base.Statistics); err != nil {
		return nil, err
	}

	var feature Feature
	switch t := FeatureType(stringProperty(props, propType)); t {
	case FeatureTypeSkiArea:
		skiArea := &SkiArea{FeatureBase: base}
		if err := decodeProperty(props, propLocation, &skiArea.Location); err != nil {
			return nil, err
		}
		feature = skiArea
	case FeatureTypeLift:
		skiAreas, err := decodeSkiAreas(props)
		if err != nil {
			return nil, err
		}
		feature = &Lift{FeatureBase: base, SkiAreas: skiAreas}
	case FeatureTypeRun:
		skiAreas, err := decodeSkiAreas(props)
		if err != nil {
			return nil, err
		}
		feature = &Run{FeatureBase: base, SkiAreas: skiAreas}
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidFeature, ValidateFeatureType(t))
	}

	if err := ValidateFeature(feature); err != nil {
		return nil, err
	}
	return feature, nil
}

// ToGeoJSON renders a feature as a GeoJSON Feature carrying its properties and
// geometry. Typed attributes missing from the property map are filled in, so the
// result decodes back to an equivalent Feature. Index fields are stripped.
func ToGeoJSON(feature Feature) *geojson.Feature {
	base := feature.Base()

	gf := geojson.NewFeature(base.Geometry)
	props := make(geojson.Properties, len(base.Properties)+3)
	maps.Copy(props, base.Properties)
	for _, key := range indexProperties {
		delete(props, key)
	}
	props[propID] = base.ID
	props[propType] = string(feature.Type())
	if _, ok := props[propName]; !ok && base.Name != "" {
		props[propName] = base.Name
	}
	if _, ok := props[propPlaces]; !ok && len(base.Places) > 0 {
		props[propPlaces] = base.Places
	}
	if _, ok := props[propStatistics]; !ok && base.Statistics != nil {
		props[propStatistics] = base.Statistics
	}

	switch f := feature.(type) {
	case *SkiArea:
		if _, ok := props[propLocation]; !ok && f.Location != nil {
			props[propLocation] = f.Location
		}
	case *Lift:
		setSkiAreas(props, f.SkiAreas)
	case *Run:
		setSkiAreas(props, f.SkiAreas)
	}

	gf.Properties = props
	return gf
}

func setSkiAreas(props geojson.Properties, skiAreas []SkiAreaSummary) {
	if _, ok := props[propSkiAreas]; ok || len(skiAreas) == 0 {
		return
	}
	docs := make([]skiAreaProps, 0, len(skiAreas))
	for _, s := range skiAreas {
		docs = append(docs, skiAreaProps{ID: s.ID, Name: s.Name, Places: s.Places})
	}
	props[propSkiAreas] = docs
}

// skiAreaDoc accepts both a nested GeoJSON feature ({"properties": {...}}) and
// a flat {"id", "name", "places"} object.
type skiAreaDoc struct {
	Properties *skiAreaProps `json:"properties"`
	skiAreaProps
}

type skiAreaProps struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Places   []Place `json:"places,omitempty"`
	Location *Place  `json:"location,omitempty"`
}

func decodeSkiAreas(props geojson.Properties) ([]SkiAreaSummary, error) {
	var docs []skiAreaDoc
	if err := decodeProperty(props, propSkiAreas, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	summaries := make([]SkiAreaSummary, 0, len(docs))
	for _, doc := range docs {
		p := doc.skiAreaProps
		if doc.Properties != nil {
			p = *doc.Properties
		}
		places := p.Places
		if p.Location != nil {
			places = append(places, *p.Location)
		}
		summaries = append(summaries, SkiAreaSummary{
			ID:     p.ID,
			Name:   p.Name,
			Places: places,
		})
	}
	return summaries, nil
}

// stringProperty returns the string value of key, or "" when it is absent or not a string.
func stringProperty(props geojson.Properties, key string) string {
	s, _ := props[key].(string)
	return s
}

// decodeProperty re-decodes a generic property value into a typed destination.
// Absent and null properties leave dst untouched.
func decodeProperty(props geojson.Properties, key string, dst any) error {
	raw, ok := props[key]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: property %q: %w", ErrInvalidFeature, key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: property %q: %w", ErrInvalidFeature, key, err)
	}
	return nil
}
