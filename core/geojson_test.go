package core

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const skiAreaJSON = `{
  "type": "Feature",
  "geometry": {"type": "Point", "coordinates": [11.0959, 47.4919]},
  "properties": {
    "id": "sa-classic",
    "type": "skiArea",
    "name": "Skigebiet Garmisch-Classic",
    "places": [{"localized": {"en": {"country": "Germany", "region": "Bavaria", "locality": "Garmisch-Partenkirchen"}}}],
    "statistics": {"runs": {"byActivity": {"downhill": {"byDifficulty": {
      "easy": {"count": 4, "lengthInKm": 12.5},
      "intermediate": {"count": 6, "lengthInKm": 27.5}
    }}}}}
  }
}`

const liftJSON = `{
  "type": "Feature",
  "geometry": {"type": "LineString", "coordinates": [[11.08, 47.46], [11.09, 47.47]]},
  "properties": {
    "id": "lift-kreuzeck",
    "type": "lift",
    "name": "Kreuzeckbahn",
    "skiAreas": [{
      "type": "Feature",
      "geometry": null,
      "properties": {
        "id": "sa-classic",
        "name": "Skigebiet Garmisch-Classic",
        "places": [{"localized": {"en": {"locality": "Garmisch-Partenkirchen"}}}]
      }
    }]
  }
}`

func decodeFeature(t *testing.T, data string) *geojson.Feature {
	t.Helper()
	gf, err := geojson.UnmarshalFeature([]byte(data))
	require.NoError(t, err)
	return gf
}

func TestFromGeoJSON(t *testing.T) {
	t.Run("ski area", func(t *testing.T) {
		feature, err := FromGeoJSON(decodeFeature(t, skiAreaJSON))
		require.NoError(t, err)

		skiArea, ok := feature.(*SkiArea)
		require.True(t, ok)
		assert.Equal(t, "sa-classic", skiArea.ID)
		assert.Equal(t, "Skigebiet Garmisch-Classic", skiArea.Name)
		assert.Equal(t, orb.Point{11.0959, 47.4919}, skiArea.Geometry)
		require.Len(t, skiArea.Places, 1)
		assert.Equal(t, "Garmisch-Partenkirchen", skiArea.Places[0].Locality(DefaultLocale))
		assert.InDelta(t, 40.0, CalculateTotalRunLength(skiArea), 1e-9)
	})

	t.Run("lift with nested ski area feature", func(t *testing.T) {
		feature, err := FromGeoJSON(decodeFeature(t, liftJSON))
		require.NoError(t, err)

		lift, ok := feature.(*Lift)
		require.True(t, ok)
		require.Len(t, lift.SkiAreas, 1)
		assert.Equal(t, "sa-classic", lift.SkiAreas[0].ID)
		assert.Equal(t,
			[]string{"Kreuzeckbahn", "Skigebiet Garmisch-Classic", "Garmisch-Partenkirchen"},
			SearchableText(lift))
	})

	t.Run("run with flat ski area summary", func(t *testing.T) {
		gf := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})
		gf.Properties["id"] = "run-1"
		gf.Properties["type"] = "run"
		gf.Properties["name"] = "Olympiaabfahrt"
		gf.Properties["skiAreas"] = []any{
			map[string]any{"id": "sa-classic", "name": "Skigebiet Garmisch-Classic"},
		}

		feature, err := FromGeoJSON(gf)
		require.NoError(t, err)
		run, ok := feature.(*Run)
		require.True(t, ok)
		assert.Equal(t, "Skigebiet Garmisch-Classic", run.SkiAreas[0].Name)
	})

	t.Run("top level id is used as fallback", func(t *testing.T) {
		gf := geojson.NewFeature(orb.Point{1, 2})
		gf.ID = "lift-top"
		gf.Properties["type"] = "lift"

		feature, err := FromGeoJSON(gf)
		require.NoError(t, err)
		assert.Equal(t, "lift-top", feature.Base().ID)
	})

	t.Run("missing id", func(t *testing.T) {
		gf := geojson.NewFeature(orb.Point{1, 2})
		gf.Properties["type"] = "skiArea"
		gf.Properties["name"] = "Anonymous"

		_, err := FromGeoJSON(gf)
		assert.ErrorIs(t, err, ErrInvalidFeature)
		assert.ErrorIs(t, err, ErrEmptyID)
	})

	t.Run("unknown type", func(t *testing.T) {
		gf := geojson.NewFeature(orb.Point{1, 2})
		gf.Properties["id"] = "spot-1"
		gf.Properties["type"] = "spot"

		_, err := FromGeoJSON(gf)
		assert.ErrorIs(t, err, ErrInvalidFeature)
		assert.ErrorIs(t, err, ErrUnknownFeatureType)
	})

	t.Run("malformed statistics", func(t *testing.T) {
		gf := geojson.NewFeature(orb.Point{1, 2})
		gf.Properties["id"] = "sa"
		gf.Properties["type"] = "skiArea"
		gf.Properties["statistics"] = "lots of runs"

		_, err := FromGeoJSON(gf)
		assert.ErrorIs(t, err, ErrInvalidFeature)
	})

	t.Run("nil feature", func(t *testing.T) {
		_, err := FromGeoJSON(nil)
		assert.ErrorIs(t, err, ErrInvalidFeature)
	})
}

func TestToGeoJSON(t *testing.T) {
	feature, err := FromGeoJSON(decodeFeature(t, skiAreaJSON))
	require.NoError(t, err)

	gf := ToGeoJSON(feature)
	assert.Equal(t, "Feature", gf.Type)
	assert.Equal(t, "sa-classic", gf.Properties["id"])
	assert.Equal(t, orb.Point{11.0959, 47.4919}, gf.Geometry)

	data, err := json.Marshal(gf)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Feature", doc["type"])
	assert.Contains(t, doc, "geometry")
	props := doc["properties"].(map[string]any)
	assert.Equal(t, "skiArea", props["type"])
	assert.NotContains(t, props, "searchableText")
	assert.NotContains(t, props, "rank")
	assert.NotContains(t, props, "importID")

	t.Run("fills id and type for hand-built features", func(t *testing.T) {
		lift := &Lift{FeatureBase: FeatureBase{ID: "l-1", Name: "Alpspitzbahn"}}
		gf := ToGeoJSON(lift)
		assert.Equal(t, "l-1", gf.Properties["id"])
		assert.Equal(t, "lift", gf.Properties["type"])
		assert.Equal(t, "Alpspitzbahn", gf.Properties["name"])
	})

	t.Run("strips index fields carried by the source", func(t *testing.T) {
		run := &Run{FeatureBase: FeatureBase{
			ID:         "r-1",
			Properties: map[string]any{"id": "r-1", "type": "run", "rank": 4.2, "importID": "old", "searchableText": []any{"x"}},
		}}
		gf := ToGeoJSON(run)
		assert.NotContains(t, gf.Properties, "rank")
		assert.NotContains(t, gf.Properties, "importID")
		assert.NotContains(t, gf.Properties, "searchableText")
		assert.Equal(t, "r-1", gf.Properties["id"])
		assert.Contains(t, run.Properties, "rank")
	})

	t.Run("canonical id replaces a source id that did not decode", func(t *testing.T) {
		for name, sourceID := range map[string]any{"empty": "", "number": 42.0} {
			t.Run(name, func(t *testing.T) {
				gf := geojson.NewFeature(orb.Point{11.1, 47.5})
				gf.ID = "sa-1"
				gf.Properties["id"] = sourceID
				gf.Properties["type"] = "skiArea"
				gf.Properties["name"] = "Garmisch"

				feature, err := FromGeoJSON(gf)
				require.NoError(t, err)
				assert.Equal(t, "sa-1", feature.Base().ID)

				out := ToGeoJSON(feature)
				assert.Equal(t, "sa-1", out.Properties["id"])

				again, err := FromGeoJSON(out)
				require.NoError(t, err)
				assert.Equal(t, "sa-1", again.Base().ID)
			})
		}
	})
}
