// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/poiesic/skimap/core"
)

var jsonNull = []byte("null")

// MarshalGeometry serializes a geometry as a GeoJSON geometry object.
// A nil geometry serializes as null.
func MarshalGeometry(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return jsonNull, nil
	}
	data, err := json.Marshal(geojson.NewGeometry(g))
	if err != nil {
		return nil, fmt.Errorf("%w: geometry: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalGeometry deserializes a GeoJSON geometry object.
func UnmarshalGeometry(data []byte) (orb.Geometry, error) {
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: geometry: %w", ErrSerializationFailed, err)
	}
	return g.Geometry(), nil
}

// MarshalRecord serializes a StoredRecord to bytes.
func MarshalRecord(record *core.StoredRecord) ([]byte, error) {
	base := record.Feature.Base()
	geometry, err := MarshalGeometry(base.Geometry)
	if err != nil {
		return nil, err
	}
	properties, err := json.Marshal(core.ToGeoJSON(record.Feature).Properties)
	if err != nil {
		return nil, fmt.Errorf("%w: properties: %w", ErrSerializationFailed, err)
	}

	envelope := RecordEnvelope{
		ID:             base.ID,
		Type:           string(record.Feature.Type()),
		SearchableText: record.SearchableText,
		Geometry:       string(geometry),
		Properties:     string(properties),
		Rank:           record.Rank,
		ImportID:       record.ImportID,
	}
	buf := make([]byte, RecordEnvelopeMUS.Size(envelope))
	RecordEnvelopeMUS.Marshal(envelope, buf)
	return buf, nil
}

// UnmarshalRecord deserializes a StoredRecord from bytes.
func UnmarshalRecord(data []byte) (*core.StoredRecord, error) {
	envelope, _, err := RecordEnvelopeMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}

	var props geojson.Properties
	if err := json.Unmarshal([]byte(envelope.Properties), &props); err != nil {
		return nil, fmt.Errorf("%w: properties: %w", ErrSerializationFailed, err)
	}
	feature, err := DecodeFeature([]byte(envelope.Geometry), props)
	if err != nil {
		return nil, err
	}

	return &core.StoredRecord{
		Feature:        feature,
		SearchableText: envelope.SearchableText,
		Rank:           envelope.Rank,
		ImportID:       envelope.ImportID,
	}, nil
}

// MarshalIndexEntry serializes an IndexEntry to bytes.
func MarshalIndexEntry(entry *IndexEntry) []byte {
	buf := make([]byte, IndexEntryMUS.Size(*entry))
	IndexEntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalIndexEntry deserializes an IndexEntry from bytes.
func UnmarshalIndexEntry(data []byte) (*IndexEntry, error) {
	entry, _, err := IndexEntryMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: index entry: %w", ErrSerializationFailed, err)
	}
	return &entry, nil
}

// DecodeFeature rebuilds a Feature from a stored geometry and property map.
func DecodeFeature(geometry []byte, props geojson.Properties) (core.Feature, error) {
	g, err := UnmarshalGeometry(geometry)
	if err != nil {
		return nil, err
	}
	gf := geojson.NewFeature(g)
	if props != nil {
		gf.Properties = props
	}
	feature, err := core.FromGeoJSON(gf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return feature, nil
}
