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


package core

import (
	"fmt"
	"strings"
)

// ValidateFeature validates a Feature before it is written.
//
// Validation rules:
//   - Feature must not be nil
//   - ID must not be empty or blank
//   - Type must be one of skiArea, lift, run
//
// NOT validated:
//   - Name (unnamed features are stored and only match through place names)
//   - Geometry (opaque to the index)
func ValidateFeature(feature Feature) error {
	if feature == nil {
		return fmt.Errorf("%w: feature is nil", ErrInvalidFeature)
	}

	if strings.TrimSpace(feature.Base().ID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFeature, ErrEmptyID)
	}

	if err := ValidateFeatureType(feature.Type()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFeature, err)
	}

	return nil
}

// ValidateFeatureType checks that t is a known discriminator.
func ValidateFeatureType(t FeatureType) error {
	switch t {
	case FeatureTypeSkiArea, FeatureTypeLift, FeatureTypeRun:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFeatureType, string(t))
	}
}

// ValidateImportID checks that an import id is usable as a batch tag.
func ValidateImportID(importID string) error {
	if strings.TrimSpace(importID) == "" {
		return ErrEmptyImportID
	}
	return nil
}
