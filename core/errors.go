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

import "errors"

// Domain validation errors
var (
	// ErrInvalidFeature indicates a Feature failed validation or could not be decoded.
	ErrInvalidFeature = errors.New("invalid feature")

	// ErrEmptyID indicates the feature id is missing or empty.
	ErrEmptyID = errors.New("feature id cannot be empty")

	// ErrUnknownFeatureType indicates a type discriminator outside skiArea, lift and run.
	ErrUnknownFeatureType = errors.New("unknown feature type")

	// ErrEmptyImportID indicates an upsert or purge without an import id.
	ErrEmptyImportID = errors.New("import id cannot be empty")
)
