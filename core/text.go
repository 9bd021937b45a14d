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
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips combining marks, so "Söll" and "soll" compare equal.
// Indexed text and queries must both go through Fold.
func Fold(s string) string {
	// transform chains are stateful and must not be shared between goroutines
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Tokenize folds s and splits it on every rune that is neither a letter nor a digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// IndexTokens returns the sorted, unique tokens of all texts.
func IndexTokens(texts []string) []string {
	var tokens []string
	for _, text := range texts {
		tokens = append(tokens, Tokenize(text)...)
	}
	slices.Sort(tokens)
	return slices.Compact(tokens)
}

// TextQuery is a search query prepared for the two-tier match.
type TextQuery struct {
	// Raw is the trimmed query as typed.
	Raw string
	// Folded is Raw passed through Fold, used for substring matching.
	Folded string
	// Tokens are the folded query tokens that must all prefix-match.
	Tokens []string
}

// NewTextQuery trims and folds text.
func NewTextQuery(text string) TextQuery {
	raw := strings.TrimSpace(text)
	return TextQuery{
		Raw:    raw,
		Folded: Fold(raw),
		Tokens: Tokenize(raw),
	}
}

// IsEmpty reports whether the query has nothing to match.
func (q TextQuery) IsEmpty() bool {
	return q.Folded == ""
}
