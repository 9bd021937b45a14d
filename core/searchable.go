package core

import "strings"

// SearchableText returns the text indexed for a feature: its name, the English
// locality of each of its places, and for lifts and runs the searchable text of
// the ski areas they belong to. Empty entries are dropped and exact duplicates
// removed; the remaining entries keep insertion order.
func SearchableText(feature Feature) []string {
	if feature == nil {
		return nil
	}

	base := feature.Base()
	texts := []string{base.Name}
	texts = appendLocalities(texts, base.Places)

	switch f := feature.(type) {
	case *SkiArea:
		if f.Location != nil {
			texts = append(texts, f.Location.Locality(DefaultLocale))
		}
	case *Lift:
		texts = appendSkiAreaTexts(texts, f.SkiAreas)
	case *Run:
		texts = appendSkiAreaTexts(texts, f.SkiAreas)
	}

	return dedupe(texts)
}

// JoinSearchableText returns the space-joined form of SearchableText.
func JoinSearchableText(texts []string) string {
	return strings.Join(texts, " ")
}

// SearchableText returns the summary's name followed by its place localities.
func (s SkiAreaSummary) SearchableText() []string {
	return dedupe(appendLocalities([]string{s.Name}, s.Places))
}

func appendSkiAreaTexts(texts []string, skiAreas []SkiAreaSummary) []string {
	for _, skiArea := range skiAreas {
		texts = append(texts, skiArea.SearchableText()...)
	}
	return texts
}

func appendLocalities(texts []string, places []Place) []string {
	for _, place := range places {
		texts = append(texts, place.Locality(DefaultLocale))
	}
	return texts
}

func dedupe(texts []string) []string {
	seen := make(map[string]struct{}, len(texts))
	result := make([]string, 0, len(texts))
	for _, text := range texts {
		if text == "" {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		result = append(result, text)
	}
	return result
}
