package core

import (
	"sort"
	"strings"
)

// TemplateMatchThreshold is the minimum score for a template to be considered a match.
const TemplateMatchThreshold = 0.7

// TemplateMatch is a saved template scored against a file's columns.
type TemplateMatch struct {
	Template MappingTemplate `json:"template"`
	Score    float64         `json:"score"`
}

// MatchTemplates returns the templates whose columns mostly appear in the
// file, best match first. Templates scoring below TemplateMatchThreshold
// are left out.
func MatchTemplates(templates []MappingTemplate, columns []string) []TemplateMatch {
	var matches []TemplateMatch
	for _, t := range templates {
		score := matchTemplateColumns(columns, t.ColumnMap)
		if score >= TemplateMatchThreshold {
			matches = append(matches, TemplateMatch{
				Template: t,
				Score:    score,
			})
		}
	}

	// Sort by score descending; equal scores keep catalog order.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return matches
}

// matchTemplateColumns is the share of the template's columns present in
// the file, ignoring case and surrounding space.
func matchTemplateColumns(columns []string, mapping ColumnMapping) float64 {
	if len(mapping) == 0 {
		return 0
	}

	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[normalizeColumn(c)] = true
	}

	matched := 0
	for c := range mapping {
		if present[normalizeColumn(c)] {
			matched++
		}
	}

	return float64(matched) / float64(len(mapping))
}

func normalizeColumn(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
