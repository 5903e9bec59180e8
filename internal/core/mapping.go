package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// DoNotImport is the field value that explicitly excludes a column.
const DoNotImport = "do_not_import"

// ColumnMapping maps a source column name to a target field or DoNotImport.
type ColumnMapping map[string]string

// Clone returns a copy of m. A nil mapping clones to an empty one.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	maps.Copy(out, m)
	return out
}

// Restrict returns the entries of m whose column is in columns.
// Unlike Finalize it keeps DoNotImport values.
func (m ColumnMapping) Restrict(columns []string) ColumnMapping {
	out := make(ColumnMapping, len(m))
	for col, field := range m {
		if slices.Contains(columns, col) {
			out[col] = field
		}
	}
	return out
}

// Equal reports whether m and other hold the same entries.
func (m ColumnMapping) Equal(other ColumnMapping) bool {
	return maps.Equal(m, other)
}

// MappingSource records where the working mapping last came from.
type MappingSource int

const (
	SourceManual MappingSource = iota
	SourceTemplate
	SourceSuggestion
)

func (s MappingSource) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceTemplate:
		return "template"
	case SourceSuggestion:
		return "suggestion"
	default:
		return fmt.Sprintf("MappingSource(%d)", int(s))
	}
}

// MappingEdit is one manual change made on the mapping form.
// An empty Field clears the column.
type MappingEdit struct {
	Column string `json:"column"`
	Field  string `json:"field"`
}

// apply sets or clears the edited key in m.
func (e MappingEdit) apply(m ColumnMapping) {
	if e.Field == "" {
		delete(m, e.Column)
		return
	}
	m[e.Column] = e.Field
}

// Resolve merges an applied mapping with the manual edits made after it.
// The applied source replaces everything before it, so earlier edits are
// never carried over; later edits override single keys in order.
func Resolve(manual []MappingEdit, applied ColumnMapping) ColumnMapping {
	out := applied.Clone()
	for _, e := range manual {
		e.apply(out)
	}
	return out
}

// MappingDraft is the working mapping of one wizard session, built from a
// sequence of template applications, suggestions and manual edits.
type MappingDraft struct {
	base   ColumnMapping
	edits  []MappingEdit
	source MappingSource
}

// NewMappingDraft starts a draft from an existing mapping, treated as manual.
func NewMappingDraft(initial ColumnMapping) *MappingDraft {
	return &MappingDraft{base: initial.Clone(), source: SourceManual}
}

// ApplyTemplate replaces the working mapping with the template's column map.
func (d *MappingDraft) ApplyTemplate(t MappingTemplate) {
	d.replace(t.ColumnMap, SourceTemplate)
}

// ApplySuggestion replaces the working mapping with a server suggestion.
func (d *MappingDraft) ApplySuggestion(m ColumnMapping) {
	d.replace(m, SourceSuggestion)
}

func (d *MappingDraft) replace(m ColumnMapping, src MappingSource) {
	d.base = m.Clone()
	d.edits = nil
	d.source = src
}

// Set records a manual edit on top of the last applied source.
func (d *MappingDraft) Set(column, field string) {
	d.edits = append(d.edits, MappingEdit{Column: column, Field: field})
}

// Source returns the last applied source, or SourceManual when nothing
// has been applied since the draft started.
func (d *MappingDraft) Source() MappingSource {
	return d.source
}

// Edited reports whether manual edits were made since the last apply.
func (d *MappingDraft) Edited() bool {
	return len(d.edits) > 0
}

// Mapping returns the resolved working mapping.
func (d *MappingDraft) Mapping() ColumnMapping {
	return Resolve(d.edits, d.base)
}

// Finalize returns the submittable subset of mapping: keys present in
// columns whose value is neither empty nor DoNotImport.
func Finalize(mapping ColumnMapping, columns []string) ColumnMapping {
	out := make(ColumnMapping, len(mapping))
	for col, field := range mapping {
		if field == "" || field == DoNotImport {
			continue
		}
		if !slices.Contains(columns, col) {
			continue
		}
		out[col] = field
	}
	return out
}

// Suggester produces an automatic column mapping. *client.Client satisfies it.
type Suggester interface {
	SuggestMapping(ctx context.Context, columns []string) (ColumnMapping, error)
}

// Resolver applies the submission policy around a Suggester.
type Resolver struct {
	suggester Suggester
}

// NewResolver creates a Resolver backed by s.
func NewResolver(s Suggester) *Resolver {
	return &Resolver{suggester: s}
}

// RequestAutoSuggestion asks the suggestion service for a mapping of columns.
// A service that has no guesses yields an empty mapping and a nil error.
func (r *Resolver) RequestAutoSuggestion(ctx context.Context, columns []string) (ColumnMapping, error) {
	if r.suggester == nil {
		return ColumnMapping{}, nil
	}
	m, err := r.suggester.SuggestMapping(ctx, columns)
	if err != nil {
		if errors.Is(err, ErrSuggestion) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSuggestion, err)
	}
	if m == nil {
		return ColumnMapping{}, nil
	}
	return m, nil
}

// ForSubmission returns the finalized mapping to submit. An empty result
// triggers exactly one auto-suggestion; when that is empty too the
// submission is blocked with ErrNoMapping.
//
// The returned bool reports whether the mapping came from a suggestion.
func (r *Resolver) ForSubmission(ctx context.Context, mapping ColumnMapping, columns []string) (ColumnMapping, bool, error) {
	final := Finalize(mapping, columns)
	if len(final) > 0 {
		return final, false, nil
	}

	suggested, err := r.RequestAutoSuggestion(ctx, columns)
	if err != nil {
		return nil, false, err
	}
	final = Finalize(suggested, columns)
	if len(final) == 0 {
		return nil, false, ErrNoMapping
	}
	return final, true, nil
}

// MappingSummary holds the counts shown before submission.
type MappingSummary struct {
	Mapped           int                 `json:"mapped"`
	Unmapped         int                 `json:"unmapped"`
	Excluded         int                 `json:"excluded"`
	DuplicateTargets map[string][]string `json:"duplicate_targets,omitempty"`
}

// SummarizeMapping counts mapped, unmapped and excluded columns. Excluded
// columns are also counted as unmapped.
func SummarizeMapping(mapping ColumnMapping, columns []string) MappingSummary {
	var s MappingSummary
	for _, col := range columns {
		switch field := mapping[col]; field {
		case "":
			s.Unmapped++
		case DoNotImport:
			s.Unmapped++
			s.Excluded++
		default:
			s.Mapped++
		}
	}
	s.DuplicateTargets = DuplicateTargets(Finalize(mapping, columns))
	return s
}

// DuplicateTargets returns every field that more than one column maps to,
// with the columns sorted. It is informational; the backend decides
// whether duplicates are allowed.
func DuplicateTargets(mapping ColumnMapping) map[string][]string {
	byField := make(map[string][]string)
	for col, field := range mapping {
		if field == "" || field == DoNotImport {
			continue
		}
		byField[field] = append(byField[field], col)
	}

	var dups map[string][]string
	for field, cols := range byField {
		if len(cols) < 2 {
			continue
		}
		if dups == nil {
			dups = make(map[string][]string)
		}
		sort.Strings(cols)
		dups[field] = cols
	}
	return dups
}
