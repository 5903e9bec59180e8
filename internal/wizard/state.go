// Package wizard implements the five-step import wizard.
//
// All session state lives in a State value. The only way to change it is
// Transition, a pure function over a closed set of events:
//
//	next, err := wizard.Transition(st, wizard.Advance{Delta: wizard.PreviewDelta{}})
//
// A failed transition returns the input state unchanged. Session wraps a
// State with a mutex and issues the backend calls each step needs.
package wizard

import (
	"errors"
	"fmt"
	"slices"

	"github.com/JonMunkholm/importwizard/internal/core"
)

// Stage is one step of the wizard.
type Stage int

const (
	StageUpload Stage = iota
	StagePreview
	StageMapping
	StageSummary
	StageResult
)

// Stages lists every stage in order.
var Stages = []Stage{StageUpload, StagePreview, StageMapping, StageSummary, StageResult}

func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "upload"
	case StagePreview:
		return "preview"
	case StageMapping:
		return "mapping"
	case StageSummary:
		return "summary"
	case StageResult:
		return "result"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Valid reports whether s is within [StageUpload, StageResult].
func (s Stage) Valid() bool {
	return s >= StageUpload && s <= StageResult
}

var (
	// ErrOutOfRange rejects Retreat at Upload and Advance at Result.
	ErrOutOfRange = errors.New("wizard: no step in that direction")

	// ErrWrongStage rejects an event or delta meant for another step.
	ErrWrongStage = errors.New("wizard: action not valid at this step")

	// ErrStale discards a result that arrived after the session moved on.
	ErrStale = errors.New("wizard: result is stale, the session moved on")

	// ErrInvalid rejects step data that breaks a state invariant.
	ErrInvalid = errors.New("wizard: invalid step data")

	// ErrBusy rejects an action whose previous call is still running.
	ErrBusy = fmt.Errorf("%w: the same action is already running", core.ErrBusy)
)

// State is the whole state of one wizard session.
//
// Transition never mutates maps or slices reachable from its input, so a
// State may be shared after it is returned.
type State struct {
	Stage Stage

	// Epoch increases on every Reset. Async results carry the epoch they
	// started in and are dropped when it no longer matches.
	Epoch uint64

	JobID      core.JobID
	ImportType core.ImportType

	Preview       *core.PreviewData
	SelectedSheet string
	Columns       []string

	Mapping       core.ColumnMapping
	MappingSource core.MappingSource

	Result *core.TransformResult
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Preview = s.Preview.Clone()
	out.Columns = slices.Clone(s.Columns)
	if s.Mapping != nil {
		out.Mapping = s.Mapping.Clone()
	}
	return out
}

// EffectiveImportType is the import type the Upload step shows.
func (s State) EffectiveImportType() core.ImportType {
	return s.ImportType.OrDefault()
}

// ActiveSheet is the sheet the current preview shows, or "" before upload.
func (s State) ActiveSheet() string {
	if s.Preview == nil {
		return ""
	}
	return s.Preview.ActiveSheet
}

// selectedSheet is the sheet a SheetLoaded event must match.
func (s State) selectedSheet() string {
	if s.SelectedSheet != "" {
		return s.SelectedSheet
	}
	return s.ActiveSheet()
}

// Event is a closed set of inputs to Transition.
type Event interface {
	isEvent()
}

// Advance moves one step forward, merging the step's delta.
type Advance struct {
	Delta Delta
}

// Retreat moves one step back without clearing anything.
type Retreat struct{}

// Reset returns to Upload and clears all session data.
type Reset struct{}

// SheetSelected records the sheet the user picked on the Preview step.
type SheetSelected struct {
	Sheet string
}

// SheetLoaded delivers the preview of a selected sheet.
type SheetLoaded struct {
	Preview *core.PreviewData
}

// MappingApplied replaces the working mapping with a template or suggestion.
type MappingApplied struct {
	Source  core.MappingSource
	Mapping core.ColumnMapping
}

// MappingEdited sets one column's field. An empty Field clears it.
type MappingEdited struct {
	Column string
	Field  string
}

func (Advance) isEvent()        {}
func (Retreat) isEvent()        {}
func (Reset) isEvent()          {}
func (SheetSelected) isEvent()  {}
func (SheetLoaded) isEvent()    {}
func (MappingApplied) isEvent() {}
func (MappingEdited) isEvent()  {}

// Transition applies ev to s. On error the returned state is s.
func Transition(s State, ev Event) (State, error) {
	switch e := ev.(type) {
	case Advance:
		return advance(s, e.Delta)

	case Retreat:
		if s.Stage <= StageUpload {
			return s, ErrOutOfRange
		}
		s.Stage--
		return s, nil

	case Reset:
		return State{Epoch: s.Epoch + 1}, nil

	case SheetSelected:
		if s.Stage != StagePreview {
			return s, ErrWrongStage
		}
		if s.Preview == nil || !slices.Contains(s.Preview.Sheets, e.Sheet) {
			return s, fmt.Errorf("%w: unknown sheet %q", ErrInvalid, e.Sheet)
		}
		s.SelectedSheet = e.Sheet
		return s, nil

	case SheetLoaded:
		if s.Stage != StagePreview {
			return s, ErrWrongStage
		}
		if err := e.Preview.Validate(); err != nil {
			return s, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if e.Preview.ActiveSheet != s.selectedSheet() {
			return s, ErrStale
		}
		s.Preview = e.Preview.Clone()
		s.SelectedSheet = s.Preview.ActiveSheet
		s.Columns = slices.Clone(s.Preview.Columns)
		return s, nil

	case MappingApplied:
		if s.Stage != StageMapping {
			return s, ErrWrongStage
		}
		// Templates are shared across files; columns this file lacks are dropped.
		s.Mapping = core.Resolve(nil, e.Mapping.Restrict(s.Columns))
		s.MappingSource = e.Source
		return s, nil

	case MappingEdited:
		if s.Stage != StageMapping {
			return s, ErrWrongStage
		}
		if !slices.Contains(s.Columns, e.Column) {
			return s, fmt.Errorf("%w: unknown column %q", ErrInvalid, e.Column)
		}
		s.Mapping = core.Resolve([]core.MappingEdit{{Column: e.Column, Field: e.Field}}, s.Mapping)
		return s, nil

	default:
		return s, fmt.Errorf("wizard: unhandled event %T", ev)
	}
}

func advance(s State, d Delta) (State, error) {
	if s.Stage >= StageResult {
		return s, ErrOutOfRange
	}
	if d == nil {
		if s.Stage == StageUpload || s.Stage == StageSummary {
			return s, fmt.Errorf("%w: %s step requires data to advance", ErrInvalid, s.Stage)
		}
		s.Stage++
		return s, nil
	}
	if d.stage() != s.Stage {
		return s, fmt.Errorf("%w: %T belongs to the %s step", ErrWrongStage, d, d.stage())
	}
	if err := d.validate(s); err != nil {
		return s, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	next := d.merge(s)
	if next.Preview != nil {
		next.Columns = slices.Clone(next.Preview.Columns)
	}
	next.Stage = s.Stage + 1
	return next, nil
}
