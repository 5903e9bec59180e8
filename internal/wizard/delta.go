package wizard

import (
	"errors"
	"fmt"
	"slices"

	"github.com/JonMunkholm/importwizard/internal/core"
)

// Delta is the data one step hands over when advancing. Each step has its
// own delta type; Advance rejects a delta from another step.
type Delta interface {
	stage() Stage
	validate(State) error
	merge(State) State
}

// UploadDelta carries the new job from the Upload step.
type UploadDelta struct {
	JobID      core.JobID
	ImportType core.ImportType
	Preview    *core.PreviewData
}

// PreviewDelta optionally carries a replacement preview.
type PreviewDelta struct {
	Preview *core.PreviewData
}

// MappingDelta optionally carries the final mapping of the Mapping step.
// A nil Mapping keeps the working mapping. Source records where it came from.
type MappingDelta struct {
	Mapping core.ColumnMapping
	Source  core.MappingSource
}

// SummaryDelta carries the transform result.
type SummaryDelta struct {
	Result *core.TransformResult
}

func (UploadDelta) stage() Stage  { return StageUpload }
func (PreviewDelta) stage() Stage { return StagePreview }
func (MappingDelta) stage() Stage { return StageMapping }
func (SummaryDelta) stage() Stage { return StageSummary }

func (d UploadDelta) validate(State) error {
	if d.JobID == "" {
		return errors.New("job id is required")
	}
	if d.ImportType != "" && !d.ImportType.Valid() {
		return fmt.Errorf("unknown import type %q", d.ImportType)
	}
	if d.Preview == nil {
		return errors.New("preview is required")
	}
	return d.Preview.Validate()
}

// merge starts a new job. Mapping and result of any earlier job are
// dropped because they belong to a different file.
func (d UploadDelta) merge(s State) State {
	s.JobID = d.JobID
	s.ImportType = d.ImportType.OrDefault()
	s.Preview = d.Preview.Clone()
	s.SelectedSheet = s.Preview.ActiveSheet
	s.Mapping = nil
	s.MappingSource = core.SourceManual
	s.Result = nil
	return s
}

func (d PreviewDelta) validate(State) error {
	if d.Preview == nil {
		return nil
	}
	return d.Preview.Validate()
}

func (d PreviewDelta) merge(s State) State {
	if d.Preview != nil {
		s.Preview = d.Preview.Clone()
		s.SelectedSheet = s.Preview.ActiveSheet
	}
	return s
}

func (d MappingDelta) validate(s State) error {
	for col := range d.Mapping {
		if !slices.Contains(s.Columns, col) {
			return fmt.Errorf("mapping names unknown column %q", col)
		}
	}
	return nil
}

func (d MappingDelta) merge(s State) State {
	if d.Mapping != nil {
		s.Mapping = d.Mapping.Clone()
		s.MappingSource = d.Source
	}
	return s
}

func (d SummaryDelta) validate(State) error {
	if d.Result == nil {
		return errors.New("transform result is required")
	}
	if d.Result.Success < 0 || d.Result.Errors < 0 {
		return fmt.Errorf("negative counts in transform result (%d, %d)", d.Result.Success, d.Result.Errors)
	}
	return nil
}

func (d SummaryDelta) merge(s State) State {
	s.Result = d.Result
	return s
}
