package wizard

import (
	"github.com/JonMunkholm/importwizard/internal/core"
)

// DefaultPreviewRows is how many rows a View shows when the caller does
// not choose.
const DefaultPreviewRows = 10

// View is the read-only rendering of a session the shells display.
type View struct {
	SessionID string   `json:"session_id"`
	Stage     string   `json:"stage"`
	Step      int      `json:"step"`
	Steps     []string `json:"steps"`
	CanBack   bool     `json:"can_back"`

	JobID       core.JobID      `json:"job_id,omitempty"`
	ImportType  core.ImportType `json:"import_type"`
	Sheets      []string        `json:"sheets,omitempty"`
	ActiveSheet string          `json:"active_sheet,omitempty"`
	Columns     []string        `json:"columns,omitempty"`
	Rows        []core.Row      `json:"rows,omitempty"`
	TotalRows   int             `json:"total_rows"`

	Mapping       core.ColumnMapping   `json:"mapping,omitempty"`
	MappingSource string               `json:"mapping_source,omitempty"`
	Summary       *core.MappingSummary `json:"mapping_summary,omitempty"`

	Result *ResultView `json:"result,omitempty"`

	InFlight []Action `json:"in_flight,omitempty"`
}

// ResultView is what the Result step shows.
type ResultView struct {
	Totals   core.Totals          `json:"totals"`
	Failed   []core.ClassifiedRow `json:"failed,omitempty"`
	Download *core.Download       `json:"download,omitempty"`
}

// NewResultView classifies a transform result for display. Failed is empty
// when every row succeeded, and Download is nil unless the export is a
// retrievable file.
func NewResultView(r *core.TransformResult) *ResultView {
	if r == nil {
		return nil
	}
	v := &ResultView{
		Totals: core.Summarize(r.Report),
		Failed: core.ClassifyRows(core.FailedRows(r.Report)),
	}
	if d, ok := core.ResolveDownload(r.ExportPathOrEmpty()); ok {
		v.Download = &d
	}
	return v
}

// Render builds a View of the session showing at most rows preview rows.
func (s *Session) Render(rows int) View {
	if rows <= 0 {
		rows = DefaultPreviewRows
	}

	st := s.Snapshot()
	v := View{
		SessionID:  s.id,
		Stage:      st.Stage.String(),
		Step:       int(st.Stage),
		CanBack:    st.Stage > StageUpload,
		JobID:      st.JobID,
		ImportType: st.EffectiveImportType(),
		Columns:    st.Columns,
	}
	for _, stage := range Stages {
		v.Steps = append(v.Steps, stage.String())
	}

	if st.Preview != nil {
		head := st.Preview.Head(rows)
		v.Sheets = head.Sheets
		v.ActiveSheet = head.ActiveSheet
		v.Rows = head.Rows
		v.TotalRows = len(st.Preview.Rows)
	}

	if st.Stage == StageMapping || st.Stage == StageSummary {
		v.Mapping = st.Mapping
		v.MappingSource = st.MappingSource.String()
		sum := core.SummarizeMapping(st.Mapping, st.Columns)
		v.Summary = &sum
	}

	if st.Stage == StageResult {
		v.Result = NewResultView(st.Result)
	}

	for _, a := range []Action{ActionUpload, ActionCatalog, ActionSuggest, ActionSaveTemplate, ActionSubmit} {
		if s.InFlight(a) {
			v.InFlight = append(v.InFlight, a)
		}
	}
	return v
}
