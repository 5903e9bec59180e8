package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// ImportType selects the target-field vocabulary and transform endpoint semantics.
type ImportType string

const (
	ImportContact      ImportType = "contact"
	ImportTicket       ImportType = "ticket"
	ImportOrganization ImportType = "organization"
)

// DefaultImportType is what the Upload stage shows before the user picks one.
const DefaultImportType = ImportContact

// ImportTypes lists every supported import type in display order.
var ImportTypes = []ImportType{ImportContact, ImportTicket, ImportOrganization}

// Valid reports whether t is one of the supported import types.
func (t ImportType) Valid() bool {
	return slices.Contains(ImportTypes, t)
}

// OrDefault returns t, or DefaultImportType when t is unset.
func (t ImportType) OrDefault() ImportType {
	if t == "" {
		return DefaultImportType
	}
	return t
}

// ParseImportType converts user input to an ImportType.
func ParseImportType(s string) (ImportType, error) {
	if s == "" {
		return DefaultImportType, nil
	}
	t := ImportType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown import type %q", s)
	}
	return t, nil
}

// SaveMode tells the backend where transformed rows go.
type SaveMode string

const (
	SaveSQLite SaveMode = "sqlite"
	SaveJSON   SaveMode = "json"
	SaveCSV    SaveMode = "csv"
)

// DefaultSaveMode matches the Summary stage's preselected option.
const DefaultSaveMode = SaveSQLite

// SaveModes lists every supported save mode in display order.
var SaveModes = []SaveMode{SaveSQLite, SaveJSON, SaveCSV}

// Valid reports whether m is one of the supported save modes.
func (m SaveMode) Valid() bool {
	return slices.Contains(SaveModes, m)
}

// ParseSaveMode converts user input to a SaveMode.
func ParseSaveMode(s string) (SaveMode, error) {
	if s == "" {
		return DefaultSaveMode, nil
	}
	m := SaveMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown save mode %q", s)
	}
	return m, nil
}

// JobID is the opaque import job identifier issued by the backend on upload.
// The backend sends it as a JSON number; strings are accepted too.
type JobID string

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (id *JobID) UnmarshalJSON(data []byte) error {
	s, err := decodeID(data)
	if err != nil {
		return fmt.Errorf("job id: %w", err)
	}
	*id = JobID(s)
	return nil
}

// TemplateID identifies a saved mapping template.
type TemplateID string

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (id *TemplateID) UnmarshalJSON(data []byte) error {
	s, err := decodeID(data)
	if err != nil {
		return fmt.Errorf("template id: %w", err)
	}
	*id = TemplateID(s)
	return nil
}

func decodeID(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Row is one data row keyed by column name.
type Row map[string]string

// PreviewData is a sheet-scoped snapshot of tabular data.
// It is always rebuilt wholesale, never patched.
type PreviewData struct {
	ActiveSheet string   `json:"sheet"`
	Sheets      []string `json:"sheets"`
	Columns     []string `json:"columns"`
	Rows        []Row    `json:"rows"`
}

// UnmarshalJSON decodes the backend preview shape, stringifying non-string cells.
func (p *PreviewData) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sheet   string                       `json:"sheet"`
		Sheets  []string                     `json:"sheets"`
		Columns []string                     `json:"columns"`
		Rows    []map[string]json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	rows := make([]Row, 0, len(raw.Rows))
	for _, r := range raw.Rows {
		row := make(Row, len(r))
		for k, v := range r {
			row[k] = cellString(v)
		}
		rows = append(rows, row)
	}

	*p = PreviewData{
		ActiveSheet: raw.Sheet,
		Sheets:      raw.Sheets,
		Columns:     raw.Columns,
		Rows:        rows,
	}
	return nil
}

// cellString renders a raw JSON cell as display text.
func cellString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			return strconv.FormatBool(b)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			return n.String()
		}
	}
	return string(v)
}

// Validate checks the preview invariants: the active sheet is listed,
// columns are present and every row key is a known column.
func (p *PreviewData) Validate() error {
	if p == nil {
		return fmt.Errorf("preview is nil")
	}
	if !slices.Contains(p.Sheets, p.ActiveSheet) {
		return fmt.Errorf("active sheet %q not in sheets %v", p.ActiveSheet, p.Sheets)
	}
	known := make(map[string]struct{}, len(p.Columns))
	for _, c := range p.Columns {
		known[c] = struct{}{}
	}
	for i, row := range p.Rows {
		for k := range row {
			if _, ok := known[k]; !ok {
				return fmt.Errorf("row %d has unknown column %q", i, k)
			}
		}
	}
	return nil
}

// Head returns a copy of the preview limited to the first n rows.
// n <= 0 returns all rows.
func (p *PreviewData) Head(n int) *PreviewData {
	out := p.Clone()
	if n > 0 && len(out.Rows) > n {
		out.Rows = out.Rows[:n]
	}
	return out
}

// Clone returns a deep copy of the preview.
func (p *PreviewData) Clone() *PreviewData {
	if p == nil {
		return nil
	}
	rows := make([]Row, len(p.Rows))
	for i, r := range p.Rows {
		row := make(Row, len(r))
		for k, v := range r {
			row[k] = v
		}
		rows[i] = row
	}
	return &PreviewData{
		ActiveSheet: p.ActiveSheet,
		Sheets:      slices.Clone(p.Sheets),
		Columns:     slices.Clone(p.Columns),
		Rows:        rows,
	}
}

// Samples returns the first n values of column, shown as mapping hints.
func (p *PreviewData) Samples(column string, n int) []string {
	if p == nil {
		return nil
	}
	var out []string
	for _, r := range p.Rows {
		if len(out) >= n {
			break
		}
		out = append(out, r[column])
	}
	return out
}

// MappingTemplate is a named, reusable column mapping persisted by the backend.
type MappingTemplate struct {
	ID        TemplateID    `json:"id"`
	Name      string        `json:"name"`
	ColumnMap ColumnMapping `json:"column_map"`
}

// UploadResponse is the backend answer to a file upload.
type UploadResponse struct {
	JobID   JobID
	Preview *PreviewData
}

// UnmarshalJSON splits the flat upload payload into job id and preview.
func (u *UploadResponse) UnmarshalJSON(data []byte) error {
	var head struct {
		JobID JobID `json:"job_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var preview PreviewData
	if err := json.Unmarshal(data, &preview); err != nil {
		return err
	}
	u.JobID = head.JobID
	u.Preview = &preview
	return nil
}

// TransformRequest is the body posted to the transform endpoint.
type TransformRequest struct {
	Mapping    ColumnMapping `json:"mapping"`
	Sheet      string        `json:"sheet,omitempty"`
	SaveMode   SaveMode      `json:"save_mode"`
	ImportType ImportType    `json:"import_type"`
}

// RowStatus is the per-row outcome code reported by the backend.
type RowStatus string

const (
	StatusOK              RowStatus = "ok"
	StatusMissingRequired RowStatus = "missing_required"
	StatusInvalidEmail    RowStatus = "invalid_email"
	StatusInvalidPhone    RowStatus = "invalid_phone"
	StatusDuplicate       RowStatus = "duplicate"
)

// ReportRow is the backend's verdict for one source row.
type ReportRow struct {
	Row     int       `json:"row"`
	Status  RowStatus `json:"status"`
	Missing []string  `json:"missing,omitempty"`
	Errors  []string  `json:"errors"`
}

// ReportSummary holds the aggregate counts of a transform report.
type ReportSummary struct {
	Total   int `json:"total,omitempty"`
	Success int `json:"success"`
	Errors  int `json:"errors"`
}

// Report is the detailed outcome of a transform.
type Report struct {
	Summary ReportSummary `json:"summary"`
	Rows    []ReportRow   `json:"rows"`
}

// TransformResult is produced once per Summary submission and never modified.
type TransformResult struct {
	Total      int     `json:"total,omitempty"`
	Success    int     `json:"success"`
	Errors     int     `json:"errors"`
	Report     Report  `json:"report"`
	ExportPath *string `json:"export_path,omitempty"`
}

// ExportPathOrEmpty returns the export path or "" when absent.
func (r *TransformResult) ExportPathOrEmpty() string {
	if r == nil || r.ExportPath == nil {
		return ""
	}
	return *r.ExportPath
}

// JobStatus is the backend's record of an import job.
type JobStatus struct {
	ID           JobID   `json:"id"`
	Filename     string  `json:"filename"`
	Status       string  `json:"status"`
	Total        int     `json:"total"`
	SuccessCount int     `json:"success_count"`
	ErrorCount   int     `json:"error_count"`
	Report       *Report `json:"report,omitempty"`
	CreatedAt    string  `json:"created_at"`
}
