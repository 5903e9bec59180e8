package core

import (
	"net/url"
	"strings"
)

// Severity tiers a report row for display.
type Severity string

const (
	SeveritySuccess  Severity = "success"
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeverityUnknown  Severity = "unknown"
)

// Classification is the display label and tier of one row status.
type Classification struct {
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
}

var classifications = map[RowStatus]Classification{
	StatusOK:              {Label: "Success", Severity: SeveritySuccess},
	StatusMissingRequired: {Label: "Missing required field", Severity: SeverityCritical},
	StatusInvalidEmail:    {Label: "Invalid email format", Severity: SeverityWarning},
	StatusInvalidPhone:    {Label: "Invalid phone format", Severity: SeverityWarning},
	StatusDuplicate:       {Label: "Duplicate record", Severity: SeverityInfo},
}

var unknownClassification = Classification{Label: "Unknown error", Severity: SeverityUnknown}

// Classify maps a row's status to its label and severity.
// Unrecognized statuses fall into the unknown tier.
func Classify(row ReportRow) Classification {
	if c, ok := classifications[row.Status]; ok {
		return c
	}
	return unknownClassification
}

// Totals are the aggregate counts shown on the result page.
type Totals struct {
	TotalProcessed int `json:"total_processed"`
	SuccessCount   int `json:"success_count"`
	ErrorCount     int `json:"error_count"`
}

// Summarize derives the result counts from the report summary. Row detail
// is not counted because large imports may omit it.
func Summarize(report Report) Totals {
	return Totals{
		TotalProcessed: report.Summary.Success + report.Summary.Errors,
		SuccessCount:   report.Summary.Success,
		ErrorCount:     report.Summary.Errors,
	}
}

// ExportPrefix is the URL prefix export files are served under.
const ExportPrefix = "/exports/"

var exportExtensions = []string{".json", ".csv"}

// Download locates an export file for the user.
type Download struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// ResolveDownload derives the download link for an export path. It returns
// false when the path is empty or its file does not end in ".json" or
// ".csv". The extension match is case-sensitive, as the backend only
// writes lowercase extensions.
func ResolveDownload(exportPath string) (Download, bool) {
	name := ExportFilename(exportPath)
	if name == "" {
		return Download{}, false
	}
	for _, ext := range exportExtensions {
		if strings.HasSuffix(name, ext) {
			return Download{Filename: name, URL: ExportPrefix + url.PathEscape(name)}, true
		}
	}
	return Download{}, false
}

// ExportFilename returns the last segment of a slash or backslash path.
func ExportFilename(exportPath string) string {
	exportPath = strings.TrimSpace(exportPath)
	if i := strings.LastIndexAny(exportPath, `/\`); i >= 0 {
		return exportPath[i+1:]
	}
	return exportPath
}

// FailedRows returns the rows whose status is not ok, in report order.
func FailedRows(report Report) []ReportRow {
	var out []ReportRow
	for _, r := range report.Rows {
		if r.Status != StatusOK {
			out = append(out, r)
		}
	}
	return out
}

// ClassifiedRow is a report row with its display classification.
type ClassifiedRow struct {
	ReportRow
	Classification
}

// ClassifyRows classifies every row of rows in order.
func ClassifyRows(rows []ReportRow) []ClassifiedRow {
	out := make([]ClassifiedRow, len(rows))
	for i, r := range rows {
		out[i] = ClassifiedRow{ReportRow: r, Classification: Classify(r)}
	}
	return out
}
