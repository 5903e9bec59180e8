package core

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status       RowStatus
		wantLabel    string
		wantSeverity Severity
	}{
		{StatusOK, "Success", SeveritySuccess},
		{StatusMissingRequired, "Missing required field", SeverityCritical},
		{StatusInvalidEmail, "Invalid email format", SeverityWarning},
		{StatusInvalidPhone, "Invalid phone format", SeverityWarning},
		{StatusDuplicate, "Duplicate record", SeverityInfo},
		{"exploded", "Unknown error", SeverityUnknown},
		{"", "Unknown error", SeverityUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got := Classify(ReportRow{Row: 1, Status: tt.status})
			if got.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", got.Label, tt.wantLabel)
			}
			if got.Severity != tt.wantSeverity {
				t.Errorf("Severity = %q, want %q", got.Severity, tt.wantSeverity)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	// Row detail is shorter than the summary; the summary wins.
	report := Report{
		Summary: ReportSummary{Success: 998, Errors: 2},
		Rows: []ReportRow{
			{Row: 4, Status: StatusInvalidEmail},
			{Row: 9, Status: StatusDuplicate},
		},
	}

	got := Summarize(report)
	want := Totals{TotalProcessed: 1000, SuccessCount: 998, ErrorCount: 2}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestResolveDownload(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantOK   bool
		wantName string
		wantURL  string
	}{
		{"json export", "/tmp/out.json", true, "out.json", "/exports/out.json"},
		{"csv export", "exports/contacts_42.csv", true, "contacts_42.csv", "/exports/contacts_42.csv"},
		{"windows path", `C:\data\exports\out.csv`, true, "out.csv", "/exports/out.csv"},
		{"uppercase extension", "/tmp/out.CSV", false, "", ""},
		{"reserved characters escaped", "exports/q1#2 final?.json", true, "q1#2 final?.json", "/exports/q1%232%20final%3F.json"},
		{"bare filename", "out.json", true, "out.json", "/exports/out.json"},
		{"unsupported extension", "/tmp/out.txt", false, "", ""},
		{"sqlite database", "/tmp/import.db", false, "", ""},
		{"empty", "", false, "", ""},
		{"trailing separator", "/tmp/exports/", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveDownload(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("ResolveDownload(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if got.Filename != tt.wantName || got.URL != tt.wantURL {
				t.Errorf("ResolveDownload(%q) = %+v, want {%s %s}", tt.path, got, tt.wantName, tt.wantURL)
			}
		})
	}
}

func TestFailedRows(t *testing.T) {
	report := Report{Rows: []ReportRow{
		{Row: 1, Status: StatusOK},
		{Row: 2, Status: StatusMissingRequired, Missing: []string{"email"}},
		{Row: 3, Status: StatusOK},
		{Row: 4, Status: "weird"},
	}}

	got := FailedRows(report)
	if len(got) != 2 || got[0].Row != 2 || got[1].Row != 4 {
		t.Errorf("FailedRows() = %+v, want rows 2 and 4", got)
	}

	if rows := FailedRows(Report{Rows: []ReportRow{{Row: 1, Status: StatusOK}}}); len(rows) != 0 {
		t.Errorf("FailedRows() on clean report = %+v, want none", rows)
	}
}

func TestClassifyRows(t *testing.T) {
	rows := ClassifyRows([]ReportRow{{Row: 7, Status: StatusDuplicate}})
	if len(rows) != 1 || rows[0].Row != 7 || rows[0].Severity != SeverityInfo {
		t.Errorf("ClassifyRows() = %+v", rows)
	}
}
