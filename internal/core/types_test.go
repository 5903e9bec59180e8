package core

import (
	"encoding/json"
	"testing"
)

func TestUploadResponse_UnmarshalJSON(t *testing.T) {
	body := `{
		"job_id": 42,
		"sheet": "Sheet1",
		"sheets": ["Sheet1", "Sheet2"],
		"columns": ["Name", "Age", "Active", "Note"],
		"rows": [{"Name": "Ada", "Age": 36, "Active": true, "Note": null}]
	}`

	var resp UploadResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp.JobID != "42" {
		t.Errorf("JobID = %q, want 42", resp.JobID)
	}
	if resp.Preview == nil || resp.Preview.ActiveSheet != "Sheet1" {
		t.Fatalf("Preview = %+v", resp.Preview)
	}
	row := resp.Preview.Rows[0]
	want := Row{"Name": "Ada", "Age": "36", "Active": "true", "Note": ""}
	for k, v := range want {
		if row[k] != v {
			t.Errorf("row[%q] = %q, want %q", k, row[k], v)
		}
	}
	if err := resp.Preview.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestDecodeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`7`, "7"},
		{`"abc-1"`, "abc-1"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var id TemplateID
		if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
		}
		if string(id) != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, id, tt.want)
		}
	}

	var id JobID
	if err := json.Unmarshal([]byte(`{}`), &id); err == nil {
		t.Error("Unmarshal({}) error = nil, want error")
	}
}

func TestPreviewData_Validate(t *testing.T) {
	tests := []struct {
		name    string
		preview *PreviewData
		wantErr bool
	}{
		{
			name:    "valid",
			preview: &PreviewData{ActiveSheet: "CSV", Sheets: []string{"CSV"}, Columns: []string{"A"}, Rows: []Row{{"A": "1"}}},
		},
		{
			name:    "nil",
			wantErr: true,
		},
		{
			name:    "active sheet missing",
			preview: &PreviewData{ActiveSheet: "Other", Sheets: []string{"CSV"}, Columns: []string{"A"}},
			wantErr: true,
		},
		{
			name:    "row has unknown key",
			preview: &PreviewData{ActiveSheet: "CSV", Sheets: []string{"CSV"}, Columns: []string{"A"}, Rows: []Row{{"B": "1"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.preview.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPreviewData_HeadAndClone(t *testing.T) {
	p := &PreviewData{
		ActiveSheet: "CSV",
		Sheets:      []string{"CSV"},
		Columns:     []string{"A"},
		Rows:        []Row{{"A": "1"}, {"A": "2"}, {"A": "3"}},
	}

	head := p.Head(2)
	if len(head.Rows) != 2 {
		t.Fatalf("Head(2) rows = %d, want 2", len(head.Rows))
	}
	head.Rows[0]["A"] = "changed"
	if p.Rows[0]["A"] != "1" {
		t.Error("Head() shares row maps with the original")
	}

	if got := p.Head(0); len(got.Rows) != 3 {
		t.Errorf("Head(0) rows = %d, want 3", len(got.Rows))
	}
	if got := p.Samples("A", 2); len(got) != 2 || got[1] != "2" {
		t.Errorf("Samples() = %v", got)
	}
}

func TestParseImportTypeAndSaveMode(t *testing.T) {
	if got, err := ParseImportType(""); err != nil || got != ImportContact {
		t.Errorf("ParseImportType(\"\") = %q, %v", got, err)
	}
	if _, err := ParseImportType("invoice"); err == nil {
		t.Error("ParseImportType(invoice) error = nil")
	}
	if got, err := ParseSaveMode("json"); err != nil || got != SaveJSON {
		t.Errorf("ParseSaveMode(json) = %q, %v", got, err)
	}
	if got, _ := ParseSaveMode(""); got != SaveSQLite {
		t.Errorf("ParseSaveMode(\"\") = %q, want sqlite", got)
	}
	if _, err := ParseSaveMode("xml"); err == nil {
		t.Error("ParseSaveMode(xml) error = nil")
	}
}

func TestTransformResult_ExportPathOrEmpty(t *testing.T) {
	var r *TransformResult
	if r.ExportPathOrEmpty() != "" {
		t.Error("nil result should have empty export path")
	}
	body := `{"success":1,"errors":0,"report":{"summary":{"success":1,"errors":0},"rows":[{"row":1,"status":"ok","errors":[]}]},"export_path":"/tmp/out.json"}`
	r = &TransformResult{}
	if err := json.Unmarshal([]byte(body), r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if r.ExportPathOrEmpty() != "/tmp/out.json" {
		t.Errorf("ExportPathOrEmpty() = %q", r.ExportPathOrEmpty())
	}
}
