package application

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/wizard"
)

type fakeBackend struct {
	transformed []core.TransformRequest
	downloaded  []string
	jobErr      error
}

func (f *fakeBackend) Upload(ctx context.Context, filename string, r io.Reader) (*core.UploadResponse, error) {
	return &core.UploadResponse{JobID: "7", Preview: &core.PreviewData{
		ActiveSheet: "CSV",
		Sheets:      []string{"CSV"},
		Columns:     []string{"Name", "Email"},
		Rows:        []core.Row{{"Name": "Ada", "Email": "a@x.com"}},
	}}, nil
}

func (f *fakeBackend) Preview(ctx context.Context, jobID core.JobID, sheet string) (*core.PreviewData, error) {
	return nil, core.NewServerError(core.OpPreview, 404, "Job not found")
}

func (f *fakeBackend) Fields(ctx context.Context, importType core.ImportType) ([]string, error) {
	return []string{"first_name", "email"}, nil
}

func (f *fakeBackend) Templates(ctx context.Context) ([]core.MappingTemplate, error) {
	return []core.MappingTemplate{{ID: "1", Name: "crm", ColumnMap: core.ColumnMapping{"Email": "email", "Phone": "phone"}}}, nil
}

func (f *fakeBackend) SaveTemplate(ctx context.Context, name string, mapping core.ColumnMapping) (*core.MappingTemplate, error) {
	return &core.MappingTemplate{ID: "2", Name: name, ColumnMap: mapping}, nil
}

func (f *fakeBackend) SuggestMapping(ctx context.Context, columns []string) (core.ColumnMapping, error) {
	return core.ColumnMapping{"Name": "first_name"}, nil
}

func (f *fakeBackend) Transform(ctx context.Context, jobID core.JobID, req core.TransformRequest) (*core.TransformResult, error) {
	f.transformed = append(f.transformed, req)
	path := "exports/out.csv"
	return &core.TransformResult{
		Success: 1,
		Report: core.Report{
			Summary: core.ReportSummary{Success: 1},
			Rows:    []core.ReportRow{{Row: 1, Status: core.StatusOK, Errors: []string{}}},
		},
		ExportPath: &path,
	}, nil
}

func (f *fakeBackend) DownloadExport(ctx context.Context, filename string, w io.Writer) (int64, error) {
	f.downloaded = append(f.downloaded, filename)
	n, err := io.WriteString(w, "first_name\nAda\n")
	return int64(n), err
}

func (f *fakeBackend) Job(ctx context.Context, jobID core.JobID) (*core.JobStatus, error) {
	if f.jobErr != nil {
		return nil, f.jobErr
	}
	return &core.JobStatus{ID: jobID, Filename: "sales.csv", Status: "completed", Total: 1, SuccessCount: 1}, nil
}

func (f *fakeBackend) Health(ctx context.Context) error { return nil }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// send delivers msg and runs the resulting commands to completion.
// Quit commands are not executed.
func send(t *testing.T, m *Model, msg tea.Msg) {
	t.Helper()
	_, cmd := m.Update(msg)
	for i := 0; cmd != nil; i++ {
		if i > 10 {
			t.Fatal("command chain did not settle")
		}
		next := cmd()
		if next == nil {
			return
		}
		if _, ok := next.(tea.QuitMsg); ok {
			return
		}
		_, cmd = m.Update(next)
	}
}

// choose moves the cursor to the first item starting with label and selects it.
func choose(t *testing.T, m *Model, label string) {
	t.Helper()
	for i, item := range m.menu.Items {
		if strings.HasPrefix(strings.TrimSpace(item.Label), label) {
			m.cursor = i
			send(t, m, key("enter"))
			return
		}
	}
	var labels []string
	for _, item := range m.menu.Items {
		labels = append(labels, item.Label)
	}
	t.Fatalf("menu %q has no item %q: %v", m.menu.Title, label, labels)
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestModel_FullImport(t *testing.T) {
	backend := &fakeBackend{}
	exportDir := t.TempDir()
	path := writeCSV(t, "sales.csv", "Name,Email\nAda,a@x.com\n")
	m := New(context.Background(), backend, Options{File: path, ExportDir: exportDir})

	choose(t, m, "Import type")
	choose(t, m, "ticket")
	if m.importType != core.ImportTicket {
		t.Fatalf("import type = %q", m.importType)
	}

	choose(t, m, "Upload")
	if st := m.sess.Snapshot(); st.Stage != wizard.StagePreview {
		t.Fatalf("stage after upload = %s (err %v)", st.Stage, m.err)
	}
	if !strings.Contains(m.View(), "Ada") {
		t.Error("preview should show the first row")
	}

	choose(t, m, "Continue to mapping")
	if m.stage != wizard.StageMapping || m.catalog == nil {
		t.Fatalf("stage %s, catalog %v", m.stage, m.catalog)
	}

	choose(t, m, "Apply template")
	choose(t, m, "crm")
	if got := m.draft.Mapping(); got["Email"] != "email" {
		t.Fatalf("draft after template = %v", got)
	}

	choose(t, m, "Edit columns")
	send(t, m, key("right")) // Name: unmapped -> first_name
	send(t, m, key("enter"))
	if got := m.draft.Mapping()["Name"]; got != "first_name" {
		t.Fatalf("Name mapped to %q", got)
	}

	choose(t, m, "Continue to summary")
	st := m.sess.Snapshot()
	if st.Stage != wizard.StageSummary {
		t.Fatalf("stage = %s (err %v)", st.Stage, m.err)
	}
	want := core.ColumnMapping{"Name": "first_name", "Email": "email"}
	if !st.Mapping.Equal(want) {
		t.Errorf("confirmed mapping = %v, want %v", st.Mapping, want)
	}

	choose(t, m, "Save mode")
	choose(t, m, "csv")
	choose(t, m, "Submit")
	if m.sess.Snapshot().Stage != wizard.StageResult {
		t.Fatalf("stage after submit = %s (err %v)", m.sess.Snapshot().Stage, m.err)
	}
	req := backend.transformed[0]
	if req.SaveMode != core.SaveCSV || req.ImportType != core.ImportTicket || req.Sheet != "CSV" {
		t.Errorf("transform request = %+v", req)
	}
	if !strings.Contains(m.View(), "Success: 1") {
		t.Error("result view should show totals")
	}
	if !strings.Contains(m.View(), "Job 7: completed (sales.csv)") {
		t.Error("result view should show the job status")
	}

	choose(t, m, "Download out.csv")
	if _, err := os.Stat(filepath.Join(exportDir, "out.csv")); err != nil {
		t.Errorf("export not written: %v", err)
	}

	choose(t, m, "Start over")
	if st := m.sess.Snapshot(); st.Stage != wizard.StageUpload || st.JobID != "" {
		t.Errorf("after start over: stage %s job %q", st.Stage, st.JobID)
	}
	if m.catalog != nil || m.job != nil {
		t.Error("catalog and job should be dropped on start over")
	}
}

func TestModel_JobStatusUnavailable(t *testing.T) {
	backend := &fakeBackend{jobErr: core.NewServerError(core.OpJob, 404, "Job not found")}
	path := writeCSV(t, "sales.csv", "Name,Email\nAda,a@x.com\n")
	m := New(context.Background(), backend, Options{File: path})

	choose(t, m, "Upload")
	choose(t, m, "Continue to mapping")
	choose(t, m, "Auto-suggest")
	choose(t, m, "Continue to summary")
	choose(t, m, "Submit")

	if st := m.sess.Snapshot(); st.Stage != wizard.StageResult {
		t.Fatalf("stage = %s (err %v)", st.Stage, m.err)
	}
	if m.err != nil || m.job != nil {
		t.Errorf("err = %v, job = %+v; a failed lookup should leave neither", m.err, m.job)
	}
	if m.status != "Import finished" {
		t.Errorf("status = %q", m.status)
	}
}

func TestModel_AutoSuggest(t *testing.T) {
	path := writeCSV(t, "people.csv", "Name,Email\nAda,a@x.com\n")
	m := New(context.Background(), &fakeBackend{}, Options{File: path})

	choose(t, m, "Upload")
	choose(t, m, "Continue to mapping")
	choose(t, m, "Auto-suggest")

	if got := m.draft.Mapping(); got["Name"] != "first_name" {
		t.Errorf("draft after suggestion = %v", got)
	}
	if m.draft.Source() != core.SourceSuggestion {
		t.Errorf("source = %s", m.draft.Source())
	}
}

func TestModel_UnsupportedFile(t *testing.T) {
	path := writeCSV(t, "notes.txt", "hello")
	m := New(context.Background(), &fakeBackend{}, Options{File: path})

	choose(t, m, "Upload")
	if m.sess.Snapshot().Stage != wizard.StageUpload {
		t.Fatal("stage should not change")
	}
	if !strings.Contains(m.View(), "FILE001") {
		t.Errorf("view should show the error code, got:\n%s", m.View())
	}
}

func TestModel_FileTooLarge(t *testing.T) {
	path := writeCSV(t, "big.csv", "Name\n"+strings.Repeat("x\n", 100))
	m := New(context.Background(), &fakeBackend{}, Options{File: path, MaxFileSize: 10})

	choose(t, m, "Upload")
	if got := core.MapError(m.err).Code; got != "FILE003" {
		t.Errorf("error code = %q, want FILE003 (err %v)", got, m.err)
	}
}

func TestModel_FileInput(t *testing.T) {
	m := New(context.Background(), &fakeBackend{}, Options{})

	choose(t, m, "Upload")
	if m.err == nil {
		t.Fatal("upload without a file should fail")
	}

	choose(t, m, "File")
	if m.mode != modeInput {
		t.Fatalf("mode = %v, want input", m.mode)
	}
	send(t, m, key("a.csv"))
	send(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	send(t, m, key("v"))
	send(t, m, key("enter"))
	if m.path != "a.csv" {
		t.Errorf("path = %q", m.path)
	}
	if !strings.Contains(m.menu.Items[0].Label, "a.csv") {
		t.Errorf("menu label = %q", m.menu.Items[0].Label)
	}
}

func TestCycleField(t *testing.T) {
	m := New(context.Background(), &fakeBackend{}, Options{})
	m.catalog = &wizard.Catalog{Fields: []string{"a", "b"}}

	tests := []struct {
		current string
		step    int
		want    string
	}{
		{"", 1, "a"},
		{"a", 1, "b"},
		{"b", 1, core.DoNotImport},
		{core.DoNotImport, 1, ""},
		{"", -1, core.DoNotImport},
		{"unknown", 1, "a"},
	}
	for _, tt := range tests {
		if got := m.cycleField(tt.current, tt.step); got != tt.want {
			t.Errorf("cycleField(%q, %d) = %q, want %q", tt.current, tt.step, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ab", 4); got != "ab" {
		t.Errorf("truncate = %q", got)
	}
}
