package tabular

import (
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/importwizard/internal/core"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{"contacts.xlsx", FormatXLSX, false},
		{"CONTACTS.XLSX", FormatXLSX, false},
		{"legacy.xls", FormatXLS, false},
		{"sales.csv", FormatCSV, false},
		{"archive.tar.csv", FormatCSV, false},
		{"report.pdf", "", true},
		{"noextension", "", true},
		{"data.txt", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DetectFormat(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
			if err != nil {
				var fe *FormatError
				if !errors.As(err, &fe) || !errors.Is(err, core.ErrUnsupportedFormat) {
					t.Errorf("error %v is not a FormatError wrapping ErrUnsupportedFormat", err)
				}
			}
		})
	}
}

func TestParse_CSV(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantColumns []string
		wantRows    []core.Row
	}{
		{
			name:        "missing cells become empty strings",
			data:        "A,B\n1,2\n3\n",
			wantColumns: []string{"A", "B"},
			wantRows: []core.Row{
				{"A": "1", "B": "2"},
				{"A": "3", "B": ""},
			},
		},
		{
			name:        "extra cells are dropped",
			data:        "A,B\n1,2,3,4\n",
			wantColumns: []string{"A", "B"},
			wantRows:    []core.Row{{"A": "1", "B": "2"}},
		},
		{
			name:        "byte order mark is stripped",
			data:        "\xEF\xBB\xBFName,Email\nAda,a@x.com\n",
			wantColumns: []string{"Name", "Email"},
			wantRows:    []core.Row{{"Name": "Ada", "Email": "a@x.com"}},
		},
		{
			name:        "invalid utf8 is replaced",
			data:        "Name\nJos\xe9\n",
			wantColumns: []string{"Name"},
			wantRows:    []core.Row{{"Name": "Jos�"}},
		},
		{
			name:        "lazy quotes",
			data:        "Name,Note\nAda,say \"hi\" now\n",
			wantColumns: []string{"Name", "Note"},
			wantRows:    []core.Row{{"Name": "Ada", "Note": `say "hi" now`}},
		},
		{
			name:        "duplicate and blank headers are qualified",
			data:        "Name,Name,,Name\na,b,c,d\n",
			wantColumns: []string{"Name", "Name.1", "Unnamed: 2", "Name.2"},
			wantRows:    []core.Row{{"Name": "a", "Name.1": "b", "Unnamed: 2": "c", "Name.2": "d"}},
		},
		{
			name:        "blank data rows are skipped",
			data:        "A\n1\n,\n2\n",
			wantColumns: []string{"A"},
			wantRows:    []core.Row{{"A": "1"}, {"A": "2"}},
		},
		{
			name:        "header only",
			data:        "A,B\n",
			wantColumns: []string{"A", "B"},
			wantRows:    []core.Row{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse("sales.csv", []byte(tt.data))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got.ActiveSheet != CSVSheetName || !reflect.DeepEqual(got.Sheets, []string{CSVSheetName}) {
				t.Errorf("sheets = %q %v, want single CSV sheet", got.ActiveSheet, got.Sheets)
			}
			if !reflect.DeepEqual(got.Columns, tt.wantColumns) {
				t.Errorf("Columns = %v, want %v", got.Columns, tt.wantColumns)
			}
			if !reflect.DeepEqual(got.Rows, tt.wantRows) {
				t.Errorf("Rows = %v, want %v", got.Rows, tt.wantRows)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		target   error
	}{
		{"unsupported extension", "notes.txt", []byte("A\n1\n"), core.ErrUnsupportedFormat},
		{"empty csv", "empty.csv", nil, core.ErrParse},
		{"blank header", "blank.csv", []byte(",,\n1,2,3\n"), core.ErrParse},
		{"corrupt xlsx", "broken.xlsx", []byte("not a zip file"), core.ErrParse},
		{"corrupt xls", "broken.xls", []byte("not a biff workbook"), core.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.filename, tt.data)
			if !errors.Is(err, tt.target) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.target)
			}
			if tt.target == core.ErrParse {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Errorf("error %T is not a *ParseError", err)
				}
			}
		})
	}
}

func buildWorkbook(t *testing.T, sheets map[string][][]any, order []string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("SetSheetName() error = %v", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("NewSheet() error = %v", err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("CoordinatesToCellName() error = %v", err)
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				t.Fatalf("SetSheetRow() error = %v", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	return buf.Bytes()
}

func TestParse_XLSX(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Contacts": {
			{"Name", "Email"},
			{"Ada", "a@x.com"},
			{"Grace"},
		},
		"Sheet2": {
			{"Ticket", "Priority"},
			{"T-1", "high"},
		},
	}, []string{"Contacts", "Sheet2"})

	got, err := Parse("contacts.xlsx", data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.ActiveSheet != "Contacts" {
		t.Errorf("ActiveSheet = %q, want Contacts", got.ActiveSheet)
	}
	if !reflect.DeepEqual(got.Sheets, []string{"Contacts", "Sheet2"}) {
		t.Errorf("Sheets = %v", got.Sheets)
	}
	wantRows := []core.Row{
		{"Name": "Ada", "Email": "a@x.com"},
		{"Name": "Grace", "Email": ""},
	}
	if !reflect.DeepEqual(got.Rows, wantRows) {
		t.Errorf("Rows = %v, want %v", got.Rows, wantRows)
	}

	t.Run("named sheet", func(t *testing.T) {
		first, err := ParseSheet("contacts.xlsx", data, "Sheet2")
		if err != nil {
			t.Fatalf("ParseSheet() error = %v", err)
		}
		second, err := ParseSheet("contacts.xlsx", data, "Sheet2")
		if err != nil {
			t.Fatalf("ParseSheet() error = %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Error("ParseSheet() is not idempotent")
		}
		if first.ActiveSheet != "Sheet2" || !reflect.DeepEqual(first.Columns, []string{"Ticket", "Priority"}) {
			t.Errorf("ParseSheet() = %+v", first)
		}
	})

	t.Run("unknown sheet falls back to first", func(t *testing.T) {
		got, err := ParseSheet("contacts.xlsx", data, "Missing")
		if err != nil {
			t.Fatalf("ParseSheet() error = %v", err)
		}
		if got.ActiveSheet != "Contacts" {
			t.Errorf("ActiveSheet = %q, want Contacts", got.ActiveSheet)
		}
	})
}

func TestParse_XLSXEmptySheet(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{"Empty": nil}, []string{"Empty"})

	_, err := Parse("empty.xlsx", data)
	if !errors.Is(err, core.ErrParse) {
		t.Fatalf("Parse() error = %v, want ErrParse", err)
	}
	var pe *ParseError
	if errors.As(err, &pe) && pe.Sheet != "Empty" {
		t.Errorf("ParseError.Sheet = %q, want Empty", pe.Sheet)
	}
}

// testdata/legacy.xls is a BIFF8 workbook with two sheets. Contacts has
// no record for row 2, a one-cell row 3 and a four-cell row 4.
func TestParse_XLS(t *testing.T) {
	data, err := os.ReadFile("testdata/legacy.xls")
	if err != nil {
		t.Fatal(err)
	}

	got, err := Parse("legacy.xls", data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.ActiveSheet != "Contacts" {
		t.Errorf("ActiveSheet = %q, want Contacts", got.ActiveSheet)
	}
	if !reflect.DeepEqual(got.Sheets, []string{"Contacts", "Tickets"}) {
		t.Errorf("Sheets = %v", got.Sheets)
	}
	if !reflect.DeepEqual(got.Columns, []string{"Name", "Email", "Phone"}) {
		t.Errorf("Columns = %v", got.Columns)
	}
	wantRows := []core.Row{
		{"Name": "Ada", "Email": "a@x.com", "Phone": "555"},
		{"Name": "Grace", "Email": "", "Phone": ""},
		{"Name": "Linus", "Email": "l@x.com", "Phone": "7.5"},
	}
	if !reflect.DeepEqual(got.Rows, wantRows) {
		t.Errorf("Rows = %v, want %v", got.Rows, wantRows)
	}

	t.Run("named sheet", func(t *testing.T) {
		got, err := ParseSheet("LEGACY.XLS", data, "Tickets")
		if err != nil {
			t.Fatalf("ParseSheet() error = %v", err)
		}
		if got.ActiveSheet != "Tickets" || !reflect.DeepEqual(got.Columns, []string{"Ticket", "Priority"}) {
			t.Errorf("ParseSheet() = %+v", got)
		}
		if want := []core.Row{{"Ticket": "T-1", "Priority": "high"}}; !reflect.DeepEqual(got.Rows, want) {
			t.Errorf("Rows = %v, want %v", got.Rows, want)
		}
	})
}
