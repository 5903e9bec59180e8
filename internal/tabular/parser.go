// Package tabular decodes uploaded spreadsheets and CSV files into
// core.PreviewData.
//
// The format is inferred from the file extension. Row 0 of the chosen sheet
// is the header; every later row becomes a core.Row keyed by header name.
// Parsing is a pure function of the bytes, so callers may run it on any
// goroutine and drop the result if the wizard has moved on.
package tabular

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/importwizard/internal/core"
)

// Format is a supported tabular file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

// CSVSheetName is the single sheet name a CSV file reports.
const CSVSheetName = "CSV"

var errNoHeader = errors.New("header row is missing or empty")

// FormatError reports a file whose extension is not supported.
type FormatError struct {
	Filename  string
	Extension string
}

func (e *FormatError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("%s: file has no extension: %v", e.Filename, core.ErrUnsupportedFormat)
	}
	return fmt.Sprintf("%s: %v %q", e.Filename, core.ErrUnsupportedFormat, e.Extension)
}

func (e *FormatError) Unwrap() error {
	return core.ErrUnsupportedFormat
}

// ParseError reports a file whose contents could not be decoded.
type ParseError struct {
	Filename string
	Sheet    string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("%s [%s]: %v: %v", e.Filename, e.Sheet, core.ErrParse, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Filename, core.ErrParse, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{core.ErrParse, e.Err}
}

// DetectFormat returns the format named by filename's extension.
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch Format(ext) {
	case FormatXLSX, FormatXLS, FormatCSV:
		return Format(ext), nil
	default:
		return "", &FormatError{Filename: filename, Extension: filepath.Ext(filename)}
	}
}

// workbook is a decoded file: its sheet names in order and a reader for
// one sheet's raw cell grid.
type workbook struct {
	sheets []string
	rows   func(sheet string) ([][]string, error)
}

// Parse decodes data and returns the preview of its first sheet.
func Parse(filename string, data []byte) (*core.PreviewData, error) {
	return ParseSheet(filename, data, "")
}

// ParseSheet decodes data and returns the preview of the named sheet.
// An empty or unknown sheet name selects the first sheet.
func ParseSheet(filename string, data []byte, sheet string) (*core.PreviewData, error) {
	wb, err := open(filename, data)
	if err != nil {
		return nil, err
	}
	if len(wb.sheets) == 0 {
		return nil, &ParseError{Filename: filename, Err: errors.New("workbook has no sheets")}
	}

	active := wb.sheets[0]
	for _, name := range wb.sheets {
		if name == sheet {
			active = name
			break
		}
	}

	grid, err := wb.rows(active)
	if err != nil {
		return nil, &ParseError{Filename: filename, Sheet: active, Err: err}
	}

	columns, rows, err := buildRows(grid)
	if err != nil {
		return nil, &ParseError{Filename: filename, Sheet: active, Err: err}
	}

	return &core.PreviewData{
		ActiveSheet: active,
		Sheets:      append([]string(nil), wb.sheets...),
		Columns:     columns,
		Rows:        rows,
	}, nil
}

func open(filename string, data []byte) (*workbook, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	var wb *workbook
	switch format {
	case FormatXLSX:
		wb, err = openXLSX(data)
	case FormatXLS:
		wb, err = openXLS(data)
	case FormatCSV:
		wb, err = openCSV(data)
	}
	if err != nil {
		return nil, &ParseError{Filename: filename, Err: err}
	}
	return wb, nil
}

// buildRows turns a raw cell grid into columns and keyed rows. Missing
// cells become "" and cells beyond the header width are dropped. Blank
// data rows are skipped.
func buildRows(grid [][]string) ([]string, []core.Row, error) {
	if len(grid) == 0 || isBlank(grid[0]) {
		return nil, nil, errNoHeader
	}

	columns := headerNames(grid[0])
	rows := make([]core.Row, 0, len(grid)-1)
	for _, record := range grid[1:] {
		if isBlank(record) {
			continue
		}
		row := make(core.Row, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

// headerNames makes every header cell a unique column name. Blank cells
// become "Unnamed: <index>" and repeats get a ".<n>" suffix, so a later
// duplicate never shadows an earlier column.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	used := make(map[string]bool, len(header))

	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}

		base := name
		for used[name] {
			seen[base]++
			name = base + "." + strconv.Itoa(seen[base])
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
