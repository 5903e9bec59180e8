package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func openXLSX(data []byte) (*workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	// Rows are read eagerly so the file can be closed before returning.
	sheets := f.GetSheetList()
	grids := make(map[string][][]string, len(sheets))
	for _, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		grids[name] = rows
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close xlsx: %w", err)
	}

	return &workbook{
		sheets: sheets,
		rows: func(sheet string) ([][]string, error) {
			return grids[sheet], nil
		},
	}, nil
}

func openXLS(data []byte) (wb *workbook, err error) {
	// The BIFF decoder panics on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			wb, err = nil, fmt.Errorf("open xls: malformed workbook: %v", r)
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}

	sheets := make([]string, 0, book.NumSheets())
	grids := make(map[string][][]string, book.NumSheets())
	for i := 0; i < book.NumSheets(); i++ {
		sheet := book.GetSheet(i)
		if sheet == nil {
			continue
		}
		sheets = append(sheets, sheet.Name)
		grids[sheet.Name] = xlsGrid(sheet)
	}

	return &workbook{
		sheets: sheets,
		rows: func(sheet string) ([][]string, error) {
			return grids[sheet], nil
		},
	}, nil
}

// xlsGrid reads rows 0..MaxRow. Each row is LastCol cells wide; rows the
// file never wrote come back empty.
func xlsGrid(sheet *xls.WorkSheet) [][]string {
	grid := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		grid = append(grid, cells)
	}
	return grid
}

// xlsRow returns row i, or nil when the sheet has no record for it.
// WorkSheet.Row dereferences missing rows instead of returning nil.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

func openCSV(data []byte) (*workbook, error) {
	records, err := readCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &workbook{
		sheets: []string{CSVSheetName},
		rows: func(string) ([][]string, error) {
			return records, nil
		},
	}, nil
}

// readCSV strips a byte order mark, replaces invalid UTF-8 with U+FFFD and
// reads every record. Quotes are lenient and rows may vary in width.
func readCSV(r io.Reader) ([][]string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	cr := csv.NewReader(transform.NewReader(r, decoder))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}
