package ingest

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// xlsxReader serves the rows of one sheet through the recordReader interface.
// Rows after the header are padded to the header width because XLSX omits
// trailing empty cells.
type xlsxReader struct {
	rows  [][]string
	next  int
	line  int
	width int
}

func openXLSX(path, sheetName string) (*xlsxReader, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}

	sheet, err := getSheet(f, sheetName)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return &xlsxReader{rows: rows}, nil
}

func (x *xlsxReader) Read() ([]string, error) {
	for x.next < len(x.rows) {
		cells := x.rows[x.next]
		x.next++
		if blank(cells) {
			continue
		}
		x.line = x.next

		if x.width == 0 {
			x.width = len(cells)
			return cells, nil
		}
		for len(cells) < x.width {
			cells = append(cells, "")
		}
		for len(cells) > x.width && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		return cells, nil
	}
	return nil, io.EOF
}

func (x *xlsxReader) Line() int { return x.line }

func (x *xlsxReader) Close() error { return nil }

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
