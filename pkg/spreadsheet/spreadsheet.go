// Package spreadsheet renders a building as an XLSX workbook: an index
// sheet followed by one sheet per series, laid out like the CSV export.
package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/nilmflow/nilmflow/pkg/building"
	"github.com/nilmflow/nilmflow/pkg/csvcodec"
	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

const (
	// IndexSheet lists every series sheet of the workbook.
	IndexSheet = "index"

	maxSheetName = 31
)

// FileName returns the workbook name of a building.
func FileName(building int) string {
	return "building_" + strconv.Itoa(building) + ".xlsx"
}

// SheetNames assigns a sheet to each entry. Names are the CSV file stem,
// cleaned of characters Excel rejects, cut to 31 runes and suffixed with
// "~N" when they would collide.
func SheetNames(entries []building.Entry) []string {
	used := map[string]bool{strings.ToLower(IndexSheet): true}
	names := make([]string, len(entries))
	for i, e := range entries {
		base := sanitize(strings.TrimSuffix(csvcodec.FileName(e.Series), ".csv"))
		name := truncate(base, maxSheetName)
		for n := 2; used[strings.ToLower(name)]; n++ {
			suffix := "~" + strconv.Itoa(n)
			name = truncate(base, maxSheetName-len(suffix)) + suffix
		}
		used[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, s)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// entries lists every series of b in category order.
func entries(b *building.Building) []building.Entry {
	var out []building.Entry
	for _, c := range electric.Categories {
		out = append(out, b.Electric().Entries(c)...)
	}
	return out
}

// WriteBuilding writes one workbook for b at path. Tables without columns
// fail with an EmptyTable error, as in the CSV export.
func WriteBuilding(path string, b *building.Building) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", IndexSheet); err != nil {
		return nferrors.Wrap(err, nferrors.CodeIO, "rename index sheet")
	}

	all := entries(b)
	sheets := SheetNames(all)

	index := [][]interface{}{{"sheet", "category", "series", "supply", "rows"}}
	for i, e := range all {
		if e.Table == nil || len(e.Table.Columns) == 0 {
			return nferrors.New(nferrors.CodeEmptyTable, "table has no columns").
				WithContext("series", e.Series.String())
		}
		if err := e.Series.Validate(); err != nil {
			return err
		}
		if _, err := f.NewSheet(sheets[i]); err != nil {
			return nferrors.Wrap(err, nferrors.CodeIO, "create sheet").WithContext("sheet", sheets[i])
		}
		if err := writeTable(f, sheets[i], e.Table); err != nil {
			return nferrors.Wrap(err, nferrors.CodeIO, "write sheet").WithContext("sheet", sheets[i])
		}
		index = append(index, []interface{}{
			sheets[i], e.Category.String(), e.Series.String(), e.Table.Supply.String(), e.Table.Len(),
		})
	}

	for r, row := range index {
		cell, _ := excelize.CoordinatesToCellName(1, r+1)
		if err := f.SetSheetRow(IndexSheet, cell, &row); err != nil {
			return nferrors.Wrap(err, nferrors.CodeIO, "write index sheet")
		}
	}

	if err := f.SaveAs(path); err != nil {
		return nferrors.IO(err, "save workbook", path)
	}
	return nil
}

// writeTable streams one table into sheet. Cells carry the CSV text
// encodings so the workbook matches the CSV export value for value.
func writeTable(f *excelize.File, sheet string, t *electric.Table) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	row := make([]interface{}, len(t.Columns)+1)
	row[0] = csvcodec.TimestampHeader
	for i, h := range t.Headers() {
		row[i+1] = h
	}
	if err := sw.SetRow("A1", row); err != nil {
		return err
	}

	for r, ts := range t.Index {
		row[0] = csvcodec.FormatTimestamp(ts)
		for c := range t.Columns {
			row[c+1] = csvcodec.FormatValue(t.Values[c][r])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

// ReadRows returns every row of sheet in the workbook at path.
func ReadRows(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nferrors.IO(err, "open workbook", path)
	}
	defer f.Close()

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, nferrors.Wrap(err, nferrors.CodeNotFound, fmt.Sprintf("sheet %q", sheet)).WithContext("path", path)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, nferrors.IO(err, "read row", path)
		}
		out = append(out, cols)
	}
	return out, rows.Error()
}
