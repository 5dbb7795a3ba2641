package csvcodec

import (
	"bufio"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// TimestampHeader labels the index column.
const TimestampHeader = "timestamp"

// FormatTimestamp renders t as integer Unix seconds, flooring any
// sub-second part.
func FormatTimestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// FormatValue renders v with exactly two decimals. NaN is an empty field.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// WriteTable writes t as CSV: a header row "timestamp,<col>,..." and one
// row per index entry. A table without columns cannot be written.
func WriteTable(w io.Writer, t *electric.Table) error {
	if len(t.Columns) == 0 {
		return nferrors.New(nferrors.CodeEmptyTable, "table has no columns")
	}
	if err := t.Validate(); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	record := make([]string, len(t.Columns)+1)

	record[0] = TimestampHeader
	copy(record[1:], t.Headers())
	if err := cw.Write(record); err != nil {
		return err
	}

	for r, ts := range t.Index {
		record[0] = FormatTimestamp(ts)
		for c := range t.Columns {
			record[c+1] = FormatValue(t.Values[c][r])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile writes t to path, creating parent directories as needed.
// A failed write leaves whatever was written in place.
func WriteFile(path string, t *electric.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nferrors.IO(err, "create directory", filepath.Dir(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return nferrors.IO(err, "create file", path)
	}

	bw := bufio.NewWriter(f)
	if err := WriteTable(bw, t); err != nil {
		f.Close()
		if nferrors.GetCode(err) != nferrors.CodeUnknown {
			return err
		}
		return nferrors.IO(err, "write csv", path)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return nferrors.IO(err, "write csv", path)
	}
	if err := f.Close(); err != nil {
		return nferrors.IO(err, "close file", path)
	}
	return nil
}

// ReadTable parses CSV written by WriteTable. The supply kind is inferred
// from the headers and timestamps are read as UTC.
//
// CSV carries no supply declaration, so inference is ambiguous for a
// single-supply table whose every header has an underscore in its quantity
// and a numeric type, such as "cumulative_energy_1". Such a table reads
// back as dual supply (quantity "cumulative", type "energy", leg 1). The
// columnar store records the kind and has no such limit.
func ReadTable(r io.Reader) (*electric.Table, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nferrors.New(nferrors.CodeMalformedTable, "missing header row")
	}
	if err != nil {
		return nil, nferrors.Wrap(err, nferrors.CodeMalformedTable, "read header")
	}
	if len(header) < 2 || header[0] != TimestampHeader {
		return nil, nferrors.New(nferrors.CodeMalformedTable, "header must start with timestamp and name at least one column")
	}

	headers := append([]string(nil), header[1:]...)
	kind := electric.InferSupplyKind(headers)
	columns := make([]electric.Column, len(headers))
	for i, h := range headers {
		col, err := electric.ParseHeader(h, kind)
		if err != nil {
			return nil, nferrors.Wrap(err, nferrors.CodeMalformedTable, "invalid column header")
		}
		columns[i] = col
	}

	var index []time.Time
	values := make([][]float64, len(columns))
	for row := 1; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nferrors.Wrap(err, nferrors.CodeMalformedTable, "read row").WithContext("row", row)
		}

		sec, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, nferrors.Wrap(err, nferrors.CodeMalformedTable, "invalid timestamp").WithContext("row", row)
		}
		index = append(index, time.Unix(sec, 0).UTC())

		for c := range columns {
			field := record[c+1]
			if field == "" {
				values[c] = append(values[c], math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nferrors.Wrap(err, nferrors.CodeMalformedTable, "invalid value").
					WithContext("row", row).
					WithContext("column", headers[c])
			}
			values[c] = append(values[c], v)
		}
	}

	for c := range values {
		if values[c] == nil {
			values[c] = []float64{}
		}
	}
	return electric.NewTable(kind, index, columns, values)
}

// ReadFile reads one series file.
func ReadFile(path string) (*electric.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nferrors.NotFound("csv file", path)
		}
		return nil, nferrors.IO(err, "open file", path)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, nferrors.Wrap(err, nferrors.GetCode(err), "read csv").WithContext("path", path)
	}
	return t, nil
}
