package electric

import (
	"math"
	"time"

	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// Table is a time-indexed set of reading columns for one metered series.
//
// Values is column-major: Values[c][r] is the reading of Columns[c] at
// Index[r]. NaN marks a missing reading. The table declares its supply kind
// once; every column agrees with it.
type Table struct {
	Index   []time.Time
	Supply  SupplyKind
	Columns []Column
	Values  [][]float64
}

// NewTable builds a table and validates it.
func NewTable(kind SupplyKind, index []time.Time, columns []Column, values [][]float64) (*Table, error) {
	t := &Table{
		Index:   index,
		Supply:  kind,
		Columns: columns,
		Values:  values,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustTable is NewTable that panics on invalid input. Intended for fixtures.
func MustTable(kind SupplyKind, index []time.Time, columns []Column, values [][]float64) *Table {
	t, err := NewTable(kind, index, columns, values)
	if err != nil {
		panic(err)
	}
	return t
}

// Validate checks the table invariants: ascending index, one value vector
// per column of index length, column supply matching the declared kind and
// unique column keys.
func (t *Table) Validate() error {
	for i := 1; i < len(t.Index); i++ {
		if t.Index[i].Before(t.Index[i-1]) {
			return nferrors.New(nferrors.CodeMalformedTable, "index is not sorted ascending").
				WithContext("row", i)
		}
	}
	if len(t.Values) != len(t.Columns) {
		return nferrors.Newf(nferrors.CodeMalformedTable, "%d value vectors for %d columns", len(t.Values), len(t.Columns))
	}

	seen := make(map[Column]struct{}, len(t.Columns))
	for c, col := range t.Columns {
		if len(t.Values[c]) != len(t.Index) {
			return nferrors.Newf(nferrors.CodeMalformedTable, "column has %d values for %d index entries", len(t.Values[c]), len(t.Index)).
				WithContext("column", col.Header(t.Supply))
		}
		if col.PhysicalQuantity == "" || col.Type == "" {
			return nferrors.New(nferrors.CodeMalformedTable, "column needs a physical quantity and a type").
				WithContext("column", c)
		}
		switch t.Supply {
		case DualSupply:
			if col.Supply <= 0 {
				return nferrors.New(nferrors.CodeMalformedTable, "dual-supply table column without supply leg").
					WithContext("column", col.Header(t.Supply))
			}
		default:
			if col.Supply != 0 {
				return nferrors.New(nferrors.CodeMalformedTable, "single-supply table column with supply leg").
					WithContext("column", col.Header(DualSupply))
			}
		}
		if _, dup := seen[col]; dup {
			return nferrors.New(nferrors.CodeMalformedTable, "duplicate column").
				WithContext("column", col.Header(t.Supply))
		}
		seen[col] = struct{}{}
	}
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Index)
}

// Headers returns the encoded header of every column, in column order.
func (t *Table) Headers() []string {
	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = c.Header(t.Supply)
	}
	return headers
}

// Column returns the values of col, or false if the table has no such column.
func (t *Table) Column(col Column) ([]float64, bool) {
	for i, c := range t.Columns {
		if c == col {
			return t.Values[i], true
		}
	}
	return nil, false
}

// Span returns the first and last timestamps. Both are zero for an empty table.
func (t *Table) Span() (first, last time.Time) {
	if len(t.Index) == 0 {
		return time.Time{}, time.Time{}
	}
	return t.Index[0], t.Index[len(t.Index)-1]
}

// Equal reports whether both tables carry the same columns, timestamps and
// values. NaN equals NaN.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Supply != o.Supply || len(t.Index) != len(o.Index) || len(t.Columns) != len(o.Columns) {
		return false
	}
	for i := range t.Index {
		if !t.Index[i].Equal(o.Index[i]) {
			return false
		}
	}
	for c := range t.Columns {
		if t.Columns[c] != o.Columns[c] {
			return false
		}
		for r, v := range t.Values[c] {
			w := o.Values[c][r]
			if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
				return false
			}
		}
	}
	return true
}
