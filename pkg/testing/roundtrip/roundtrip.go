// Package roundtrip provides round-trip testing utilities for datasets.
package roundtrip

import (
	"context"
	"fmt"
	"math"
	"os"
	"reflect"
	"time"

	"github.com/nilmflow/nilmflow/pkg/building"
	"github.com/nilmflow/nilmflow/pkg/dataset"
	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// Format selects the on-disk representation to round-trip through.
type Format int

const (
	FormatStore Format = iota
	FormatCSV
)

func (f Format) String() string {
	if f == FormatCSV {
		return "csv"
	}
	return "store"
}

// Options configures a comparison.
type Options struct {
	// Categories compared. The columnar store only carries mains and
	// appliances.
	Categories []electric.Category
	// TimeResolution truncates timestamps before comparing them.
	TimeResolution time.Duration
	// ValueTolerance is the largest accepted absolute difference.
	ValueTolerance float64
	SkipMetadata   bool
}

// OptionsFor returns the precision each format preserves.
func OptionsFor(f Format) Options {
	switch f {
	case FormatCSV:
		return Options{
			Categories:     electric.Categories,
			TimeResolution: time.Second,
			ValueTolerance: 0.005 + 1e-9,
		}
	default:
		return Options{
			Categories: []electric.Category{electric.Mains, electric.Appliances},
		}
	}
}

// Result contains test results.
type Result struct {
	Success   bool
	Error     error
	Buildings int
	Series    int
	Messages  []string
}

// Run exports ds in format f to a temporary directory, reads it back and
// compares the two datasets.
func Run(ctx context.Context, ds *dataset.DataSet, f Format) *Result {
	result := &Result{Success: true}

	tmpDir, err := os.MkdirTemp("", "nilmflow-roundtrip-*")
	if err != nil {
		result.Success = false
		result.Error = nferrors.IO(err, "create temp dir", os.TempDir())
		return result
	}
	defer os.RemoveAll(tmpDir)

	got := dataset.New(dataset.WithLogger(ds.Logger()))
	switch f {
	case FormatCSV:
		err = ds.ExportCSV(ctx, tmpDir)
		if err == nil {
			err = got.LoadCSV(ctx, tmpDir)
		}
	default:
		err = ds.Export(ctx, tmpDir)
		if err == nil {
			err = got.LoadStore(ctx, tmpDir)
		}
	}
	if err != nil {
		result.Success = false
		result.Error = fmt.Errorf("%s round trip failed: %w", f, err)
		return result
	}

	cmp := Compare(ds, got, OptionsFor(f))
	result.Buildings = len(got.Buildings)
	result.Series = cmp.Series
	result.Messages = append(result.Messages, cmp.Messages...)
	if !cmp.Success {
		result.Success = false
		result.Error = cmp.Error
	}
	return result
}

// Compare reports every difference between want and got.
func Compare(want, got *dataset.DataSet, opts Options) *Result {
	result := &Result{Success: true, Buildings: len(want.Buildings)}
	var errs nferrors.MultiError

	if !opts.SkipMetadata && !reflect.DeepEqual(want.Metadata, got.Metadata) {
		errs.Add(fmt.Errorf("metadata differs"))
	}

	for _, n := range want.BuildingNumbers() {
		gb, ok := got.Buildings[n]
		if !ok {
			errs.Add(fmt.Errorf("building %d missing", n))
			continue
		}
		for _, c := range opts.Categories {
			result.Series += compareCategory(&errs, n, c, want.Buildings[n], gb, opts)
		}
	}
	for _, n := range got.BuildingNumbers() {
		if _, ok := want.Buildings[n]; !ok {
			errs.Add(fmt.Errorf("unexpected building %d", n))
		}
	}

	if errs.HasErrors() {
		result.Success = false
		result.Error = errs.Combined()
		for _, err := range errs.Errors {
			result.Messages = append(result.Messages, err.Error())
		}
	}
	return result
}

func compareCategory(errs *nferrors.MultiError, n int, c electric.Category, want, got *building.Building, opts Options) int {
	wantEntries := want.Electric().Entries(c)
	gotEntries := got.Electric().Entries(c)

	gotBySeries := make(map[electric.Series]*electric.Table, len(gotEntries))
	for _, e := range gotEntries {
		gotBySeries[e.Series] = e.Table
	}

	for _, e := range wantEntries {
		gt, ok := gotBySeries[e.Series]
		if !ok {
			errs.Add(fmt.Errorf("building %d: %s missing", n, e.Series))
			continue
		}
		delete(gotBySeries, e.Series)
		if msg := compareTables(e.Table, gt, opts); msg != "" {
			errs.Add(fmt.Errorf("building %d: %s: %s", n, e.Series, msg))
		}
	}
	for s := range gotBySeries {
		errs.Add(fmt.Errorf("building %d: unexpected %s", n, s))
	}
	return len(wantEntries)
}

// compareTables returns a description of the first difference, or "".
func compareTables(want, got *electric.Table, opts Options) string {
	if want.Supply != got.Supply {
		return fmt.Sprintf("supply %s, got %s", want.Supply, got.Supply)
	}
	if !reflect.DeepEqual(want.Headers(), got.Headers()) {
		return fmt.Sprintf("columns %v, got %v", want.Headers(), got.Headers())
	}
	if want.Len() != got.Len() {
		return fmt.Sprintf("%d rows, got %d", want.Len(), got.Len())
	}

	for i := range want.Index {
		w, g := want.Index[i], got.Index[i]
		if opts.TimeResolution > 0 {
			w, g = w.Truncate(opts.TimeResolution), g.Truncate(opts.TimeResolution)
		}
		if !w.Equal(g) {
			return fmt.Sprintf("row %d: timestamp %s, got %s", i, want.Index[i].Format(time.RFC3339Nano), got.Index[i].Format(time.RFC3339Nano))
		}
	}

	for c := range want.Columns {
		for r, w := range want.Values[c] {
			g := got.Values[c][r]
			if math.IsNaN(w) || math.IsNaN(g) {
				if math.IsNaN(w) != math.IsNaN(g) {
					return fmt.Sprintf("row %d column %s: %v, got %v", r, want.Headers()[c], w, g)
				}
				continue
			}
			if math.Abs(w-g) > opts.ValueTolerance {
				return fmt.Sprintf("row %d column %s: %v, got %v", r, want.Headers()[c], w, g)
			}
		}
	}
	return ""
}
