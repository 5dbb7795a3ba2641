// Package dataset holds a set of metered buildings with their metadata and
// moves them between memory and the on-disk formats: the columnar store,
// the CSV tree and XLSX workbooks.
//
// A DataSet is not safe for concurrent use. Distinct DataSets share no
// state.
package dataset

import (
	"context"
	"log/slog"
	"sort"

	"github.com/nilmflow/nilmflow/pkg/building"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
	"github.com/nilmflow/nilmflow/pkg/metadata"
	"github.com/nilmflow/nilmflow/pkg/store"
)

// Loader parses one source format into buildings. Implementations do any
// unit conversion and appliance-name mapping their format needs.
type Loader interface {
	// BuildingNames lists the buildings available under root.
	BuildingNames(ctx context.Context, root string) ([]string, error)
	// LoadBuilding parses the named building and returns its number.
	LoadBuilding(ctx context.Context, root, name string) (int, *building.Building, error)
}

// ProgressFunc is called before each building is written, with the
// building number and its position among total buildings.
type ProgressFunc func(building, done, total int)

// DataSet maps building numbers to buildings.
type DataSet struct {
	Buildings map[int]*building.Building
	Metadata  metadata.Metadata

	log      *slog.Logger
	opts     store.Options
	progress ProgressFunc
}

// Option configures a DataSet.
type Option func(*DataSet)

// WithLogger sets the logger used for per-building progress and warnings.
func WithLogger(l *slog.Logger) Option {
	return func(ds *DataSet) {
		if l != nil {
			ds.log = l
		}
	}
}

// WithStoreOptions sets the columnar store encoding.
func WithStoreOptions(o store.Options) Option {
	return func(ds *DataSet) { ds.opts = o }
}

// WithProgress installs a per-building progress callback for exports.
func WithProgress(fn ProgressFunc) Option {
	return func(ds *DataSet) { ds.progress = fn }
}

// New returns an empty dataset.
func New(opts ...Option) *DataSet {
	ds := &DataSet{
		Buildings: make(map[int]*building.Building),
		log:       slog.New(slog.DiscardHandler),
		opts:      store.DefaultOptions(),
	}
	for _, o := range opts {
		o(ds)
	}
	return ds
}

// Logger returns the dataset logger.
func (ds *DataSet) Logger() *slog.Logger {
	return ds.log
}

// BuildingNumbers returns the building numbers in ascending order.
func (ds *DataSet) BuildingNumbers() []int {
	numbers := make([]int, 0, len(ds.Buildings))
	for n := range ds.Buildings {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// Load asks loader for the building names under root, then loads them one
// by one. Each building is added as soon as it is loaded; the first
// failure stops the load and the buildings loaded so far remain.
func (ds *DataSet) Load(ctx context.Context, root string, loader Loader) error {
	names, err := loader.BuildingNames(ctx, root)
	if err != nil {
		return nferrors.Wrap(err, nferrors.CodeSourceLoad, "enumerate buildings").WithContext("path", root)
	}

	if ds.Buildings == nil {
		ds.Buildings = make(map[int]*building.Building)
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nferrors.Canceled("load", err).WithContext("building", name)
		}

		number, b, err := loader.LoadBuilding(ctx, root, name)
		if err != nil {
			return nferrors.Wrap(err, nferrors.CodeSourceLoad, "load building").
				WithContext("building", name).
				WithContext("path", root)
		}
		ds.Buildings[number] = b
		ds.log.Debug("loaded building", "building", number, "name", name)
	}
	return nil
}

// checkpoint reports cancellation between buildings.
func checkpoint(ctx context.Context, operation string, building int) error {
	if err := ctx.Err(); err != nil {
		return nferrors.Canceled(operation, err).WithContext("building", building)
	}
	return nil
}

func (ds *DataSet) report(building, done, total int) {
	ds.log.Info("writing building", "building", building, "progress", done+1, "total", total)
	if ds.progress != nil {
		ds.progress(building, done, total)
	}
}
