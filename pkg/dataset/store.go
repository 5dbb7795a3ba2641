package dataset

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/nilmflow/nilmflow/pkg/building"
	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
	"github.com/nilmflow/nilmflow/pkg/metadata"
	"github.com/nilmflow/nilmflow/pkg/store"
)

// LoadStore replaces the dataset contents with the columnar store in dir.
// Metadata comes from the sidecar when present and is empty otherwise. A
// missing store is a NotFound error. Circuit keys are skipped with a
// warning. On error the dataset is left as it was.
func (ds *DataSet) LoadStore(ctx context.Context, dir string) error {
	md, _, err := metadata.Read(dir)
	if err != nil {
		return err
	}

	r, err := store.Open(filepath.Join(dir, store.FileName), store.NewCodec(ds.opts))
	if err != nil {
		return err
	}
	defer r.Close()

	byBuilding := make(map[int][]string)
	for _, key := range r.Keys() {
		n, err := store.BuildingOf(key)
		if err != nil {
			return err
		}
		byBuilding[n] = append(byBuilding[n], key)
	}

	numbers := make([]int, 0, len(byBuilding))
	for n := range byBuilding {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	buildings := make(map[int]*building.Building, len(numbers))
	for _, n := range numbers {
		if err := checkpoint(ctx, "load store", n); err != nil {
			return err
		}
		b, err := ds.decodeBuilding(ctx, r, n, byBuilding[n])
		if err != nil {
			return err
		}
		buildings[n] = b
	}

	ds.Buildings = buildings
	ds.Metadata = md
	return nil
}

func (ds *DataSet) decodeBuilding(ctx context.Context, r *store.Reader, number int, keys []string) (*building.Building, error) {
	b := building.New()
	skipped := 0
	for _, key := range keys {
		c, ok := store.CategoryOf(key)
		if !ok {
			ds.log.Warn("skipping key outside utility/electric", "building", number, "key", key)
			continue
		}
		if c == electric.Circuits {
			skipped++
			continue
		}

		k, err := store.ParseKey(key)
		if err != nil {
			return nil, err
		}
		t, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		b.Electric().Set(k.Series, t)
	}
	if skipped > 0 {
		ds.log.Warn("circuits are not read from the columnar store", "building", number, "skipped", skipped)
	}
	return b, nil
}

// Export writes the metadata sidecar and then the columnar store into dir.
// The sidecar is written even if the store write fails, but invalid store
// options are rejected before anything is written. Only mains and
// appliances go to the store; circuits are skipped with a warning.
func (ds *DataSet) Export(ctx context.Context, dir string) error {
	if err := ds.opts.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nferrors.IO(err, "create directory", dir)
	}
	if err := metadata.Write(dir, ds.Metadata); err != nil {
		return err
	}

	w, err := store.Create(filepath.Join(dir, store.FileName), store.NewCodec(ds.opts))
	if err != nil {
		return err
	}
	defer w.Close()

	numbers := ds.BuildingNumbers()
	for i, n := range numbers {
		if err := checkpoint(ctx, "export", n); err != nil {
			return err
		}
		ds.report(n, i, len(numbers))

		e := ds.Buildings[n].Electric()
		for _, c := range []electric.Category{electric.Mains, electric.Appliances} {
			for _, entry := range e.Entries(c) {
				if entry.Table == nil || len(entry.Table.Columns) == 0 {
					return annotate(nferrors.New(nferrors.CodeEmptyTable, "table has no columns"), n, entry.Series)
				}
				if err := w.Put(store.Key{Building: n, Series: entry.Series}, entry.Table); err != nil {
					return annotate(err, n, entry.Series)
				}
			}
		}
		if skipped := e.Len(electric.Circuits); skipped > 0 {
			ds.log.Warn("circuits are not written to the columnar store", "building", n, "skipped", skipped)
		}
	}
	return w.Commit()
}

// annotate adds the building and series to an error from a codec.
func annotate(err error, building int, s electric.Series) error {
	code := nferrors.GetCode(err)
	if code == nferrors.CodeUnknown {
		code = nferrors.CodeIO
	}
	return nferrors.Wrap(err, code, "write "+s.Category.String()+" series").
		WithContext("building", building).
		WithContext("series", s.String())
}
