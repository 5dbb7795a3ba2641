// Package csvtree reads a CSV export tree back into buildings. Its Loader
// satisfies dataset.Loader.
package csvtree

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nilmflow/nilmflow/pkg/building"
	"github.com/nilmflow/nilmflow/pkg/csvcodec"
	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// Loader walks building_<N> directories under a root.
type Loader struct {
	// Workers bounds how many series files of one building are parsed at
	// once. Values below 1 mean one.
	Workers int
}

// New returns a CSV tree loader parsing up to GOMAXPROCS files at once.
func New() *Loader {
	return &Loader{Workers: runtime.GOMAXPROCS(0)}
}

// BuildingNames returns the building directories under root in numeric
// order. Entries that are not building_<N> directories are ignored.
func (l *Loader) BuildingNames(ctx context.Context, root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nferrors.NotFound("directory", root)
		}
		return nil, nferrors.IO(err, "list directory", root)
	}

	type named struct {
		name   string
		number int
	}
	var found []named
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, ok := csvcodec.ParseBuildingDir(e.Name()); ok {
			found = append(found, named{e.Name(), n})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].number < found[j].number })

	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}
	return names, nil
}

// LoadBuilding reads every series file of one building directory.
// Missing category directories are treated as empty.
func (l *Loader) LoadBuilding(ctx context.Context, root, name string) (int, *building.Building, error) {
	number, ok := csvcodec.ParseBuildingDir(name)
	if !ok {
		return 0, nil, nferrors.MalformedKey(name, "building directories are named building_<N>")
	}

	files, err := l.seriesFiles(ctx, root, number)
	if err != nil {
		return 0, nil, err
	}

	tables := make([]*electric.Table, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(l.Workers, 1))
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nferrors.Canceled("load building", err)
			}
			t, err := csvcodec.ReadFile(f.path)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	b := building.New()
	for i, f := range files {
		b.Electric().Set(f.series, tables[i])
	}
	return number, b, nil
}

type seriesFile struct {
	series electric.Series
	path   string
}

// seriesFiles lists the .csv files of a building in category order.
func (l *Loader) seriesFiles(ctx context.Context, root string, number int) ([]seriesFile, error) {
	var files []seriesFile
	for _, c := range electric.Categories {
		if err := ctx.Err(); err != nil {
			return nil, nferrors.Canceled("load building", err)
		}

		dir := csvcodec.Dir(root, number, c)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, nferrors.IO(err, "list directory", dir)
		}

		for _, e := range entries {
			if e.IsDir() {
				return nil, nferrors.MalformedKey(filepath.Join(dir, e.Name()), "series directories hold only files")
			}
			if !strings.HasSuffix(e.Name(), ".csv") {
				continue
			}
			series, err := csvcodec.ParseFileName(c, e.Name())
			if err != nil {
				return nil, err
			}
			files = append(files, seriesFile{series, filepath.Join(dir, e.Name())})
		}
	}
	return files, nil
}
