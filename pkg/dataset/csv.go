package dataset

import (
	"context"
	"os"
	"path/filepath"

	"github.com/nilmflow/nilmflow/pkg/csvcodec"
	"github.com/nilmflow/nilmflow/pkg/csvtree"
	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
	"github.com/nilmflow/nilmflow/pkg/metadata"
	"github.com/nilmflow/nilmflow/pkg/spreadsheet"
)

// ExportCSV writes the metadata sidecar and one CSV file per series under
// dir. Mains, appliances and circuits are all written. A series whose
// table has no columns fails with an EmptyTable error; a file that fails
// partway is left as written.
func (ds *DataSet) ExportCSV(ctx context.Context, dir string) error {
	if err := metadata.Write(dir, ds.Metadata); err != nil {
		return err
	}

	numbers := ds.BuildingNumbers()
	for i, n := range numbers {
		if err := checkpoint(ctx, "export csv", n); err != nil {
			return err
		}
		ds.report(n, i, len(numbers))

		e := ds.Buildings[n].Electric()
		for _, c := range electric.Categories {
			for _, entry := range e.Entries(c) {
				if entry.Table == nil || len(entry.Table.Columns) == 0 {
					return annotate(nferrors.New(nferrors.CodeEmptyTable, "table has no columns"), n, entry.Series)
				}
				if err := entry.Series.Validate(); err != nil {
					return annotate(err, n, entry.Series)
				}
				if err := csvcodec.WriteFile(csvcodec.Path(dir, n, entry.Series), entry.Table); err != nil {
					return annotate(err, n, entry.Series)
				}
			}
		}
	}
	return nil
}

// LoadCSV reads a CSV tree written by ExportCSV. Buildings are added to
// the dataset as they load; metadata is replaced when a sidecar exists.
func (ds *DataSet) LoadCSV(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nferrors.NotFound("directory", dir)
	}

	md, found, err := metadata.Read(dir)
	if err != nil {
		return err
	}
	if found {
		ds.Metadata = md
	}
	return ds.Load(ctx, dir, csvtree.New())
}

// ExportXLSX writes the metadata sidecar and one workbook per building
// into dir.
func (ds *DataSet) ExportXLSX(ctx context.Context, dir string) error {
	if err := metadata.Write(dir, ds.Metadata); err != nil {
		return err
	}

	numbers := ds.BuildingNumbers()
	for i, n := range numbers {
		if err := checkpoint(ctx, "export xlsx", n); err != nil {
			return err
		}
		ds.report(n, i, len(numbers))

		path := filepath.Join(dir, spreadsheet.FileName(n))
		if err := spreadsheet.WriteBuilding(path, ds.Buildings[n]); err != nil {
			code := nferrors.GetCode(err)
			if code == nferrors.CodeUnknown {
				code = nferrors.CodeIO
			}
			return nferrors.Wrap(err, code, "write workbook").WithContext("building", n)
		}
	}
	return nil
}
