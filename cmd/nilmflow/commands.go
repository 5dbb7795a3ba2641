package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nilmflow/nilmflow/pkg/config"
	"github.com/nilmflow/nilmflow/pkg/dataset"
	"github.com/nilmflow/nilmflow/pkg/testing/roundtrip"
	"github.com/nilmflow/nilmflow/pkg/tui"
)

// convert loads the input, runs write and prints a report.
func convert(cmd *cobra.Command, operation string, load, write func(context.Context, *dataset.DataSet, string) error) error {
	var hook dataset.ProgressFunc
	finish := func() {}
	if !noProgress {
		hook, finish = tui.Progress(os.Stderr, operation)
	}

	_, log, ds, err := setup(cmd, hook)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	if err := load(ctx, ds, inputDir); err != nil {
		return fmt.Errorf("load %s: %w", inputDir, err)
	}
	log.Debug("dataset loaded", "buildings", len(ds.Buildings), "path", inputDir)

	err = write(ctx, ds, outputDir)
	finish()
	if err != nil {
		return fmt.Errorf("%s failed: %w", operation, err)
	}

	tui.PrintReport(os.Stdout, &tui.Report{
		Operation: operation,
		Output:    outputDir,
		Buildings: len(ds.Buildings),
		Duration:  time.Since(start),
	})
	return nil
}

func loadStore(ctx context.Context, ds *dataset.DataSet, dir string) error {
	return ds.LoadStore(ctx, dir)
}

func loadCSV(ctx context.Context, ds *dataset.DataSet, dir string) error {
	return ds.LoadCSV(ctx, dir)
}

// loader picks the reader for --csv.
func loader() func(context.Context, *dataset.DataSet, string) error {
	if fromCSV {
		return loadCSV
	}
	return loadStore
}

func runExportCSV(cmd *cobra.Command, args []string) error {
	return convert(cmd, "export csv", loadStore, func(ctx context.Context, ds *dataset.DataSet, dir string) error {
		return ds.ExportCSV(ctx, dir)
	})
}

func runImportCSV(cmd *cobra.Command, args []string) error {
	return convert(cmd, "import csv", loadCSV, func(ctx context.Context, ds *dataset.DataSet, dir string) error {
		return ds.Export(ctx, dir)
	})
}

func runExportXLSX(cmd *cobra.Command, args []string) error {
	return convert(cmd, "export xlsx", loader(), func(ctx context.Context, ds *dataset.DataSet, dir string) error {
		return ds.ExportXLSX(ctx, dir)
	})
}

// open loads the input dataset for the inspection commands.
func open(cmd *cobra.Command) (*dataset.DataSet, error) {
	_, _, ds, err := setup(cmd, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := loader()(ctx, ds, inputDir); err != nil {
		return nil, fmt.Errorf("load %s: %w", inputDir, err)
	}
	return ds, nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	ds, err := open(cmd)
	if err != nil {
		return err
	}

	tui.PrintHeader(os.Stdout, version)
	fmt.Print(tui.RenderSummary(ds))
	return nil
}

func runJSON(cmd *cobra.Command, args []string) error {
	ds, err := open(cmd)
	if err != nil {
		return err
	}

	data, err := ds.ToJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	ds, err := open(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	failed := 0
	for _, f := range []roundtrip.Format{roundtrip.FormatStore, roundtrip.FormatCSV} {
		result := roundtrip.Run(ctx, ds, f)
		if result.Success {
			fmt.Printf("  ✓ %-5s %d buildings, %d series\n", f, result.Buildings, result.Series)
			continue
		}

		failed++
		if result.Error != nil {
			tui.PrintError(os.Stdout, result.Error)
		}
		for _, msg := range result.Messages {
			fmt.Printf("      %s\n", msg)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of 2 round trips failed", failed)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	m, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	for _, p := range m.GetPaths() {
		fmt.Printf("# loaded %s\n", p)
	}
	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	m, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := configFile
	if path == "" {
		if path, err = config.UserPath(); err != nil {
			return err
		}
	}
	if err := m.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
