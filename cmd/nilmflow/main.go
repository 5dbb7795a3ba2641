// nilmflow - building electricity dataset converter.
// Moves metering datasets between the columnar store, a per-series CSV
// tree and XLSX workbooks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nilmflow/nilmflow/internal/logging"
	"github.com/nilmflow/nilmflow/pkg/config"
	"github.com/nilmflow/nilmflow/pkg/dataset"
	"github.com/nilmflow/nilmflow/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	inputDir         string
	outputDir        string
	fromCSV          bool
	compressionFlag  string
	compressionLevel int
	batchSize        int
	logLevel         string
	logFormat        string
	verbose          bool
	noProgress       bool
	configFile       string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		tui.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nilmflow",
	Short: "nilmflow - convert building electricity datasets",
	Long: `nilmflow converts building-level electricity metering datasets between a
compressed columnar store (dataset.zip + metadata.json), a per-series CSV tree
and XLSX workbooks.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var exportCSVCmd = &cobra.Command{
	Use:   "export-csv",
	Short: "Export a columnar store to a CSV tree",
	Long: `Read the columnar store in the input directory and write one CSV file per
series under the output directory.

Examples:
  nilmflow export-csv -i data/redd -o data/redd-csv`,
	RunE: runExportCSV,
}

var importCSVCmd = &cobra.Command{
	Use:   "import-csv",
	Short: "Import a CSV tree into a columnar store",
	Long: `Read a CSV tree written by export-csv and write the columnar store.
Circuits are not carried by the store and are skipped with a warning.

Examples:
  nilmflow import-csv -i data/redd-csv -o data/redd`,
	RunE: runImportCSV,
}

var exportXLSXCmd = &cobra.Command{
	Use:   "export-xlsx",
	Short: "Export a dataset to one XLSX workbook per building",
	RunE:  runExportXLSX,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display a summary of a dataset",
	RunE:  runInfo,
}

var jsonCmd = &cobra.Command{
	Use:   "json",
	Short: "Print the JSON representation of a dataset",
	RunE:  runJSON,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Round-trip a dataset through the store and CSV formats",
	RunE:  runVerify,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialise configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to the user config file",
	RunE:  runConfigInit,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (tint, text, json)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (replaces the default search path)")

	// Conversion commands
	for _, cmd := range []*cobra.Command{exportCSVCmd, importCSVCmd, exportXLSXCmd} {
		cmd.Flags().StringVarP(&inputDir, "input", "i", "", "Input dataset directory (required)")
		cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (required)")
		cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
		cmd.MarkFlagRequired("input")
		cmd.MarkFlagRequired("output")
	}
	for _, cmd := range []*cobra.Command{importCSVCmd, verifyCmd} {
		cmd.Flags().StringVar(&compressionFlag, "compression", "", "Parquet compression (none, snappy, gzip, zstd, lz4)")
		cmd.Flags().IntVar(&compressionLevel, "compression-level", 0, "Compression level for gzip and zstd")
		cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows per record batch")
	}
	exportXLSXCmd.Flags().BoolVar(&fromCSV, "csv", false, "Read the input as a CSV tree")

	// Inspection commands
	for _, cmd := range []*cobra.Command{infoCmd, jsonCmd, verifyCmd} {
		cmd.Flags().StringVarP(&inputDir, "input", "i", "", "Input dataset directory (required)")
		cmd.Flags().BoolVar(&fromCSV, "csv", false, "Read the input as a CSV tree")
		cmd.MarkFlagRequired("input")
	}

	// Add commands
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(exportCSVCmd)
	rootCmd.AddCommand(importCSVCmd)
	rootCmd.AddCommand(exportXLSXCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(jsonCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig layers config files, env and the command's flags.
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	var m *config.Manager
	if configFile != "" {
		m = config.NewManager(configFile)
		if err := m.Load(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if m, err = config.Global(); err != nil {
			return nil, err
		}
	}

	cfg := m.Get()
	flags := cmd.Flags()
	if flags.Changed("compression") {
		cfg.Store.Compression = compressionFlag
	}
	if flags.Changed("compression-level") {
		cfg.Store.CompressionLevel = compressionLevel
	}
	if flags.Changed("batch-size") {
		cfg.Store.BatchSize = batchSize
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return m, cfg.Validate()
}

// setup loads configuration and builds the logger and an empty dataset.
func setup(cmd *cobra.Command, progress dataset.ProgressFunc) (*config.Config, *slog.Logger, *dataset.DataSet, error) {
	m, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg := m.Get()

	log, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Debug("configuration loaded", "paths", m.GetPaths(), "compression", cfg.Store.Compression)

	opts := []dataset.Option{
		dataset.WithLogger(log),
		dataset.WithStoreOptions(cfg.StoreOptions()),
	}
	if progress != nil {
		opts = append(opts, dataset.WithProgress(progress))
	}
	return cfg, log, dataset.New(opts...), nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
