// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
	"github.com/nilmflow/nilmflow/pkg/store"
)

// Config holds all nilmflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig controls the columnar store encoding.
type StoreConfig struct {
	Compression      string `yaml:"compression"`       // gzip | zstd | snappy | lz4 | none
	CompressionLevel int    `yaml:"compression_level"` // gzip and zstd only
	BatchSize        int    `yaml:"batch_size"`        // rows per record batch
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // tint | text | json
}

// Default returns the default configuration.
func Default() *Config {
	opts := store.DefaultOptions()
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Compression:      opts.Compression.String(),
			CompressionLevel: opts.CompressionLevel,
			BatchSize:        opts.BatchSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "tint",
		},
	}
}

// StoreOptions converts the store section into codec options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Compression:      store.ParseCompression(strings.ToLower(c.Store.Compression)),
		CompressionLevel: c.Store.CompressionLevel,
		BatchSize:        c.Store.BatchSize,
	}
}

// Validate rejects settings the store or logger cannot honour.
func (c *Config) Validate() error {
	compression := strings.ToLower(c.Store.Compression)
	if compression != "zlib" && store.ParseCompression(compression).String() != compression {
		return nferrors.Newf(nferrors.CodeConfiguration, "unknown compression %q", c.Store.Compression)
	}
	if err := c.StoreOptions().Validate(); err != nil {
		return err
	}
	if c.Store.BatchSize <= 0 {
		return nferrors.Newf(nferrors.CodeConfiguration, "batch size must be positive, got %d", c.Store.BatchSize)
	}
	switch c.Logging.Format {
	case "tint", "text", "json":
	default:
		return nferrors.Newf(nferrors.CodeConfiguration, "unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	search []string // Candidate files, lowest priority first
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager. Without explicit paths
// the system, user and project files are searched.
func NewManager(paths ...string) *Manager {
	if len(paths) == 0 {
		paths = defaultPaths()
	}
	return &Manager{
		config: Default(),
		search: paths,
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()
	m.paths = nil

	// Load from paths in order (later overrides earlier)
	for _, path := range m.search {
		if err := m.loadFile(path); err != nil {
			// Missing files are expected; broken ones are not
			if os.IsNotExist(err) {
				continue
			}
			return nferrors.Configuration(err, path)
		}
		m.paths = append(m.paths, path)
	}

	// Override with environment variables
	if err := m.loadEnv(); err != nil {
		return err
	}
	return m.config.Validate()
}

// defaultPaths returns config file paths in priority order.
func defaultPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/nilmflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".nilmflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".nilmflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	// Merge non-zero values
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Version != 0 {
		m.config.Version = src.Version
	}

	// Store
	if src.Store.Compression != "" {
		m.config.Store.Compression = src.Store.Compression
	}
	if src.Store.CompressionLevel != 0 {
		m.config.Store.CompressionLevel = src.Store.CompressionLevel
	}
	if src.Store.BatchSize != 0 {
		m.config.Store.BatchSize = src.Store.BatchSize
	}

	// Logging
	if src.Logging.Level != "" {
		m.config.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		m.config.Logging.Format = src.Logging.Format
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() error {
	// NILMFLOW_COMPRESSION
	if v := os.Getenv("NILMFLOW_COMPRESSION"); v != "" {
		m.config.Store.Compression = strings.ToLower(v)
	}

	// NILMFLOW_COMPRESSION_LEVEL
	if v := os.Getenv("NILMFLOW_COMPRESSION_LEVEL"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return nferrors.Wrap(err, nferrors.CodeConfiguration, "invalid compression level").
				WithContext("env", "NILMFLOW_COMPRESSION_LEVEL")
		}
		m.config.Store.CompressionLevel = level
	}

	// NILMFLOW_LOG_LEVEL
	if v := os.Getenv("NILMFLOW_LOG_LEVEL"); v != "" {
		m.config.Logging.Level = v
	}

	// NILMFLOW_LOG_FORMAT
	if v := os.Getenv("NILMFLOW_LOG_FORMAT"); v != "" {
		m.config.Logging.Format = v
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nferrors.IO(err, "create directory", filepath.Dir(path))
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return nferrors.Wrap(err, nferrors.CodeConfiguration, "encode config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nferrors.IO(err, "write config", path)
	}
	return nil
}

// UserPath returns the user config file location.
func UserPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nilmflow", "config.yaml"), nil
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
	globalErr     error
)

// Global returns the global configuration manager, loaded once.
func Global() (*Manager, error) {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalErr = globalManager.Load()
	})
	return globalManager, globalErr
}
