package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
	"github.com/nilmflow/nilmflow/pkg/store"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "gzip", cfg.Store.Compression)
	assert.Equal(t, 9, cfg.Store.CompressionLevel)
	assert.Equal(t, store.DefaultOptions(), cfg.StoreOptions())
	assert.NoError(t, cfg.Validate())
}

func TestManager_LayeredFiles(t *testing.T) {
	dir := t.TempDir()
	system := writeConfig(t, dir, "system.yaml", "store:\n  compression: zstd\n  compression_level: 3\nlogging:\n  level: debug\n")
	project := writeConfig(t, dir, "project.yaml", "store:\n  compression_level: 7\n")
	missing := filepath.Join(dir, "missing.yaml")

	m := NewManager(system, missing, project)
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, "zstd", cfg.Store.Compression)
	assert.Equal(t, 7, cfg.Store.CompressionLevel)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "tint", cfg.Logging.Format)
	assert.Equal(t, []string{system, project}, m.GetPaths())
	assert.Equal(t, store.CompressionZstd, cfg.StoreOptions().Compression)
}

func TestManager_EnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "store:\n  compression: zstd\n")
	t.Setenv("NILMFLOW_COMPRESSION", "SNAPPY")
	t.Setenv("NILMFLOW_COMPRESSION_LEVEL", "2")
	t.Setenv("NILMFLOW_LOG_FORMAT", "json")

	m := NewManager(path)
	require.NoError(t, m.Load())
	assert.Equal(t, "snappy", m.Get().Store.Compression)
	assert.Equal(t, 2, m.Get().Store.CompressionLevel)
	assert.Equal(t, "json", m.Get().Logging.Format)
}

func TestManager_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"bad yaml":        "store: [",
		"bad compression": "store:\n  compression: brotli\n",
		"bad format":      "logging:\n  format: xml\n",
		"bad batch":       "store:\n  batch_size: -1\n",
		"gzip level":      "store:\n  compression: gzip\n  compression_level: 12\n",
		"zstd level":      "store:\n  compression: zstd\n  compression_level: 23\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			m := NewManager(writeConfig(t, dir, "c.yaml", body))
			err := m.Load()
			require.Error(t, err)
			assert.True(t, nferrors.IsCode(err, nferrors.CodeConfiguration))
		})
	}

	t.Run("env level out of range", func(t *testing.T) {
		t.Setenv("NILMFLOW_COMPRESSION_LEVEL", "12")
		err := NewManager(filepath.Join(dir, "none.yaml")).Load()
		assert.True(t, nferrors.IsCode(err, nferrors.CodeConfiguration))
	})

	t.Run("bad env level", func(t *testing.T) {
		t.Setenv("NILMFLOW_COMPRESSION_LEVEL", "high")
		err := NewManager(filepath.Join(dir, "none.yaml")).Load()
		assert.True(t, nferrors.IsCode(err, nferrors.CodeConfiguration))
	})
}

func TestManager_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m := NewManager(path)
	require.NoError(t, m.Load())
	m.Get().Store.Compression = "zstd"
	require.NoError(t, m.Save(path))

	reloaded := NewManager(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "zstd", reloaded.Get().Store.Compression)
	assert.Equal(t, []string{path}, reloaded.GetPaths())
}

func TestGlobal_LoadsOnce(t *testing.T) {
	m1, err1 := Global()
	m2, err2 := Global()
	require.NotNil(t, m1)
	assert.Same(t, m1, m2)
	assert.Equal(t, err1, err2)
}
