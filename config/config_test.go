package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Equal(t, "tinypos", cfg.System.Appid)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 1816, cfg.Web.Port)
	assert.Equal(t, "v1", cfg.Offline.Version)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinypos.yml")
	body := `
system:
  workdir: /tmp/tinypos-test
web:
  port: 9001
offline:
  origin: http://assets.example.test
  version: v7
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg := LoadConfig(path)
	assert.Equal(t, "/tmp/tinypos-test", cfg.System.Workdir)
	assert.Equal(t, 9001, cfg.Web.Port)
	assert.Equal(t, "http://assets.example.test", cfg.Offline.Origin)
	assert.Equal(t, "v7", cfg.Offline.Version)
	// untouched sections keep defaults
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TINYPOS_OFFLINE_VERSION", "v9")
	t.Setenv("TINYPOS_DB_TYPE", "postgres")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Equal(t, "v9", cfg.Offline.Version)
	assert.Equal(t, "postgres", cfg.Database.Type)
}

func TestDirLayout(t *testing.T) {
	cfg := *DefaultAppConfig
	cfg.System.Workdir = t.TempDir()
	require.NoError(t, cfg.InitDirs())

	for _, dir := range []string{cfg.GetDataDir(), cfg.GetLogDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
