package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvstore.yaml")
	yaml := `
server:
  host: 0.0.0.0
  port: 7000
memory:
  max_memory_keys: 10
storage:
  enable_default_expiry: true
  default_expiry_seconds: 60
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Memory.MaxMemoryKeys)
	assert.True(t, cfg.Storage.EnableDefaultExpiry)
	assert.Equal(t, int64(60), cfg.Storage.DefaultExpirySeconds)
	assert.Equal(t, PersistenceOnChange, cfg.Persistence.Mode)
}
