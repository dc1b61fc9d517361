package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/log"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, ":8440", cfg.ListenAddr)
	assert.Equal(t, log.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 256, cfg.EmbeddingDim)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burrow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"data_dir: /var/lib/burrow\nlisten_addr: :9000\nlog_level: debug\nembedding_dim: 128\nseal_records: 512\n",
	), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/burrow", cfg.DataDir)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, log.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 128, cfg.EmbeddingDim)
	assert.Equal(t, 512, cfg.SealRecords)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/legacy")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/legacy", cfg.DataDir)

	t.Setenv("BURROW_DATA_DIR", "/preferred")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "/preferred", cfg.DataDir)
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding_dim: -1\n"), 0600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
