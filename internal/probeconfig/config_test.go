package probeconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ommotech/trackingsdk/internal/probeconfig"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices:\n  - siu_uuid: 1\n    port_id: 2\n"), 0o644))

	cfg, err := probeconfig.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:50051", cfg.Endpoint)
	assert.Equal(t, 500, cfg.BufferSize)
	assert.Equal(t, "1s", cfg.PollEvery)
	assert.Equal(t, "info", cfg.LogLevel)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, uint32(1), cfg.Devices[0].SIUUUID)
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint: example:1234\nbuffer_size: 64\nlog_level: debug\n"), 0o644))

	cfg, err := probeconfig.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "example:1234", cfg.Endpoint)
	assert.Equal(t, 64, cfg.BufferSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := probeconfig.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
