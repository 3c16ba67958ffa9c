package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netprobe.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_lines": 50, "profile": "bench.lua"}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.LogLines)
	assert.Equal(t, "bench.lua", cfg.Profile)
	assert.Equal(t, "logs", cfg.LogsDir)
	assert.Equal(t, "recent", cfg.RecentDir)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().LogLines, cfg.LogLines)
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NETPROBE_LOGS_DIR", "/tmp/netprobe-logs")
	t.Setenv("NETPROBE_LOG_LINES", "25")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/netprobe-logs", cfg.LogsDir)
	assert.Equal(t, 25, cfg.LogLines)
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("NETPROBE_SUITES_DIR", "")
	os.Unsetenv("NETPROBE_SUITES_DIR")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("NETPROBE_SUITES_DIR=suites\n"), 0600))
	t.Setenv("NETPROBE_ENV", path)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "suites", cfg.SuitesDir)
}

func TestLoadMissingEnvFile(t *testing.T) {
	t.Setenv("NETPROBE_ENV", filepath.Join(t.TempDir(), "absent.env"))

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
