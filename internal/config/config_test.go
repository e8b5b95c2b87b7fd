package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	require.Equal(t, "/api/v1", cfg.API.Prefix)
	require.Equal(t, 30*time.Second, cfg.API.Timeout)
	require.Equal(t, 3, cfg.Retries())
	require.Equal(t, 500*time.Millisecond, cfg.Retry.Base)
	require.Equal(t, filepath.Join("/xdg", "c3ds"), cfg.State.Dir)
	require.Equal(t, filepath.Join("/xdg", "c3ds", "session.db"), cfg.CookiePath())
	require.False(t, cfg.CSRF.Strict)
	require.False(t, cfg.Dev())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "c3ds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: development
api:
  base_url: https://c3ds.example
  timeout: 5s
csrf:
  strict: true
`), 0o600))
	t.Setenv("C3DS_API_BASE_URL", "https://override.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://override.example", cfg.API.BaseURL)
	require.Equal(t, 5*time.Second, cfg.API.Timeout)
	require.True(t, cfg.CSRF.Strict)
	require.True(t, cfg.Dev())
	require.Zero(t, cfg.Retries())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("C3DS_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("C3DS_LOG_LEVEL") })

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RejectsBadTimeout(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("C3DS_API_TIMEOUT", "0s")

	_, err := Load("")
	require.Error(t, err)
}

// chdir switches the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
