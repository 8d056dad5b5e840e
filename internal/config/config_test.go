package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: https://git.example.org
timeout: 45s
pageSize: 500
theme: LIGHT
demo: true
`), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "https://git.example.org", cfg.Host)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, "light", cfg.Theme)
	assert.True(t, cfg.Demo)
	assert.Equal(t, "main", cfg.Ref)
}

func TestLoadFromRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: [unterminated"), 0o600))
	cfg, err := LoadFrom(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Host = "https://gitlab.internal"
	cfg.LastSearch = "terraform"
	cfg.Refresh = true
	require.NoError(t, SaveTo(path, cfg))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	cfg.Refresh = false
	assert.Equal(t, cfg, loaded)
}

func TestParseFlagsOverlaysBase(t *testing.T) {
	t.Setenv("GITLAB_HOST", "")
	base := DefaultConfig()
	base.LogFile = "/tmp/labtree.log"

	cfg, err := ParseFlags(base, []string{"--host", "gitlab.example.com", "--timeout", "5s", "--refresh", "--theme", "light"}, io.Discard, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "gitlab.example.com", cfg.Host)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.True(t, cfg.Refresh)
	assert.Equal(t, "light", cfg.Theme)
	assert.Equal(t, "/tmp/labtree.log", cfg.LogFile)
	assert.Equal(t, "main", cfg.Ref)
}

func TestParseFlagsReadsHostFromEnv(t *testing.T) {
	t.Setenv("GITLAB_HOST", "https://env.example.com")
	cfg, err := ParseFlags(DefaultConfig(), nil, io.Discard, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Host)
}

func TestParseFlagsRejectsUnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	_, err := ParseFlags(DefaultConfig(), []string{"--bogus"}, &stdout, &stderr)
	assert.Error(t, err)
	assert.Contains(t, stderr.String(), "Usage")
	assert.Empty(t, stdout.String())
}

func TestParseFlagsPrintsHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	_, err := ParseFlags(DefaultConfig(), []string{"--help"}, &stdout, &stderr)
	require.ErrorIs(t, err, arg.ErrHelp)
	assert.Contains(t, stdout.String(), "--metrics-addr")
	assert.Empty(t, stderr.String())
}
