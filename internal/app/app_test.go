package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"labtree/internal/config"
	"labtree/internal/services"
)

func TestRunReturnsNilOnHelp(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.NoError(t, Run([]string{"--help"}))
}

func TestRunReportsBadFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.Error(t, Run([]string{"--nope"}))
}

func TestResolveCacheDirPrefersConfigured(t *testing.T) {
	assert.Equal(t, "/var/cache/labtree", resolveCacheDir("/var/cache/labtree"))
	assert.NotEmpty(t, resolveCacheDir(""))
}

func TestNewRemoteInDemoModeIsOffline(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Demo = true
	remote := newRemote(cfg, nil, nil)
	_, ok := remote.(*services.MockRemote)
	assert.True(t, ok)

	cfg.Demo = false
	_, ok = newRemote(cfg, zap.NewNop(), nil).(*services.GitLabClient)
	assert.True(t, ok)
}
