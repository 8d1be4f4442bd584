package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api", cfg.APIBaseURL)
	assert.Equal(t, "http://localhost:8080", cfg.AssetBaseURL)
	assert.Equal(t, "/v2/proxy-image", cfg.ProxyPath)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, "created_at", cfg.SortBy)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, "./badger_data", cfg.BadgerDBPath)
	assert.Equal(t, 8, cfg.DownloadConcurrency)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.ErrorIs(t, cfg.RequireBotToken(), ErrMissingBotToken)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := "API_BASE_URL: http://api.test/api/\nPAGE_SIZE: 50\nSORT_BY: likes\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	t.Setenv("PAGE_SIZE", "10")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("TELEGRAM_BOT_TOKEN", "secret")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://api.test/api", cfg.APIBaseURL, "trailing slash is trimmed")
	assert.Equal(t, 10, cfg.PageSize, "env overrides file")
	assert.Equal(t, "likes", cfg.SortBy)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.NoError(t, cfg.RequireBotToken())
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("SORT_BY", "random")
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("PAGE_SIZE: [unclosed"), 0o600))
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}
