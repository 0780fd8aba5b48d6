package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		path := writeConfig(t, `
database:
  type: sqlite
  dsn: data/puzzle_data.db
access:
  local_networks:
    - 127.0.0.1
    - "^192\\.168\\.\\d+\\.\\d+$"
categories:
  form: [riddle, joke]
port: 8080
debug: true
session:
  secret: s3cret
`)
		cfg, warning, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Empty(t, warning)
		assert.Equal(t, "sqlite", cfg.Database.Type)
		assert.Equal(t, 8080, cfg.Port)
		assert.True(t, cfg.Debug)
		assert.Equal(t, []string{"127.0.0.1", `^192\.168\.\d+\.\d+$`}, cfg.Access.LocalNetworks)
		assert.Equal(t, []string{"riddle", "joke"}, cfg.Categories.Form)
		assert.Equal(t, []string{"riddle", "joke", "idiom", "brain_teaser"}, cfg.Categories.API)
	})

	t.Run("defaults", func(t *testing.T) {
		path := writeConfig(t, "database:\n  type: sqlite\n  dsn: test.db\n")
		cfg, warning, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Contains(t, warning, "session.secret")
		assert.Equal(t, 5000, cfg.Port)
		assert.Equal(t, []string{"127.0.0.1", "::1"}, cfg.Access.LocalNetworks)
		assert.Equal(t, "答案：", cfg.Categories.Labels["riddle"])
		assert.Equal(t, "含义：", cfg.Categories.Labels["idiom"])
		assert.Equal(t, "deepseek-chat", cfg.LLM.DefaultModel)
		require.NotNil(t, cfg.LLM.DefaultParams.Temperature)
		assert.Equal(t, 0.7, *cfg.LLM.DefaultParams.Temperature)
		require.NotNil(t, cfg.LLM.DefaultParams.TopP)
		assert.Equal(t, 0.9, *cfg.LLM.DefaultParams.TopP)
		assert.Equal(t, 1000, cfg.LLM.DefaultParams.MaxTokens)
		assert.True(t, cfg.LLMEnabled())
	})

	t.Run("zero sampling params are kept", func(t *testing.T) {
		path := writeConfig(t, "database:\n  type: sqlite\n  dsn: test.db\nllm:\n  default_params:\n    temperature: 0\n    top_p: 0\n")
		cfg, _, err := LoadConfig(path)
		require.NoError(t, err)
		require.NotNil(t, cfg.LLM.DefaultParams.Temperature)
		assert.Zero(t, *cfg.LLM.DefaultParams.Temperature)
		require.NotNil(t, cfg.LLM.DefaultParams.TopP)
		assert.Zero(t, *cfg.LLM.DefaultParams.TopP)
		assert.Equal(t, 1000, cfg.LLM.DefaultParams.MaxTokens)
	})

	t.Run("llm can be disabled", func(t *testing.T) {
		path := writeConfig(t, "database:\n  type: sqlite\n  dsn: test.db\nllm:\n  enabled: false\n")
		cfg, _, err := LoadConfig(path)
		require.NoError(t, err)
		assert.False(t, cfg.LLMEnabled())
	})

	t.Run("missing database", func(t *testing.T) {
		path := writeConfig(t, "port: 8080\n")
		_, _, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "port: 8080\n  debug: true")
		_, _, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("non-existent file falls back to env", func(t *testing.T) {
		t.Setenv("PUZZLEBOX_DATABASE_TYPE", "sqlite")
		t.Setenv("PUZZLEBOX_DATABASE_DSN", "env.db")
		cfg, _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "env.db", cfg.Database.DSN)
	})
}

func TestConfigPriority(t *testing.T) {
	path := writeConfig(t, `
port: 8000
debug: false
database:
  type: file-db
  dsn: file-dsn
llm:
  api_keys:
    deepseek: file-deepseek
`)
	t.Setenv("PUZZLEBOX_PORT", "9000")
	t.Setenv("PUZZLEBOX_DEBUG", "true")
	t.Setenv("PUZZLEBOX_DATABASE_TYPE", "env-db")
	t.Setenv("PUZZLEBOX_DATABASE_DSN", "env-dsn")
	t.Setenv("PUZZLEBOX_LOCAL_NETWORKS", "10.0.0.0/8, 127.0.0.1")
	t.Setenv("DEEPSEEK_API_KEY", "env-deepseek")
	t.Setenv("QIANWEN_API_KEY", "env-qianwen")

	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "env-db", cfg.Database.Type)
	assert.Equal(t, "env-dsn", cfg.Database.DSN)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Access.LocalNetworks)
	// Provider keys from the file win over the environment.
	assert.Equal(t, "file-deepseek", cfg.LLM.APIKeys["deepseek"])
	assert.Equal(t, "env-qianwen", cfg.LLM.APIKeys["qianwen"])
}
