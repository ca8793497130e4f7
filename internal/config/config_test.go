package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvGeminiAPIKey, EnvNanoBananaKey, EnvStorageDSN, EnvServerAddress} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, defaultGeminiBaseURL, cfg.Gemini.BaseURL)
	assert.Equal(t, "gemini-3-flash-preview", cfg.Gemini.Model)
	assert.Equal(t, "gemini-3.1-flash-image-preview", cfg.NanoBanana.Model)
	assert.Equal(t, 6, cfg.Gemini.MaxIterations)
	assert.Equal(t, 60*time.Second, cfg.Gemini.Timeout())
	assert.Equal(t, 70*time.Second, cfg.Illustration.Timeout())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Jobs.Queue)
	assert.Equal(t, "memory", cfg.Jobs.Store)
	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.Equal(t, 3, cfg.Jobs.MaxRetries)
	assert.Empty(t, cfg.Gemini.APIKey)
}

func TestLoadShippedYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join("..", "..", "configs", "taxadvisor.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, filepath.Join("..", "..", "configs", "seed.yaml"), cfg.Storage.SeedFile)
	assert.Equal(t, "127.0.0.1:6379", cfg.Jobs.Redis.Address)
	assert.True(t, cfg.Jobs.RabbitMQ.Durable)
	assert.True(t, cfg.MCP.Enabled)
}

func TestLoadShippedTOML(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("..", "..", "configs", "taxadvisor.toml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "redis", cfg.Jobs.Queue)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.False(t, cfg.MCP.Enabled)
}

func TestLoadJSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cfg.json", `{"gemini":{"model":"custom","max_iterations":3},"server":{"address":":9000"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Gemini.Model)
	assert.Equal(t, 3, cfg.Gemini.MaxIterations)
	assert.Equal(t, ":9000", cfg.Server.Address)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvGeminiAPIKey, "text-key")
	t.Setenv(EnvNanoBananaKey, "image-key")
	t.Setenv(EnvServerAddress, ":7000")
	t.Setenv(EnvStorageDSN, "file:env.db")

	path := writeFile(t, "cfg.yaml", "gemini:\n  api_key: file-key\nstorage:\n  driver: sqlite\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "text-key", cfg.Gemini.APIKey)
	assert.Equal(t, "image-key", cfg.NanoBanana.APIKey)
	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, "file:env.db", cfg.Storage.DSN)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"unknown driver":     "storage:\n  driver: postgres\n",
		"sql without dsn":    "storage:\n  driver: mysql\n",
		"unknown queue":      "jobs:\n  queue: kafka\n",
		"redis without addr": "jobs:\n  queue: redis\n",
		"rabbit without url": "jobs:\n  queue: rabbitmq\n",
		"unknown store":      "jobs:\n  store: etcd\n",
		"broken yaml":        "server: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "cfg.yaml", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "cfg.ini", "x=1"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
