package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
store:
  driver: Mongo
mongo:
  uri: mongodb://mongo:27017
  database: flows
persister:
  workers: 2
  write_timeout: 3s
connectors:
  decision_flow:
    url: http://decision:9000
    path: /evaluate
    timeout: 5s
`)
	t.Setenv(ConfigFileEnv, path)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.Equal(t, "flows", cfg.Mongo.Database)
	assert.Equal(t, 2, cfg.Persister.Workers)
	assert.Equal(t, 3*time.Second, cfg.Persister.WriteTimeout)
	assert.Equal(t, 256, cfg.Persister.QueueSize, "default applies")
	require.Contains(t, cfg.Connectors, "decision_flow")
	assert.Equal(t, "/evaluate", cfg.Connectors["decision_flow"].Path)
	assert.Equal(t, 5*time.Second, cfg.Connectors["decision_flow"].Timeout)
	assert.Equal(t, path, cfg.FileUsed())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "store:\n  driver: postgres\n")
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigEnvFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "environment: prod\n")
	t.Setenv(ConfigFileEnv, path)
	envFile := writeFile(t, ".env", "DB_HOST=db.internal\nDB_PORT=6543\n")
	t.Setenv("DB_HOST", "")
	os.Unsetenv("DB_HOST")
	os.Unsetenv("DB_PORT")
	t.Cleanup(func() {
		os.Unsetenv("DB_HOST")
		os.Unsetenv("DB_PORT")
	})

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, "host=db.internal port=6543 user=postgres password= dbname=workflow sslmode=disable", cfg.PostgresDSN())
}

func TestLoadConfigMissingEnvFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
