package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Embeddings.BaseURL)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Tracing.Endpoint)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8181
logging:
  level: debug
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
postgres:
  dsn: postgres://analyzer@db:5432/airqoon
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, "postgres://analyzer@db:5432/airqoon", cfg.Postgres.DSN)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8181\n"), 0o600))

	t.Setenv("AIRQOON_SERVER_PORT", "8282")
	t.Setenv("AIRQOON_EMBEDDINGS_BASE_URL", "http://tei:80")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8282, cfg.Server.Port)
	assert.Equal(t, "http://tei:80", cfg.Embeddings.BaseURL)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_InvalidProvider(t *testing.T) {
	t.Setenv("AIRQOON_VECTORSTORE_PROVIDER", "pinecone")
	_, err := Load("")
	assert.ErrorContains(t, err, "provider")
}
