package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  addr: ":9090"
  rate_limit_per_sec: 5
storage:
  backend: mongo
  mongo_uri: mongodb://localhost:27017
logging:
  level: debug
  format: text
audit:
  file: /tmp/audit.jsonl
  max_entries: 500
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Server.RateLimitPerSec)
	assert.Equal(t, "mongo", cfg.Storage.Backend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.MongoURI)
	assert.Equal(t, "swapam", cfg.Storage.MongoDB)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "/tmp/audit.jsonl", cfg.Audit.File)
	assert.Equal(t, 500, cfg.Audit.Max)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o600))

	t.Setenv("SWAPAM_ADDR", ":7070")
	t.Setenv("SWAPAM_STORAGE_BACKEND", " Postgres ")
	t.Setenv("SWAPAM_POSTGRES_DSN", "postgres://localhost/swapam?sslmode=disable")
	t.Setenv("SWAPAM_CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("SWAPAM_RATE_LIMIT", "25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 25, cfg.Server.RateLimitPerSec)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "storage:\n  backend: redis\n"},
		{"mongo without uri", "storage:\n  backend: mongo\n"},
		{"postgres without dsn", "storage:\n  backend: postgres\n"},
		{"zero rate limit", "server:\n  rate_limit_per_sec: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
