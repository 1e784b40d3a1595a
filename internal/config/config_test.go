package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.toml"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 10*time.Minute, cfg.ResultTTL())
	assert.Equal(t, "root:@tcp(127.0.0.1:3306)/gopherai_docqa?parseTime=true&loc=Local&charset=utf8mb4", cfg.MySQLDSN())
}

func TestLoadLayering(t *testing.T) {
	dir := isolate(t)

	tomlPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[app]
port = 9090

[embedding]
provider = "ollama"
model = "nomic-embed-text"
dimension = 768

[retrieval]
top_k = 8
min_similarity = 0.2
`), 0o600))
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("RERANK_ENABLED=true\nRERANK_BASE_URL=http://rerank:8000\n"), 0o600))

	t.Setenv("CONFIG_FILE", tomlPath)
	t.Setenv("ENV_FILE", envPath)
	t.Setenv("RETRIEVAL_TOP_K", "12")
	t.Setenv("RETRIEVAL_MIN_SIMILARITY", "0.35")
	t.Setenv("APP_PORT", "not-a-number")
	t.Cleanup(func() {
		os.Unsetenv("RERANK_ENABLED")
		os.Unsetenv("RERANK_BASE_URL")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.Equal(t, 0.35, cfg.Retrieval.MinSimilarity)
	assert.True(t, cfg.Rerank.Enabled)
	assert.Equal(t, "http://rerank:8000", cfg.Rerank.BaseURL)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	assert.Empty(t, cfg.Validate())

	cfg.Embedding.Provider = "cohere"
	cfg.Rerank.Enabled = true
	cfg.Retrieval.TopK = 0
	cfg.Ingest.ChunkOverlap = cfg.Ingest.ChunkSize

	var fields []string
	for _, e := range cfg.Validate() {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"embedding.provider", "rerank.base_url", "retrieval.top_k", "ingest.chunk_overlap"}, fields)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("EMBEDDING_PROVIDER", "cohere")

	_, err := Load()
	assert.ErrorContains(t, err, "embedding.provider")
}
