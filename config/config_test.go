package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/prompt"
	"github.com/poiesic/ragchat/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, BackendBadger, cfg.Store.Backend)
	assert.Equal(t, "default", cfg.Store.Namespace)
	assert.Equal(t, 500, cfg.Ingest.ChunkSize)
	assert.Equal(t, 100, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, prompt.Default, cfg.Answer.Template)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragchat.yaml")
	writeFile(t, path, `
ai:
  provider: ollama
  llm_model: llama3
store:
  namespace: manuals
ingest:
  chunk_size: 200
  chunk_overlap: 20
  retry_delay: 250ms
answer:
  template: concise
  k: 4
  mode: multi
  generation_timeout: 45s
server:
  addr: 127.0.0.1:9000
  allowed_origins: ["http://localhost:3000"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.AI.Provider)
	assert.Equal(t, "llama3", cfg.AI.LLMModel)
	assert.Equal(t, "embeddinggemma", cfg.AI.EmbeddingModel)
	assert.Equal(t, "manuals", cfg.Store.Namespace)
	assert.Equal(t, 200, cfg.Ingest.ChunkSize)
	assert.Equal(t, 20, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 250*time.Millisecond, cfg.Ingest.RetryDelay)
	assert.Equal(t, 45*time.Second, cfg.Answer.GenerationTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)

	params, err := cfg.SearchParams()
	require.NoError(t, err)
	assert.Equal(t, search.Params{K: 4, Mode: search.MultiQuery}, params)

	aiCfg, err := cfg.AIConfig()
	require.NoError(t, err)
	assert.Equal(t, ai.ProviderOllama, aiCfg.Provider)
	assert.Equal(t, "http://localhost:11434", aiCfg.EmbeddingHost)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "ai: [unterminated"},
		{"overlap not below size", "ingest:\n  chunk_size: 10\n  chunk_overlap: 10\n"},
		{"unknown template", "answer:\n  template: v7\n"},
		{"unknown mode", "answer:\n  mode: hybrid\n"},
		{"unknown backend", "store:\n  backend: chroma\n"},
		{"unknown pdf backend", "ingest:\n  pdf_backend: ocr\n"},
		{"bad namespace", "store:\n  namespace: a/b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ragchat.yaml")
			writeFile(t, path, tt.content)
			_, err := Load(path)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "MY_KEY=sk-from-env-file\nPG=postgres://u@h/db\n")
	path := filepath.Join(dir, "ragchat.yaml")
	writeFile(t, path, "env_file: .env\nai:\n  api_key_env: MY_KEY\nstore:\n  dsn_env: PG\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env-file", cfg.APIKey())
	assert.Equal(t, "postgres://u@h/db", cfg.PostgresDSN())
	_, set := os.LookupEnv("MY_KEY")
	assert.False(t, set, "env file must not leak into the process environment")

	aiCfg, err := cfg.AIConfig()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env-file", aiCfg.APIKey)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragchat.yaml")
	writeFile(t, path, "env_file: nope.env\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestAPIKey_ProcessEnvironment(t *testing.T) {
	t.Setenv(DefaultAPIKeyEnv, "")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg := Default()
	assert.Equal(t, "sk-openai", cfg.APIKey())

	t.Setenv(DefaultAPIKeyEnv, "sk-ragchat")
	assert.Equal(t, "sk-ragchat", cfg.APIKey())
}

func TestPostgresDSN_PrefersFile(t *testing.T) {
	t.Setenv("RAGCHAT_POSTGRES_DSN", "postgres://env")
	cfg := Default()
	assert.Equal(t, "postgres://env", cfg.PostgresDSN())

	cfg.Store.PostgresDSN = "postgres://file"
	assert.Equal(t, "postgres://file", cfg.PostgresDSN())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ragchat.yaml")
	cfg := Default()
	cfg.Store.Namespace = "saved"
	cfg.Answer.Mode = "multi"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.IndexOptions(), 3)
	assert.Len(t, cfg.LoaderOptions(), 1)

	cfg.Ingest.PoolSize = 2
	assert.Len(t, cfg.LoaderOptions(), 2)
}
