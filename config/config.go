// Package config loads the ragchat YAML configuration file.
//
// A missing file yields the defaults. Secrets are not stored in the file:
// the API key is looked up by variable name, first in the optional dotenv
// file named by env_file and then in the process environment. The process
// environment is never modified.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/chunker"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/index"
	"github.com/poiesic/ragchat/loader"
	"github.com/poiesic/ragchat/prompt"
	"github.com/poiesic/ragchat/search"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// DefaultAPIKeyEnv is the variable consulted for the API key when
// ai.api_key_env is not set. OPENAI_API_KEY is tried after it.
const DefaultAPIKeyEnv = "RAGCHAT_API_KEY"

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// AIConfig configures the embedding and generation services.
type AIConfig struct {
	Provider       string  `yaml:"provider"`
	EmbeddingHost  string  `yaml:"embedding_host"`
	LLMHost        string  `yaml:"llm_host"`
	EmbeddingModel string  `yaml:"embedding_model"`
	LLMModel       string  `yaml:"llm_model"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Temperature    float64 `yaml:"temperature"`
}

// StoreConfig selects where the index and transcripts live.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	DSNEnv      string `yaml:"dsn_env"`
	Namespace   string `yaml:"namespace"`
}

// IngestConfig configures loading, chunking and embedding.
type IngestConfig struct {
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkOverlap int           `yaml:"chunk_overlap"`
	PDFBackend   string        `yaml:"pdf_backend"`
	PoolSize     int           `yaml:"pool_size"`
	BatchSize    int           `yaml:"batch_size"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
}

// AnswerConfig configures question answering.
type AnswerConfig struct {
	Template          string        `yaml:"template"`
	K                 int           `yaml:"k"`
	Mode              string        `yaml:"mode"`
	RetrievalTimeout  time.Duration `yaml:"retrieval_timeout"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config is the root configuration structure.
type Config struct {
	AI      AIConfig     `yaml:"ai"`
	Store   StoreConfig  `yaml:"store"`
	Ingest  IngestConfig `yaml:"ingest"`
	Answer  AnswerConfig `yaml:"answer"`
	Server  ServerConfig `yaml:"server"`
	EnvFile string       `yaml:"env_file,omitempty"`

	secrets map[string]string
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	aiDefaults := ai.DefaultConfig()
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = aiDefaults.Provider
	}
	if cfg.AI.EmbeddingHost == "" {
		cfg.AI.EmbeddingHost = aiDefaults.EmbeddingHost
	}
	if cfg.AI.LLMHost == "" {
		cfg.AI.LLMHost = aiDefaults.LLMHost
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = aiDefaults.EmbeddingModel
	}
	if cfg.AI.LLMModel == "" {
		cfg.AI.LLMModel = aiDefaults.LLMModel
	}
	if cfg.AI.APIKeyEnv == "" {
		cfg.AI.APIKeyEnv = DefaultAPIKeyEnv
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendBadger
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "ragchat-data"
	}
	if cfg.Store.DSNEnv == "" {
		cfg.Store.DSNEnv = "RAGCHAT_POSTGRES_DSN"
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = "default"
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = chunker.DefaultChunkOverlap
	}
	if cfg.Ingest.PDFBackend == "" {
		cfg.Ingest.PDFBackend = loader.PDFBackendNative
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = index.DefaultBatchSize
	}
	if cfg.Ingest.MaxRetries == 0 {
		cfg.Ingest.MaxRetries = index.DefaultMaxRetries
	}
	if cfg.Ingest.RetryDelay == 0 {
		cfg.Ingest.RetryDelay = index.DefaultRetryDelay
	}
	if cfg.Ingest.CallTimeout == 0 {
		cfg.Ingest.CallTimeout = index.DefaultCallTimeout
	}

	if cfg.Answer.Template == "" {
		cfg.Answer.Template = prompt.Default
	}
	if cfg.Answer.K == 0 {
		cfg.Answer.K = search.DefaultK
	}
	if cfg.Answer.Mode == "" {
		cfg.Answer.Mode = search.SingleQuery.String()
	}
	if cfg.Answer.RetrievalTimeout == 0 {
		cfg.Answer.RetrievalTimeout = 30 * time.Second
	}
	if cfg.Answer.GenerationTimeout == 0 {
		cfg.Answer.GenerationTimeout = 2 * time.Minute
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}

// Load reads a config from path. If the file does not exist, returns defaults.
// A relative env_file is resolved against the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrInvalidConfig, path, err)
	}
	applyDefaults(&cfg)

	if cfg.EnvFile != "" {
		envPath := cfg.EnvFile
		if !filepath.IsAbs(envPath) {
			envPath = filepath.Join(filepath.Dir(path), envPath)
		}
		if err := cfg.LoadEnvFile(envPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile reads secrets from a dotenv file without touching the
// process environment.
func (c *Config) LoadEnvFile(path string) error {
	secrets, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	c.secrets = secrets
	return nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the values that are not validated by the components
// themselves at construction.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendBadger, BackendPostgres:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if err := core.ValidateNamespace(c.Store.Namespace); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := core.ValidateChunkParams(c.Ingest.ChunkSize, c.Ingest.ChunkOverlap); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := loader.NewPDFExtractor(c.Ingest.PDFBackend); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := prompt.Lookup(c.Answer.Template); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := search.ParseMode(c.Answer.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// lookup returns a secret from the env file, then the process environment.
func (c *Config) lookup(name string) string {
	if name == "" {
		return ""
	}
	if v, ok := c.secrets[name]; ok {
		return v
	}
	return os.Getenv(name)
}

// APIKey resolves the API key.
func (c *Config) APIKey() string {
	if key := c.lookup(c.AI.APIKeyEnv); key != "" {
		return key
	}
	return c.lookup("OPENAI_API_KEY")
}

// PostgresDSN resolves the postgres connection string, preferring the
// value in the file.
func (c *Config) PostgresDSN() string {
	if c.Store.PostgresDSN != "" {
		return c.Store.PostgresDSN
	}
	return c.lookup(c.Store.DSNEnv)
}

// AIConfig converts the ai section to a validated ai.Config.
func (c *Config) AIConfig() (*ai.Config, error) {
	cfg := ai.NewConfig(
		ai.WithProvider(strings.ToLower(c.AI.Provider)),
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithLLMHost(c.AI.LLMHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithLLMModel(c.AI.LLMModel),
		ai.WithAPIKey(c.APIKey()),
		ai.WithTemperature(c.AI.Temperature),
	)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SearchParams converts the answer section to retrieval parameters.
func (c *Config) SearchParams() (search.Params, error) {
	mode, err := search.ParseMode(c.Answer.Mode)
	if err != nil {
		return search.Params{}, err
	}
	return search.DefaultParams().WithK(c.Answer.K).WithMode(mode), nil
}

// IndexOptions converts the ingest section to index options.
func (c *Config) IndexOptions() []index.Option {
	return []index.Option{
		index.WithBatchSize(c.Ingest.BatchSize),
		index.WithRetries(c.Ingest.MaxRetries, c.Ingest.RetryDelay),
		index.WithCallTimeout(c.Ingest.CallTimeout),
	}
}

// LoaderOptions converts the ingest section to loader options.
func (c *Config) LoaderOptions() []loader.Option {
	opts := []loader.Option{loader.WithPDFBackend(c.Ingest.PDFBackend)}
	if c.Ingest.PoolSize > 0 {
		opts = append(opts, loader.WithPoolSize(c.Ingest.PoolSize))
	}
	return opts
}
