package ollama

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/ai/langchain"
	"github.com/poiesic/ragchat/core"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Provider implements ai.AIProvider against Ollama's native API.
type Provider struct {
	config    *ai.Config
	embedder  ai.Embedder
	generator ai.Generator
	logger    *slog.Logger
}

// NewProvider creates a provider from config. config.Provider must be "ollama".
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Provider != ai.ProviderOllama {
		return nil, fmt.Errorf("ollama provider: config selects %q", config.Provider)
	}

	embedClient, err := newClient(config.EmbeddingHost, config.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	embedder, err := langchain.NewEmbedder(embedClient, langchain.DefaultEmbeddingBatchSize, "ollama-embedder")
	if err != nil {
		return nil, err
	}

	llmClient, err := newClient(config.LLMHost, config.LLMModel)
	if err != nil {
		return nil, err
	}
	generator, err := langchain.NewGenerator(llmClient, config.Temperature, "ollama-generator")
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:    config,
		embedder:  embedder,
		generator: generator,
		logger:    slog.Default().With("component", "ollama-provider"),
	}, nil
}

// newClient validates the server URL up front; the ollama client exits the process on a bad URL.
func newClient(host, model string) (*ollama.LLM, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama provider: invalid host %q: %w", host, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ollama provider: host %q must be an absolute URL", host)
	}
	return ollama.New(
		ollama.WithServerURL(host),
		ollama.WithModel(model),
	)
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *Provider) Generator() ai.Generator {
	return p.generator
}

func (p *Provider) Fingerprint() core.Fingerprint {
	return p.config.Fingerprint()
}

func (p *Provider) Close() error {
	p.logger.Debug("closing Ollama provider")
	return nil
}
