// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/ai/langchain"
	"github.com/poiesic/ragchat/core"
	"github.com/tmc/langchaingo/llms/openai"
)

// noToken is sent to local OpenAI-compatible services that don't require authentication.
const noToken = "none"

type Provider struct {
	config    *ai.Config
	embedder  ai.Embedder
	generator ai.Generator
	logger    *slog.Logger
}

func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Provider != ai.ProviderOpenAI {
		return nil, fmt.Errorf("openai provider: config selects %q", config.Provider)
	}

	embedder, err := NewEmbedder(config)
	if err != nil {
		return nil, err
	}

	generator, err := NewGenerator(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:    config,
		embedder:  embedder,
		generator: generator,
		logger:    slog.Default().With("component", "openai-provider"),
	}, nil
}

// NewEmbedder creates an embedder for the configured embedding host and model.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Create OpenAI client configured for embeddings
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token(config)),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	return langchain.NewEmbedder(client, langchain.DefaultEmbeddingBatchSize, "openai-embedder")
}

// NewGenerator creates a generator for the configured LLM host and model.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Create OpenAI client configured for chat completion
	client, err := openai.New(
		openai.WithBaseURL(config.LLMHost),
		openai.WithToken(token(config)),
		openai.WithModel(config.LLMModel),
	)
	if err != nil {
		return nil, err
	}

	return langchain.NewGenerator(client, config.Temperature, "openai-generator")
}

func token(config *ai.Config) string {
	if config.APIKey == "" {
		return noToken
	}
	return config.APIKey
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
	p.logger.Debug("closing OpenAI provider")
	return nil
}
