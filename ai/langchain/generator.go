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


package langchain

import (
	"context"
	"log/slog"

	"github.com/poiesic/ragchat/ai"
	"github.com/tmc/langchaingo/llms"
)

// Generator implements ai.Generator using a langchaingo chat model.
type Generator struct {
	client      llms.Model
	temperature float64
	logger      *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
// Used by providers to manage the instance.
func newGenerator(client llms.Model, temperature float64, component string) (*Generator, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	return &Generator{
		client:      client,
		temperature: temperature,
		logger:      slog.Default().With("component", component),
	}, nil
}

// NewGenerator creates a generator backed by the given model.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(client llms.Model, temperature float64, component string) (ai.Generator, error) {
	return newGenerator(client, temperature, component)
}

// Generate sends the prompt as a single human message and returns the cleaned completion.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
			},
		},
	}

	g.logger.Debug("generating completion", "promptLength", len(prompt))

	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(g.temperature))
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", err
	}

	if len(response.Choices) < 1 {
		g.logger.Debug("no choices returned from model")
		return "", ErrNoChoices
	}

	answer := cleanCompletion(response.Choices[0].Content)
	if answer == "" {
		return "", ErrNoChoices
	}

	g.logger.Debug("generated completion", "answerLength", len(answer))
	return answer, nil
}
