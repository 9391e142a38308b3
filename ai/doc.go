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


// Package ai provides abstractions for the AI services used by ragchat.
//
// The package defines the interfaces the rest of the module depends on:
//
//   - Embedder: Generates vector embeddings from text
//   - Generator: Produces a completion for a fully rendered prompt
//   - AIProvider: Aggregates both and reports the embedding fingerprint
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible HTTP APIs (OpenAI, Ollama /v1, vLLM)
//   - ai/ollama: Ollama's native API
//   - ai/langchain: Adapters from langchaingo clients to Embedder and Generator
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// interface types. Test utility constructors (mock.NewMockEmbedder,
// mock.NewMockGenerator) return concrete types so tests can inspect call
// counts and inject behavior.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//	mockEmbed := mock.NewMockEmbedder()          // returns *mock.MockEmbedder
//
// # Fingerprints
//
// Vectors produced by different embedding models live in different spaces.
// AIProvider.Fingerprint identifies the model so that indexes built with one
// model are never queried with another.
package ai
