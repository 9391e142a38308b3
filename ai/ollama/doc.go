// Package ollama provides AI service implementations using Ollama's native API.
//
// Use it instead of ai/openai when talking to an Ollama server directly
// (config.Provider = "ollama", host without the /v1 suffix).
package ollama
