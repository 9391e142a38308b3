// Package langchain adapts langchaingo clients to the ai.Embedder and
// ai.Generator interfaces.
//
// Provider packages (ai/openai, ai/ollama) construct the langchaingo client for
// their API and hand it to NewEmbedder and NewGenerator. Everything that is
// common to langchaingo clients lives here: batching, newline stripping,
// completion cleanup and logging.
package langchain
