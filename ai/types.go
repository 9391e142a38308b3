package ai

// Provider names accepted in Config.Provider.
const (
	// ProviderOpenAI talks to any OpenAI-compatible HTTP API (OpenAI, vLLM, LocalAI, Ollama's /v1).
	ProviderOpenAI = "openai"

	// ProviderOllama talks to Ollama's native API.
	ProviderOllama = "ollama"
)

// Providers lists the supported provider names.
var Providers = []string{
	ProviderOpenAI,
	ProviderOllama,
}
