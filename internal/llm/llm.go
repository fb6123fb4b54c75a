package llm

import (
	"os"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/fastomop/medA2A-implementation/internal/common"
	"github.com/fastomop/medA2A-implementation/internal/llm/providers"
)

type Message = providers.Message

type Provider = providers.Provider

// NewProvider selects a completion backend from the environment. Ollama is
// preferred when OLLAMA_URL or OLLAMA_MODEL is set, then OpenAI when an API
// key is present, with a deterministic local stub as last resort.
func NewProvider() Provider {
	logger := common.Logger()

	ollamaURL := strings.TrimSpace(os.Getenv("OLLAMA_URL"))
	ollamaModel := strings.TrimSpace(os.Getenv("OLLAMA_MODEL"))
	if ollamaURL != "" || ollamaModel != "" {
		if ollamaURL == "" {
			ollamaURL = "http://localhost:11434"
		}
		if ollamaModel == "" {
			ollamaModel = "llama3.1:8b"
		}
		provider, err := providers.NewOllamaProvider(ollamaURL, ollamaModel)
		if err == nil {
			logger.Info("llm: ollama provider selected")
			return provider
		}
		logger.Warn("llm: ollama provider unavailable, trying alternatives", "error", err)
	}

	if apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); apiKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
			logger.Info("llm: configuring openai client with custom endpoint", "endpoint", endpoint)
			opts = append(opts, option.WithBaseURL(endpoint))
		}
		client := openai.NewClient(opts...)
		logger.Info("llm: openai provider selected")
		return providers.NewOpenAIProvider(client)
	}

	logger.Warn("llm: no completion service configured; falling back to local provider")
	return providers.NewLocalProvider()
}
