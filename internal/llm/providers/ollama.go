package providers

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/fastomop/medA2A-implementation/internal/common"
)

// OllamaProvider runs completions against a local Ollama service through
// langchaingo.
type OllamaProvider struct {
	model     llms.Model
	modelName string
}

func NewOllamaProvider(serverURL, modelName string) (*OllamaProvider, error) {
	model, err := ollama.New(
		ollama.WithModel(modelName),
		ollama.WithServerURL(serverURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	logger := common.Logger()
	logger.Info("llm: ollama provider configured", "model", modelName, "url", serverURL)
	return &OllamaProvider{model: model, modelName: modelName}, nil
}

func (o *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if o.model == nil {
		return "", fmt.Errorf("nil ollama model")
	}
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role := llms.ChatMessageTypeHuman
		if msg.Role == "system" {
			role = llms.ChatMessageTypeSystem
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}
	logger := common.Logger()
	logger.Debug("llm: sending ollama completion request", "model", o.modelName, "messages", len(messages))
	resp, err := o.model.GenerateContent(ctx, content)
	if err != nil {
		logger.Error("llm: ollama completion failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Content, nil
}

func (o *OllamaProvider) Name() string {
	return "ollama"
}
