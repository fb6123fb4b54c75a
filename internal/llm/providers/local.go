package providers

import (
	"context"
	"fmt"
	"strings"
)

// LocalProvider is an offline fallback used when no completion service is
// configured. It answers SQL-generation prompts with a fixed patient count
// query so the rest of the pipeline stays exercisable without a model.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (l *LocalProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	last := messages[len(messages)-1].Content
	if strings.Contains(strings.ToLower(last), "sql") {
		return "SELECT COUNT(DISTINCT person_id) AS patient_count FROM base.person", nil
	}
	return "[local-stub] " + strings.TrimSpace(last), nil
}

func (l *LocalProvider) Name() string {
	return "local"
}
