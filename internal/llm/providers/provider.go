package providers

import "context"

// Message is a single chat turn. Role is "system" or "user"; the
// completion services in use here never need assistant history because
// every call is single-shot.
type Message struct {
	Role    string
	Content string
}

// Provider is the text-completion service contract. Implementations are
// expected to be safe for concurrent use.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Name() string
}
