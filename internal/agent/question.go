package agent

import (
	"time"

	"github.com/google/uuid"
)

// Question is the immutable input to one refinement loop invocation.
type Question struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewQuestion stamps the text with an identifier and creation time.
func NewQuestion(text string) Question {
	return Question{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}
