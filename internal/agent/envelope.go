package agent

import (
	"context"
	"errors"

	"github.com/fastomop/medA2A-implementation/internal/dbexec"
)

// Message envelope kinds exchanged between the coordinator and the
// database agent. The envelope is a tagged variant passed through ordinary
// function calls; no actor framework sits underneath.
type MessageKind string

const (
	KindQuestionRequest MessageKind = "question_request"
	KindAnswerResponse  MessageKind = "answer_response"
	KindErrorResponse   MessageKind = "error_response"
)

// QueryRequest is the coordinator-to-agent payload.
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResponse is the agent-to-coordinator payload for a successful loop.
type QueryResponse struct {
	GeneratedSQL string       `json:"generated_sql"`
	QueryResult  []dbexec.Row `json:"query_result"`
	AttemptsUsed int          `json:"attempts_used"`
	Template     string       `json:"template,omitempty"`
}

// Envelope carries exactly one payload, selected by Kind.
type Envelope struct {
	Kind     MessageKind     `json:"kind"`
	ID       string          `json:"id"`
	Request  *QueryRequest   `json:"request,omitempty"`
	Response *QueryResponse  `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
	Attempts []AttemptRecord `json:"attempts,omitempty"`
}

// DatabaseAgent is the database-specialist agent: it owns a loop controller
// and speaks the envelope contract.
type DatabaseAgent struct {
	controller *Controller
}

func NewDatabaseAgent(controller *Controller) *DatabaseAgent {
	return &DatabaseAgent{controller: controller}
}

// Handle runs one question-request envelope through the refinement loop and
// answers with either an answer-response or an error-response envelope.
func (a *DatabaseAgent) Handle(ctx context.Context, env Envelope) Envelope {
	if env.Kind != KindQuestionRequest || env.Request == nil {
		return Envelope{Kind: KindErrorResponse, ID: env.ID, Error: "unsupported message kind"}
	}
	question := NewQuestion(env.Request.Question)
	outcome, err := a.controller.Run(ctx, question)
	if err != nil {
		var exhausted *ExhaustedAttemptsError
		if errors.As(err, &exhausted) {
			return Envelope{
				Kind:     KindErrorResponse,
				ID:       question.ID,
				Error:    "exhausted_attempts",
				Attempts: exhausted.Attempts,
			}
		}
		return Envelope{Kind: KindErrorResponse, ID: question.ID, Error: err.Error()}
	}
	return Envelope{
		Kind: KindAnswerResponse,
		ID:   question.ID,
		Response: &QueryResponse{
			GeneratedSQL: outcome.SQL,
			QueryResult:  outcome.Result.Rows,
			AttemptsUsed: len(outcome.Attempts),
			Template:     outcome.Template,
		},
		Attempts: outcome.Attempts,
	}
}
