package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fastomop/medA2A-implementation/internal/agent"
	"github.com/fastomop/medA2A-implementation/internal/common"
	"github.com/fastomop/medA2A-implementation/internal/dbexec"
)

// Response is the coordinator's answer to one question. Batch and HTTP
// modes are thin serializations of this structure.
type Response struct {
	Question     string       `json:"question"`
	QuestionID   string       `json:"question_id"`
	Success      bool         `json:"success"`
	GeneratedSQL string       `json:"generated_sql,omitempty"`
	QueryResult  []dbexec.Row `json:"query_result,omitempty"`
	Answer       string       `json:"answer"`
	AttemptsUsed int          `json:"attempts_used"`
	Error        string       `json:"error,omitempty"`
}

// Coordinator accepts questions, forwards them to the database agent and
// synthesizes the final answer.
type Coordinator struct {
	db          *agent.DatabaseAgent
	synthesizer *Synthesizer
}

func NewCoordinator(db *agent.DatabaseAgent, synthesizer *Synthesizer) *Coordinator {
	return &Coordinator{db: db, synthesizer: synthesizer}
}

// ProcessQuestion runs one question end to end. Per-attempt errors never
// surface here; only attempt exhaustion fails the question, and a synthesis
// failure degrades to a deterministic answer while keeping the raw result.
func (c *Coordinator) ProcessQuestion(ctx context.Context, text string) *Response {
	logger := common.Logger()
	env := agent.Envelope{
		Kind:    agent.KindQuestionRequest,
		ID:      uuid.NewString(),
		Request: &agent.QueryRequest{Question: text},
	}
	reply := c.db.Handle(ctx, env)

	resp := &Response{Question: text, QuestionID: reply.ID}
	if reply.Kind != agent.KindAnswerResponse || reply.Response == nil {
		resp.AttemptsUsed = len(reply.Attempts)
		resp.Error = reply.Error
		resp.Answer = failureAnswer(reply)
		logger.Warn("orchestrator: question failed", "question_id", reply.ID, "error", reply.Error)
		return resp
	}

	payload := reply.Response
	resp.Success = true
	resp.GeneratedSQL = payload.GeneratedSQL
	resp.QueryResult = payload.QueryResult
	resp.AttemptsUsed = payload.AttemptsUsed

	result := &dbexec.Result{Rows: payload.QueryResult}
	answer, err := c.synthesizer.Synthesize(ctx, text, payload.GeneratedSQL, result)
	if err != nil {
		logger.Warn("orchestrator: synthesis degraded to fallback", "question_id", reply.ID, "error", err)
		resp.Answer = FallbackAnswer(result)
		return resp
	}
	resp.Answer = answer
	return resp
}

// ProcessQuestions fans a batch out over independent goroutines, one loop
// per question. Order of the returned slice matches the input; completion
// order is unspecified.
func (c *Coordinator) ProcessQuestions(ctx context.Context, questions []string) []*Response {
	responses := make([]*Response, len(questions))
	var wg sync.WaitGroup
	for i, question := range questions {
		wg.Add(1)
		go func(idx int, text string) {
			defer wg.Done()
			responses[idx] = c.ProcessQuestion(ctx, text)
		}(i, question)
	}
	wg.Wait()
	return responses
}

func failureAnswer(reply agent.Envelope) string {
	if reply.Error == "exhausted_attempts" {
		return fmt.Sprintf("Unable to answer: every attempt to query the database failed (%d attempts made). No answer was fabricated.", len(reply.Attempts))
	}
	return "Unable to answer: " + reply.Error
}
