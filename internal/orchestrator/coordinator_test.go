package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fastomop/medA2A-implementation/internal/agent"
	"github.com/fastomop/medA2A-implementation/internal/dbexec"
	"github.com/fastomop/medA2A-implementation/internal/kb"
	"github.com/fastomop/medA2A-implementation/internal/llm"
	"github.com/fastomop/medA2A-implementation/internal/sqlgen"
	"github.com/fastomop/medA2A-implementation/internal/template"
)

// stagedProvider serves SQL generation and answer synthesis from one fake.
// Synthesis calls are recognized by the synthesizer system prompt.
type stagedProvider struct {
	sql        string
	summary    string
	synthErr   error
	synthCalls int
}

func (p *stagedProvider) Chat(_ context.Context, messages []llm.Message) (string, error) {
	system := ""
	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content
		}
	}
	if strings.Contains(system, "clinical data analyst") {
		p.synthCalls++
		if p.synthErr != nil {
			return "", p.synthErr
		}
		return p.summary, nil
	}
	return p.sql, nil
}

func (p *stagedProvider) Name() string { return "staged" }

type stubExecutor struct {
	result *dbexec.Result
	err    error
}

func (e *stubExecutor) Execute(_ context.Context, _ string) (*dbexec.Result, error) {
	return e.result, e.err
}

func newCoordinator(t *testing.T, provider llm.Provider, executor dbexec.Executor, maxAttempts int) *Coordinator {
	t.Helper()
	world := kb.NewStore()
	kb.SeedOMOP(world)
	vocab, err := kb.NewVocabulary(kb.DefaultConcepts())
	if err != nil {
		t.Fatalf("vocabulary: %v", err)
	}
	library := template.NewDefaultLibrary()
	prompts := sqlgen.DefaultPrompts()
	gen := sqlgen.NewGenerator(provider, library, vocab, prompts)
	controller := agent.NewController(gen, executor, world, library).WithMaxAttempts(maxAttempts)
	return NewCoordinator(agent.NewDatabaseAgent(controller), NewSynthesizer(provider, prompts))
}

func TestProcessQuestionSuccess(t *testing.T) {
	provider := &stagedProvider{summary: "There are 1,280 patients with hypertension."}
	executor := &stubExecutor{result: &dbexec.Result{
		Columns: []string{"patient_count"},
		Rows:    []dbexec.Row{{"patient_count": float64(1280)}},
	}}
	coordinator := newCoordinator(t, provider, executor, 10)

	resp := coordinator.ProcessQuestion(context.Background(), "How many patients have hypertension?")
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Answer != "There are 1,280 patients with hypertension." {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if resp.AttemptsUsed != 1 {
		t.Fatalf("attempts = %d, want 1", resp.AttemptsUsed)
	}
	if resp.GeneratedSQL == "" || len(resp.QueryResult) != 1 {
		t.Fatalf("response missing query evidence: %+v", resp)
	}
}

func TestSynthesisFailureDegradesToFallback(t *testing.T) {
	provider := &stagedProvider{synthErr: errors.New("service unavailable")}
	executor := &stubExecutor{result: &dbexec.Result{
		Columns: []string{"patient_count"},
		Rows:    []dbexec.Row{{"patient_count": float64(7)}},
	}}
	coordinator := newCoordinator(t, provider, executor, 10)

	resp := coordinator.ProcessQuestion(context.Background(), "How many patients have hypertension?")
	if !resp.Success {
		t.Fatal("synthesis failure must not fail the question")
	}
	if !strings.Contains(resp.Answer, "patient_count=7") {
		t.Fatalf("fallback answer must state the result, got %q", resp.Answer)
	}
	if len(resp.QueryResult) != 1 {
		t.Fatal("raw rows must survive a degraded answer")
	}
}

func TestExhaustionNeverFabricatesAnAnswer(t *testing.T) {
	provider := &stagedProvider{sql: "SELECT broken FROM nowhere"}
	executor := &stubExecutor{err: &dbexec.ExecutionError{Kind: dbexec.KindSyntaxError, Message: "syntax error"}}
	coordinator := newCoordinator(t, provider, executor, 3)

	resp := coordinator.ProcessQuestion(context.Background(), "How many patients are there?")
	if resp.Success {
		t.Fatal("exhaustion must report failure")
	}
	if resp.Error != "exhausted_attempts" {
		t.Fatalf("error = %q", resp.Error)
	}
	if resp.AttemptsUsed != 3 {
		t.Fatalf("attempts = %d, want 3", resp.AttemptsUsed)
	}
	if !strings.Contains(resp.Answer, "No answer was fabricated") {
		t.Fatalf("answer must state no fabrication, got %q", resp.Answer)
	}
	if provider.synthCalls != 0 {
		t.Fatal("synthesis must not run for a failed question")
	}
}

func TestProcessQuestionsKeepsInputOrder(t *testing.T) {
	provider := &stagedProvider{summary: "answer"}
	executor := &stubExecutor{result: &dbexec.Result{Rows: []dbexec.Row{{"n": float64(1)}}}}
	coordinator := newCoordinator(t, provider, executor, 10)

	questions := []string{
		"How many patients have hypertension?",
		"How many patients have diabetes?",
		"How many patients have asthma?",
	}
	responses := coordinator.ProcessQuestions(context.Background(), questions)
	if len(responses) != len(questions) {
		t.Fatalf("responses = %d, want %d", len(responses), len(questions))
	}
	for i, resp := range responses {
		if resp == nil || resp.Question != questions[i] {
			t.Fatalf("response %d out of order: %+v", i, resp)
		}
		if !resp.Success {
			t.Fatalf("question %d failed: %+v", i, resp)
		}
	}
}

func TestFallbackAnswer(t *testing.T) {
	cases := []struct {
		name   string
		result *dbexec.Result
		want   string
	}{
		{"nil result", nil, "The query executed successfully and returned no rows."},
		{"empty rows", &dbexec.Result{Rows: []dbexec.Row{}}, "The query executed successfully and returned no rows."},
		{"single row", &dbexec.Result{Rows: []dbexec.Row{{"n": 5}}}, "The query returned one row: n=5."},
		{
			"many rows",
			&dbexec.Result{Rows: []dbexec.Row{{"n": 1}, {"n": 2}, {"n": 3}}},
			"The query returned 3 rows; the first row is n=1.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FallbackAnswer(tc.result); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSynthesizeTruncatesLargeResults(t *testing.T) {
	rendered := ""
	provider := &recordingProvider{reply: "summary", captured: &rendered}
	synth := NewSynthesizer(provider, sqlgen.DefaultPrompts())

	rows := make([]dbexec.Row, 120)
	for i := range rows {
		rows[i] = dbexec.Row{"person_id": i}
	}
	answer, err := synth.Synthesize(context.Background(), "who?", "SELECT person_id FROM base.person", &dbexec.Result{Rows: rows})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if answer != "summary" {
		t.Fatalf("answer = %q", answer)
	}
	if !strings.Contains(rendered, "(70 more rows omitted)") {
		t.Fatalf("prompt must state the omitted row count:\n%s", rendered)
	}
	if strings.Count(rendered, "person_id=") != 50 {
		t.Fatalf("rendered rows = %d, want 50", strings.Count(rendered, "person_id="))
	}
}

type recordingProvider struct {
	reply    string
	captured *string
}

func (p *recordingProvider) Chat(_ context.Context, messages []llm.Message) (string, error) {
	for _, msg := range messages {
		if msg.Role != "system" {
			*p.captured = msg.Content
		}
	}
	return p.reply, nil
}

func (p *recordingProvider) Name() string { return "recording" }
