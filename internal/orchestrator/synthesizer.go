package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fastomop/medA2A-implementation/internal/dbexec"
	"github.com/fastomop/medA2A-implementation/internal/llm"
	"github.com/fastomop/medA2A-implementation/internal/sqlgen"
)

const (
	synthesisTimeout = 30 * time.Second
	maxRenderedRows  = 50
)

// SynthesisError reports that the summarization call failed after a
// successful query. The raw result still reaches the caller.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("answer synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Synthesizer turns a row set and the original question into a natural-
// language answer via one summarization call.
type Synthesizer struct {
	provider llm.Provider
	prompts  sqlgen.Prompts
}

func NewSynthesizer(provider llm.Provider, prompts sqlgen.Prompts) *Synthesizer {
	return &Synthesizer{provider: provider, prompts: prompts}
}

// Synthesize renders the question, SQL and a bounded slice of the result
// into the summarization prompt.
func (s *Synthesizer) Synthesize(ctx context.Context, question, sql string, result *dbexec.Result) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The user asked: %q\n\nSQL executed:\n%s\n\nResult:\n", question, sql)
	b.WriteString(renderRows(result))

	callCtx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()
	answer, err := s.provider.Chat(callCtx, []llm.Message{
		{Role: "system", Content: s.prompts.Synthesizer},
		{Role: "user", Content: b.String()},
	})
	if err != nil {
		return "", &SynthesisError{Err: err}
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", &SynthesisError{Err: fmt.Errorf("empty summary returned")}
	}
	return answer, nil
}

// FallbackAnswer is the deterministic degraded answer used when synthesis
// fails: it states what the query returned without interpretation.
func FallbackAnswer(result *dbexec.Result) string {
	if result == nil || len(result.Rows) == 0 {
		return "The query executed successfully and returned no rows."
	}
	first := renderRow(result.Rows[0])
	if len(result.Rows) == 1 {
		return fmt.Sprintf("The query returned one row: %s.", first)
	}
	return fmt.Sprintf("The query returned %d rows; the first row is %s.", len(result.Rows), first)
}

func renderRows(result *dbexec.Result) string {
	if result == nil || len(result.Rows) == 0 {
		return "(no rows)\n"
	}
	var b strings.Builder
	limit := len(result.Rows)
	if limit > maxRenderedRows {
		limit = maxRenderedRows
	}
	for i := 0; i < limit; i++ {
		b.WriteString(renderRow(result.Rows[i]))
		b.WriteString("\n")
	}
	if omitted := len(result.Rows) - limit; omitted > 0 {
		fmt.Fprintf(&b, "(%d more rows omitted)\n", omitted)
	}
	return b.String()
}

func renderRow(row dbexec.Row) string {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", key, row[key]))
	}
	return strings.Join(fields, ", ")
}
