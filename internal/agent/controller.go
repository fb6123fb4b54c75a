package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fastomop/medA2A-implementation/internal/common"
	"github.com/fastomop/medA2A-implementation/internal/dbexec"
	"github.com/fastomop/medA2A-implementation/internal/kb"
	"github.com/fastomop/medA2A-implementation/internal/sqlgen"
	"github.com/fastomop/medA2A-implementation/internal/template"
)

// DefaultMaxAttempts bounds the generate/execute cycles per question.
const DefaultMaxAttempts = 10

// Attempt failure reason used when generation itself fails, as opposed to
// the execution error kinds.
const ReasonGenerationError = "generation_error"

// AttemptRecord is one entry of a session's attempt history.
type AttemptRecord struct {
	Number    int           `json:"number"`
	SQL       string        `json:"sql,omitempty"`
	Success   bool          `json:"success"`
	ErrorKind string        `json:"error_kind,omitempty"`
	ErrorText string        `json:"error_text,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Outcome holds the terminal Succeeded state: the final result, the SQL
// that produced it and the full attempt history.
type Outcome struct {
	SQL      string
	Result   *dbexec.Result
	Attempts []AttemptRecord
	Template string
}

// ExhaustedAttemptsError is the terminal failure: the budget ran out. It
// carries the full ordered attempt history for diagnostics.
type ExhaustedAttemptsError struct {
	Attempts []AttemptRecord
}

func (e *ExhaustedAttemptsError) Error() string {
	last := "no attempts recorded"
	if n := len(e.Attempts); n > 0 {
		rec := e.Attempts[n-1]
		last = fmt.Sprintf("last error (%s): %s", rec.ErrorKind, rec.ErrorText)
	}
	return fmt.Sprintf("exhausted %d attempts; %s", len(e.Attempts), last)
}

type loopState int

const (
	stateGenerating loopState = iota
	stateExecuting
	stateSucceeded
	stateExhausted
)

// Controller drives the generate/execute/feedback loop for one question at
// a time. Its per-invocation state (attempt history, current candidate) is
// private to Run; only world-model updates cross invocations.
type Controller struct {
	generator   *sqlgen.Generator
	executor    dbexec.Executor
	world       *kb.Store
	templates   *template.Library
	maxAttempts int
	execTimeout time.Duration
}

func NewController(generator *sqlgen.Generator, executor dbexec.Executor, world *kb.Store, templates *template.Library) *Controller {
	return &Controller{
		generator:   generator,
		executor:    executor,
		world:       world,
		templates:   templates,
		maxAttempts: DefaultMaxAttempts,
		execTimeout: 60 * time.Second,
	}
}

// WithMaxAttempts overrides the attempt budget.
func (c *Controller) WithMaxAttempts(max int) *Controller {
	if max > 0 {
		c.maxAttempts = max
	}
	return c
}

// WithExecutionTimeout overrides the per-execution timeout.
func (c *Controller) WithExecutionTimeout(timeout time.Duration) *Controller {
	if timeout > 0 {
		c.execTimeout = timeout
	}
	return c
}

// Run executes the refinement state machine. It returns the outcome on
// success, an *ExhaustedAttemptsError after the budget runs out, or the
// context error when the caller cancels between attempts.
func (c *Controller) Run(ctx context.Context, question Question) (*Outcome, error) {
	logger := common.Logger()
	logger.Info("loop: question received", "question_id", question.ID)

	var (
		attempts  []AttemptRecord
		candidate sqlgen.Candidate
		state     = stateGenerating
		result    *dbexec.Result
	)

	for {
		switch state {
		case stateGenerating:
			if err := ctx.Err(); err != nil {
				logger.Warn("loop: cancelled before attempt", "question_id", question.ID, "attempts", len(attempts))
				return nil, err
			}
			if len(attempts) >= c.maxAttempts {
				state = stateExhausted
				continue
			}
			start := time.Now()
			snap := c.world.Snapshot()
			var err error
			candidate, err = c.generator.Generate(ctx, question.Text, snap, failuresFrom(attempts))
			if err != nil {
				attempts = append(attempts, AttemptRecord{
					Number:    len(attempts) + 1,
					ErrorKind: ReasonGenerationError,
					ErrorText: err.Error(),
					Elapsed:   time.Since(start),
				})
				logger.Warn("loop: generation failed", "question_id", question.ID, "attempt", len(attempts), "error", err)
				continue
			}
			state = stateExecuting

		case stateExecuting:
			start := time.Now()
			execCtx, cancel := context.WithTimeout(ctx, c.execTimeout)
			res, err := c.executor.Execute(execCtx, candidate.SQL)
			cancel()
			elapsed := time.Since(start)
			if err != nil {
				record := AttemptRecord{
					Number:    len(attempts) + 1,
					SQL:       candidate.SQL,
					ErrorText: err.Error(),
					Elapsed:   elapsed,
				}
				var execErr *dbexec.ExecutionError
				if errors.As(err, &execErr) {
					record.ErrorKind = execErr.Kind
					record.ErrorText = execErr.Message
					c.learnFromFailure(execErr)
				} else {
					record.ErrorKind = dbexec.KindConnectionError
				}
				attempts = append(attempts, record)
				logger.Warn("loop: execution failed", "question_id", question.ID, "attempt", len(attempts), "kind", record.ErrorKind)
				state = stateGenerating
				continue
			}
			attempts = append(attempts, AttemptRecord{
				Number:  len(attempts) + 1,
				SQL:     candidate.SQL,
				Success: true,
				Elapsed: elapsed,
			})
			result = res
			state = stateSucceeded

		case stateSucceeded:
			c.promoteLessons(question, candidate)
			logger.Info("loop: question answered", "question_id", question.ID, "attempts", len(attempts), "rows", len(result.Rows))
			return &Outcome{
				SQL:      candidate.SQL,
				Result:   result,
				Attempts: attempts,
				Template: candidate.Template,
			}, nil

		case stateExhausted:
			logger.Error("loop: attempts exhausted", "question_id", question.ID, "attempts", len(attempts))
			return nil, &ExhaustedAttemptsError{Attempts: attempts}
		}
	}
}

// failuresFrom projects the attempt history into generator feedback,
// oldest first.
func failuresFrom(attempts []AttemptRecord) []sqlgen.Failure {
	var out []sqlgen.Failure
	for _, rec := range attempts {
		if rec.Success {
			continue
		}
		out = append(out, sqlgen.Failure{SQL: rec.SQL, Error: rec.ErrorText})
	}
	return out
}

// learnFromFailure feeds unambiguous missing-object signals into the world
// model so the very next generation sees them. Connection errors and
// timeouts carry no schema lesson.
func (c *Controller) learnFromFailure(execErr *dbexec.ExecutionError) {
	if execErr.Kind != dbexec.KindMissingObject {
		return
	}
	logger := common.Logger()
	switch {
	case execErr.Column != "" && execErr.Table != "":
		c.world.Invalidate(execErr.Table, execErr.Column)
		logger.Info("loop: invalidated column", "table", execErr.Table, "column", execErr.Column)
	case execErr.Column != "":
		// No table named in the error; invalidate the column on every
		// table that claims it, which is still unambiguous per key.
		for _, fact := range c.world.Facts() {
			if fact.Column == execErr.Column && !fact.Absent {
				c.world.Invalidate(fact.Table, fact.Column)
			}
		}
		logger.Info("loop: invalidated column across tables", "column", execErr.Column)
	case execErr.Table != "":
		c.world.Invalidate(execErr.Table, "")
		logger.Info("loop: marked table absent", "table", execErr.Table)
	}
}

// promoteLessons runs on entry to Succeeded: template usage counters and
// join paths observed in the final SQL move into the long-lived world model
// for reuse by future questions.
func (c *Controller) promoteLessons(question Question, candidate sqlgen.Candidate) {
	if candidate.Template != "" && c.templates != nil {
		c.templates.RecordSuccess(candidate.Template)
	}
	for _, path := range extractJoinPaths(candidate.SQL) {
		if err := c.world.RecordJoinPath(path); err != nil {
			common.Logger().Debug("loop: join path not promoted", "question_id", question.ID, "error", err)
		}
	}
}

// extractJoinPaths does a best-effort parse of equi-join conditions in the
// final SQL. Aliases are resolved against FROM/JOIN clauses; anything the
// parse cannot resolve is skipped.
func extractJoinPaths(sql string) []kb.JoinPath {
	aliases := make(map[string]string)
	tokens := strings.Fields(strings.ToLower(sql))
	for i := 0; i < len(tokens); i++ {
		if tokens[i] != "from" && tokens[i] != "join" {
			continue
		}
		if i+1 >= len(tokens) {
			break
		}
		table := strings.TrimPrefix(strings.Trim(tokens[i+1], ","), "base.")
		aliases[table] = table
		if i+2 < len(tokens) {
			next := strings.Trim(tokens[i+2], ",")
			if next != "on" && next != "join" && next != "where" && next != "left" && next != "inner" {
				aliases[next] = table
			}
		}
	}
	var paths []kb.JoinPath
	for i := 0; i < len(tokens); i++ {
		if tokens[i] != "on" || i+3 >= len(tokens) || tokens[i+2] != "=" {
			continue
		}
		left := splitQualified(tokens[i+1], aliases)
		right := splitQualified(tokens[i+3], aliases)
		if left == nil || right == nil || left.Table == right.Table {
			continue
		}
		paths = append(paths, kb.JoinPath{Steps: []kb.JoinStep{*left, *right}})
	}
	return paths
}

func splitQualified(token string, aliases map[string]string) *kb.JoinStep {
	token = strings.Trim(token, "(),;")
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil
	}
	table, ok := aliases[parts[0]]
	if !ok {
		return nil
	}
	return &kb.JoinStep{Table: table, Column: parts[1]}
}
