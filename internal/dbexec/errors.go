package dbexec

import (
	"fmt"
	"regexp"
	"strings"
)

// Execution failure kinds.
const (
	KindSyntaxError     = "syntax_error"
	KindMissingObject   = "missing_object"
	KindTimeout         = "timeout"
	KindConnectionError = "connection_error"
)

// ExecutionError is a structured query failure. For missing_object errors
// Table and Column carry the object the database rejected, when the error
// message names it unambiguously.
type ExecutionError struct {
	Kind    string
	Table   string
	Column  string
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed (%s): %s", e.Kind, e.Message)
}

// Retryable reports whether the loop should keep spending attempts on this
// failure. Every kind in the taxonomy is retryable within the budget.
func (e *ExecutionError) Retryable() bool {
	return true
}

var (
	missingColumnPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)column\s+"?([a-z0-9_]+)"?\s+(?:does not exist|not found)`),
		regexp.MustCompile(`(?i)referenced column\s+"?([a-z0-9_]+)"?\s+not found`),
		regexp.MustCompile(`(?i)no column named\s+"?([a-z0-9_]+)"?`),
	}
	missingTablePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)table(?:\s+with name)?\s+"?(?:base\.)?([a-z0-9_]+)"?\s+(?:does not exist|not found)`),
		regexp.MustCompile(`(?i)no such table:?\s+"?(?:base\.)?([a-z0-9_]+)"?`),
	}
	tableHintPattern = regexp.MustCompile(`(?i)(?:table|relation)\s+"?(?:base\.)?([a-z0-9_]+)"?`)
)

// ClassifyMessage maps a database error message onto the failure taxonomy.
// Only unambiguous does-not-exist signals become missing_object; everything
// unrecognized is treated as a syntax error, which is retried but never
// feeds schema learning.
func ClassifyMessage(message string) *ExecutionError {
	msg := strings.TrimSpace(message)
	lower := strings.ToLower(msg)

	for _, pattern := range missingColumnPatterns {
		if m := pattern.FindStringSubmatch(msg); m != nil {
			e := &ExecutionError{Kind: KindMissingObject, Column: strings.ToLower(m[1]), Message: msg}
			if t := tableHintPattern.FindStringSubmatch(msg); t != nil {
				e.Table = strings.ToLower(t[1])
			}
			return e
		}
	}
	for _, pattern := range missingTablePatterns {
		if m := pattern.FindStringSubmatch(msg); m != nil {
			return &ExecutionError{Kind: KindMissingObject, Table: strings.ToLower(m[1]), Message: msg}
		}
	}
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return &ExecutionError{Kind: KindTimeout, Message: msg}
	case strings.Contains(lower, "connection") || strings.Contains(lower, "refused"):
		return &ExecutionError{Kind: KindConnectionError, Message: msg}
	default:
		return &ExecutionError{Kind: KindSyntaxError, Message: msg}
	}
}
