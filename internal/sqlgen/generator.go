package sqlgen

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fastomop/medA2A-implementation/internal/common"
	"github.com/fastomop/medA2A-implementation/internal/kb"
	"github.com/fastomop/medA2A-implementation/internal/llm"
	"github.com/fastomop/medA2A-implementation/internal/template"
)

const defaultGenerationTimeout = 30 * time.Second

// Failure is the per-attempt feedback the refinement loop threads back into
// the next prompt: the SQL that was tried and the error it produced.
type Failure struct {
	SQL   string
	Error string
}

// Candidate is one generated SQL statement with its provenance.
type Candidate struct {
	SQL      string
	Template string
	Informed int
}

// Generator produces SQL candidates from a question, a knowledge base
// snapshot and prior failures. It never mutates the world model; that is
// the loop controller's job after execution feedback.
type Generator struct {
	provider  llm.Provider
	templates *template.Library
	vocab     *kb.Vocabulary
	prompts   Prompts
	timeout   time.Duration
}

func NewGenerator(provider llm.Provider, templates *template.Library, vocab *kb.Vocabulary, prompts Prompts) *Generator {
	return &Generator{
		provider:  provider,
		templates: templates,
		vocab:     vocab,
		prompts:   prompts,
		timeout:   defaultGenerationTimeout,
	}
}

// WithTimeout overrides the per-call completion timeout.
func (g *Generator) WithTimeout(timeout time.Duration) *Generator {
	if timeout > 0 {
		g.timeout = timeout
	}
	return g
}

// Generate produces one candidate. On a fresh question it tries the
// template library first; on retries, or when no template applies, it asks
// the completion service with a prompt built from the snapshot and the
// failure history.
func (g *Generator) Generate(ctx context.Context, question string, snap *kb.Snapshot, failures []Failure) (Candidate, error) {
	logger := common.Logger()
	matches := g.vocab.Match(question)

	if len(failures) == 0 && g.templates != nil {
		if scored, ok := g.templates.Best(question, matches); ok && scored.Params.Concept != "" {
			sql, err := scored.Template.Instantiate(scored.Params)
			if err == nil {
				logger.Debug("sqlgen: template matched", "template", scored.Template.Name, "specificity", scored.Specificity)
				return Candidate{SQL: sql, Template: scored.Template.Name}, nil
			}
			logger.Warn("sqlgen: template instantiation failed, falling back to completion", "template", scored.Template.Name, "error", err)
		}
	}

	prompt := g.buildPrompt(question, snap, matches, failures)
	system := g.prompts.SQLGenerator
	if len(failures) > 0 {
		system = g.prompts.SQLRefiner
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	response, err := g.provider.Chat(callCtx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return Candidate{}, &GenerationError{Kind: KindServiceUnavailable, Err: err}
	}

	sql, ok := ExtractSQL(response)
	if !ok {
		return Candidate{}, &GenerationError{Kind: KindMalformedResponse, Err: fmt.Errorf("no SELECT statement in response")}
	}
	return Candidate{SQL: sql, Informed: len(failures)}, nil
}

// buildPrompt assembles the question, the relevant schema excerpt and the
// failure history. Failures are rendered oldest first so the most recent
// one sits last, closest to the instruction.
func (g *Generator) buildPrompt(question string, snap *kb.Snapshot, matches []kb.ConceptMatch, failures []Failure) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n")

	if len(matches) > 0 {
		var entities []string
		for _, m := range matches {
			entities = append(entities, fmt.Sprintf("%s (%s)", m.Concept.Name, m.Concept.Domain))
		}
		b.WriteString("Recognized entities: ")
		b.WriteString(strings.Join(entities, ", "))
		b.WriteString("\n")
	}

	if snap != nil {
		keywords := keywordsFor(question, matches)
		tables := snap.RelevantTables(keywords)
		if len(tables) > 0 {
			b.WriteString("\nRelevant schema (schema prefix: base.):\n")
			names := make([]string, 0, len(tables))
			for name := range tables {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				b.WriteString("  ")
				b.WriteString(name)
				b.WriteString("(")
				cols := make([]string, 0, len(tables[name]))
				for _, fact := range tables[name] {
					col := fact.Column + " " + fact.DataType
					if fact.Role != "" {
						col += " [" + fact.Role + "]"
					}
					cols = append(cols, col)
				}
				b.WriteString(strings.Join(cols, ", "))
				b.WriteString(")\n")
			}
			for _, path := range snap.JoinPathsFor(tables) {
				steps := make([]string, 0, len(path.Steps))
				for _, step := range path.Steps {
					steps = append(steps, step.Table+"."+step.Column)
				}
				b.WriteString("  join: ")
				b.WriteString(strings.Join(steps, " = "))
				b.WriteString("\n")
			}
		}
		if absent := snap.AbsentColumns(); len(absent) > 0 {
			b.WriteString("\nThese do NOT exist, never reference them: ")
			b.WriteString(strings.Join(absent, ", "))
			b.WriteString("\n")
		}
	}

	if len(failures) > 0 {
		b.WriteString("\nPrevious failed attempts, oldest first. The LAST failure is the most recent; fix it without reintroducing the earlier ones:\n")
		for i, failure := range failures {
			b.WriteString(fmt.Sprintf("%d. SQL: %s\n   Error: %s\n", i+1, strings.TrimSpace(failure.SQL), strings.TrimSpace(failure.Error)))
		}
	}
	return b.String()
}

func keywordsFor(question string, matches []kb.ConceptMatch) []string {
	keywords := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '_'
	})
	for _, m := range matches {
		switch strings.ToLower(m.Concept.Domain) {
		case "condition":
			keywords = append(keywords, "condition_occurrence", "concept")
		case "drug":
			keywords = append(keywords, "drug_exposure", "concept")
		case "measurement":
			keywords = append(keywords, "measurement", "concept")
		}
	}
	return keywords
}

// ExtractSQL pulls a single SELECT statement out of a completion response.
// Markdown fences are stripped, leading prose before the SELECT is dropped
// and a trailing semicolon is removed. Returns false when no SELECT is
// found.
func ExtractSQL(response string) (string, bool) {
	text := strings.TrimSpace(response)
	if text == "" {
		return "", false
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "sql")
		rest = strings.TrimPrefix(rest, "SQL")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
		text = strings.TrimSpace(text)
	}
	upper := strings.ToUpper(text)
	start := strings.Index(upper, "SELECT")
	if start < 0 {
		return "", false
	}
	text = text[start:]
	if end := strings.Index(text, ";"); end >= 0 {
		text = text[:end]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}
