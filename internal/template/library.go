package template

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/fastomop/medA2A-implementation/internal/kb"
)

// Params feeds a template instantiation with the entities extracted from
// the question. Concept values are lowercased condition/drug/measurement
// names used inside LIKE filters.
type Params struct {
	Concept       string
	SecondConcept string
}

// Predicate is one applicability check for a template.
type Predicate struct {
	Name  string
	Match func(question string, matches []kb.ConceptMatch) bool
}

// Template is a parameterizable query pattern for one class of question.
// A template applies only when every predicate is satisfied; its
// specificity is the number of predicates, so more constrained templates
// outrank generic ones.
type Template struct {
	Name       string
	Predicates []Predicate
	compiled   *texttemplate.Template
}

// Instantiate renders the template's SQL with the given params.
func (t *Template) Instantiate(params Params) (string, error) {
	var b strings.Builder
	if err := t.compiled.Execute(&b, params); err != nil {
		return "", fmt.Errorf("instantiate template %s: %w", t.Name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Scored pairs a template with its specificity for a question.
type Scored struct {
	Template    *Template
	Specificity int
	Params      Params
}

// Library is an ordered registry of templates. Registration order breaks
// specificity ties, so registration must be deterministic.
type Library struct {
	mu        sync.RWMutex
	templates []*Template
	successes map[string]int
}

func NewLibrary() *Library {
	return &Library{successes: make(map[string]int)}
}

// Register compiles and appends a template. Returns an error when the SQL
// body does not parse as a text template.
func (l *Library) Register(name, sqlBody string, predicates ...Predicate) error {
	compiled, err := texttemplate.New(name).Parse(sqlBody)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", name, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.templates = append(l.templates, &Template{
		Name:       name,
		Predicates: predicates,
		compiled:   compiled,
	})
	return nil
}

// Match evaluates every template against the question and returns the
// applicable ones, highest specificity first, ties in registration order.
func (l *Library) Match(question string, matches []kb.ConceptMatch) []Scored {
	question = strings.ToLower(question)
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Scored
	for _, tmpl := range l.templates {
		applicable := true
		for _, pred := range tmpl.Predicates {
			if !pred.Match(question, matches) {
				applicable = false
				break
			}
		}
		if !applicable {
			continue
		}
		out = append(out, Scored{
			Template:    tmpl,
			Specificity: len(tmpl.Predicates),
			Params:      extractParams(matches),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Specificity > out[j].Specificity
	})
	return out
}

// Best returns the highest-ranked applicable template, or false when none
// applies.
func (l *Library) Best(question string, matches []kb.ConceptMatch) (Scored, bool) {
	scored := l.Match(question, matches)
	if len(scored) == 0 {
		return Scored{}, false
	}
	return scored[0], true
}

// RecordSuccess bumps the usage counter promoted by the loop when a
// template-generated query executes cleanly.
func (l *Library) RecordSuccess(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successes[name]++
}

// Successes returns a copy of the per-template success counters.
func (l *Library) Successes() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.successes))
	for name, count := range l.successes {
		out[name] = count
	}
	return out
}

// RestoreSuccess reloads a persisted counter.
func (l *Library) RestoreSuccess(name string, count int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if count > l.successes[name] {
		l.successes[name] = count
	}
}

func extractParams(matches []kb.ConceptMatch) Params {
	params := Params{}
	// Conditions first, then drugs, then measurements; the first entity of
	// the dominant domain parameterizes {{.Concept}}.
	for _, domain := range []string{"Condition", "Drug", "Measurement"} {
		domainMatches := kb.ByDomain(matches, domain)
		for _, m := range domainMatches {
			name := strings.ToLower(m.Concept.Name)
			if params.Concept == "" {
				params.Concept = name
			} else if params.SecondConcept == "" && name != params.Concept {
				params.SecondConcept = name
			}
		}
		if params.Concept != "" && domain == "Condition" && params.SecondConcept != "" {
			break
		}
	}
	return params
}
