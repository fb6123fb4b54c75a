package kb

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"
)

// Vocabulary scans question text for known medical concepts using an
// Aho-Corasick automaton built over every concept name and synonym.
type Vocabulary struct {
	ac           *ahocorasick.Automaton
	patterns     []string
	patternIndex map[string]int
	patternToIdx [][]int
	concepts     []Concept
}

// ConceptMatch is one concept mention found in a question.
type ConceptMatch struct {
	Concept Concept
	Surface string
	Start   int
}

// NewVocabulary compiles the concept list into a scanner. Patterns are
// matched case-insensitively over normalized text; leftmost-longest wins so
// "type 2 diabetes" beats "diabetes".
func NewVocabulary(concepts []Concept) (*Vocabulary, error) {
	v := &Vocabulary{
		patternIndex: make(map[string]int),
		concepts:     concepts,
	}
	for idx, concept := range concepts {
		surfaces := append([]string{concept.Name}, concept.Synonyms...)
		for _, surface := range surfaces {
			key := normalizeText(surface)
			if key == "" {
				continue
			}
			if pi, exists := v.patternIndex[key]; exists {
				v.patternToIdx[pi] = append(v.patternToIdx[pi], idx)
				continue
			}
			v.patternIndex[key] = len(v.patterns)
			v.patterns = append(v.patterns, key)
			v.patternToIdx = append(v.patternToIdx, []int{idx})
		}
	}
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(v.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build vocabulary automaton: %w", err)
	}
	v.ac = automaton
	return v, nil
}

// Match returns the concepts mentioned in the question, in order of first
// appearance, one entry per concept.
func (v *Vocabulary) Match(question string) []ConceptMatch {
	if v == nil || v.ac == nil {
		return nil
	}
	normalized := normalizeText(question)
	matches := v.ac.FindAllOverlapping([]byte(normalized))
	seen := make(map[string]struct{})
	var out []ConceptMatch
	for _, m := range matches {
		if m.PatternID < 0 || int(m.PatternID) >= len(v.patternToIdx) {
			continue
		}
		surface := normalized[m.Start:m.End]
		for _, idx := range v.patternToIdx[m.PatternID] {
			concept := v.concepts[idx]
			if _, dup := seen[concept.Name]; dup {
				continue
			}
			seen[concept.Name] = struct{}{}
			out = append(out, ConceptMatch{Concept: concept, Surface: surface, Start: m.Start})
		}
	}
	return out
}

// ByDomain filters matches to one OMOP domain.
func ByDomain(matches []ConceptMatch, domain string) []ConceptMatch {
	var out []ConceptMatch
	for _, m := range matches {
		if strings.EqualFold(m.Concept.Domain, domain) {
			out = append(out, m)
		}
	}
	return out
}

// normalizeText lowercases and collapses non-alphanumeric runs to single
// spaces, the same transform applied to patterns and scanned text.
func normalizeText(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
