package template

import (
	"strings"
	"testing"

	"github.com/fastomop/medA2A-implementation/internal/kb"
)

func conditionMatch(name string) kb.ConceptMatch {
	return kb.ConceptMatch{Concept: kb.Concept{Name: name, Domain: "Condition"}}
}

func drugMatch(name string) kb.ConceptMatch {
	return kb.ConceptMatch{Concept: kb.Concept{Name: name, Domain: "Drug"}}
}

func TestDefaultLibraryPatientCount(t *testing.T) {
	lib := NewDefaultLibrary()
	scored, ok := lib.Best("how many patients have hypertension?", []kb.ConceptMatch{conditionMatch("hypertension")})
	if !ok {
		t.Fatal("expected a template match")
	}
	if scored.Template.Name != "patient_count_by_condition" {
		t.Fatalf("unexpected template: %s", scored.Template.Name)
	}
	sql, err := scored.Template.Instantiate(scored.Params)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	for _, want := range []string{"COUNT(DISTINCT co.person_id)", "base.condition_occurrence", "base.concept", "'%hypertension%'"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected %q in SQL:\n%s", want, sql)
		}
	}
}

func TestComorbidityOutranksSingleCondition(t *testing.T) {
	lib := NewDefaultLibrary()
	matches := []kb.ConceptMatch{conditionMatch("hypertension"), conditionMatch("diabetes")}
	scored, ok := lib.Best("count patients with hypertension and diabetes", matches)
	if !ok {
		t.Fatal("expected a template match")
	}
	if scored.Template.Name != "comorbidity_pair_count" {
		t.Fatalf("expected most specific template to win, got %s", scored.Template.Name)
	}
	if scored.Params.Concept != "hypertension" || scored.Params.SecondConcept != "diabetes" {
		t.Fatalf("unexpected params: %+v", scored.Params)
	}
}

func TestSpecificityTieBrokenByRegistrationOrder(t *testing.T) {
	lib := NewLibrary()
	always := Predicate{Name: "always", Match: func(string, []kb.ConceptMatch) bool { return true }}
	if err := lib.Register("first", "SELECT 1", always); err != nil {
		t.Fatal(err)
	}
	if err := lib.Register("second", "SELECT 2", always); err != nil {
		t.Fatal(err)
	}
	scored := lib.Match("anything", nil)
	if len(scored) != 2 {
		t.Fatalf("expected two applicable templates, got %d", len(scored))
	}
	if scored[0].Template.Name != "first" {
		t.Fatalf("tie should keep registration order, got %s first", scored[0].Template.Name)
	}
}

func TestNoTemplateForUnmatchedQuestion(t *testing.T) {
	lib := NewDefaultLibrary()
	if _, ok := lib.Best("describe the schema", nil); ok {
		t.Fatal("expected no template for a question with no count marker or concepts")
	}
}

func TestDrugQuestionSelectsDrugTemplate(t *testing.T) {
	lib := NewDefaultLibrary()
	scored, ok := lib.Best("how many patients were exposed to metformin?", []kb.ConceptMatch{drugMatch("metformin")})
	if !ok {
		t.Fatal("expected a template match")
	}
	if scored.Template.Name != "drug_exposure_count" {
		t.Fatalf("unexpected template: %s", scored.Template.Name)
	}
	if scored.Params.Concept != "metformin" {
		t.Fatalf("unexpected params: %+v", scored.Params)
	}
}

func TestSuccessCounters(t *testing.T) {
	lib := NewDefaultLibrary()
	lib.RecordSuccess("patient_count_by_condition")
	lib.RecordSuccess("patient_count_by_condition")
	lib.RestoreSuccess("drug_exposure_count", 5)
	lib.RestoreSuccess("patient_count_by_condition", 1) // lower than live count, ignored

	got := lib.Successes()
	if got["patient_count_by_condition"] != 2 {
		t.Fatalf("expected live counter preserved, got %d", got["patient_count_by_condition"])
	}
	if got["drug_exposure_count"] != 5 {
		t.Fatalf("expected restored counter, got %d", got["drug_exposure_count"])
	}
}
