package template

import (
	"strings"

	"github.com/fastomop/medA2A-implementation/internal/kb"
)

const patientCountByConditionSQL = `SELECT COUNT(DISTINCT co.person_id) AS patient_count
FROM base.condition_occurrence co
JOIN base.concept c ON co.condition_concept_id = c.concept_id
WHERE c.standard_concept = 'S'
  AND LOWER(c.concept_name) LIKE '%{{.Concept}}%'`

const drugExposureCountSQL = `SELECT COUNT(DISTINCT de.person_id) AS patient_count
FROM base.drug_exposure de
JOIN base.concept c ON de.drug_concept_id = c.concept_id
WHERE c.standard_concept = 'S'
  AND LOWER(c.concept_name) LIKE '%{{.Concept}}%'`

const measurementSummarySQL = `SELECT COUNT(*) AS measurement_count,
       AVG(m.value_as_number) AS mean_value,
       MIN(m.value_as_number) AS min_value,
       MAX(m.value_as_number) AS max_value
FROM base.measurement m
JOIN base.concept c ON m.measurement_concept_id = c.concept_id
WHERE c.standard_concept = 'S'
  AND LOWER(c.concept_name) LIKE '%{{.Concept}}%'
  AND m.value_as_number IS NOT NULL`

const comorbidityPairSQL = `SELECT COUNT(DISTINCT a.person_id) AS patient_count
FROM base.condition_occurrence a
JOIN base.concept ca ON a.condition_concept_id = ca.concept_id
JOIN base.condition_occurrence b ON b.person_id = a.person_id
JOIN base.concept cb ON b.condition_concept_id = cb.concept_id
WHERE ca.standard_concept = 'S'
  AND cb.standard_concept = 'S'
  AND LOWER(ca.concept_name) LIKE '%{{.Concept}}%'
  AND LOWER(cb.concept_name) LIKE '%{{.SecondConcept}}%'`

func asksCount(question string, _ []kb.ConceptMatch) bool {
	for _, marker := range []string{"how many", "count", "number of"} {
		if strings.Contains(question, marker) {
			return true
		}
	}
	return false
}

func asksSummary(question string, _ []kb.ConceptMatch) bool {
	for _, marker := range []string{"average", "mean", "typical", "distribution", "summary"} {
		if strings.Contains(question, marker) {
			return true
		}
	}
	return false
}

func mentionsDomain(domain string, count int) func(string, []kb.ConceptMatch) bool {
	return func(_ string, matches []kb.ConceptMatch) bool {
		return len(kb.ByDomain(matches, domain)) >= count
	}
}

// NewDefaultLibrary registers the stock question classes: patient counting
// by condition, drug exposure counting, measurement summaries and condition
// comorbidity pairs. Registration order is the tie-break order, so the
// more common classes come first.
func NewDefaultLibrary() *Library {
	lib := NewLibrary()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(lib.Register("comorbidity_pair_count", comorbidityPairSQL,
		Predicate{Name: "asks_count", Match: asksCount},
		Predicate{Name: "mentions_condition", Match: mentionsDomain("Condition", 1)},
		Predicate{Name: "mentions_two_conditions", Match: mentionsDomain("Condition", 2)},
	))
	must(lib.Register("patient_count_by_condition", patientCountByConditionSQL,
		Predicate{Name: "asks_count", Match: asksCount},
		Predicate{Name: "mentions_condition", Match: mentionsDomain("Condition", 1)},
	))
	must(lib.Register("drug_exposure_count", drugExposureCountSQL,
		Predicate{Name: "asks_count", Match: asksCount},
		Predicate{Name: "mentions_drug", Match: mentionsDomain("Drug", 1)},
	))
	must(lib.Register("measurement_summary", measurementSummarySQL,
		Predicate{Name: "asks_summary", Match: asksSummary},
		Predicate{Name: "mentions_measurement", Match: mentionsDomain("Measurement", 1)},
	))
	return lib
}
