package kb

import "time"

// SeedOMOP loads the curated OMOP CDM v5.4 core facts the generator relies
// on before any discovery has happened. The seed covers the tables the
// default prompt set names: person, condition_occurrence, drug_exposure,
// measurement, concept and concept_ancestor, all under the base schema.
func SeedOMOP(store *Store) {
	stamp := time.Unix(0, 0).UTC()
	facts := []SchemaFact{
		{Table: "person", Column: "person_id", DataType: "bigint", Role: RolePrimaryKey},
		{Table: "person", Column: "gender_concept_id", DataType: "bigint", Role: RoleConceptFK},
		{Table: "person", Column: "year_of_birth", DataType: "integer"},
		{Table: "person", Column: "race_concept_id", DataType: "bigint", Nullable: true, Role: RoleConceptFK},
		{Table: "person", Column: "ethnicity_concept_id", DataType: "bigint", Nullable: true, Role: RoleConceptFK},

		{Table: "condition_occurrence", Column: "condition_occurrence_id", DataType: "bigint", Role: RolePrimaryKey},
		{Table: "condition_occurrence", Column: "person_id", DataType: "bigint", Role: RolePersonFK},
		{Table: "condition_occurrence", Column: "condition_concept_id", DataType: "bigint", Role: RoleConceptFK},
		{Table: "condition_occurrence", Column: "condition_start_date", DataType: "date"},
		{Table: "condition_occurrence", Column: "condition_end_date", DataType: "date", Nullable: true},

		{Table: "drug_exposure", Column: "drug_exposure_id", DataType: "bigint", Role: RolePrimaryKey},
		{Table: "drug_exposure", Column: "person_id", DataType: "bigint", Role: RolePersonFK},
		{Table: "drug_exposure", Column: "drug_concept_id", DataType: "bigint", Role: RoleConceptFK},
		{Table: "drug_exposure", Column: "drug_exposure_start_date", DataType: "date"},
		{Table: "drug_exposure", Column: "quantity", DataType: "numeric", Nullable: true},
		{Table: "drug_exposure", Column: "days_supply", DataType: "integer", Nullable: true},

		{Table: "measurement", Column: "measurement_id", DataType: "bigint", Role: RolePrimaryKey},
		{Table: "measurement", Column: "person_id", DataType: "bigint", Role: RolePersonFK},
		{Table: "measurement", Column: "measurement_concept_id", DataType: "bigint", Role: RoleConceptFK},
		{Table: "measurement", Column: "measurement_date", DataType: "date"},
		{Table: "measurement", Column: "value_as_number", DataType: "numeric", Nullable: true},
		{Table: "measurement", Column: "unit_concept_id", DataType: "bigint", Nullable: true, Role: RoleConceptFK},

		{Table: "concept", Column: "concept_id", DataType: "bigint", Role: RolePrimaryKey},
		{Table: "concept", Column: "concept_name", DataType: "varchar"},
		{Table: "concept", Column: "domain_id", DataType: "varchar"},
		{Table: "concept", Column: "vocabulary_id", DataType: "varchar"},
		{Table: "concept", Column: "standard_concept", DataType: "varchar", Nullable: true},
		{Table: "concept", Column: "concept_code", DataType: "varchar"},

		{Table: "concept_ancestor", Column: "ancestor_concept_id", DataType: "bigint"},
		{Table: "concept_ancestor", Column: "descendant_concept_id", DataType: "bigint"},
	}
	for _, fact := range facts {
		fact.UpdatedAt = stamp
		store.RecordFact(fact)
	}

	paths := []JoinPath{
		{Steps: []JoinStep{
			{Table: "person", Column: "person_id"},
			{Table: "condition_occurrence", Column: "person_id"},
		}},
		{Steps: []JoinStep{
			{Table: "person", Column: "person_id"},
			{Table: "drug_exposure", Column: "person_id"},
		}},
		{Steps: []JoinStep{
			{Table: "person", Column: "person_id"},
			{Table: "measurement", Column: "person_id"},
		}},
		{Steps: []JoinStep{
			{Table: "condition_occurrence", Column: "condition_concept_id"},
			{Table: "concept", Column: "concept_id"},
		}},
		{Steps: []JoinStep{
			{Table: "drug_exposure", Column: "drug_concept_id"},
			{Table: "concept", Column: "concept_id"},
		}},
		{Steps: []JoinStep{
			{Table: "measurement", Column: "measurement_concept_id"},
			{Table: "concept", Column: "concept_id"},
		}},
	}
	for _, path := range paths {
		path.UpdatedAt = stamp
		_ = store.RecordJoinPath(path)
	}
}

// DefaultConcepts is the starter vocabulary for spotting medical entities
// in question text. Deployments extend it through the persisted world model.
func DefaultConcepts() []Concept {
	return []Concept{
		{Name: "hypertension", Domain: "Condition", Synonyms: []string{"high blood pressure", "hypertensive"}},
		{Name: "diabetes", Domain: "Condition", Synonyms: []string{"diabetes mellitus", "type 2 diabetes", "type ii diabetes"}},
		{Name: "asthma", Domain: "Condition"},
		{Name: "heart failure", Domain: "Condition", Synonyms: []string{"congestive heart failure", "chf"}},
		{Name: "atrial fibrillation", Domain: "Condition", Synonyms: []string{"afib"}},
		{Name: "depression", Domain: "Condition", Synonyms: []string{"major depressive disorder"}},
		{Name: "metformin", Domain: "Drug"},
		{Name: "aspirin", Domain: "Drug", Synonyms: []string{"acetylsalicylic acid"}},
		{Name: "lisinopril", Domain: "Drug"},
		{Name: "atorvastatin", Domain: "Drug", Synonyms: []string{"lipitor"}},
		{Name: "warfarin", Domain: "Drug"},
		{Name: "hemoglobin a1c", Domain: "Measurement", Synonyms: []string{"hba1c", "a1c"}},
		{Name: "blood pressure", Domain: "Measurement", Synonyms: []string{"systolic blood pressure", "diastolic blood pressure"}},
		{Name: "body weight", Domain: "Measurement", Synonyms: []string{"weight"}},
		{Name: "ldl cholesterol", Domain: "Measurement", Synonyms: []string{"ldl"}},
	}
}
