package kb

import "time"

// Role tags attached to schema facts.
const (
	RolePrimaryKey = "primary_key"
	RoleConceptFK  = "concept_fk"
	RolePersonFK   = "person_fk"
)

// SchemaFact is one discovered or curated fact about the target database:
// a single (table, column) with its type and role. Absent marks a fact that
// execution feedback proved wrong; absent facts are kept so a timestamp
// comparison can reject stale re-recordings.
type SchemaFact struct {
	Table     string    `json:"table"`
	Column    string    `json:"column"`
	DataType  string    `json:"data_type"`
	Nullable  bool      `json:"nullable"`
	Role      string    `json:"role,omitempty"`
	Absent    bool      `json:"absent,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JoinStep is one hop of a join path.
type JoinStep struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// JoinPath is an ordered sequence of (table, column) pairs connecting two
// tables. Paths are cached once discovered and reused across questions.
type JoinPath struct {
	Steps     []JoinStep `json:"steps"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Endpoints returns the first and last table of the path.
func (p JoinPath) Endpoints() (string, string) {
	if len(p.Steps) == 0 {
		return "", ""
	}
	return p.Steps[0].Table, p.Steps[len(p.Steps)-1].Table
}

// Concept is a vocabulary entry used to spot medical entities in question
// text. Domain follows the OMOP domain names (Condition, Drug, Measurement).
type Concept struct {
	Name     string   `json:"name"`
	Domain   string   `json:"domain"`
	Synonyms []string `json:"synonyms,omitempty"`
}
