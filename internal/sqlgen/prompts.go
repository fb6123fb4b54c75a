package sqlgen

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fastomop/medA2A-implementation/internal/common"
)

const defaultSQLGeneratorPrompt = `You are an expert SQL generator for OMOP CDM v5.4 using DuckDB syntax.
Your goal is to generate a single, valid, and executable SQL query.

CRITICAL RULES:
1. Start with SELECT only. No WITH clauses, CTEs, or multiple statements.
2. Always use the base. schema prefix for all tables (e.g., base.person).
3. Use EXTRACT() for dates, not date_part() (e.g., EXTRACT(YEAR FROM CURRENT_DATE)).
4. Filter concepts using standard_concept = 'S'.
5. Use LOWER() and LIKE for case-insensitive text matching.
6. For age calculations, use (EXTRACT(YEAR FROM CURRENT_DATE) - year_of_birth).

Use the provided context to write the query. Generate ONLY the SQL query.`

const defaultSQLRefinerPrompt = `You are an expert SQL debugging specialist for OMOP CDM v5.4 using DuckDB syntax.
Your task is to fix a SQL query that failed execution.

CRITICAL REQUIREMENTS:
1. Fix the specific error mentioned in the error message.
2. Maintain the original intent of the query.
3. Use only SELECT statements - no WITH clauses or CTEs.
4. Always use the base. schema prefix for all tables.
5. Use correct OMOP CDM table and column names.
6. Do not repeat an approach that already failed; change the join, filter or table instead.

Learn from the errors and generate a corrected SQL query. Output ONLY the fixed SQL query.`

const defaultSynthesizerPrompt = `You are a clinical data analyst specializing in OMOP CDM data interpretation.
Summarize the following database query result into a clear, human-readable answer.

- Start with a direct answer to the question.
- Include the relevant numbers from the result.
- Note any obvious limitations of the data.
- Never invent values that are not in the result.`

// Prompts is the system prompt set for the generation, refinement and
// synthesis calls. Deployments may override individual prompts with a JSON
// file named by MEDA2A_PROMPTS_FILE.
type Prompts struct {
	SQLGenerator string `json:"sql_generator"`
	SQLRefiner   string `json:"sql_refiner"`
	Synthesizer  string `json:"synthesizer"`
}

// DefaultPrompts returns the stock OMOP prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		SQLGenerator: defaultSQLGeneratorPrompt,
		SQLRefiner:   defaultSQLRefinerPrompt,
		Synthesizer:  defaultSynthesizerPrompt,
	}
}

// LoadPrompts merges overrides from the MEDA2A_PROMPTS_FILE JSON file onto
// the defaults. A missing file is not an error; a malformed one is.
func LoadPrompts() (Prompts, error) {
	prompts := DefaultPrompts()
	path := strings.TrimSpace(os.Getenv("MEDA2A_PROMPTS_FILE"))
	if path == "" {
		return prompts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			common.Logger().Warn("sqlgen: prompts file not found, using defaults", "path", path)
			return prompts, nil
		}
		return prompts, fmt.Errorf("read prompts file: %w", err)
	}
	var overrides Prompts
	if err := json.Unmarshal(data, &overrides); err != nil {
		return prompts, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	if strings.TrimSpace(overrides.SQLGenerator) != "" {
		prompts.SQLGenerator = overrides.SQLGenerator
	}
	if strings.TrimSpace(overrides.SQLRefiner) != "" {
		prompts.SQLRefiner = overrides.SQLRefiner
	}
	if strings.TrimSpace(overrides.Synthesizer) != "" {
		prompts.Synthesizer = overrides.Synthesizer
	}
	common.Logger().Info("sqlgen: custom prompts loaded", "path", path)
	return prompts, nil
}
