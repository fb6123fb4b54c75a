package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fastomop/medA2A-implementation/internal/kb"
	"github.com/fastomop/medA2A-implementation/internal/template"
)

type factRow struct {
	TableName  string    `db:"table_name"`
	ColumnName string    `db:"column_name"`
	DataType   string    `db:"data_type"`
	Nullable   bool      `db:"nullable"`
	Role       string    `db:"role"`
	Absent     bool      `db:"absent"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type joinRow struct {
	FromTable string    `db:"from_table"`
	ToTable   string    `db:"to_table"`
	Steps     string    `db:"steps"`
	UpdatedAt time.Time `db:"updated_at"`
}

type statRow struct {
	Name      string `db:"name"`
	Successes int    `db:"successes"`
}

// SaveWorldModel writes the knowledge base and template counters in one
// transaction. Absent facts are persisted too; they are lessons.
func (s *Store) SaveWorldModel(ctx context.Context, world *kb.Store, templates *template.Library) error {
	if s == nil || s.db == nil {
		return errors.New("world model store not initialised")
	}
	facts := world.Facts()
	joins := world.JoinPaths()
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, fact := range facts {
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_facts
				(table_name, column_name, data_type, nullable, role, absent, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (table_name, column_name) DO UPDATE SET
					data_type = excluded.data_type,
					nullable = excluded.nullable,
					role = excluded.role,
					absent = excluded.absent,
					updated_at = excluded.updated_at
				WHERE excluded.updated_at >= schema_facts.updated_at`,
				fact.Table, fact.Column, fact.DataType, fact.Nullable, fact.Role, fact.Absent, fact.UpdatedAt,
			); err != nil {
				return fmt.Errorf("persist fact %s.%s: %w", fact.Table, fact.Column, err)
			}
		}
		for _, path := range joins {
			steps, err := json.Marshal(path.Steps)
			if err != nil {
				return fmt.Errorf("encode join path: %w", err)
			}
			from, to := path.Endpoints()
			if _, err := tx.ExecContext(ctx, `INSERT INTO join_paths
				(from_table, to_table, steps, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (from_table, to_table, steps) DO UPDATE SET
					updated_at = excluded.updated_at`,
				from, to, string(steps), path.UpdatedAt,
			); err != nil {
				return fmt.Errorf("persist join path %s->%s: %w", from, to, err)
			}
		}
		if templates != nil {
			for name, count := range templates.Successes() {
				if _, err := tx.ExecContext(ctx, `INSERT INTO template_stats (name, successes)
					VALUES (?, ?)
					ON CONFLICT (name) DO UPDATE SET successes = excluded.successes`,
					name, count,
				); err != nil {
					return fmt.Errorf("persist template stat %s: %w", name, err)
				}
			}
		}
		return nil
	})
}

// LoadWorldModel replays persisted facts, join paths and template counters
// into the given stores. Facts load before join paths so path endpoint
// validation sees the tables. Round-tripping preserves lookup results.
func (s *Store) LoadWorldModel(ctx context.Context, world *kb.Store, templates *template.Library) error {
	if s == nil || s.db == nil {
		return errors.New("world model store not initialised")
	}
	facts := []factRow{}
	if err := s.db.SelectContext(ctx, &facts, `SELECT table_name, column_name, data_type, nullable, role, absent, updated_at
		FROM schema_facts ORDER BY table_name, column_name`); err != nil {
		return fmt.Errorf("load schema facts: %w", err)
	}
	for _, row := range facts {
		fact := kb.SchemaFact{
			Table:     row.TableName,
			Column:    row.ColumnName,
			DataType:  row.DataType,
			Nullable:  row.Nullable,
			Role:      row.Role,
			Absent:    row.Absent,
			UpdatedAt: row.UpdatedAt,
		}
		world.RecordFact(fact)
	}

	joins := []joinRow{}
	if err := s.db.SelectContext(ctx, &joins, `SELECT from_table, to_table, steps, updated_at
		FROM join_paths ORDER BY from_table, to_table`); err != nil {
		return fmt.Errorf("load join paths: %w", err)
	}
	for _, row := range joins {
		var steps []kb.JoinStep
		if err := json.Unmarshal([]byte(row.Steps), &steps); err != nil {
			return fmt.Errorf("decode join path %s->%s: %w", row.FromTable, row.ToTable, err)
		}
		path := kb.JoinPath{Steps: steps, UpdatedAt: row.UpdatedAt}
		if err := world.RecordJoinPath(path); err != nil {
			// Endpoint tables may have been invalidated since the path was
			// cached; skip rather than fail the whole load.
			continue
		}
	}

	if templates != nil {
		stats := []statRow{}
		if err := s.db.SelectContext(ctx, &stats, `SELECT name, successes FROM template_stats ORDER BY name`); err != nil {
			return fmt.Errorf("load template stats: %w", err)
		}
		for _, row := range stats {
			templates.RestoreSuccess(row.Name, row.Successes)
		}
	}
	return nil
}
