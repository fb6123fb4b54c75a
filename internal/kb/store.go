package kb

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store holds schema facts and join paths for the target database. Writes
// follow a per-(table, column) last-write-wins rule keyed on the fact's
// UpdatedAt, so concurrent invalidation and re-recording of the same key
// resolve to the newest observation. Reads take a shared lock and may serve
// a snapshot that is slightly behind in-flight writes.
type Store struct {
	mu    sync.RWMutex
	facts map[string]SchemaFact
	joins []JoinPath
}

func NewStore() *Store {
	return &Store{facts: make(map[string]SchemaFact)}
}

func factKey(table, column string) string {
	return strings.ToLower(strings.TrimSpace(table)) + "." + strings.ToLower(strings.TrimSpace(column))
}

// RecordFact inserts or updates a fact. A zero UpdatedAt is stamped with
// the current time. Older timestamps never overwrite newer ones.
func (s *Store) RecordFact(fact SchemaFact) {
	fact.Table = strings.ToLower(strings.TrimSpace(fact.Table))
	fact.Column = strings.ToLower(strings.TrimSpace(fact.Column))
	if fact.Table == "" || fact.Column == "" {
		return
	}
	if fact.UpdatedAt.IsZero() {
		fact.UpdatedAt = time.Now()
	}
	key := factKey(fact.Table, fact.Column)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.facts[key]; ok && existing.UpdatedAt.After(fact.UpdatedAt) {
		return
	}
	s.facts[key] = fact
}

// Invalidate marks a (table, column) as absent. The column may be empty to
// mark the whole table absent. Last-write-wins applies as for RecordFact.
func (s *Store) Invalidate(table, column string) {
	table = strings.ToLower(strings.TrimSpace(table))
	column = strings.ToLower(strings.TrimSpace(column))
	if table == "" {
		return
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if column == "" {
		// Whole table: flip every known fact for it.
		for key, fact := range s.facts {
			if fact.Table != table {
				continue
			}
			if fact.UpdatedAt.After(now) {
				continue
			}
			fact.Absent = true
			fact.UpdatedAt = now
			s.facts[key] = fact
		}
		return
	}
	key := factKey(table, column)
	fact, ok := s.facts[key]
	if ok && fact.UpdatedAt.After(now) {
		return
	}
	if !ok {
		fact = SchemaFact{Table: table, Column: column}
	}
	fact.Absent = true
	fact.UpdatedAt = now
	s.facts[key] = fact
}

// Valid reports whether the (table, column) is known and not invalidated.
func (s *Store) Valid(table, column string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fact, ok := s.facts[factKey(table, column)]
	return ok && !fact.Absent
}

// TableKnown reports whether any valid fact references the table.
func (s *Store) TableKnown(table string) bool {
	table = strings.ToLower(strings.TrimSpace(table))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fact := range s.facts {
		if fact.Table == table && !fact.Absent {
			return true
		}
	}
	return false
}

// LookupTables returns the valid facts whose table or column name overlaps
// any of the keywords. Results are sorted by table then column, so repeated
// lookups with the same keywords and no intervening writes are identical.
func (s *Store) LookupTables(keywords []string) []SchemaFact {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SchemaFact
	for _, fact := range s.facts {
		if fact.Absent {
			continue
		}
		if matchesAny(fact, normalized) {
			out = append(out, fact)
		}
	}
	sortFacts(out)
	return out
}

func matchesAny(fact SchemaFact, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(fact.Table, kw) || strings.Contains(kw, fact.Table) ||
			strings.Contains(fact.Column, kw) {
			return true
		}
	}
	return false
}

func sortFacts(facts []SchemaFact) {
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].Table != facts[j].Table {
			return facts[i].Table < facts[j].Table
		}
		return facts[i].Column < facts[j].Column
	})
}

// RecordJoinPath caches a join path. Both endpoints must reference known
// tables; paths that dangle are rejected.
func (s *Store) RecordJoinPath(path JoinPath) error {
	if len(path.Steps) < 2 {
		return fmt.Errorf("join path needs at least two steps")
	}
	for i := range path.Steps {
		path.Steps[i].Table = strings.ToLower(strings.TrimSpace(path.Steps[i].Table))
		path.Steps[i].Column = strings.ToLower(strings.TrimSpace(path.Steps[i].Column))
	}
	from, to := path.Endpoints()
	if !s.TableKnown(from) || !s.TableKnown(to) {
		return fmt.Errorf("join path endpoints %s and %s must reference known tables", from, to)
	}
	if path.UpdatedAt.IsZero() {
		path.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.joins {
		ef, et := existing.Endpoints()
		if ef == from && et == to && len(existing.Steps) == len(path.Steps) {
			if existing.UpdatedAt.After(path.UpdatedAt) {
				return nil
			}
			s.joins[i] = path
			return nil
		}
	}
	s.joins = append(s.joins, path)
	return nil
}

// JoinPathBetween returns the cached path connecting two tables, in either
// direction, or false when none is known.
func (s *Store) JoinPathBetween(from, to string) (JoinPath, bool) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, path := range s.joins {
		f, t := path.Endpoints()
		if (f == from && t == to) || (f == to && t == from) {
			return path, true
		}
	}
	return JoinPath{}, false
}

// Facts returns every stored fact, including absent ones, sorted. Used by
// persistence and the world-model inspection endpoint.
func (s *Store) Facts() []SchemaFact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SchemaFact, 0, len(s.facts))
	for _, fact := range s.facts {
		out = append(out, fact)
	}
	sortFacts(out)
	return out
}

// JoinPaths returns a copy of every cached join path.
func (s *Store) JoinPaths() []JoinPath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JoinPath, len(s.joins))
	for i, path := range s.joins {
		steps := make([]JoinStep, len(path.Steps))
		copy(steps, path.Steps)
		out[i] = JoinPath{Steps: steps, UpdatedAt: path.UpdatedAt}
	}
	return out
}

// Snapshot captures a read-only view for prompt construction. The snapshot
// does not track later writes; the loop takes a fresh one per attempt.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{facts: s.Facts(), joins: s.JoinPaths()}
}

// Snapshot is an immutable view of the store at a point in time.
type Snapshot struct {
	facts []SchemaFact
	joins []JoinPath
}

// Facts returns the snapshot's valid facts.
func (s *Snapshot) Facts() []SchemaFact {
	out := make([]SchemaFact, 0, len(s.facts))
	for _, fact := range s.facts {
		if !fact.Absent {
			out = append(out, fact)
		}
	}
	return out
}

// AbsentColumns returns "table.column" names proven not to exist, for the
// prompt's avoid-list.
func (s *Snapshot) AbsentColumns() []string {
	var out []string
	for _, fact := range s.facts {
		if fact.Absent {
			out = append(out, fact.Table+"."+fact.Column)
		}
	}
	sort.Strings(out)
	return out
}

// RelevantTables groups valid facts by table, keeping tables whose name or
// columns overlap the keywords, to bound prompt size. The person and
// concept tables are always included when known; nearly every OMOP query
// joins through them.
func (s *Snapshot) RelevantTables(keywords []string) map[string][]SchemaFact {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if len(kw) >= 3 {
			normalized = append(normalized, kw)
		}
	}
	grouped := make(map[string][]SchemaFact)
	for _, fact := range s.facts {
		if fact.Absent {
			continue
		}
		grouped[fact.Table] = append(grouped[fact.Table], fact)
	}
	out := make(map[string][]SchemaFact)
	for table, facts := range grouped {
		if table == "person" || table == "concept" {
			out[table] = facts
			continue
		}
		for _, fact := range facts {
			if matchesAny(fact, normalized) {
				out[table] = facts
				break
			}
		}
	}
	for _, facts := range out {
		sortFacts(facts)
	}
	return out
}

// JoinPathsFor returns cached join paths whose endpoints are both in the
// given table set.
func (s *Snapshot) JoinPathsFor(tables map[string][]SchemaFact) []JoinPath {
	var out []JoinPath
	for _, path := range s.joins {
		from, to := path.Endpoints()
		if _, ok := tables[from]; !ok {
			continue
		}
		if _, ok := tables[to]; !ok {
			continue
		}
		out = append(out, path)
	}
	return out
}
