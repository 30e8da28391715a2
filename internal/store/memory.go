package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps tables in process memory. Used by tests and as the
// fallback when no store is configured; rows are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	tables  map[string][]Row
	writes  int
	failAll error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Row)}
}

// Writes reports how many mutating calls have been issued. Tests use
// it to prove that rejected trades touch nothing.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// FailWith makes every subsequent call return err. Pass nil to clear.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
}

// Seed replaces the contents of a table.
func (s *MemoryStore) Seed(table string, rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]Row, len(rows))
	for i, r := range rows {
		copied[i] = cloneRow(r)
	}
	s.tables[table] = copied
}

func (s *MemoryStore) Select(_ context.Context, table string, columns []string, q Query) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failAll != nil {
		return nil, s.failAll
	}

	var out []Row
	for _, row := range s.tables[table] {
		if matches(row, q.Eq) {
			out = append(out, projectRow(row, columns))
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := lessValue(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Desc {
				return !less && !equalValue(out[i][q.OrderBy], out[j][q.OrderBy])
			}
			return less
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, table string, payload Row) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	s.writes++

	row := cloneRow(payload)
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	s.tables[table] = append(s.tables[table], row)
	return cloneRow(row), nil
}

func (s *MemoryStore) Upsert(_ context.Context, table string, payload Row, conflictKeys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	s.writes++

	conds := make([]Cond, len(conflictKeys))
	for i, key := range conflictKeys {
		conds[i] = Eq(key, payload[key])
	}
	for _, row := range s.tables[table] {
		if matches(row, conds) {
			for k, v := range payload {
				row[k] = v
			}
			return nil
		}
	}
	row := cloneRow(payload)
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}
	s.tables[table] = append(s.tables[table], row)
	return nil
}

func (s *MemoryStore) Patch(_ context.Context, table string, q Query, payload Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	s.writes++

	for _, row := range s.tables[table] {
		if matches(row, q.Eq) {
			for k, v := range payload {
				row[k] = v
			}
		}
	}
	return nil
}

func matches(row Row, conds []Cond) bool {
	for _, cond := range conds {
		if !equalValue(row[cond.Column], cond.Value) {
			return false
		}
	}
	return true
}

func projectRow(row Row, columns []string) Row {
	if len(columns) == 0 {
		return cloneRow(row)
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

func cloneRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func equalValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return stringify(a) == stringify(b)
}

func lessValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	return stringify(a) < stringify(b)
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	default:
		return Row{"v": v}.String("v")
	}
}
