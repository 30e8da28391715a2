package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the same four primitives directly against
// Postgres. Supabase projects expose a database URL, so deployments
// can skip the REST hop; the wire shape of rows is kept identical by
// serializing each row through to_jsonb.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Select(ctx context.Context, table string, columns []string, q Query) ([]Row, error) {
	projection := "*"
	if len(columns) > 0 {
		projection = identList(columns)
	}
	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "SELECT to_jsonb(sub) FROM (SELECT %s FROM %s",
		projection, ident(table))
	appendWhere(&sb, &args, q.Eq)
	if q.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", ident(q.OrderBy))
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	sb.WriteString(") sub")

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		row, err := decodeRow(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *PostgresStore) Insert(ctx context.Context, table string, payload Row) (Row, error) {
	cols, args := payloadColumns(payload)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s AS t (%s) VALUES (%s) RETURNING to_jsonb(t)",
		ident(table), identList(cols), strings.Join(placeholders, ", "))

	var raw []byte
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeRow(raw)
}

func (s *PostgresStore) Upsert(ctx context.Context, table string, payload Row, conflictKeys ...string) error {
	cols, args := payloadColumns(payload)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	keySet := make(map[string]bool, len(conflictKeys))
	for _, k := range conflictKeys {
		keySet[k] = true
	}
	var updates []string
	for _, c := range cols {
		if !keySet[c] {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c)))
		}
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		ident(table), identList(cols), strings.Join(placeholders, ", "),
		identList(conflictKeys), strings.Join(updates, ", "))
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Patch(ctx context.Context, table string, q Query, payload Row) error {
	cols, args := payloadColumns(payload)
	var sets []string
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(c), i+1))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s SET %s", ident(table), strings.Join(sets, ", "))
	appendWhere(&sb, &args, q.Eq)
	if _, err := s.db.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func appendWhere(sb *strings.Builder, args *[]any, conds []Cond) {
	for i, cond := range conds {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		*args = append(*args, cond.Value)
		fmt.Fprintf(sb, "%s = $%d", ident(cond.Column), len(*args))
	}
}

// payloadColumns flattens a payload into parallel column and argument
// slices with a stable order.
func payloadColumns(payload Row) ([]string, []any) {
	cols := make([]string, 0, len(payload))
	for c := range payload {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = payload[c]
	}
	return cols, args
}

func decodeRow(raw []byte) (Row, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("%w: decode row: %v", ErrUnavailable, err)
	}
	return row, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func identList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = ident(n)
	}
	return strings.Join(parts, ", ")
}
