// Package store is the tabular persistence layer for the game. The
// canonical implementation speaks PostgREST to Supabase; a direct
// Postgres implementation and an in-memory implementation expose the
// same four primitives for deployments with a database URL and for
// tests respectively.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
)

// ErrUnavailable wraps every non-success response from the backing
// store. The raw response text travels with it for diagnostics.
var ErrUnavailable = errors.New("store unavailable")

// Row is one record as the store returns it. Numeric columns may
// arrive as JSON numbers or as strings depending on the source table,
// so readers go through the coercion helpers below.
type Row map[string]any

// Cond is a single equality condition on a column.
type Cond struct {
	Column string
	Value  any
}

// Eq builds an equality condition.
func Eq(column string, value any) Cond {
	return Cond{Column: column, Value: value}
}

// Query narrows a Select or Patch. Conditions are ANDed in order.
type Query struct {
	Eq      []Cond
	OrderBy string
	Desc    bool
	Limit   int
}

// Store is the read/write contract against the remote tabular store.
// Single attempt per call, no retries; callers see ErrUnavailable on
// any non-success response.
type Store interface {
	// Select returns the rows matching q, restricted to columns.
	Select(ctx context.Context, table string, columns []string, q Query) ([]Row, error)

	// Insert appends one row and returns it with server-assigned fields.
	Insert(ctx context.Context, table string, payload Row) (Row, error)

	// Upsert inserts payload or merges it into the row sharing the
	// conflict key values.
	Upsert(ctx context.Context, table string, payload Row, conflictKeys ...string) error

	// Patch applies payload to every row matching q.
	Patch(ctx context.Context, table string, q Query, payload Row) error
}

// String returns the named column as a string, or "" when absent.
func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return ""
	}
}

// Float returns the named column as a float64, coercing string and
// json.Number encodings. Missing or unparseable values are 0.
func (r Row) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
