package storage

import (
	"context"
)

// Row is the engine's record shape. The entity engine is schema-driven,
// not struct-driven, so rows travel as maps end to end.
type Row = map[string]any

// Where is a per-field condition map: field -> operator -> value.
// Plain equality uses the "eq" operator. Supported operators mirror the
// usual SQL comparison set: eq, neq, gt, gte, lt, lte, like, in.
type Where = map[string]map[string]any

// ListParams carries the storage-visible slice of a list request.
//
// Adapters must return rows ordered by ascending primary key (custom
// OrderBy keys sort before the primary-key tiebreak) and must treat After
// as an exclusive lower bound on the primary key. Cursor pagination
// depends on this contract.
type ListParams struct {
	Where   Where
	OrderBy map[string]string // field -> "asc" | "desc"
	Limit   int               // 0 means no limit
	After   string            // exclusive primary-key cursor, "" means from the start
}

// ListResult is the raw page plus the total count of the filtered set
// before Limit/After were applied.
type ListResult struct {
	Data  []Row
	Total int
}

// Adapter executes single-row and list operations against a backing
// store. Each call is atomic; the engine adds no transactional wrapping.
//
// Get and Delete return a nil Row (and nil error) when no row matches.
type Adapter interface {
	Get(ctx context.Context, id string) (Row, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Create(ctx context.Context, data Row) (Row, error)
	Update(ctx context.Context, id string, data Row) (Row, error)
	Delete(ctx context.Context, id string) (Row, error)
}

// CopyRow returns a shallow copy so callers never mutate shared rows
func CopyRow(row Row) Row {
	if row == nil {
		return nil
	}
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
