package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/uptrace/bun"

	"github.com/vertzdev/vertz/pkg/logger"
	"github.com/vertzdev/vertz/pkg/schema"
)

// BunAdapter implements Adapter on top of a *bun.DB, reading and writing
// map rows against the schema's table.
type BunAdapter struct {
	db    *bun.DB
	table *schema.Table
}

// NewBunAdapter creates a Bun-backed adapter for the given table
func NewBunAdapter(db *bun.DB, table *schema.Table) *BunAdapter {
	return &BunAdapter{db: db, table: table}
}

func (b *BunAdapter) Get(ctx context.Context, id string) (Row, error) {
	row := make(Row)
	err := b.db.NewSelect().
		Table(b.table.Name()).
		Where(fmt.Sprintf("%s = ?", b.table.PrimaryKey()), id).
		Limit(1).
		Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bun get %s/%s: %w", b.table.Name(), id, err)
	}
	return row, nil
}

func (b *BunAdapter) List(ctx context.Context, params ListParams) (*ListResult, error) {
	base := b.db.NewSelect().Table(b.table.Name())
	base = b.applyWhere(base, params.Where)

	total, err := base.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("bun count %s: %w", b.table.Name(), err)
	}

	query := b.db.NewSelect().Table(b.table.Name())
	query = b.applyWhere(query, params.Where)

	if params.After != "" {
		query = query.Where(fmt.Sprintf("%s > ?", b.table.PrimaryKey()), params.After)
	}

	for _, key := range sortedKeys(params.OrderBy) {
		dir := "ASC"
		if strings.EqualFold(params.OrderBy[key], "desc") {
			dir = "DESC"
		}
		query = query.Order(fmt.Sprintf("%s %s", key, dir))
	}
	// Primary-key tiebreak keeps the cursor contract stable
	query = query.Order(fmt.Sprintf("%s ASC", b.table.PrimaryKey()))

	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}

	var rows []Row
	if err := query.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("bun list %s: %w", b.table.Name(), err)
	}

	return &ListResult{Data: rows, Total: total}, nil
}

func (b *BunAdapter) Create(ctx context.Context, data Row) (Row, error) {
	row := CopyRow(data)
	_, err := b.db.NewInsert().
		Model(&row).
		TableExpr(b.table.Name()).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("bun create %s: %w", b.table.Name(), err)
	}
	return b.Get(ctx, fmt.Sprint(row[b.table.PrimaryKey()]))
}

func (b *BunAdapter) Update(ctx context.Context, id string, data Row) (Row, error) {
	values := CopyRow(data)
	_, err := b.db.NewUpdate().
		Model(&values).
		TableExpr(b.table.Name()).
		Where(fmt.Sprintf("%s = ?", b.table.PrimaryKey()), id).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("bun update %s/%s: %w", b.table.Name(), id, err)
	}
	return b.Get(ctx, id)
}

func (b *BunAdapter) Delete(ctx context.Context, id string) (Row, error) {
	row, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	_, err = b.db.NewDelete().
		Table(b.table.Name()).
		Where(fmt.Sprintf("%s = ?", b.table.PrimaryKey()), id).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("bun delete %s/%s: %w", b.table.Name(), id, err)
	}
	return row, nil
}

func (b *BunAdapter) applyWhere(query *bun.SelectQuery, where Where) *bun.SelectQuery {
	for _, field := range sortedConditionKeys(where) {
		if !b.table.HasColumn(field) {
			logger.Warn("Skipping filter on unknown column %s.%s", b.table.Name(), field)
			continue
		}
		for op, value := range where[field] {
			query = applyBunFilter(query, field, op, value)
		}
	}
	return query
}

func applyBunFilter(query *bun.SelectQuery, column, op string, value any) *bun.SelectQuery {
	switch op {
	case "eq":
		return query.Where(fmt.Sprintf("%s = ?", column), value)
	case "neq":
		return query.Where(fmt.Sprintf("%s != ?", column), value)
	case "gt":
		return query.Where(fmt.Sprintf("%s > ?", column), value)
	case "gte":
		return query.Where(fmt.Sprintf("%s >= ?", column), value)
	case "lt":
		return query.Where(fmt.Sprintf("%s < ?", column), value)
	case "lte":
		return query.Where(fmt.Sprintf("%s <= ?", column), value)
	case "like":
		return query.Where(fmt.Sprintf("%s LIKE ?", column), value)
	case "in":
		if list, ok := value.([]any); ok {
			return query.Where(fmt.Sprintf("%s IN (?)", column), bun.In(list))
		}
		return query.Where(fmt.Sprintf("%s = ?", column), value)
	default:
		logger.Warn("Skipping filter with unknown operator %q on %s", op, column)
		return query
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedConditionKeys(where Where) []string {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
