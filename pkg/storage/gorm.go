package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/vertzdev/vertz/pkg/logger"
	"github.com/vertzdev/vertz/pkg/schema"
)

// GormAdapter implements Adapter on top of a *gorm.DB, reading and
// writing map rows against the schema's table.
type GormAdapter struct {
	db    *gorm.DB
	table *schema.Table
}

// NewGormAdapter creates a GORM-backed adapter for the given table
func NewGormAdapter(db *gorm.DB, table *schema.Table) *GormAdapter {
	return &GormAdapter{db: db, table: table}
}

func (g *GormAdapter) Get(ctx context.Context, id string) (Row, error) {
	row := make(Row)
	err := g.db.WithContext(ctx).
		Table(g.table.Name()).
		Where(fmt.Sprintf("%s = ?", g.table.PrimaryKey()), id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gorm get %s/%s: %w", g.table.Name(), id, err)
	}
	return row, nil
}

func (g *GormAdapter) List(ctx context.Context, params ListParams) (*ListResult, error) {
	base := g.applyWhere(g.db.WithContext(ctx).Table(g.table.Name()), params.Where)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("gorm count %s: %w", g.table.Name(), err)
	}

	query := g.applyWhere(g.db.WithContext(ctx).Table(g.table.Name()), params.Where)

	if params.After != "" {
		query = query.Where(fmt.Sprintf("%s > ?", g.table.PrimaryKey()), params.After)
	}

	for _, key := range sortedKeys(params.OrderBy) {
		dir := "ASC"
		if strings.EqualFold(params.OrderBy[key], "desc") {
			dir = "DESC"
		}
		query = query.Order(fmt.Sprintf("%s %s", key, dir))
	}
	query = query.Order(fmt.Sprintf("%s ASC", g.table.PrimaryKey()))

	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}

	var rows []Row
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm list %s: %w", g.table.Name(), err)
	}

	return &ListResult{Data: rows, Total: int(total)}, nil
}

func (g *GormAdapter) Create(ctx context.Context, data Row) (Row, error) {
	row := CopyRow(data)
	err := g.db.WithContext(ctx).Table(g.table.Name()).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("gorm create %s: %w", g.table.Name(), err)
	}
	return g.Get(ctx, fmt.Sprint(row[g.table.PrimaryKey()]))
}

func (g *GormAdapter) Update(ctx context.Context, id string, data Row) (Row, error) {
	err := g.db.WithContext(ctx).
		Table(g.table.Name()).
		Where(fmt.Sprintf("%s = ?", g.table.PrimaryKey()), id).
		Updates(CopyRow(data)).Error
	if err != nil {
		return nil, fmt.Errorf("gorm update %s/%s: %w", g.table.Name(), id, err)
	}
	return g.Get(ctx, id)
}

func (g *GormAdapter) Delete(ctx context.Context, id string) (Row, error) {
	row, err := g.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	err = g.db.WithContext(ctx).
		Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", g.table.Name(), g.table.PrimaryKey()), id).Error
	if err != nil {
		return nil, fmt.Errorf("gorm delete %s/%s: %w", g.table.Name(), id, err)
	}
	return row, nil
}

func (g *GormAdapter) applyWhere(query *gorm.DB, where Where) *gorm.DB {
	for _, field := range sortedConditionKeys(where) {
		if !g.table.HasColumn(field) {
			logger.Warn("Skipping filter on unknown column %s.%s", g.table.Name(), field)
			continue
		}
		for op, value := range where[field] {
			query = applyGormFilter(query, field, op, value)
		}
	}
	return query
}

func applyGormFilter(query *gorm.DB, column, op string, value any) *gorm.DB {
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
		return query.Where(fmt.Sprintf("%s IN ?", column), value)
	default:
		logger.Warn("Skipping filter with unknown operator %q on %s", op, column)
		return query
	}
}
