package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vertzdev/vertz/pkg/schema"
)

// MemoryAdapter is the reference Adapter implementation: an in-memory,
// pk-ordered row store. It is the backing store for tests and small
// deployments, and it defines the pagination contract other adapters
// must match.
type MemoryAdapter struct {
	table *schema.Table
	mu    sync.RWMutex
	rows  map[string]Row
}

// NewMemoryAdapter creates an empty in-memory store for the given table
func NewMemoryAdapter(table *schema.Table) *MemoryAdapter {
	return &MemoryAdapter{
		table: table,
		rows:  make(map[string]Row),
	}
}

// Seed inserts rows directly, bypassing id generation. Intended for
// test and startup fixtures.
func (m *MemoryAdapter) Seed(rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := m.table.PrimaryKey()
	for _, row := range rows {
		id := fmt.Sprint(row[pk])
		m.rows[id] = CopyRow(row)
	}
}

func (m *MemoryAdapter) Get(ctx context.Context, id string) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return CopyRow(row), nil
}

func (m *MemoryAdapter) List(ctx context.Context, params ListParams) (*ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pk := m.table.PrimaryKey()

	var matched []Row
	for _, row := range m.rows {
		if matchesWhere(row, params.Where) {
			matched = append(matched, row)
		}
	}

	sortRows(matched, params.OrderBy, pk)

	total := len(matched)

	if params.After != "" {
		idx := 0
		for i, row := range matched {
			if fmt.Sprint(row[pk]) == params.After {
				idx = i + 1
				break
			}
			if compareValues(row[pk], params.After) > 0 {
				idx = i
				break
			}
			idx = i + 1
		}
		matched = matched[idx:]
	}

	if params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}

	data := make([]Row, len(matched))
	for i, row := range matched {
		data[i] = CopyRow(row)
	}

	return &ListResult{Data: data, Total: total}, nil
}

func (m *MemoryAdapter) Create(ctx context.Context, data Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk := m.table.PrimaryKey()
	row := CopyRow(data)
	if row == nil {
		row = make(Row)
	}
	if row[pk] == nil || fmt.Sprint(row[pk]) == "" {
		row[pk] = uuid.NewString()
	}

	id := fmt.Sprint(row[pk])
	if _, exists := m.rows[id]; exists {
		return nil, fmt.Errorf("row %s already exists in %s", id, m.table.Name())
	}

	m.rows[id] = row
	return CopyRow(row), nil
}

func (m *MemoryAdapter) Update(ctx context.Context, id string, data Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("row %s not found in %s", id, m.table.Name())
	}

	next := CopyRow(row)
	for k, v := range data {
		next[k] = v
	}
	m.rows[id] = next
	return CopyRow(next), nil
}

func (m *MemoryAdapter) Delete(ctx context.Context, id string) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	delete(m.rows, id)
	return CopyRow(row), nil
}

func matchesWhere(row Row, where Where) bool {
	for field, conds := range where {
		for op, want := range conds {
			if !matchesOp(row[field], op, want) {
				return false
			}
		}
	}
	return true
}

func matchesOp(have any, op string, want any) bool {
	switch op {
	case "eq":
		return equalValues(have, want)
	case "neq":
		return !equalValues(have, want)
	case "gt":
		return compareValues(have, want) > 0
	case "gte":
		return compareValues(have, want) >= 0
	case "lt":
		return compareValues(have, want) < 0
	case "lte":
		return compareValues(have, want) <= 0
	case "like":
		return matchesLike(fmt.Sprint(have), fmt.Sprint(want))
	case "in":
		list, ok := want.([]any)
		if !ok {
			return equalValues(have, want)
		}
		for _, item := range list {
			if equalValues(have, item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareValues orders numerically when both sides parse as numbers,
// falling back to string comparison.
func compareValues(a, b any) int {
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	af, errA := strconv.ParseFloat(as, 64)
	bf, errB := strconv.ParseFloat(bs, 64)
	if errA == nil && errB == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(as, bs)
}

// matchesLike implements SQL LIKE with % wildcards only
func matchesLike(value, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return value == pattern
	}

	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]

	last := parts[len(parts)-1]
	middle := parts[1 : len(parts)-1]

	for _, part := range middle {
		if part == "" {
			continue
		}
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}

	return strings.HasSuffix(value, last)
}

func sortRows(rows []Row, orderBy map[string]string, pk string) {
	// Deterministic key order for the orderBy map
	keys := make([]string, 0, len(orderBy))
	for k := range orderBy {
		if k != pk {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	sort.SliceStable(rows, func(i, j int) bool {
		for _, key := range keys {
			cmp := compareValues(rows[i][key], rows[j][key])
			if cmp == 0 {
				continue
			}
			if strings.EqualFold(orderBy[key], "desc") {
				return cmp > 0
			}
			return cmp < 0
		}
		return compareValues(rows[i][pk], rows[j][pk]) < 0
	})
}
