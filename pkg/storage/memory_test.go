package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertzdev/vertz/pkg/schema"
)

func userTable(t *testing.T) *schema.Table {
	t.Helper()
	return schema.MustTable("users",
		schema.Column{Name: "id", Type: "string", Primary: true},
		schema.Column{Name: "email", Type: "string"},
		schema.Column{Name: "age", Type: "number"},
	)
}

func seededAdapter(t *testing.T) *MemoryAdapter {
	adapter := NewMemoryAdapter(userTable(t))
	adapter.Seed(
		Row{"id": "u1", "email": "a@example.com", "age": 30},
		Row{"id": "u2", "email": "b@example.com", "age": 25},
		Row{"id": "u3", "email": "c@other.com", "age": 35},
	)
	return adapter
}

func TestMemoryGet(t *testing.T) {
	adapter := seededAdapter(t)
	ctx := context.Background()

	row, err := adapter.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", row["email"])

	// Missing rows are nil, nil
	row, err = adapter.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestMemoryListOrdering(t *testing.T) {
	adapter := seededAdapter(t)

	result, err := adapter.List(context.Background(), ListParams{})
	require.NoError(t, err)
	require.Len(t, result.Data, 3)
	assert.Equal(t, 3, result.Total)

	// Default order is primary key ascending
	assert.Equal(t, "u1", result.Data[0]["id"])
	assert.Equal(t, "u2", result.Data[1]["id"])
	assert.Equal(t, "u3", result.Data[2]["id"])

	result, err = adapter.List(context.Background(), ListParams{
		OrderBy: map[string]string{"age": "desc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "u3", result.Data[0]["id"])
	assert.Equal(t, "u1", result.Data[1]["id"])
	assert.Equal(t, "u2", result.Data[2]["id"])
}

func TestMemoryListWhere(t *testing.T) {
	adapter := seededAdapter(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		where Where
		ids   []string
	}{
		{"eq", Where{"email": {"eq": "a@example.com"}}, []string{"u1"}},
		{"neq", Where{"email": {"neq": "a@example.com"}}, []string{"u2", "u3"}},
		{"gt", Where{"age": {"gt": 25}}, []string{"u1", "u3"}},
		{"gte", Where{"age": {"gte": 30}}, []string{"u1", "u3"}},
		{"lt", Where{"age": {"lt": 30}}, []string{"u2"}},
		{"lte", Where{"age": {"lte": 30}}, []string{"u1", "u2"}},
		{"like", Where{"email": {"like": "%@example.com"}}, []string{"u1", "u2"}},
		{"in", Where{"id": {"in": []any{"u1", "u3"}}}, []string{"u1", "u3"}},
		{"range", Where{"age": {"gte": 25, "lt": 35}}, []string{"u1", "u2"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := adapter.List(ctx, ListParams{Where: tc.where})
			require.NoError(t, err)
			got := make([]string, len(result.Data))
			for i, row := range result.Data {
				got[i] = row["id"].(string)
			}
			assert.Equal(t, tc.ids, got)
		})
	}
}

func TestMemoryListPagination(t *testing.T) {
	adapter := seededAdapter(t)
	ctx := context.Background()

	// Total counts all matches before the limit is applied
	result, err := adapter.List(ctx, ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, result.Data, 2)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, "u1", result.Data[0]["id"])
	assert.Equal(t, "u2", result.Data[1]["id"])

	// After is an exclusive lower bound on the primary key
	result, err = adapter.List(ctx, ListParams{Limit: 2, After: "u2"})
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "u3", result.Data[0]["id"])

	// Past the end
	result, err = adapter.List(ctx, ListParams{Limit: 2, After: "u3"})
	require.NoError(t, err)
	assert.Empty(t, result.Data)
}

func TestMemoryCreate(t *testing.T) {
	adapter := seededAdapter(t)
	ctx := context.Background()

	row, err := adapter.Create(ctx, Row{"id": "u4", "email": "d@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "u4", row["id"])

	_, err = adapter.Create(ctx, Row{"id": "u4"})
	assert.Error(t, err, "duplicate primary key")

	// Missing pk gets generated
	row, err = adapter.Create(ctx, Row{"email": "e@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, row["id"])
}

func TestMemoryUpdateAndDelete(t *testing.T) {
	adapter := seededAdapter(t)
	ctx := context.Background()

	row, err := adapter.Update(ctx, "u1", Row{"email": "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", row["email"])
	assert.Equal(t, 30, row["age"], "untouched fields survive a partial update")

	_, err = adapter.Update(ctx, "nope", Row{"email": "x"})
	assert.Error(t, err)

	removed, err := adapter.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", removed["email"])

	gone, err := adapter.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	missing, err := adapter.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryRowsAreCopies(t *testing.T) {
	adapter := seededAdapter(t)
	ctx := context.Background()

	row, err := adapter.Get(ctx, "u1")
	require.NoError(t, err)
	row["email"] = "mutated"

	again, err := adapter.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", again["email"])
}

func TestMatchesLike(t *testing.T) {
	assert.True(t, matchesLike("hello world", "hello%"))
	assert.True(t, matchesLike("hello world", "%world"))
	assert.True(t, matchesLike("hello world", "%lo wo%"))
	assert.True(t, matchesLike("hello", "hello"))
	assert.False(t, matchesLike("hello", "world"))
	assert.False(t, matchesLike("hello", "hello%x"))
}
