package entityspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertzdev/vertz/pkg/schema"
	"github.com/vertzdev/vertz/pkg/storage"
)

func filterTable(t *testing.T) *schema.Table {
	t.Helper()
	return schema.MustTable("users",
		schema.Column{Name: "id", Type: "string", Primary: true},
		schema.Column{Name: "email", Type: "string"},
		schema.Column{Name: "password_hash", Type: "string", Hidden: true},
		schema.Column{Name: "created_at", Type: "string", ReadOnly: true},
	)
}

func TestStripHidden(t *testing.T) {
	table := filterTable(t)
	row := storage.Row{"id": "u1", "email": "a@b.c", "password_hash": "secret"}

	out := StripHidden(table, row)
	assert.NotContains(t, out, "password_hash")
	assert.Equal(t, "a@b.c", out["email"])

	// Input untouched
	assert.Contains(t, row, "password_hash")

	assert.Nil(t, StripHidden(table, nil))
}

func TestStripReadOnly(t *testing.T) {
	table := filterTable(t)
	input := storage.Row{
		"id":            "attacker-chosen",
		"email":         "a@b.c",
		"created_at":    "2020-01-01",
		"password_hash": "writable",
		"unknown":       "passes",
	}

	out := StripReadOnly(table, input)
	assert.NotContains(t, out, "id", "primary key is never writable")
	assert.NotContains(t, out, "created_at")
	assert.Equal(t, "writable", out["password_hash"], "hidden but not read-only")
	assert.Equal(t, "passes", out["unknown"])

	assert.NotNil(t, StripReadOnly(table, nil))
}

func TestStripWhereHidden(t *testing.T) {
	table := filterTable(t)
	where := storage.Where{
		"email":         {"eq": "a@b.c"},
		"password_hash": {"eq": "secret"},
	}

	out := StripWhereHidden(table, where)
	assert.Contains(t, out, "email")
	assert.NotContains(t, out, "password_hash")
}

func relationDef(t *testing.T) *Definition {
	t.Helper()
	def, err := New("posts", schema.MustTable("posts",
		schema.Column{Name: "id", Primary: true},
	),
		WithAccess(OpList, AllowAll()),
		WithRelation("author", ExposeRelation("id", "name")),
		WithRelation("audit", HideRelation()),
	)
	require.NoError(t, err)
	return def
}

func TestNarrowRelations(t *testing.T) {
	def := relationDef(t)
	row := storage.Row{
		"id":     "p1",
		"author": map[string]any{"id": "u1", "name": "Ann", "email": "leak@example.com"},
		"audit":  map[string]any{"who": "root"},
		"tags":   []any{"a", "b"},
	}

	out := NarrowRelations(def, row)

	author := out["author"].(map[string]any)
	assert.Equal(t, "Ann", author["name"])
	assert.NotContains(t, author, "email")

	assert.NotContains(t, out, "audit", "hidden relation removed")
	assert.Equal(t, []any{"a", "b"}, out["tags"], "unconfigured keys pass through")
}

func TestNarrowRelationsList(t *testing.T) {
	def := relationDef(t)
	row := storage.Row{
		"id": "p1",
		"author": []any{
			map[string]any{"id": "u1", "name": "Ann", "email": "x"},
			map[string]any{"id": "u2", "name": "Bob", "email": "y"},
		},
	}

	out := NarrowRelations(def, row)
	list := out["author"].([]any)
	require.Len(t, list, 2)
	for _, item := range list {
		obj := item.(map[string]any)
		assert.NotContains(t, obj, "email")
	}
}

func TestApplyInclude(t *testing.T) {
	def := relationDef(t)
	row := storage.Row{
		"id":     "p1",
		"author": map[string]any{"id": "u1", "name": "Ann"},
	}

	// nil include leaves the row alone
	assert.Equal(t, row, ApplyInclude(def, nil, row))

	// relation not requested gets removed
	out := ApplyInclude(def, map[string][]string{}, row)
	assert.NotContains(t, out, "author")
	assert.Contains(t, out, "id")

	// requested with field narrowing
	out = ApplyInclude(def, map[string][]string{"author": {"name"}}, row)
	author := out["author"].(map[string]any)
	assert.Equal(t, map[string]any{"name": "Ann"}, author)
}

func TestApplySelect(t *testing.T) {
	row := storage.Row{"id": "u1", "email": "a@b.c", "role": "user"}

	out := ApplySelect([]string{"id", "email"}, row)
	assert.Equal(t, storage.Row{"id": "u1", "email": "a@b.c"}, out)

	assert.Equal(t, row, ApplySelect(nil, row))
	assert.Equal(t, row, ApplySelect([]string{}, row))

	out = ApplySelect([]string{"missing"}, row)
	assert.Empty(t, out)
}
