package entityspec

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertzdev/vertz/pkg/apierror"
	"github.com/vertzdev/vertz/pkg/schema"
	"github.com/vertzdev/vertz/pkg/storage"
	"github.com/vertzdev/vertz/pkg/vertzql"
)

func crudTable(t *testing.T) *schema.Table {
	t.Helper()
	return schema.MustTable("users",
		schema.Column{Name: "id", Type: "string", Primary: true},
		schema.Column{Name: "email", Type: "string"},
		schema.Column{Name: "role", Type: "string"},
		schema.Column{Name: "password_hash", Type: "string", Hidden: true},
	)
}

// buildEntity registers one entity on a fresh registry with a seeded
// memory store and returns its pipeline plus a context helper.
func buildEntity(t *testing.T, opts ...Option) (*Pipeline, *Registry, *MemoryFixture) {
	t.Helper()
	table := crudTable(t)
	def, err := New("users", table, opts...)
	require.NoError(t, err)

	adapter := storage.NewMemoryAdapter(table)
	adapter.Seed(
		storage.Row{"id": "u1", "email": "a@example.com", "role": "user", "password_hash": "h1"},
		storage.Row{"id": "u2", "email": "b@example.com", "role": "user", "password_hash": "h2"},
		storage.Row{"id": "u3", "email": "c@example.com", "role": "admin", "password_hash": "h3"},
	)

	registry := NewRegistry()
	entity, err := registry.Register(def, adapter)
	require.NoError(t, err)

	return NewPipeline(entity), registry, &MemoryFixture{def: def, registry: registry, entity: entity}
}

type MemoryFixture struct {
	def      *Definition
	registry *Registry
	entity   *Entity
}

func (f *MemoryFixture) ctx(identity Identity) *RequestContext {
	return NewRequestContext(context.Background(), identity, f.entity.Ops(), f.registry.ScopedFor(f.def))
}

func TestListDenyByDefault(t *testing.T) {
	// No access rules at all: every operation is forbidden.
	pipeline, _, fx := buildEntity(t)
	rc := fx.ctx(Identity{UserID: "u1"})

	_, apiErr := pipeline.List(rc, nil)
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.CodeForbidden, apiErr.Code)

	_, apiErr = pipeline.Create(rc, storage.Row{"email": "x@example.com"})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.CodeForbidden, apiErr.Code)
}

func TestDisabledOperationAnswers405(t *testing.T) {
	pipeline, _, fx := buildEntity(t,
		WithAccess(OpDelete, Disabled()),
	)
	rc := fx.ctx(Identity{UserID: "u1", Roles: []string{"admin"}})

	_, apiErr := pipeline.Delete(rc, "u1")
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.CodeMethodNotAllowed, apiErr.Code)
	assert.Contains(t, apiErr.Message, "delete")
}

func TestListStripsHiddenColumns(t *testing.T) {
	pipeline, _, fx := buildEntity(t, WithAccess(OpList, AllowAll()))

	result, apiErr := pipeline.List(fx.ctx(Identity{}), nil)
	require.Nil(t, apiErr)

	body := result.Body.(*ListBody)
	require.Len(t, body.Data, 3)
	for _, row := range body.Data {
		assert.NotContains(t, row, "password_hash")
	}
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, DefaultLimit, body.Limit)
	assert.Nil(t, body.NextCursor, "short page has no cursor")
	assert.False(t, body.HasNextPage)
}

func TestListCursorWalk(t *testing.T) {
	pipeline, _, fx := buildEntity(t, WithAccess(OpList, AllowAll()))
	rc := fx.ctx(Identity{})

	opts := vertzql.NewOptions()
	opts.Limit = 2
	result, apiErr := pipeline.List(rc, opts)
	require.Nil(t, apiErr)

	body := result.Body.(*ListBody)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "u1", body.Data[0]["id"])
	assert.Equal(t, "u2", body.Data[1]["id"])
	require.NotNil(t, body.NextCursor)
	assert.Equal(t, "u2", *body.NextCursor)
	assert.True(t, body.HasNextPage)

	opts = vertzql.NewOptions()
	opts.Limit = 2
	opts.After = *body.NextCursor
	result, apiErr = pipeline.List(rc, opts)
	require.Nil(t, apiErr)

	body = result.Body.(*ListBody)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "u3", body.Data[0]["id"])
	assert.Nil(t, body.NextCursor, "partial page ends the walk")
	assert.False(t, body.HasNextPage)
}

func TestListCursorEndsOnFullFinalPage(t *testing.T) {
	pipeline, _, fx := buildEntity(t, WithAccess(OpList, AllowAll()))
	rc := fx.ctx(Identity{})

	// Walk three rows one at a time. The third page is full but the
	// collection is exhausted, so it must not hand out a cursor.
	after := ""
	for i, want := range []string{"u1", "u2", "u3"} {
		opts := vertzql.NewOptions()
		opts.Limit = 1
		opts.After = after
		result, apiErr := pipeline.List(rc, opts)
		require.Nil(t, apiErr)

		body := result.Body.(*ListBody)
		require.Len(t, body.Data, 1)
		assert.Equal(t, want, body.Data[0]["id"])
		if i < 2 {
			require.NotNil(t, body.NextCursor)
			assert.True(t, body.HasNextPage)
			after = *body.NextCursor
		} else {
			assert.Nil(t, body.NextCursor)
			assert.False(t, body.HasNextPage)
		}
	}
}

func TestListZeroLimitReturnsCountOnly(t *testing.T) {
	pipeline, _, fx := buildEntity(t, WithAccess(OpList, AllowAll()))
	rc := fx.ctx(Identity{})

	opts := vertzql.NewOptions()
	opts.Limit = 0
	result, apiErr := pipeline.List(rc, opts)
	require.Nil(t, apiErr)

	body := result.Body.(*ListBody)
	assert.Empty(t, body.Data)
	assert.Equal(t, 3, body.Total)
	assert.Nil(t, body.NextCursor)
}

func TestListHiddenWhereStrippedForTrustedCallers(t *testing.T) {
	pipeline, _, fx := buildEntity(t, WithAccess(OpList, AllowAll()))

	opts := vertzql.NewOptions()
	opts.Where["password_hash"] = map[string]any{"eq": "h1"}
	result, apiErr := pipeline.List(fx.ctx(Identity{}), opts)
	require.Nil(t, apiErr)

	// The condition is dropped, not applied: all rows come back.
	body := result.Body.(*ListBody)
	assert.Len(t, body.Data, 3)
}

func TestGetNotFoundBeforeAccess(t *testing.T) {
	pipeline, _, fx := buildEntity(t, WithAccess(OpGet, AllowAll()))

	_, apiErr := pipeline.Get(fx.ctx(Identity{}), "missing")
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.CodeNotFound, apiErr.Code)
}

func TestGetAccessSeesUnfilteredRow(t *testing.T) {
	var sawHash bool
	pipeline, _, fx := buildEntity(t,
		WithAccess(OpGet, Allow(func(rc *RequestContext, row storage.Row) (bool, error) {
			_, sawHash = row["password_hash"]
			return true, nil
		})),
	)

	result, apiErr := pipeline.Get(fx.ctx(Identity{}), "u1")
	require.Nil(t, apiErr)
	assert.True(t, sawHash, "access rules see the raw row")

	body := result.Body.(storage.Row)
	assert.NotContains(t, body, "password_hash")
	assert.Equal(t, "a@example.com", body["email"])
}

func TestCreateBeforeHookOverridesInput(t *testing.T) {
	pipeline, _, fx := buildEntity(t,
		WithAccess(OpCreate, AllowAll()),
		WithBeforeCreate(func(rc *RequestContext, input storage.Row) (storage.Row, error) {
			// Non-admin callers cannot pick a role.
			if !rc.HasRole("admin") {
				input["role"] = "user"
			}
			return input, nil
		}),
	)

	result, apiErr := pipeline.Create(fx.ctx(Identity{UserID: "u9"}), storage.Row{
		"id":    "u9",
		"email": "x@example.com",
		"role":  "admin",
	})
	require.Nil(t, apiErr)
	assert.Equal(t, http.StatusCreated, result.Status)

	body := result.Body.(storage.Row)
	assert.Equal(t, "user", body["role"])
}

func TestCreateBeforeHookTypedError(t *testing.T) {
	pipeline, _, fx := buildEntity(t,
		WithAccess(OpCreate, AllowAll()),
		WithBeforeCreate(func(rc *RequestContext, input storage.Row) (storage.Row, error) {
			return nil, apierror.Validation("invalid user", []apierror.FieldError{
				{Field: "email", Message: "email is required"},
			})
		}),
	)

	_, apiErr := pipeline.Create(fx.ctx(Identity{}), storage.Row{})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.CodeValidation, apiErr.Code)
	require.Len(t, apiErr.Details, 1)
	assert.Equal(t, "email", apiErr.Details[0].Field)
}

func TestUpdateOwnerAccess(t *testing.T) {
	owner := func(rc *RequestContext, row storage.Row) (bool, error) {
		return rc.UserID() == row["id"], nil
	}
	pipeline, _, fx := buildEntity(t, WithAccess(OpUpdate, Allow(owner)))

	_, apiErr := pipeline.Update(fx.ctx(Identity{UserID: "u2"}), "u1", storage.Row{"email": "new@example.com"})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.CodeForbidden, apiErr.Code)

	result, apiErr := pipeline.Update(fx.ctx(Identity{UserID: "u1"}), "u1", storage.Row{"email": "new@example.com"})
	require.Nil(t, apiErr)
	body := result.Body.(storage.Row)
	assert.Equal(t, "new@example.com", body["email"])
	assert.NotContains(t, body, "password_hash")
}

func TestUpdateIgnoresPrimaryKeyInInput(t *testing.T) {
	pipeline, _, fx := buildEntity(t, WithAccess(OpUpdate, AllowAll()))

	result, apiErr := pipeline.Update(fx.ctx(Identity{}), "u1", storage.Row{
		"id":    "u99",
		"email": "new@example.com",
	})
	require.Nil(t, apiErr)
	body := result.Body.(storage.Row)
	assert.Equal(t, "u1", body["id"])
}

func TestDeleteFlow(t *testing.T) {
	var deleted storage.Row
	pipeline, _, fx := buildEntity(t,
		WithAccess(OpDelete, AllowAll()),
		WithAfterDelete(func(rc *RequestContext, row storage.Row) error {
			deleted = row
			return nil
		}),
	)

	result, apiErr := pipeline.Delete(fx.ctx(Identity{}), "u1")
	require.Nil(t, apiErr)
	assert.Equal(t, http.StatusNoContent, result.Status)
	assert.Nil(t, result.Body)

	require.NotNil(t, deleted, "after-hook ran")
	assert.Equal(t, "u1", deleted["id"])
	assert.NotContains(t, deleted, "password_hash")

	_, apiErr = pipeline.Delete(fx.ctx(Identity{}), "u1")
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.CodeNotFound, apiErr.Code)
}

func TestAfterHookFailureDoesNotAffectResponse(t *testing.T) {
	pipeline, _, fx := buildEntity(t,
		WithAccess(OpCreate, AllowAll()),
		WithAfterCreate(func(rc *RequestContext, row storage.Row) error {
			panic("hook exploded")
		}),
	)

	result, apiErr := pipeline.Create(fx.ctx(Identity{}), storage.Row{"id": "u9", "email": "x@example.com"})
	require.Nil(t, apiErr)
	assert.Equal(t, http.StatusCreated, result.Status)
}

func TestAfterUpdateHookSeesFilteredImages(t *testing.T) {
	var prevHash, nextHash bool
	pipeline, _, fx := buildEntity(t,
		WithAccess(OpUpdate, AllowAll()),
		WithAfterUpdate(func(rc *RequestContext, prev, next storage.Row) error {
			_, prevHash = prev["password_hash"]
			_, nextHash = next["password_hash"]
			return nil
		}),
	)

	_, apiErr := pipeline.Update(fx.ctx(Identity{}), "u1", storage.Row{"email": "n@example.com"})
	require.Nil(t, apiErr)
	assert.False(t, prevHash)
	assert.False(t, nextHash)
}

func TestActionPipeline(t *testing.T) {
	pipeline, _, fx := buildEntity(t,
		WithAccess(Operation("promote"), Allow(func(rc *RequestContext, row storage.Row) (bool, error) {
			return rc.HasRole("admin"), nil
		})),
		WithAction(Action{
			Name:  "promote",
			Input: Fields{"role": {Required: true, Type: "string"}},
			Handler: func(rc *RequestContext, input, row storage.Row) (any, error) {
				return rc.Entity().Update(rc.Context(), row["id"].(string), storage.Row{
					"role": input["role"],
				})
			},
		}),
	)

	admin := fx.ctx(Identity{UserID: "u3", Roles: []string{"admin"}})

	// Missing input field fails validation before the handler runs.
	_, apiErr := pipeline.Action(admin, "promote", storage.Row{}, "u1")
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.CodeBadRequest, apiErr.Code)
	assert.Contains(t, apiErr.Message, "role")

	// Non-admin denied.
	_, apiErr = pipeline.Action(fx.ctx(Identity{UserID: "u1"}), "promote", storage.Row{"role": "admin"}, "u1")
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.CodeForbidden, apiErr.Code)

	// Happy path.
	result, apiErr := pipeline.Action(admin, "promote", storage.Row{"role": "admin"}, "u1")
	require.Nil(t, apiErr)
	body := result.Body.(storage.Row)
	assert.Equal(t, "admin", body["role"])
	assert.NotContains(t, body, "password_hash")

	// Unknown row.
	_, apiErr = pipeline.Action(admin, "promote", storage.Row{"role": "x"}, "missing")
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.CodeNotFound, apiErr.Code)
}

func TestCollectionAction(t *testing.T) {
	pipeline, _, fx := buildEntity(t,
		WithAccess(Operation("stats"), AllowAll()),
		WithAction(Action{
			Name:       "stats",
			Collection: true,
			Handler: func(rc *RequestContext, input, row storage.Row) (any, error) {
				assert.Nil(t, row, "collection actions have no row")
				rows, total, err := rc.Entity().List(rc.Context(), nil)
				if err != nil {
					return nil, err
				}
				return map[string]any{"count": total, "page": len(rows)}, nil
			},
		}),
	)

	result, apiErr := pipeline.Action(fx.ctx(Identity{}), "stats", nil, "")
	require.Nil(t, apiErr)
	body := result.Body.(map[string]any)
	assert.Equal(t, 3, body["count"])
}

func TestInjectionScopedAccess(t *testing.T) {
	usersTable := crudTable(t)
	postsTable := schema.MustTable("posts",
		schema.Column{Name: "id", Primary: true},
		schema.Column{Name: "author_id"},
	)

	userDef, err := New("users", usersTable, WithAccess(OpGet, AllowAll()))
	require.NoError(t, err)
	postDef, err := New("posts", postsTable,
		WithAccess(OpGet, AllowAll()),
		WithInject("authors", "users"),
	)
	require.NoError(t, err)

	registry := NewRegistry()
	userAdapter := storage.NewMemoryAdapter(usersTable)
	userAdapter.Seed(storage.Row{"id": "u1", "email": "a@example.com", "password_hash": "h"})
	registry.MustRegister(userDef, userAdapter)
	registry.MustRegister(postDef, storage.NewMemoryAdapter(postsTable))

	scoped := registry.ScopedFor(postDef)

	users, err := scoped.Get("authors")
	require.NoError(t, err)
	row, err := users.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", row["email"])
	assert.NotContains(t, row, "password_hash", "trusted ops still strip hidden columns")

	// Undeclared alias fails, even for a registered entity.
	_, err = scoped.Get("users")
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	table := crudTable(t)
	def, err := New("users", table, WithAccess(OpGet, AllowAll()))
	require.NoError(t, err)

	registry := NewRegistry()
	_, err = registry.Register(def, storage.NewMemoryAdapter(table))
	require.NoError(t, err)
	_, err = registry.Register(def, storage.NewMemoryAdapter(table))
	assert.Error(t, err)
}

func TestDefinitionValidation(t *testing.T) {
	table := crudTable(t)

	_, err := New("Users", table)
	assert.Error(t, err, "uppercase entity name")

	_, err = New("1users", table)
	assert.Error(t, err, "leading digit")

	_, err = New("users", nil)
	assert.Error(t, err, "nil table")

	_, err = New("users", table, WithAction(Action{
		Name:    "promote",
		Handler: func(rc *RequestContext, input, row storage.Row) (any, error) { return nil, nil },
	}))
	assert.Error(t, err, "action without access rule")

	_, err = New("users", table,
		WithAccess(OpGet, AllowAll()),
		WithAccess(OpGet, AllowAll()),
	)
	assert.Error(t, err, "duplicate access rule")
}
