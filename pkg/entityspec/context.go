package entityspec

import (
	"context"

	"github.com/vertzdev/vertz/pkg/storage"
	"github.com/vertzdev/vertz/pkg/vertzql"
)

// Identity is the authenticated caller. A zero UserID means anonymous.
type Identity struct {
	UserID   string
	TenantID string
	Roles    []string
}

// Ops is the trusted, access-check-free surface an entity exposes to
// hooks, actions and access rules of other entities. Outputs are
// hidden-stripped and inputs are read-only-stripped; authorization is
// the caller's responsibility.
type Ops interface {
	Get(ctx context.Context, id string) (storage.Row, error)
	List(ctx context.Context, opts *vertzql.Options) ([]storage.Row, int, error)
	Create(ctx context.Context, data storage.Row) (storage.Row, error)
	Update(ctx context.Context, id string, data storage.Row) (storage.Row, error)
	Delete(ctx context.Context, id string) (storage.Row, error)
}

// EntityAccessor resolves entity handles by name or injection alias
type EntityAccessor interface {
	Get(alias string) (Ops, error)
}

// RequestContext carries the caller identity and the entity handles a
// hook or access rule may touch. Cross-entity access goes through
// Entities, which resolves only the aliases the definition declared
// via inject.
type RequestContext struct {
	ctx      context.Context
	identity Identity
	self     Ops
	entities EntityAccessor
}

// NewRequestContext assembles a request context. self may be nil when
// the entity has no storage behind it (not the case for registry-built
// contexts).
func NewRequestContext(ctx context.Context, identity Identity, self Ops, entities EntityAccessor) *RequestContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RequestContext{ctx: ctx, identity: identity, self: self, entities: entities}
}

// Context returns the underlying request context
func (rc *RequestContext) Context() context.Context { return rc.ctx }

// UserID returns the caller's user id, "" for anonymous callers
func (rc *RequestContext) UserID() string { return rc.identity.UserID }

// Tenant returns the caller's tenant id, "" when absent
func (rc *RequestContext) Tenant() string { return rc.identity.TenantID }

// Authenticated reports whether the caller carries a user id
func (rc *RequestContext) Authenticated() bool { return rc.identity.UserID != "" }

// HasRole reports whether the caller holds any of the given roles
func (rc *RequestContext) HasRole(names ...string) bool {
	for _, role := range rc.identity.Roles {
		for _, want := range names {
			if role == want {
				return true
			}
		}
	}
	return false
}

// Roles returns a copy of the caller's roles
func (rc *RequestContext) Roles() []string {
	return append([]string(nil), rc.identity.Roles...)
}

// Entity returns the trusted ops handle for the entity being operated on
func (rc *RequestContext) Entity() Ops { return rc.self }

// Entities returns the injection-scoped accessor for other entities
func (rc *RequestContext) Entities() EntityAccessor { return rc.entities }
