package entityspec

import (
	"fmt"
	"regexp"

	"github.com/vertzdev/vertz/pkg/schema"
	"github.com/vertzdev/vertz/pkg/storage"
)

// Operation names an entity operation. The five CRUD operations have
// constants; custom actions use Operation(actionName). Access lookup is
// deny-by-default: an operation with no entry in the access map is
// inaccessible.
type Operation string

const (
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// AccessFunc is an authorization predicate. row is empty (never nil) for
// collection-level operations. Predicates may perform I/O through the
// request context and must be idempotent, since access may be
// re-evaluated.
type AccessFunc func(rc *RequestContext, row storage.Row) (bool, error)

// AccessRule is either a predicate or the Disabled marker. The zero
// value is not a valid rule; construct with Allow, AllowAll or Disabled.
type AccessRule struct {
	disabled bool
	check    AccessFunc
}

// Allow builds a rule from a predicate
func Allow(fn AccessFunc) AccessRule {
	return AccessRule{check: fn}
}

// AllowAll permits the operation unconditionally
func AllowAll() AccessRule {
	return Allow(func(rc *RequestContext, row storage.Row) (bool, error) { return true, nil })
}

// Authenticated permits the operation for any identified caller
func Authenticated() AccessRule {
	return Allow(func(rc *RequestContext, row storage.Row) (bool, error) { return rc.Authenticated(), nil })
}

// Disabled administratively disables the operation: a route is still
// generated but always answers 405, distinct from omitting the rule
// (no route at all).
func Disabled() AccessRule {
	return AccessRule{disabled: true}
}

// IsDisabled reports whether the rule is the administrative-disable marker
func (r AccessRule) IsDisabled() bool { return r.disabled }

// RelationRule controls how a relation embedded in a row is exposed.
// Unconfigured relations pass through output unchanged but cannot be
// requested via include.
type RelationRule struct {
	hidden bool
	fields []string // nil means all fields
}

// ExposeRelation exposes a relation, optionally narrowed to the given
// fields. With no fields, all fields of the related object are exposed.
func ExposeRelation(fields ...string) RelationRule {
	if len(fields) == 0 {
		return RelationRule{}
	}
	return RelationRule{fields: append([]string(nil), fields...)}
}

// HideRelation strips the relation from every outbound payload
func HideRelation() RelationRule {
	return RelationRule{hidden: true}
}

// BeforeFunc transforms a write input before it reaches storage
type BeforeFunc func(rc *RequestContext, input storage.Row) (storage.Row, error)

// Action declares a custom, non-CRUD operation. Access for an action is
// looked up under Operation(Name) in the entity's access map, with the
// same deny-by-default rule as CRUD.
type Action struct {
	Name string

	// Method defaults to POST. GET actions read their input from the
	// query string instead of the body.
	Method string

	// Path overrides the default route path relative to the entity
	// mount point (default "/{id}/{name}", or "/{name}" for
	// collection-level actions). Must start with "/".
	Path string

	// Collection actions skip the row fetch entirely; the handler
	// receives a nil row.
	Collection bool

	// Input validates the raw request input; its error text is
	// surfaced verbatim inside the BadRequest response.
	Input InputSchema

	Handler ActionFunc

	// After is the action's fire-and-forget side-effect hook
	After func(rc *RequestContext, result any) error
}

// ActionFunc handles a custom action invocation. row is nil for
// collection-level actions. The raw return value becomes the response
// body; action outputs are not table rows, so no implicit field
// stripping is applied.
type ActionFunc func(rc *RequestContext, input storage.Row, row storage.Row) (any, error)

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Definition is an immutable entity declaration: table schema, access
// map, lifecycle hooks, custom actions, relation exposure and injection
// grants. Built once at startup via New; nothing is mutable afterwards
// and accessors never hand out internal maps.
type Definition struct {
	name      string
	table     *schema.Table
	access    map[Operation]AccessRule
	actions   map[string]Action
	relations map[string]RelationRule
	inject    map[string]string // alias -> entity name

	beforeCreate BeforeFunc
	beforeUpdate BeforeFunc

	afterCreate func(rc *RequestContext, row storage.Row) error
	afterUpdate func(rc *RequestContext, prev, next storage.Row) error
	afterDelete func(rc *RequestContext, row storage.Row) error
}

// Option configures a Definition during construction
type Option func(*Definition) error

// New builds a sealed entity definition. The name must match
// [a-z][a-z0-9-]* and be unique across the registry it is registered in.
func New(name string, table *schema.Table, opts ...Option) (*Definition, error) {
	if !nameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid entity name %q", name)
	}
	if table == nil {
		return nil, fmt.Errorf("entity %s: table is required", name)
	}

	def := &Definition{
		name:      name,
		table:     table,
		access:    make(map[Operation]AccessRule),
		actions:   make(map[string]Action),
		relations: make(map[string]RelationRule),
		inject:    make(map[string]string),
	}

	for _, opt := range opts {
		if err := opt(def); err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
	}

	// Actions need an access entry to be reachable; a declared action
	// without one is almost certainly a configuration mistake.
	for actionName := range def.actions {
		if _, ok := def.access[Operation(actionName)]; !ok {
			return nil, fmt.Errorf("entity %s: action %q has no access rule", name, actionName)
		}
	}

	return def, nil
}

// MustNew is New that panics on error, for startup declarations
func MustNew(name string, table *schema.Table, opts ...Option) *Definition {
	def, err := New(name, table, opts...)
	if err != nil {
		panic(err)
	}
	return def
}

// WithAccess sets the rule for one operation
func WithAccess(op Operation, rule AccessRule) Option {
	return func(d *Definition) error {
		if op == "" {
			return fmt.Errorf("empty operation name")
		}
		if _, dup := d.access[op]; dup {
			return fmt.Errorf("duplicate access rule for %q", op)
		}
		d.access[op] = rule
		return nil
	}
}

// WithBeforeCreate sets the create input transform
func WithBeforeCreate(fn BeforeFunc) Option {
	return func(d *Definition) error {
		d.beforeCreate = fn
		return nil
	}
}

// WithBeforeUpdate sets the update input transform
func WithBeforeUpdate(fn BeforeFunc) Option {
	return func(d *Definition) error {
		d.beforeUpdate = fn
		return nil
	}
}

// WithAfterCreate sets the fire-and-forget create hook
func WithAfterCreate(fn func(rc *RequestContext, row storage.Row) error) Option {
	return func(d *Definition) error {
		d.afterCreate = fn
		return nil
	}
}

// WithAfterUpdate sets the fire-and-forget update hook. It receives the
// hidden-stripped pre-image and post-image.
func WithAfterUpdate(fn func(rc *RequestContext, prev, next storage.Row) error) Option {
	return func(d *Definition) error {
		d.afterUpdate = fn
		return nil
	}
}

// WithAfterDelete sets the fire-and-forget delete hook
func WithAfterDelete(fn func(rc *RequestContext, row storage.Row) error) Option {
	return func(d *Definition) error {
		d.afterDelete = fn
		return nil
	}
}

// WithAction declares a custom action. The action still needs a
// WithAccess(Operation(name), ...) entry to get a route.
func WithAction(action Action) Option {
	return func(d *Definition) error {
		if !nameRe.MatchString(action.Name) {
			return fmt.Errorf("invalid action name %q", action.Name)
		}
		if action.Handler == nil {
			return fmt.Errorf("action %q has no handler", action.Name)
		}
		if _, dup := d.actions[action.Name]; dup {
			return fmt.Errorf("duplicate action %q", action.Name)
		}
		d.actions[action.Name] = action
		return nil
	}
}

// WithRelation configures exposure for one relation key
func WithRelation(name string, rule RelationRule) Option {
	return func(d *Definition) error {
		if name == "" {
			return fmt.Errorf("empty relation name")
		}
		d.relations[name] = rule
		return nil
	}
}

// WithInject grants this entity access to another entity under a local
// alias. Cross-entity calls through the context resolve only declared
// aliases.
func WithInject(alias, entityName string) Option {
	return func(d *Definition) error {
		if alias == "" || entityName == "" {
			return fmt.Errorf("inject alias and entity name are required")
		}
		if _, dup := d.inject[alias]; dup {
			return fmt.Errorf("duplicate inject alias %q", alias)
		}
		d.inject[alias] = entityName
		return nil
	}
}

// Name returns the entity name
func (d *Definition) Name() string { return d.name }

// Table returns the entity's table metadata
func (d *Definition) Table() *schema.Table { return d.table }

// AccessRule looks up the rule for an operation
func (d *Definition) AccessRule(op Operation) (AccessRule, bool) {
	rule, ok := d.access[op]
	return rule, ok
}

// Action looks up a declared custom action
func (d *Definition) Action(name string) (Action, bool) {
	action, ok := d.actions[name]
	return action, ok
}

// Actions returns the declared action names
func (d *Definition) Actions() []string {
	names := make([]string, 0, len(d.actions))
	for name := range d.actions {
		names = append(names, name)
	}
	return names
}

// Inject returns a copy of the alias -> entity grants
func (d *Definition) Inject() map[string]string {
	out := make(map[string]string, len(d.inject))
	for k, v := range d.inject {
		out[k] = v
	}
	return out
}

// RelationFields implements vertzql.RelationExposure: ok is false for
// relations that are unconfigured or hidden, fields is nil when all
// fields are exposed.
func (d *Definition) RelationFields(name string) ([]string, bool) {
	rule, ok := d.relations[name]
	if !ok || rule.hidden {
		return nil, false
	}
	if rule.fields == nil {
		return nil, true
	}
	return append([]string(nil), rule.fields...), true
}
