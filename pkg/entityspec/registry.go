package entityspec

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vertzdev/vertz/pkg/storage"
	"github.com/vertzdev/vertz/pkg/vertzql"
)

// Entity is a registered definition bound to its storage adapter
type Entity struct {
	def   *Definition
	store storage.Adapter
	ops   Ops
}

// Definition returns the entity's sealed definition
func (e *Entity) Definition() *Definition { return e.def }

// Store returns the entity's storage adapter
func (e *Entity) Store() storage.Adapter { return e.store }

// Ops returns the trusted, access-check-free handle for this entity
func (e *Entity) Ops() Ops { return e.ops }

// Registry holds every registered entity. Registration happens at
// startup; lookups are concurrent-safe afterwards.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register binds a definition to a storage adapter. Entity names are
// unique within a registry.
func (r *Registry) Register(def *Definition, store storage.Adapter) (*Entity, error) {
	if def == nil {
		return nil, fmt.Errorf("nil definition")
	}
	if store == nil {
		return nil, fmt.Errorf("entity %s: nil storage adapter", def.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entities[def.Name()]; dup {
		return nil, fmt.Errorf("entity %q already registered", def.Name())
	}

	entity := &Entity{def: def, store: store}
	entity.ops = &entityOps{def: def, store: store}
	r.entities[def.Name()] = entity
	return entity, nil
}

// MustRegister is Register that panics on error, for startup wiring
func (r *Registry) MustRegister(def *Definition, store storage.Adapter) *Entity {
	entity, err := r.Register(def, store)
	if err != nil {
		panic(err)
	}
	return entity
}

// Get looks up a registered entity by name
func (r *Registry) Get(name string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("entity %q is not registered", name)
	}
	return entity, nil
}

// All returns the registered entities sorted by name
func (r *Registry) All() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entity, 0, len(r.entities))
	for _, entity := range r.entities {
		out = append(out, entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].def.Name() < out[j].def.Name() })
	return out
}

// ScopedFor returns an accessor that resolves only the injection
// aliases the definition declared. Undeclared aliases fail, keeping
// cross-entity reach explicit in the entity declaration.
func (r *Registry) ScopedFor(def *Definition) EntityAccessor {
	return &scopedAccessor{registry: r, owner: def.Name(), aliases: def.Inject()}
}

type scopedAccessor struct {
	registry *Registry
	owner    string
	aliases  map[string]string
}

func (s *scopedAccessor) Get(alias string) (Ops, error) {
	target, ok := s.aliases[alias]
	if !ok {
		return nil, fmt.Errorf("entity %q has no injection alias %q", s.owner, alias)
	}
	entity, err := s.registry.Get(target)
	if err != nil {
		return nil, err
	}
	return entity.Ops(), nil
}

// entityOps is the trusted storage surface: no access checks, but the
// same visibility contract as the HTTP pipeline. Hidden columns never
// leave it and read-only columns never enter it.
type entityOps struct {
	def   *Definition
	store storage.Adapter
}

func (o *entityOps) Get(ctx context.Context, id string) (storage.Row, error) {
	row, err := o.store.Get(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	return NarrowRelations(o.def, StripHidden(o.def.table, row)), nil
}

func (o *entityOps) List(ctx context.Context, opts *vertzql.Options) ([]storage.Row, int, error) {
	if opts == nil {
		opts = vertzql.NewOptions()
	}
	params := storage.ListParams{
		Where:   StripWhereHidden(o.def.table, opts.Where),
		OrderBy: opts.OrderBy,
		Limit:   opts.Limit,
		After:   opts.After,
	}
	if !opts.HasLimit() {
		params.Limit = DefaultLimit
	}
	result, err := o.store.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	rows := make([]storage.Row, len(result.Data))
	for i, row := range result.Data {
		rows[i] = NarrowRelations(o.def, StripHidden(o.def.table, row))
	}
	return rows, result.Total, nil
}

func (o *entityOps) Create(ctx context.Context, data storage.Row) (storage.Row, error) {
	row, err := o.store.Create(ctx, StripReadOnly(o.def.table, data))
	if err != nil {
		return nil, err
	}
	return NarrowRelations(o.def, StripHidden(o.def.table, row)), nil
}

func (o *entityOps) Update(ctx context.Context, id string, data storage.Row) (storage.Row, error) {
	row, err := o.store.Update(ctx, id, StripReadOnly(o.def.table, data))
	if err != nil || row == nil {
		return nil, err
	}
	return NarrowRelations(o.def, StripHidden(o.def.table, row)), nil
}

func (o *entityOps) Delete(ctx context.Context, id string) (storage.Row, error) {
	row, err := o.store.Delete(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	return NarrowRelations(o.def, StripHidden(o.def.table, row)), nil
}
