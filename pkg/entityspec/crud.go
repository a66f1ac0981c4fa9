package entityspec

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vertzdev/vertz/pkg/apierror"
	"github.com/vertzdev/vertz/pkg/logger"
	"github.com/vertzdev/vertz/pkg/storage"
	"github.com/vertzdev/vertz/pkg/vertzql"
)

// DefaultLimit is the page size applied when the caller supplies none
const DefaultLimit = 50

// Result pairs an HTTP status with a response body. A nil Body means an
// empty response (delete).
type Result struct {
	Status int
	Body   any
}

// ListBody is the list response envelope
type ListBody struct {
	Data        []storage.Row `json:"data"`
	Total       int           `json:"total"`
	Limit       int           `json:"limit"`
	NextCursor  *string       `json:"nextCursor"`
	HasNextPage bool          `json:"hasNextPage"`
}

// Pipeline executes the authorized operation flow for one entity:
// access enforcement, hook dispatch, storage, and output filtering, in
// that order. It is the single path between a route handler and the
// storage adapter.
type Pipeline struct {
	entity *Entity
}

// NewPipeline builds a pipeline for a registered entity
func NewPipeline(entity *Entity) *Pipeline {
	return &Pipeline{entity: entity}
}

// List runs the collection read flow. opts must already be validated
// for HTTP callers; programmatic callers get hidden where keys silently
// stripped instead.
func (p *Pipeline) List(rc *RequestContext, opts *vertzql.Options) (*Result, *apierror.Error) {
	def := p.entity.def
	if apiErr := EnforceAccess(OpList, def, rc, nil); apiErr != nil {
		return nil, apiErr
	}

	if opts == nil {
		opts = vertzql.NewOptions()
	}
	limit := opts.Limit
	if !opts.HasLimit() {
		limit = DefaultLimit
	}

	// Fetch one row past the page so a full final page still reports
	// the end of the collection instead of a dangling cursor.
	fetchLimit := 1
	if limit > 0 {
		fetchLimit = limit + 1
	}

	params := storage.ListParams{
		Where:   StripWhereHidden(def.table, opts.Where),
		OrderBy: opts.OrderBy,
		Limit:   fetchLimit,
		After:   opts.After,
	}
	result, err := p.entity.store.List(rc.Context(), params)
	if err != nil {
		logger.Error("List %s failed: %v", def.Name(), err)
		return nil, apierror.From(err)
	}

	page := result.Data
	if limit == 0 {
		page = nil
	} else if len(page) > limit {
		page = page[:limit]
	}

	rows := make([]storage.Row, len(page))
	for i, row := range page {
		rows[i] = NarrowRelations(def, StripHidden(def.table, row))
	}

	body := &ListBody{
		Data:  rows,
		Total: result.Total,
		Limit: limit,
	}
	if limit > 0 && len(result.Data) > limit {
		if pk, ok := page[len(page)-1][def.table.PrimaryKey()]; ok {
			cursor := fmt.Sprint(pk)
			body.NextCursor = &cursor
			body.HasNextPage = true
		}
	}

	return &Result{Status: http.StatusOK, Body: body}, nil
}

// Get runs the single-row read flow. The access rule sees the
// unfiltered row; the response never does.
func (p *Pipeline) Get(rc *RequestContext, id string) (*Result, *apierror.Error) {
	def := p.entity.def

	row, err := p.entity.store.Get(rc.Context(), id)
	if err != nil {
		logger.Error("Get %s/%s failed: %v", def.Name(), id, err)
		return nil, apierror.From(err)
	}
	if row == nil {
		return nil, apierror.NotFound("%s %q not found", def.Name(), id)
	}

	if apiErr := EnforceAccess(OpGet, def, rc, row); apiErr != nil {
		return nil, apiErr
	}

	body := NarrowRelations(def, StripHidden(def.table, row))
	return &Result{Status: http.StatusOK, Body: body}, nil
}

// Create runs the write flow: access check on the bare input, read-only
// stripping, the before-hook transform, storage, then the after-hook on
// the filtered result.
func (p *Pipeline) Create(rc *RequestContext, input storage.Row) (*Result, *apierror.Error) {
	def := p.entity.def
	if apiErr := EnforceAccess(OpCreate, def, rc, nil); apiErr != nil {
		return nil, apiErr
	}

	data := StripReadOnly(def.table, input)
	if def.beforeCreate != nil {
		transformed, err := def.beforeCreate(rc, data)
		if err != nil {
			return nil, hookError(def.Name(), "before.create", err)
		}
		data = StripReadOnly(def.table, transformed)
	}

	row, err := p.entity.store.Create(rc.Context(), data)
	if err != nil {
		logger.Error("Create %s failed: %v", def.Name(), err)
		return nil, apierror.From(err)
	}

	body := NarrowRelations(def, StripHidden(def.table, row))
	if def.afterCreate != nil {
		fireHook(def.Name()+".after.create", func() error {
			return def.afterCreate(rc, body)
		})
	}

	return &Result{Status: http.StatusCreated, Body: body}, nil
}

// Update runs the partial-update flow. Access is checked against the
// existing row before anything is written.
func (p *Pipeline) Update(rc *RequestContext, id string, input storage.Row) (*Result, *apierror.Error) {
	def := p.entity.def

	existing, err := p.entity.store.Get(rc.Context(), id)
	if err != nil {
		logger.Error("Update %s/%s fetch failed: %v", def.Name(), id, err)
		return nil, apierror.From(err)
	}
	if existing == nil {
		return nil, apierror.NotFound("%s %q not found", def.Name(), id)
	}

	if apiErr := EnforceAccess(OpUpdate, def, rc, existing); apiErr != nil {
		return nil, apiErr
	}

	data := StripReadOnly(def.table, input)
	if def.beforeUpdate != nil {
		transformed, err := def.beforeUpdate(rc, data)
		if err != nil {
			return nil, hookError(def.Name(), "before.update", err)
		}
		data = StripReadOnly(def.table, transformed)
	}

	updated, err := p.entity.store.Update(rc.Context(), id, data)
	if err != nil {
		logger.Error("Update %s/%s failed: %v", def.Name(), id, err)
		return nil, apierror.From(err)
	}

	prev := NarrowRelations(def, StripHidden(def.table, existing))
	next := NarrowRelations(def, StripHidden(def.table, updated))
	if def.afterUpdate != nil {
		fireHook(def.Name()+".after.update", func() error {
			return def.afterUpdate(rc, prev, next)
		})
	}

	return &Result{Status: http.StatusOK, Body: next}, nil
}

// Delete runs the removal flow, answering 204 with no body
func (p *Pipeline) Delete(rc *RequestContext, id string) (*Result, *apierror.Error) {
	def := p.entity.def

	existing, err := p.entity.store.Get(rc.Context(), id)
	if err != nil {
		logger.Error("Delete %s/%s fetch failed: %v", def.Name(), id, err)
		return nil, apierror.From(err)
	}
	if existing == nil {
		return nil, apierror.NotFound("%s %q not found", def.Name(), id)
	}

	if apiErr := EnforceAccess(OpDelete, def, rc, existing); apiErr != nil {
		return nil, apiErr
	}

	if _, err := p.entity.store.Delete(rc.Context(), id); err != nil {
		logger.Error("Delete %s/%s failed: %v", def.Name(), id, err)
		return nil, apierror.From(err)
	}

	if def.afterDelete != nil {
		removed := NarrowRelations(def, StripHidden(def.table, existing))
		fireHook(def.Name()+".after.delete", func() error {
			return def.afterDelete(rc, removed)
		})
	}

	return &Result{Status: http.StatusNoContent}, nil
}

// hookError surfaces a before-hook failure: typed API errors pass
// through untouched so hooks can answer 400 or 409; anything else is an
// internal fault.
func hookError(entity, hook string, err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	logger.Error("Hook %s.%s failed: %v", entity, hook, err)
	return apierror.Internal()
}
