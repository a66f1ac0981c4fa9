package entityspec

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vertzdev/vertz/pkg/apierror"
	"github.com/vertzdev/vertz/pkg/logger"
	"github.com/vertzdev/vertz/pkg/storage"
)

// InputSchema validates a custom action's raw input. Validation errors
// become 400 responses carrying the error text verbatim.
type InputSchema interface {
	Validate(input storage.Row) error
}

// FieldRule constrains one input field
type FieldRule struct {
	Required bool

	// Type is one of string, number, bool, object, array; empty skips
	// the type check.
	Type string

	// Message replaces the generated error text when set
	Message string
}

// Fields is a declarative InputSchema keyed by field name. Fields not
// listed pass through unchecked.
type Fields map[string]FieldRule

func (f Fields) Validate(input storage.Row) error {
	for name, rule := range f {
		val, present := input[name]
		if !present || val == nil {
			if rule.Required {
				return fieldRuleError(rule, fmt.Sprintf("field %q is required", name))
			}
			continue
		}
		if rule.Type != "" && !matchesType(rule.Type, val) {
			return fieldRuleError(rule, fmt.Sprintf("field %q must be of type %s", name, rule.Type))
		}
	}
	return nil
}

func fieldRuleError(rule FieldRule, fallback string) error {
	if rule.Message != "" {
		return errors.New(rule.Message)
	}
	return errors.New(fallback)
}

func matchesType(want string, val any) bool {
	switch want {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		switch val.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64:
			return true
		}
		return false
	case "bool":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	default:
		return true
	}
}

// Action runs a custom action: row fetch (unless collection-level),
// access enforcement under the action's name, input validation, the
// handler, and the fire-and-forget after-hook. The handler's return
// value is the response body as-is.
func (p *Pipeline) Action(rc *RequestContext, name string, input storage.Row, id string) (*Result, *apierror.Error) {
	def := p.entity.def

	action, ok := def.Action(name)
	if !ok {
		return nil, apierror.NotFound("entity %q has no action %q", def.Name(), name)
	}

	var raw storage.Row
	if !action.Collection {
		var err error
		raw, err = p.entity.store.Get(rc.Context(), id)
		if err != nil {
			logger.Error("Action %s.%s fetch failed: %v", def.Name(), name, err)
			return nil, apierror.From(err)
		}
		if raw == nil {
			return nil, apierror.NotFound("%s %q not found", def.Name(), id)
		}
	}

	if apiErr := EnforceAccess(Operation(name), def, rc, raw); apiErr != nil {
		return nil, apiErr
	}

	if input == nil {
		input = storage.Row{}
	}
	if action.Input != nil {
		if err := action.Input.Validate(input); err != nil {
			return nil, apierror.BadRequest("%s", err.Error())
		}
	}

	var row storage.Row
	if raw != nil {
		row = NarrowRelations(def, StripHidden(def.table, raw))
	}

	result, err := action.Handler(rc, input, row)
	if err != nil {
		return nil, hookError(def.Name(), "action."+name, err)
	}

	if action.After != nil {
		fireHook(def.Name()+".after."+name, func() error {
			return action.After(rc, result)
		})
	}

	return &Result{Status: http.StatusOK, Body: result}, nil
}
