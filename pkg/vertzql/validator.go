package vertzql

import (
	"github.com/vertzdev/vertz/pkg/apierror"
	"github.com/vertzdev/vertz/pkg/schema"
)

// Validate checks a parsed Options against the table's visibility rules
// and the entity's relation-exposure configuration. It runs strictly
// before any storage call; every rejection names the offending field or
// relation, since these messages are API contract.
func Validate(opts *Options, table *schema.Table, relations RelationExposure) *apierror.Error {
	if err := opts.ParseError(); err != nil {
		return apierror.BadRequest("%s", err.Error())
	}

	for field, conds := range opts.Where {
		if err := checkColumn(table, field, "where"); err != nil {
			return err
		}
		for op := range conds {
			if !validOperators[op] {
				return apierror.BadRequest("unknown operator %q on field %q", op, field)
			}
		}
	}

	for field := range opts.OrderBy {
		if err := checkColumn(table, field, "orderBy"); err != nil {
			return err
		}
	}

	for _, field := range opts.Select {
		if err := checkColumn(table, field, "select"); err != nil {
			return err
		}
	}

	if len(opts.After) > MaxCursorLength {
		return apierror.BadRequest("cursor exceeds %d characters", MaxCursorLength)
	}

	for relation, fields := range opts.Include {
		exposed, ok := relations.RelationFields(relation)
		if !ok {
			return apierror.BadRequest("relation %q is not available on this entity", relation)
		}
		if exposed == nil {
			continue
		}
		allowed := make(map[string]bool, len(exposed))
		for _, f := range exposed {
			allowed[f] = true
		}
		for _, f := range fields {
			if !allowed[f] {
				return apierror.BadRequest("field %q is not exposed on relation %q", f, relation)
			}
		}
	}

	return nil
}

func checkColumn(table *schema.Table, field, clause string) *apierror.Error {
	if !table.HasColumn(field) {
		return apierror.BadRequest("unknown field %q in %s", field, clause)
	}
	if table.IsHidden(field) {
		return apierror.BadRequest("field %q in %s is not accessible", field, clause)
	}
	return nil
}
