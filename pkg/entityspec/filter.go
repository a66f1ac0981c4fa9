package entityspec

import (
	"github.com/vertzdev/vertz/pkg/schema"
	"github.com/vertzdev/vertz/pkg/storage"
)

// StripHidden returns a shallow copy of the row without hidden columns.
// Every outbound path runs through this before a row reaches a response
// body, an after-hook, or an error detail.
func StripHidden(table *schema.Table, row storage.Row) storage.Row {
	if row == nil {
		return nil
	}
	out := make(storage.Row, len(row))
	for key, val := range row {
		if table.IsHidden(key) {
			continue
		}
		out[key] = val
	}
	return out
}

// StripHiddenAll applies StripHidden to each row of a result page
func StripHiddenAll(table *schema.Table, rows []storage.Row) []storage.Row {
	out := make([]storage.Row, len(rows))
	for i, row := range rows {
		out[i] = StripHidden(table, row)
	}
	return out
}

// StripReadOnly returns a shallow copy of a write input without
// read-only and primary-key columns, so callers cannot smuggle values
// into server-managed fields. Unknown keys pass through for the storage
// layer to reject or ignore.
func StripReadOnly(table *schema.Table, input storage.Row) storage.Row {
	if input == nil {
		return storage.Row{}
	}
	out := make(storage.Row, len(input))
	for key, val := range input {
		if table.HasColumn(key) && table.IsReadOnly(key) {
			continue
		}
		out[key] = val
	}
	return out
}

// StripWhereHidden drops conditions on hidden columns from a where
// clause. HTTP callers never reach this path with hidden keys (the
// validator rejects them first); it guards programmatic callers going
// through trusted ops.
func StripWhereHidden(table *schema.Table, where storage.Where) storage.Where {
	if where == nil {
		return nil
	}
	out := make(storage.Where, len(where))
	for field, conds := range where {
		if table.IsHidden(field) {
			continue
		}
		out[field] = conds
	}
	return out
}

// NarrowRelations applies the definition's relation-exposure rules to
// embedded relation values in a row: hidden relations are removed and
// allow-listed relations are narrowed to their exposed fields.
// Relation values may be a single object or a list of objects.
func NarrowRelations(def *Definition, row storage.Row) storage.Row {
	if row == nil || len(def.relations) == 0 {
		return row
	}
	out := make(storage.Row, len(row))
	for key, val := range row {
		rule, ok := def.relations[key]
		if !ok {
			out[key] = val
			continue
		}
		if rule.hidden {
			continue
		}
		if rule.fields == nil {
			out[key] = val
			continue
		}
		out[key] = narrowRelationValue(rule.fields, val)
	}
	return out
}

// ApplyInclude narrows embedded relations to the requested include set.
// A nil include leaves the row untouched; with an include, relations
// configured on the definition but not requested are removed, and
// requested relations are narrowed to the requested fields.
func ApplyInclude(def *Definition, include map[string][]string, row storage.Row) storage.Row {
	if include == nil || row == nil {
		return row
	}
	out := make(storage.Row, len(row))
	for key, val := range row {
		if _, isRelation := def.relations[key]; !isRelation {
			out[key] = val
			continue
		}
		fields, requested := include[key]
		if !requested {
			continue
		}
		if fields == nil {
			out[key] = val
			continue
		}
		out[key] = narrowRelationValue(fields, val)
	}
	return out
}

// ApplySelect narrows a row to the selected fields. An empty selection
// returns the row unchanged.
func ApplySelect(sel []string, row storage.Row) storage.Row {
	if len(sel) == 0 || row == nil {
		return row
	}
	out := make(storage.Row, len(sel))
	for _, field := range sel {
		if val, ok := row[field]; ok {
			out[field] = val
		}
	}
	return out
}

func narrowRelationValue(fields []string, val any) any {
	switch v := val.(type) {
	case map[string]any:
		return narrowObject(fields, v)
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, narrowObject(fields, obj))
			} else {
				out = append(out, item)
			}
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			out = append(out, narrowObject(fields, item))
		}
		return out
	default:
		return val
	}
}

func narrowObject(fields []string, obj map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, field := range fields {
		if val, ok := obj[field]; ok {
			out[field] = val
		}
	}
	return out
}
