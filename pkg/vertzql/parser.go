package vertzql

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vertzdev/vertz/pkg/logger"
)

// ParseQuery decodes flat query-string pairs plus the opaque q parameter
// into an Options. Parsing is total: malformed input is either ignored
// (limit) or recorded on the Options for the validator to surface (q).
//
// Recognized keys:
//
//	where[field]=value        equality
//	where[field][op]=value    operator form
//	orderBy=field:dir         dir defaults to asc
//	limit=N                   clamped to [0, MaxLimit]
//	after=cursor              empty treated as absent
//	q=<base64url-JSON>        structural {select, include}
func ParseQuery(values url.Values) *Options {
	opts := NewOptions()

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		if field, op, ok := parseWhereKey(key); ok {
			for _, val := range vals {
				opts.addCondition(field, op, val)
			}
		}
	}

	for _, val := range values["orderBy"] {
		field, dir := parseOrderBy(val)
		if field != "" {
			opts.OrderBy[field] = dir
		}
	}

	if raw := values.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts.Limit = clampLimit(n)
		} else {
			logger.Debug("Ignoring non-numeric limit %q", raw)
		}
	}

	if after := values.Get("after"); after != "" {
		opts.After = after
	}

	if q := values.Get("q"); q != "" {
		opts.decodeStructural(q)
	}

	return opts
}

// ParseBody decodes the structural JSON body accepted by POST /{entity}/query.
// The shape mirrors the query string: where values are either scalars
// (equality) or operator objects.
func ParseBody(body []byte) *Options {
	opts := NewOptions()
	if len(body) == 0 {
		return opts
	}

	var req struct {
		Where   map[string]any    `json:"where"`
		OrderBy map[string]string `json:"orderBy"`
		Limit   *int              `json:"limit"`
		After   string            `json:"after"`
		Select  []string          `json:"select"`
		Include json.RawMessage   `json:"include"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		opts.parseErr = fmt.Errorf("invalid query body: %w", err)
		return opts
	}

	for field, val := range req.Where {
		switch conds := val.(type) {
		case map[string]any:
			for op, opVal := range conds {
				opts.addCondition(field, op, opVal)
			}
		default:
			opts.addCondition(field, "eq", val)
		}
	}

	for field, dir := range req.OrderBy {
		opts.OrderBy[field] = normalizeDirection(dir)
	}

	if req.Limit != nil {
		opts.Limit = clampLimit(*req.Limit)
	}
	if req.After != "" {
		opts.After = req.After
	}
	if req.Select != nil {
		opts.Select = req.Select
	}
	if len(req.Include) > 0 {
		opts.parseInclude(gjson.ParseBytes(req.Include))
	}

	return opts
}

// addCondition merges a condition, promoting repeated equality into an
// operator map rather than overwriting earlier conditions.
func (o *Options) addCondition(field, op string, value any) {
	if field == "" || op == "" {
		return
	}
	conds, ok := o.Where[field]
	if !ok {
		conds = make(map[string]any)
		o.Where[field] = conds
	}
	conds[op] = value
}

// parseWhereKey decodes "where[field]" and "where[field][op]" keys
func parseWhereKey(key string) (field, op string, ok bool) {
	if !strings.HasPrefix(key, "where[") {
		return "", "", false
	}
	rest := key[len("where["):]

	end := strings.Index(rest, "]")
	if end <= 0 {
		return "", "", false
	}
	field = rest[:end]
	rest = rest[end+1:]

	if rest == "" {
		return field, "eq", true
	}
	if strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]") {
		op = rest[1 : len(rest)-1]
		if op == "" {
			return "", "", false
		}
		return field, op, true
	}
	return "", "", false
}

// parseOrderBy decodes "field:dir", defaulting dir to asc
func parseOrderBy(val string) (field, dir string) {
	field = val
	dir = "asc"
	if idx := strings.Index(val, ":"); idx >= 0 {
		field = val[:idx]
		dir = normalizeDirection(val[idx+1:])
	}
	return strings.TrimSpace(field), dir
}

func normalizeDirection(dir string) string {
	if strings.EqualFold(dir, "desc") {
		return "desc"
	}
	return "asc"
}

// decodeStructural decodes the q parameter: base64url-encoded JSON
// carrying select and include. Failures set parseErr instead of
// panicking or throwing.
func (o *Options) decodeStructural(encoded string) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		o.parseErr = fmt.Errorf("invalid q parameter: not base64url")
		return
	}
	if !gjson.ValidBytes(raw) {
		o.parseErr = fmt.Errorf("invalid q parameter: not valid JSON")
		return
	}

	doc := gjson.ParseBytes(raw)

	if sel := doc.Get("select"); sel.Exists() {
		if !sel.IsArray() {
			o.parseErr = fmt.Errorf("invalid q parameter: select must be an array")
			return
		}
		for _, item := range sel.Array() {
			o.Select = append(o.Select, item.String())
		}
	}

	if inc := doc.Get("include"); inc.Exists() {
		o.parseInclude(inc)
	}
}

// parseInclude accepts either an array of relation names or an object
// mapping relation -> true | [fields].
func (o *Options) parseInclude(inc gjson.Result) {
	if o.Include == nil {
		o.Include = make(map[string][]string)
	}

	switch {
	case inc.IsArray():
		for _, item := range inc.Array() {
			o.Include[item.String()] = nil
		}
	case inc.IsObject():
		inc.ForEach(func(key, value gjson.Result) bool {
			switch {
			case value.IsArray():
				fields := make([]string, 0, len(value.Array()))
				for _, f := range value.Array() {
					fields = append(fields, f.String())
				}
				o.Include[key.String()] = fields
			default:
				o.Include[key.String()] = nil
			}
			return true
		})
	default:
		o.parseErr = fmt.Errorf("invalid q parameter: include must be an array or object")
	}
}
