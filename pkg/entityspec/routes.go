package entityspec

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vertzdev/vertz/pkg/apierror"
	"github.com/vertzdev/vertz/pkg/logger"
	"github.com/vertzdev/vertz/pkg/metrics"
	"github.com/vertzdev/vertz/pkg/storage"
	"github.com/vertzdev/vertz/pkg/vertzql"
)

// maxBodyBytes bounds request bodies read by the generated handlers
const maxBodyBytes = 1 << 20

// IdentityFunc extracts the caller identity from a request. The
// default trusts the X-User-Id, X-Tenant-Id and X-Roles headers, the
// shape an authenticating reverse proxy injects.
type IdentityFunc func(r *http.Request) Identity

// HeaderIdentity is the default IdentityFunc
func HeaderIdentity(r *http.Request) Identity {
	identity := Identity{
		UserID:   r.Header.Get("X-User-Id"),
		TenantID: r.Header.Get("X-Tenant-Id"),
	}
	if raw := r.Header.Get("X-Roles"); raw != "" {
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				identity.Roles = append(identity.Roles, role)
			}
		}
	}
	return identity
}

// RouterOption configures route generation
type RouterOption func(*routerConfig)

type routerConfig struct {
	prefix   string
	identity IdentityFunc
}

// WithPrefix overrides the default /api mount prefix
func WithPrefix(prefix string) RouterOption {
	return func(c *routerConfig) { c.prefix = strings.TrimRight(prefix, "/") }
}

// WithIdentity overrides how caller identity is extracted
func WithIdentity(fn IdentityFunc) RouterOption {
	return func(c *routerConfig) { c.identity = fn }
}

// RegisterRoutes synthesizes the REST surface for every registered
// entity. Routes exist only for operations with an access entry;
// disabled operations get a route that always answers 405. The query
// route is generated alongside list.
func RegisterRoutes(router *mux.Router, registry *Registry, opts ...RouterOption) {
	cfg := &routerConfig{prefix: "/api", identity: HeaderIdentity}
	for _, opt := range opts {
		opt(cfg)
	}

	for _, entity := range registry.All() {
		h := &entityHandler{
			entity:   entity,
			pipeline: NewPipeline(entity),
			registry: registry,
			cfg:      cfg,
		}
		h.register(router)
	}
}

type entityHandler struct {
	entity   *Entity
	pipeline *Pipeline
	registry *Registry
	cfg      *routerConfig
}

func (h *entityHandler) register(router *mux.Router) {
	def := h.entity.def
	base := h.cfg.prefix + "/" + def.Name()

	type route struct {
		op      Operation
		method  string
		path    string
		handler http.HandlerFunc
	}
	routes := []route{
		{OpList, http.MethodGet, base, h.list},
		{OpList, http.MethodPost, base + "/query", h.query},
		{OpCreate, http.MethodPost, base, h.create},
		{OpGet, http.MethodGet, base + "/{id}", h.get},
		{OpUpdate, http.MethodPatch, base + "/{id}", h.update},
		{OpDelete, http.MethodDelete, base + "/{id}", h.delete},
	}

	for _, rt := range routes {
		rule, ok := def.AccessRule(rt.op)
		if !ok {
			continue
		}
		if rule.IsDisabled() {
			router.HandleFunc(rt.path, h.disabled(rt.op)).Methods(rt.method)
			continue
		}
		router.HandleFunc(rt.path, rt.handler).Methods(rt.method)
		logger.Debug("Route %s %s -> %s.%s", rt.method, rt.path, def.Name(), rt.op)
	}

	for _, name := range def.Actions() {
		action, _ := def.Action(name)
		rule, ok := def.AccessRule(Operation(name))
		if !ok {
			continue
		}

		method := action.Method
		if method == "" {
			method = http.MethodPost
		}
		path := action.Path
		if path == "" {
			if action.Collection {
				path = "/" + name
			} else {
				path = "/{id}/" + name
			}
		}
		full := base + path

		if rule.IsDisabled() {
			router.HandleFunc(full, h.disabled(Operation(name))).Methods(method)
			continue
		}
		router.HandleFunc(full, h.action(action)).Methods(method)
		logger.Debug("Route %s %s -> %s.%s", method, full, def.Name(), name)
	}
}

func (h *entityHandler) requestContext(r *http.Request) *RequestContext {
	def := h.entity.def
	return NewRequestContext(r.Context(), h.cfg.identity(r), h.entity.Ops(), h.registry.ScopedFor(def))
}

func (h *entityHandler) list(w http.ResponseWriter, r *http.Request) {
	def := h.entity.def
	opts := vertzql.ParseQuery(r.URL.Query())
	if apiErr := vertzql.Validate(opts, def.table, def); apiErr != nil {
		h.fail(w, OpList, apiErr)
		return
	}
	result, apiErr := h.pipeline.List(h.requestContext(r), opts)
	if apiErr != nil {
		h.fail(w, OpList, apiErr)
		return
	}
	h.projectList(result, opts)
	h.respond(w, OpList, result)
}

func (h *entityHandler) query(w http.ResponseWriter, r *http.Request) {
	def := h.entity.def
	body, err := readBody(r)
	if err != nil {
		h.fail(w, OpList, apierror.BadRequest("unreadable request body"))
		return
	}
	opts := vertzql.ParseBody(body)
	if apiErr := vertzql.Validate(opts, def.table, def); apiErr != nil {
		h.fail(w, OpList, apiErr)
		return
	}
	result, apiErr := h.pipeline.List(h.requestContext(r), opts)
	if apiErr != nil {
		h.fail(w, OpList, apiErr)
		return
	}
	h.projectList(result, opts)
	h.respond(w, OpList, result)
}

func (h *entityHandler) get(w http.ResponseWriter, r *http.Request) {
	def := h.entity.def
	opts := vertzql.ParseQuery(r.URL.Query())
	if apiErr := vertzql.Validate(opts, def.table, def); apiErr != nil {
		h.fail(w, OpGet, apiErr)
		return
	}
	result, apiErr := h.pipeline.Get(h.requestContext(r), mux.Vars(r)["id"])
	if apiErr != nil {
		h.fail(w, OpGet, apiErr)
		return
	}
	if row, ok := result.Body.(storage.Row); ok {
		result.Body = projectRow(def, opts, row)
	}
	h.respond(w, OpGet, result)
}

func (h *entityHandler) create(w http.ResponseWriter, r *http.Request) {
	input, apiErr := decodeRow(r)
	if apiErr != nil {
		h.fail(w, OpCreate, apiErr)
		return
	}
	result, apiErr := h.pipeline.Create(h.requestContext(r), input)
	if apiErr != nil {
		h.fail(w, OpCreate, apiErr)
		return
	}
	h.respond(w, OpCreate, result)
}

func (h *entityHandler) update(w http.ResponseWriter, r *http.Request) {
	input, apiErr := decodeRow(r)
	if apiErr != nil {
		h.fail(w, OpUpdate, apiErr)
		return
	}
	result, apiErr := h.pipeline.Update(h.requestContext(r), mux.Vars(r)["id"], input)
	if apiErr != nil {
		h.fail(w, OpUpdate, apiErr)
		return
	}
	h.respond(w, OpUpdate, result)
}

func (h *entityHandler) delete(w http.ResponseWriter, r *http.Request) {
	result, apiErr := h.pipeline.Delete(h.requestContext(r), mux.Vars(r)["id"])
	if apiErr != nil {
		h.fail(w, OpDelete, apiErr)
		return
	}
	h.respond(w, OpDelete, result)
}

func (h *entityHandler) action(action Action) http.HandlerFunc {
	op := Operation(action.Name)
	return func(w http.ResponseWriter, r *http.Request) {
		var input storage.Row
		if r.Method == http.MethodGet {
			input = make(storage.Row)
			for key, vals := range r.URL.Query() {
				if len(vals) > 0 {
					input[key] = vals[0]
				}
			}
		} else {
			var apiErr *apierror.Error
			input, apiErr = decodeRow(r)
			if apiErr != nil {
				h.fail(w, op, apiErr)
				return
			}
		}

		result, apiErr := h.pipeline.Action(h.requestContext(r), action.Name, input, mux.Vars(r)["id"])
		if apiErr != nil {
			h.fail(w, op, apiErr)
			return
		}
		h.respond(w, op, result)
	}
}

func (h *entityHandler) disabled(op Operation) http.HandlerFunc {
	def := h.entity.def
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.GetProvider().RecordDenial(def.Name(), string(op))
		h.fail(w, op, apierror.MethodNotAllowed("operation %q is disabled for entity %q", op, def.Name()))
	}
}

// projectList applies select and include narrowing to each row of a
// list result
func (h *entityHandler) projectList(result *Result, opts *vertzql.Options) {
	body, ok := result.Body.(*ListBody)
	if !ok {
		return
	}
	for i, row := range body.Data {
		body.Data[i] = projectRow(h.entity.def, opts, row)
	}
}

// projectRow applies include narrowing, then select, keeping explicitly
// included relations in the output even when select names only columns.
func projectRow(def *Definition, opts *vertzql.Options, row storage.Row) storage.Row {
	row = ApplyInclude(def, opts.Include, row)
	if len(opts.Select) == 0 {
		return row
	}
	out := ApplySelect(opts.Select, row)
	for relation := range opts.Include {
		if val, ok := row[relation]; ok {
			out[relation] = val
		}
	}
	return out
}

func (h *entityHandler) respond(w http.ResponseWriter, op Operation, result *Result) {
	metrics.GetProvider().RecordOperation(h.entity.def.Name(), string(op), result.Status)
	writeJSON(w, result.Status, result.Body)
}

func (h *entityHandler) fail(w http.ResponseWriter, op Operation, apiErr *apierror.Error) {
	metrics.GetProvider().RecordOperation(h.entity.def.Name(), string(op), apierror.Status(apiErr.Code))
	apierror.Write(w, apiErr)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func decodeRow(r *http.Request) (storage.Row, *apierror.Error) {
	body, err := readBody(r)
	if err != nil {
		return nil, apierror.BadRequest("unreadable request body")
	}
	if len(body) == 0 {
		return storage.Row{}, nil
	}
	row := make(storage.Row)
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, apierror.BadRequest("invalid JSON body")
	}
	return row, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	if body == nil || status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response body: %v", err)
	}
}
