// Package gmhttp implements the GM admin HTTP surface: controllers
// register a path prefix and a set of routes, every response is wrapped
// in a uniform envelope, and a built-in introspection endpoint lists the
// registered API.
package gmhttp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"slgserver/pkg/apperror"
	"slgserver/pkg/logger"
)

// Envelope is the uniform response shape for every gmhttp route.
type Envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Handler is a gmhttp route body. It returns the value to serialize as
// Data, or an error — an error whose apperror code is PARAM_INVALID,
// NOT_FOUND, PERMISSION_DENIED, CONFLICT or TIMEOUT keeps that code in
// the envelope and gets status 400, 404, 403, 409 or 504; any other
// error, including other apperror codes, is reported as
// apperror.CodeInternal with a 500. Severity is not consulted.
type Handler func(*Context) (any, error)

// Route describes one registered endpoint under a Controller's prefix.
type Route struct {
	Method      string
	Path        string // relative to the controller's prefix
	Description string
	Handler     Handler
}

// Controller groups a set of Routes under one path prefix.
type Controller interface {
	PathPrefix() string
	Routes() []Route
}

// Context wraps the request/response pair passed to a Handler with query
// and JSON-body binding helpers.
type Context struct {
	Writer  http.ResponseWriter
	Request *http.Request
}

// Query returns a single query-string parameter.
func (c *Context) Query(name string) string {
	return c.Request.URL.Query().Get(name)
}

// QueryInt returns a query-string parameter coerced to int, or def if
// absent or unparseable.
func (c *Context) QueryInt(name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// BindJSON decodes the request body into dst. Complex parameters are
// bound from the JSON body by convention; simple ones are read from the
// query string via Query/QueryInt instead.
func (c *Context) BindJSON(dst any) error {
	if c.Request.Body == nil {
		return apperror.New(apperror.CodeParamInvalid, "empty request body")
	}
	defer c.Request.Body.Close()
	if err := json.NewDecoder(c.Request.Body).Decode(dst); err != nil {
		return apperror.Wrap(err, apperror.CodeParamInvalid, "invalid request body")
	}
	return nil
}

// registeredRoute is one fully-resolved route entry, for introspection.
type registeredRoute struct {
	Method      string
	Path        string
	Description string
	handler     Handler
}

// Server is an http.Handler assembling every registered Controller's
// routes behind a single stdlib http.ServeMux.
type Server struct {
	mux    *http.ServeMux
	routes []registeredRoute
	auth   func(*http.Request) error
}

// New returns an empty Server. Routes become live once Register is
// called for each Controller.
func New() *Server {
	s := &Server{mux: http.NewServeMux()}
	s.mux.HandleFunc("/_introspect", s.introspect)
	return s
}

// WithAuth installs a function run before every non-introspection route;
// a non-nil error aborts the request with a PERMISSION_DENIED envelope.
func (s *Server) WithAuth(auth func(*http.Request) error) *Server {
	s.auth = auth
	return s
}

// Register mounts every Route a Controller declares under its prefix.
func (s *Server) Register(c Controller) {
	prefix := c.PathPrefix()
	for _, r := range c.Routes() {
		full := prefix + r.Path
		entry := registeredRoute{Method: r.Method, Path: full, Description: r.Description, handler: r.Handler}
		s.routes = append(s.routes, entry)
		s.mux.HandleFunc(full, s.wrap(entry))
	}
}

func (s *Server) wrap(entry registeredRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != entry.Method {
			writeEnvelope(w, http.StatusMethodNotAllowed, Envelope{
				Code: string(apperror.CodeParamInvalid), Message: "method not allowed",
			})
			return
		}
		if s.auth != nil {
			if err := s.auth(req); err != nil {
				writeEnvelope(w, http.StatusForbidden, Envelope{
					Code: string(apperror.CodePermissionDenied), Message: err.Error(),
				})
				return
			}
		}

		data, err := entry.handler(&Context{Writer: w, Request: req})
		if err != nil {
			status, code, msg := classify(err)
			logger.Log.Warn("gmhttp handler error", "path", entry.Path, "error", err)
			writeEnvelope(w, status, Envelope{Code: string(code), Message: msg})
			return
		}
		writeEnvelope(w, http.StatusOK, Envelope{Code: "OK", Message: "ok", Data: data})
	}
}

func (s *Server) introspect(w http.ResponseWriter, _ *http.Request) {
	type routeInfo struct {
		Method      string `json:"method"`
		Path        string `json:"path"`
		Description string `json:"description"`
	}
	infos := make([]routeInfo, 0, len(s.routes))
	for _, r := range s.routes {
		infos = append(infos, routeInfo{Method: r.Method, Path: r.Path, Description: r.Description})
	}
	writeEnvelope(w, http.StatusOK, Envelope{Code: "OK", Message: "ok", Data: infos})
}

func classify(err error) (status int, code apperror.ErrorCode, msg string) {
	code = apperror.Code(err)
	msg = err.Error()
	switch code {
	case apperror.CodeParamInvalid:
		return http.StatusBadRequest, code, msg
	case apperror.CodeNotFound:
		return http.StatusNotFound, code, msg
	case apperror.CodePermissionDenied:
		return http.StatusForbidden, code, msg
	case apperror.CodeConflict:
		return http.StatusConflict, code, msg
	case apperror.CodeTimeout:
		return http.StatusGatewayTimeout, code, msg
	default:
		return http.StatusInternalServerError, apperror.CodeInternal, msg
	}
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// ServeHTTP implements http.Handler, delegating to the internal mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
