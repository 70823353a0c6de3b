package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deppfellow/go-taskapi/internal/errs"
	"github.com/deppfellow/go-taskapi/internal/sqlerr"
	"github.com/rs/zerolog"
)

// Observer is notified once per dispatched request. pattern is "" when no
// route matched.
type Observer func(method, pattern string, status int, elapsed time.Duration)

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithObserver installs o to observe every dispatched request.
func WithObserver(o Observer) RouterOption {
	return func(r *Router) {
		r.observer = o
	}
}

// Router is the terminal Service of the pipeline. It matches (method, path)
// against the registered routes, stores the path parameters in the request
// Extensions and dispatches to the route's handler.
//
// Routes are registered at startup. The table is replaced copy-on-write by
// Register and only read afterwards, so lookups take no lock. Once the
// router has served its first request, Register refuses new routes.
//
// Call never returns an error: a missing route is a 404, a wrong method a
// 405, and handler errors are translated by sqlerr.HandleError.
type Router struct {
	mu       sync.Mutex
	table    atomic.Pointer[[]*route]
	serving  atomic.Bool
	observer Observer
}

type route struct {
	method   string
	pattern  string
	segments []string
	handler  Service
}

// NewRouter returns an empty Router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{}
	r.table.Store(&[]*route{})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a route. pattern segments starting with ':' capture a path
// parameter, e.g. "/entities/:id".
//
// Two routes with the same method and the same shape (parameter names
// ignored) conflict. Conflicts, malformed patterns and late registrations
// return a *errs.ConfigurationError; they are startup errors.
func (r *Router) Register(method, pattern string, handler Service) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return errs.NewConfigurationError(fmt.Sprintf("route %q has no method", pattern), nil)
	}
	if !strings.HasPrefix(pattern, "/") {
		return errs.NewConfigurationError(fmt.Sprintf("route pattern %q must start with '/'", pattern), nil)
	}
	if handler == nil {
		return errs.NewConfigurationError(fmt.Sprintf("route %s %s has no handler", method, pattern), nil)
	}

	segments := splitPath(path.Clean(pattern))
	for _, seg := range segments {
		if seg == ":" {
			return errs.NewConfigurationError(fmt.Sprintf("route pattern %q has an unnamed parameter", pattern), nil)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.serving.Load() {
		return errs.NewConfigurationError(
			fmt.Sprintf("cannot register %s %s: router is already serving", method, pattern), nil)
	}

	current := *r.table.Load()
	shape := routeShape(segments)
	for _, existing := range current {
		if existing.method == method && routeShape(existing.segments) == shape {
			return errs.NewConfigurationError(
				fmt.Sprintf("duplicate route %s %s (conflicts with %s)", method, pattern, existing.pattern), nil)
		}
	}

	next := make([]*route, len(current), len(current)+1)
	copy(next, current)
	next = append(next, &route{
		method:   method,
		pattern:  pattern,
		segments: segments,
		handler:  handler,
	})
	r.table.Store(&next)

	return nil
}

// Routes returns "METHOD pattern" for every route, in registration order.
func (r *Router) Routes() []string {
	table := *r.table.Load()
	out := make([]string, 0, len(table))
	for _, rt := range table {
		out = append(out, rt.method+" "+rt.pattern)
	}
	return out
}

// PollReady is always ready. Readiness of the matched handler is checked
// per request in Call. The first PollReady freezes the route table.
func (r *Router) PollReady(ctx context.Context) (*Permit, error) {
	r.serving.Store(true)
	return NewPermit(nil, nil), nil
}

// Call matches and dispatches req.
func (r *Router) Call(ctx context.Context, permit *Permit, req *Request) (*Response, error) {
	permit.Take()
	defer permit.Release()

	start := time.Now()
	method := req.Method()

	rt, params, allowed := r.lookup(method, normalizePath(req.Path()))

	var res *Response
	pattern := ""

	switch {
	case rt != nil:
		pattern = rt.pattern
		Insert(req.Extensions, params)
		Insert(req.Extensions, MatchedRoute(rt.pattern))
		res = r.dispatch(ctx, rt, req)

	case len(allowed) > 0:
		res = r.errorResponse(ctx, errs.NewMethodNotAllowedError(allowed))
		res.Header.Set("Allow", strings.Join(allowed, ", "))

	default:
		res = r.errorResponse(ctx, errs.NewNotFoundError("Route not found", false, nil))
	}

	if r.observer != nil {
		r.observer(method, pattern, res.Status, time.Since(start))
	}

	return res, nil
}

func (r *Router) dispatch(ctx context.Context, rt *route, req *Request) *Response {
	res, err := Oneshot(ctx, rt.handler, req)
	if err != nil {
		return r.errorResponse(ctx, err)
	}
	if res == nil {
		return NoContent(http.StatusNoContent)
	}
	if res.Header == nil {
		res.Header = make(http.Header)
	}
	return res
}

// errorResponse is the only place where errors become responses.
func (r *Router) errorResponse(ctx context.Context, err error) *Response {
	httpErr := sqlerr.HandleError(err)

	logger := zerolog.Ctx(ctx)
	event := logger.Warn()
	if httpErr.Status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).
		Int("status", httpErr.Status).
		Str("error_code", httpErr.Code).
		Msg("request failed")

	return JSON(httpErr.Status, httpErr)
}

// lookup returns the route for (method, path). When the path matches only
// under other methods, rt is nil and allowed lists those methods.
func (r *Router) lookup(method, p string) (rt *route, params Params, allowed []string) {
	segments := splitPath(p)
	for _, candidate := range *r.table.Load() {
		captured, ok := candidate.match(segments)
		if !ok {
			continue
		}
		if candidate.method == method {
			return candidate, captured, nil
		}
		allowed = append(allowed, candidate.method)
	}
	return nil, nil, allowed
}

func (rt *route) match(segments []string) (Params, bool) {
	if len(segments) != len(rt.segments) {
		return nil, false
	}

	params := Params{}
	for i, seg := range rt.segments {
		if strings.HasPrefix(seg, ":") {
			if segments[i] == "" {
				return nil, false
			}
			params[seg[1:]] = segments[i]
			continue
		}
		if seg != segments[i] {
			return nil, false
		}
	}
	return params, true
}

// routeShape replaces parameter names with ':' so "/a/:id" and "/a/:key" compare equal.
func routeShape(segments []string) string {
	shape := make([]string, len(segments))
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			shape[i] = ":"
		} else {
			shape[i] = seg
		}
	}
	return "/" + strings.Join(shape, "/")
}

// normalizePath cleans p and drops the trailing slash ("/entities/" -> "/entities").
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
