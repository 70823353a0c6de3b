package pipeline

import (
	"net/http"
)

// Request is a request travelling through the pipeline: the HTTP request as
// received plus its private Extensions.
type Request struct {
	HTTP       *http.Request
	Extensions *Extensions
}

// NewRequest wraps r with a fresh, empty Extensions.
func NewRequest(r *http.Request) *Request {
	return &Request{HTTP: r, Extensions: NewExtensions()}
}

// Method returns the HTTP method.
func (r *Request) Method() string {
	return r.HTTP.Method
}

// Path returns the raw URL path.
func (r *Request) Path() string {
	return r.HTTP.URL.Path
}

// Params returns the path parameters captured by the Router, or nil.
func (r *Request) Params() Params {
	p, _ := Get[Params](r.Extensions)
	return p
}

// MatchedRoute is the pattern of the route the Router dispatched to, e.g.
// "/entities/:id".
type MatchedRoute string

// Route returns the matched route pattern, or "" before routing.
func (r *Request) Route() string {
	route, _ := Get[MatchedRoute](r.Extensions)
	return string(route)
}

// Params are the path parameters of a matched route, keyed by the name used
// in the pattern (":id" -> "id").
type Params map[string]string

// Get returns the named parameter or "".
func (p Params) Get(name string) string {
	return p[name]
}

// Response is what a Service produces. A nil Body is written without content.
type Response struct {
	Status int
	Body   any
	Header http.Header
}

// JSON returns a response whose body is encoded as JSON.
func JSON(status int, body any) *Response {
	return &Response{Status: status, Body: body, Header: make(http.Header)}
}

// NoContent returns a response without body.
func NoContent(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}
