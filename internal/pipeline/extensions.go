package pipeline

import (
	"fmt"
	"reflect"

	"github.com/deppfellow/go-taskapi/internal/errs"
)

// Extensions is a per-request map from a Go type to one value of that type.
//
// It carries values injected by layers (the database handle, path params)
// alongside the request without changing the request's payload. A fresh
// Extensions is created for every request and dropped with it; it is not
// safe for concurrent use because a request is handled by one goroutine at
// a time.
type Extensions struct {
	values map[any]any
}

// extensionKey is the map key for type T. Distinct type arguments produce
// distinct key types, so keys never collide across packages.
type extensionKey[T any] struct{}

// NewExtensions returns an empty Extensions.
func NewExtensions() *Extensions {
	return &Extensions{values: make(map[any]any)}
}

// Len returns the number of stored values.
func (e *Extensions) Len() int {
	if e == nil {
		return 0
	}
	return len(e.values)
}

// Insert stores v as the value for type T, replacing any previous value.
// It returns the replaced value and whether there was one. At most one
// value per type is ever present.
func Insert[T any](e *Extensions, v T) (prev T, replaced bool) {
	if e.values == nil {
		e.values = make(map[any]any)
	}
	if old, ok := e.values[extensionKey[T]{}]; ok {
		prev, replaced = old.(T), true
	}
	e.values[extensionKey[T]{}] = v
	return prev, replaced
}

// Get returns the value stored for type T.
func Get[T any](e *Extensions) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}
	v, ok := e.values[extensionKey[T]{}]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// Remove deletes and returns the value stored for type T.
func Remove[T any](e *Extensions) (T, bool) {
	v, ok := Get[T](e)
	if ok {
		delete(e.values, extensionKey[T]{})
	}
	return v, ok
}

// Extract returns the request's value for type T. A missing value means the
// pipeline was assembled without the layer that provides it, so it fails
// with a *errs.ConfigurationError instead of handing out a zero value.
func Extract[T any](req *Request) (T, error) {
	v, ok := Get[T](req.Extensions)
	if !ok {
		return v, errs.NewConfigurationError(
			fmt.Sprintf("request extension %s is missing; is its layer installed?", reflect.TypeFor[T]()),
			nil,
		)
	}
	return v, nil
}
