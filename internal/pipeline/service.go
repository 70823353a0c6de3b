package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// Service is one stage of the pipeline.
//
// PollReady blocks until the service can accept exactly one request (or ctx
// ends) and returns the Permit for it. Call processes that request and must
// receive the Permit returned by the PollReady that immediately preceded it.
// A Permit is consumed by Call; reusing one, or calling without one, panics
// with ProtocolViolation.
//
// Services are built once at startup and shared by all requests, so
// implementations must be safe for concurrent use. Per-request state belongs
// in Request.Extensions.
type Service interface {
	PollReady(ctx context.Context) (*Permit, error)
	Call(ctx context.Context, permit *Permit, req *Request) (*Response, error)
}

// ProtocolViolation is the panic value raised when a Service is called
// without a fresh readiness Permit. It is a programming error in the
// pipeline assembly, never a client error.
type ProtocolViolation struct {
	Reason string
}

func (p ProtocolViolation) Error() string {
	return "pipeline protocol violation: " + p.Reason
}

// Permit is the readiness token returned by PollReady and consumed by Call.
//
// Wrapping services return a Permit that holds the inner service's Permit,
// so a chain of permits mirrors the chain of services.
type Permit struct {
	inner   *Permit
	release func()
	taken   atomic.Bool
	once    sync.Once
}

// NewPermit builds a Permit around the inner service's permit (nil for
// terminal services). release runs once, when the permit is released after
// Call or abandoned unused.
func NewPermit(inner *Permit, release func()) *Permit {
	return &Permit{inner: inner, release: release}
}

// Take marks the permit as used and returns the inner permit to forward to
// the wrapped service. It panics with ProtocolViolation for a nil or
// already-used permit.
func (p *Permit) Take() *Permit {
	if p == nil {
		panic(ProtocolViolation{Reason: "Call invoked without a readiness permit"})
	}
	if !p.taken.CompareAndSwap(false, true) {
		panic(ProtocolViolation{Reason: "Call invoked twice with the same readiness permit"})
	}
	return p.inner
}

// Used reports whether Take has been called.
func (p *Permit) Used() bool {
	return p != nil && p.taken.Load()
}

// Release gives back whatever capacity the permit holds, including the
// capacity of the permits it wraps. Safe to call more than once and on nil.
//
// Callers that obtained a permit and then decide not to Call must Release it.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.release != nil {
			p.release()
		}
	})
	p.inner.Release()
}

// mustHold panics unless p is a permit that has not been used yet. Wrapping
// services call it before touching the request.
func mustHold(p *Permit) {
	if p == nil {
		panic(ProtocolViolation{Reason: "Call invoked without a readiness permit"})
	}
	if p.Used() {
		panic(ProtocolViolation{Reason: "Call invoked twice with the same readiness permit"})
	}
}

// ServiceFunc adapts a function into a terminal Service that is always ready.
type ServiceFunc func(ctx context.Context, req *Request) (*Response, error)

// PollReady always succeeds: a function has no capacity of its own.
func (f ServiceFunc) PollReady(ctx context.Context) (*Permit, error) {
	return NewPermit(nil, nil), nil
}

// Call runs f.
func (f ServiceFunc) Call(ctx context.Context, permit *Permit, req *Request) (*Response, error) {
	permit.Take()
	defer permit.Release()
	return f(ctx, req)
}

// Oneshot polls svc for readiness and immediately calls it with the permit.
// Readiness errors (e.g. ctx cancelled while waiting for capacity) are
// returned as-is.
func Oneshot(ctx context.Context, svc Service, req *Request) (*Response, error) {
	permit, err := svc.PollReady(ctx)
	if err != nil {
		return nil, err
	}
	return svc.Call(ctx, permit, req)
}
