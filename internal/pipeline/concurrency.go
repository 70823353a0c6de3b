package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// InFlightObserver is told +1 when a request obtains capacity and -1 when it
// gives it back.
type InFlightObserver func(delta int)

// ConcurrencyLimitLayer bounds the number of requests inside the wrapped
// service to max. PollReady waits for a free slot, so back-pressure reaches
// the caller as readiness that does not arrive; when ctx ends first the
// context error is returned and no slot is held.
//
// max <= 0 disables the limit.
func ConcurrencyLimitLayer(max int64, observe InFlightObserver) Layer {
	if max <= 0 {
		return Identity()
	}
	if observe == nil {
		observe = func(int) {}
	}
	return LayerFunc(func(inner Service) Service {
		return &concurrencyLimit{
			inner:   inner,
			sem:     semaphore.NewWeighted(max),
			observe: observe,
		}
	})
}

type concurrencyLimit struct {
	inner   Service
	sem     *semaphore.Weighted
	observe InFlightObserver
}

func (s *concurrencyLimit) PollReady(ctx context.Context) (*Permit, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	inner, err := s.inner.PollReady(ctx)
	if err != nil {
		s.sem.Release(1)
		return nil, err
	}

	s.observe(1)
	return NewPermit(inner, func() {
		s.observe(-1)
		s.sem.Release(1)
	}), nil
}

func (s *concurrencyLimit) Call(ctx context.Context, permit *Permit, req *Request) (*Response, error) {
	inner := permit.Take()
	defer permit.Release()
	return s.inner.Call(ctx, inner, req)
}
