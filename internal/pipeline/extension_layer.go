package pipeline

import "context"

// AddExtensionLayer returns a Layer that inserts value into the Extensions of
// every request before forwarding it.
//
// The wrapping service adds no readiness of its own: PollReady is the inner
// service's PollReady. Insertion replaces, so when the layer is applied
// twice for the same type the inner application wins, being the last
// insertion before dispatch.
//
// value is shared by all requests. For the database handle that is the
// intent: the handle itself serializes access to the connection.
func AddExtensionLayer[T any](value T) Layer {
	return LayerFunc(func(inner Service) Service {
		return &addExtension[T]{inner: inner, value: value}
	})
}

type addExtension[T any] struct {
	inner Service
	value T
}

func (s *addExtension[T]) PollReady(ctx context.Context) (*Permit, error) {
	return s.inner.PollReady(ctx)
}

func (s *addExtension[T]) Call(ctx context.Context, permit *Permit, req *Request) (*Response, error) {
	mustHold(permit)
	Insert(req.Extensions, s.value)
	return s.inner.Call(ctx, permit, req)
}
