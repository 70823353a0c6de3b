package pipeline

// Layer wraps a Service into a new Service with added behavior.
//
// Layer must be pure construction: no I/O, no goroutines. The returned
// Service must forward inner errors unchanged.
type Layer interface {
	Layer(inner Service) Service
}

// LayerFunc adapts a function to Layer.
type LayerFunc func(inner Service) Service

func (f LayerFunc) Layer(inner Service) Service {
	return f(inner)
}

// Identity returns a Layer that returns the inner service untouched.
func Identity() Layer {
	return LayerFunc(func(inner Service) Service { return inner })
}

// Stack is an ordered list of layers. The first layer is the outermost one:
// it sees the request first and the response last.
type Stack struct {
	layers []Layer
}

// NewStack returns a Stack of the given layers, outermost first.
func NewStack(layers ...Layer) *Stack {
	s := &Stack{}
	for _, l := range layers {
		s.Push(l)
	}
	return s
}

// Push appends l as the new innermost layer. nil layers are ignored.
func (s *Stack) Push(l Layer) *Stack {
	if l != nil {
		s.layers = append(s.layers, l)
	}
	return s
}

// Len returns the number of layers.
func (s *Stack) Len() int {
	return len(s.layers)
}

// Service wraps inner with every layer of the stack.
//
// NewStack(A, B, C).Service(svc) produces A(B(C(svc))).
func (s *Stack) Service(inner Service) Service {
	for i := len(s.layers) - 1; i >= 0; i-- {
		inner = s.layers[i].Layer(inner)
	}
	return inner
}
