// Package pipeline is the request-processing core of the API.
//
// A request travels through a chain of Services. Each Service answers two
// questions: "can you take one more request?" (PollReady) and "handle this
// request" (Call). Layers wrap a Service into another Service to add
// behavior (injecting the database handle, limiting concurrency) without
// changing the interface, and a Stack applies a list of Layers in order.
// The Router is the terminal Service: it matches method + path, runs the
// matching handler and turns every error into a response.
//
// Values that travel with a request but are not part of its payload (the
// database handle, path parameters) live in the request's Extensions, a
// type-keyed map created fresh for every request.
//
// Request flow:
//
//	Echo -> EchoHandler -> [ConcurrencyLimit] -> AddExtension(handle) -> Router -> handler
package pipeline
