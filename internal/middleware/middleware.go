// Package middleware stores the global Echo middleware.
//
// These intercept requests to handle cross-cutting concerns
// such as request logging, CORS, rate limiting, tracing and
// panic recovery, before the request enters the task pipeline.
package middleware
