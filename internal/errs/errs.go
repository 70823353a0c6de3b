// Package errs defines the error types shared by the HTTP layer.
//
// Everything a client can see goes through HTTPError, so responses keep
// one JSON shape regardless of which layer produced the failure
// (validation, routing, database, configuration).
package errs
