// Package handler is the first layer after the router.
//
// It turns typed endpoint functions into pipeline services: the request is
// bound and validated with the validation package, one database connection
// is acquired from the request's handle, and the service layer runs on it.
// System endpoints (health, docs) are plain Echo handlers.
package handler
