// Package sqlerr translates database driver errors into response errors.
//
// It parses Postgres SQLSTATE codes from pgx and converts them into
// errs.HTTPError values (e.g. a "not null violation" becomes a 400 with a
// field error). HandleError is also the single error-to-response table
// used by the router and the global error handler.
package sqlerr
