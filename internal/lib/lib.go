// Package lib acts as a library for modules that do not fit
// strictly into other layers.
//
// It contains the Redis-backed task cache.
package lib
