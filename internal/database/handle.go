package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deppfellow/go-taskapi/internal/errs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrInFlight is returned by Close while Refs are still outstanding.
	// The server must stop accepting requests and drain them first.
	ErrInFlight = errors.New("database: handle closed while requests are in flight")

	// ErrClosed is returned by a second Close.
	ErrClosed = errors.New("database: handle already closed")

	// ErrRefReleased is returned when a Ref is used after Release.
	ErrRefReleased = errors.New("database: connection reference used after release")
)

// Conn is the part of pgx that repositories use. *pgx.Conn and
// *pgxpool.Pool both satisfy it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Handle is the process-wide handle to the backend connection. It is
// created once at startup, shared by every request, and closed once after
// the HTTP server has drained.
//
// Access goes through Acquire, which hands out at most Capacity Refs at a
// time. A single *pgx.Conn cannot run two statements at once, so it is used
// with capacity 1 and every request waits its turn. A pool is used with
// capacity equal to its size.
type Handle struct {
	conn     Conn
	capacity int64
	slots    *semaphore.Weighted

	closer       func(context.Context) error
	waitObserver func(time.Duration)

	mu       sync.Mutex
	closed   bool
	inFlight int64
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithMaxConcurrency sets how many Refs may be held at once. Values below 1
// are treated as 1.
func WithMaxConcurrency(n int64) HandleOption {
	return func(h *Handle) {
		h.capacity = n
	}
}

// WithCloser sets the function that releases the underlying connection.
func WithCloser(fn func(context.Context) error) HandleOption {
	return func(h *Handle) {
		h.closer = fn
	}
}

// WithWaitObserver reports how long each Acquire waited for a free slot.
func WithWaitObserver(fn func(time.Duration)) HandleOption {
	return func(h *Handle) {
		h.waitObserver = fn
	}
}

// NewHandle wraps conn. Without WithMaxConcurrency the handle is fully
// serialized.
func NewHandle(conn Conn, opts ...HandleOption) *Handle {
	h := &Handle{conn: conn, capacity: 1}
	for _, opt := range opts {
		opt(h)
	}
	if h.capacity < 1 {
		h.capacity = 1
	}
	h.slots = semaphore.NewWeighted(h.capacity)
	return h
}

// Capacity returns the maximum number of simultaneous Refs.
func (h *Handle) Capacity() int64 {
	return h.capacity
}

// InFlight returns the number of Refs held or being waited for.
func (h *Handle) InFlight() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inFlight
}

// Acquire returns a Ref usable until Release, waiting for a free slot if
// needed. If ctx ends while waiting, the context error is returned and
// nothing is held. After Close it fails with errs.ErrResourceUnavailable.
func (h *Handle) Acquire(ctx context.Context) (*Ref, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: database handle is closed", errs.ErrResourceUnavailable)
	}
	h.inFlight++
	h.mu.Unlock()

	start := time.Now()
	if err := h.slots.Acquire(ctx, 1); err != nil {
		h.done()
		return nil, err
	}

	if h.waitObserver != nil {
		h.waitObserver(time.Since(start))
	}

	return &Ref{handle: h}, nil
}

func (h *Handle) done() {
	h.mu.Lock()
	h.inFlight--
	h.mu.Unlock()
}

// Close releases the underlying connection exactly once.
//
// It refuses with ErrInFlight while any Ref is outstanding; the connection
// is left untouched so those requests can finish. A second Close returns
// ErrClosed.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.inFlight > 0 {
		n := h.inFlight
		h.mu.Unlock()
		return fmt.Errorf("%w (%d outstanding)", ErrInFlight, n)
	}
	h.closed = true
	h.mu.Unlock()

	if h.closer != nil {
		return h.closer(ctx)
	}
	return nil
}

// Ref is one request's access to the handle's connection. It implements
// Conn until Release.
type Ref struct {
	handle   *Handle
	released atomic.Bool
}

func (r *Ref) conn() (Conn, error) {
	if r.released.Load() {
		return nil, ErrRefReleased
	}
	return r.handle.conn, nil
}

func (r *Ref) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c, err := r.conn()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return c.Exec(ctx, sql, args...)
}

func (r *Ref) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c, err := r.conn()
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, sql, args...)
}

func (r *Ref) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	c, err := r.conn()
	if err != nil {
		return errRow{err: err}
	}
	return c.QueryRow(ctx, sql, args...)
}

func (r *Ref) Ping(ctx context.Context) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	return c.Ping(ctx)
}

// Release gives the slot back. Safe to call more than once; callers
// normally defer it right after Acquire.
func (r *Ref) Release() {
	if r.released.CompareAndSwap(false, true) {
		r.handle.slots.Release(1)
		r.handle.done()
	}
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}
