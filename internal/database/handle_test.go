package database

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deppfellow/go-taskapi/internal/errs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// overlapConn counts statements that ran while another was still running.
type overlapConn struct {
	active   atomic.Int32
	overlaps atomic.Int32
	calls    atomic.Int32
}

func (c *overlapConn) use() {
	c.calls.Add(1)
	if c.active.Add(1) > 1 {
		c.overlaps.Add(1)
	}
	runtime.Gosched()
	time.Sleep(50 * time.Microsecond)
	c.active.Add(-1)
}

func (c *overlapConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.use()
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (c *overlapConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.use()
	return nil, errors.New("not supported")
}

func (c *overlapConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	c.use()
	return errRow{err: pgx.ErrNoRows}
}

func (c *overlapConn) Ping(ctx context.Context) error {
	c.use()
	return nil
}

func useOnce(t *testing.T, h *Handle) {
	ref, err := h.Acquire(context.Background())
	if !assert.NoError(t, err) {
		return
	}
	defer ref.Release()
	_, err = ref.Exec(context.Background(), "SELECT 1")
	assert.NoError(t, err)
}

func TestHandleSerializesSingleConnection(t *testing.T) {
	conn := &overlapConn{}
	h := NewHandle(conn)
	require.Equal(t, int64(1), h.Capacity())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			useOnce(t, h)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(100), conn.calls.Load())
	assert.Equal(t, int32(0), conn.overlaps.Load())
	assert.Equal(t, int64(0), h.InFlight())
}

func TestHandleCapacityAllowsParallelUse(t *testing.T) {
	h := NewHandle(&overlapConn{}, WithMaxConcurrency(3))

	refs := make([]*Ref, 0, 3)
	for i := 0; i < 3; i++ {
		ref, err := h.Acquire(context.Background())
		require.NoError(t, err)
		refs = append(refs, ref)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(3), h.InFlight(), "a cancelled wait holds nothing")

	for _, ref := range refs {
		ref.Release()
	}
	assert.Equal(t, int64(0), h.InFlight())
}

func TestRefUseAfterRelease(t *testing.T) {
	h := NewHandle(&overlapConn{})

	ref, err := h.Acquire(context.Background())
	require.NoError(t, err)
	ref.Release()
	ref.Release()

	_, err = ref.Exec(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrRefReleased)
	assert.ErrorIs(t, ref.Ping(context.Background()), ErrRefReleased)
	assert.ErrorIs(t, ref.QueryRow(context.Background(), "SELECT 1").Scan(), ErrRefReleased)

	_, err = ref.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrRefReleased)

	// The slot came back exactly once.
	again, err := h.Acquire(context.Background())
	require.NoError(t, err)
	again.Release()
}

func TestHandleClose(t *testing.T) {
	var closed int
	h := NewHandle(&overlapConn{}, WithCloser(func(context.Context) error {
		closed++
		return nil
	}))

	ref, err := h.Acquire(context.Background())
	require.NoError(t, err)

	err = h.Close(context.Background())
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, 0, closed, "connection untouched while in use")

	ref.Release()
	require.NoError(t, h.Close(context.Background()))
	assert.Equal(t, 1, closed)

	assert.ErrorIs(t, h.Close(context.Background()), ErrClosed)
	assert.Equal(t, 1, closed)

	_, err = h.Acquire(context.Background())
	assert.ErrorIs(t, err, errs.ErrResourceUnavailable)
}

func TestHandleWaitObserver(t *testing.T) {
	var observed int
	h := NewHandle(&overlapConn{}, WithWaitObserver(func(d time.Duration) {
		observed++
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}))

	useOnce(t, h)
	useOnce(t, h)
	assert.Equal(t, 2, observed)
}

func TestWithMaxConcurrencyBelowOne(t *testing.T) {
	h := NewHandle(&overlapConn{}, WithMaxConcurrency(0))
	assert.Equal(t, int64(1), h.Capacity())
}
