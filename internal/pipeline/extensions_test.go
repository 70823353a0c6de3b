package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/deppfellow/go-taskapi/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tenant string

func TestExtensionsOneValuePerType(t *testing.T) {
	ext := NewExtensions()

	_, replaced := Insert(ext, tenant("a"))
	assert.False(t, replaced)

	prev, replaced := Insert(ext, tenant("b"))
	assert.True(t, replaced)
	assert.Equal(t, tenant("a"), prev)
	assert.Equal(t, 1, ext.Len())

	Insert(ext, "plain string")
	assert.Equal(t, 2, ext.Len())

	got, ok := Get[tenant](ext)
	require.True(t, ok)
	assert.Equal(t, tenant("b"), got)

	removed, ok := Remove[tenant](ext)
	require.True(t, ok)
	assert.Equal(t, tenant("b"), removed)

	_, ok = Get[tenant](ext)
	assert.False(t, ok)
	assert.Equal(t, 1, ext.Len())
}

func TestExtractMissingIsConfigurationError(t *testing.T) {
	_, err := Extract[tenant](newTestRequest(http.MethodGet, "/"))

	var cfgErr *errs.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Message, "pipeline.tenant")
}

type region string

// tenantFromQuery inserts the tenant named by the "tenant" query parameter.
type tenantFromQuery struct {
	inner Service
}

func (s *tenantFromQuery) PollReady(ctx context.Context) (*Permit, error) {
	return s.inner.PollReady(ctx)
}

func (s *tenantFromQuery) Call(ctx context.Context, permit *Permit, req *Request) (*Response, error) {
	mustHold(permit)
	Insert(req.Extensions, tenant(req.HTTP.URL.Query().Get("tenant")))
	return s.inner.Call(ctx, permit, req)
}

func TestExtensionsAreIsolatedPerRequest(t *testing.T) {
	var inFlight, peak atomic.Int64

	terminal := ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		want := tenant(req.HTTP.URL.Query().Get("tenant"))
		for range 20 {
			got, err := Extract[tenant](req)
			if err != nil || got != want {
				return JSON(http.StatusConflict, got), nil
			}
			if r, _ := Get[region](req.Extensions); r != "eu" {
				return JSON(http.StatusConflict, r), nil
			}
			runtime.Gosched()
		}
		return NoContent(http.StatusNoContent), nil
	})

	svc := NewStack(
		ConcurrencyLimitLayer(4, nil),
		LayerFunc(func(inner Service) Service { return &tenantFromQuery{inner: inner} }),
		AddExtensionLayer(region("eu")),
	).Service(terminal)

	var wg sync.WaitGroup
	statuses := make([]int, 50)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := newTestRequest(http.MethodGet, fmt.Sprintf("/?tenant=t%02d", i))
			res, err := Oneshot(context.Background(), svc, req)
			if err == nil {
				statuses[i] = res.Status
			}
		}(i)
	}
	wg.Wait()

	for i, status := range statuses {
		assert.Equal(t, http.StatusNoContent, status, "request %d", i)
	}
	assert.LessOrEqual(t, peak.Load(), int64(4))
	assert.Zero(t, inFlight.Load())
}

func TestAddExtensionLayer(t *testing.T) {
	terminal := ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		v, err := Extract[tenant](req)
		if err != nil {
			return nil, err
		}
		return JSON(http.StatusOK, v), nil
	})

	t.Run("handler observes injected value", func(t *testing.T) {
		svc := AddExtensionLayer(tenant("acme")).Layer(terminal)
		res, err := Oneshot(context.Background(), svc, newTestRequest(http.MethodGet, "/"))
		require.NoError(t, err)
		assert.Equal(t, tenant("acme"), res.Body)
	})

	t.Run("innermost wins when wrapped twice", func(t *testing.T) {
		svc := NewStack(AddExtensionLayer(tenant("outer")), AddExtensionLayer(tenant("inner"))).Service(terminal)
		res, err := Oneshot(context.Background(), svc, newTestRequest(http.MethodGet, "/"))
		require.NoError(t, err)
		assert.Equal(t, tenant("inner"), res.Body)
	})

	t.Run("readiness is delegated", func(t *testing.T) {
		gate := ConcurrencyLimitLayer(1, nil).Layer(terminal)
		svc := AddExtensionLayer(tenant("x")).Layer(gate)

		held, err := svc.PollReady(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = svc.PollReady(ctx)
		assert.ErrorIs(t, err, context.Canceled)

		held.Release()
		again, err := svc.PollReady(context.Background())
		require.NoError(t, err)
		again.Release()
	})

	t.Run("call without permit panics", func(t *testing.T) {
		svc := AddExtensionLayer(tenant("x")).Layer(terminal)
		assert.Panics(t, func() { _, _ = svc.Call(context.Background(), nil, newTestRequest(http.MethodGet, "/")) })
	})
}
