package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deppfellow/go-taskapi/internal/config"
	"github.com/deppfellow/go-taskapi/internal/database"
	"github.com/deppfellow/go-taskapi/internal/errs"
	"github.com/deppfellow/go-taskapi/internal/model"
	"github.com/deppfellow/go-taskapi/internal/pipeline"
	"github.com/deppfellow/go-taskapi/internal/repository/repositorytest"
	"github.com/deppfellow/go-taskapi/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler() Handler {
	log := zerolog.Nop()
	return NewHandler(&server.Server{Config: config.Default(), Logger: &log})
}

func newRequest(method, body string, handle *database.Handle) *pipeline.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, "/entities", nil)
	} else {
		r = httptest.NewRequest(method, "/entities", strings.NewReader(body))
	}

	req := pipeline.NewRequest(r)
	if handle != nil {
		pipeline.Insert(req.Extensions, handle)
	}
	return req
}

func TestHandleRequiresHandleExtension(t *testing.T) {
	called := false
	svc := Handle[model.CreateTaskPayload](testHandler(),
		func(ctx context.Context, conn database.Conn, p *model.CreateTaskPayload) (*model.Task, error) {
			called = true
			return nil, nil
		}, http.StatusCreated)

	_, err := pipeline.Oneshot(context.Background(), svc, newRequest(http.MethodPost, `{"title":"x"}`, nil))

	var cfgErr *errs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.False(t, called)
}

func TestHandleValidatesBeforeAcquiring(t *testing.T) {
	table := repositorytest.NewTaskTable()
	handle := database.NewHandle(table)

	svc := Handle[model.CreateTaskPayload](testHandler(),
		func(ctx context.Context, conn database.Conn, p *model.CreateTaskPayload) (*model.Task, error) {
			t.Fatal("handler must not run for invalid input")
			return nil, nil
		}, http.StatusCreated)

	_, err := pipeline.Oneshot(context.Background(), svc, newRequest(http.MethodPost, `{"title":""}`, handle))

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Zero(t, handle.InFlight())
}

func TestHandleReleasesOnError(t *testing.T) {
	handle := database.NewHandle(repositorytest.NewTaskTable())
	boom := errors.New("boom")

	svc := Handle[model.CreateTaskPayload](testHandler(),
		func(ctx context.Context, conn database.Conn, p *model.CreateTaskPayload) (*model.Task, error) {
			assert.Equal(t, int64(1), handle.InFlight())
			return nil, boom
		}, http.StatusCreated)

	_, err := pipeline.Oneshot(context.Background(), svc, newRequest(http.MethodPost, `{"title":"x"}`, handle))
	require.ErrorIs(t, err, boom)
	assert.Zero(t, handle.InFlight())
}

func TestHandleUsesFreshPayloadPerRequest(t *testing.T) {
	handle := database.NewHandle(repositorytest.NewTaskTable())

	var seen []*model.CreateTaskPayload
	svc := Handle[model.CreateTaskPayload](testHandler(),
		func(ctx context.Context, conn database.Conn, p *model.CreateTaskPayload) (*model.Task, error) {
			seen = append(seen, p)
			return &model.Task{Title: p.Title, Description: p.Description, Done: p.Done}, nil
		}, http.StatusCreated)

	res, err := pipeline.Oneshot(context.Background(), svc, newRequest(http.MethodPost, `{"title":"first","description":"d","done":true}`, handle))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.Status)

	res, err = pipeline.Oneshot(context.Background(), svc, newRequest(http.MethodPost, `{"title":"second"}`, handle))
	require.NoError(t, err)

	task := res.Body.(*model.Task)
	assert.Equal(t, "second", task.Title)
	assert.Nil(t, task.Description)
	assert.False(t, task.Done)

	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
}

func TestHandleAcquireCancelled(t *testing.T) {
	handle := database.NewHandle(repositorytest.NewTaskTable(), database.WithMaxConcurrency(1))

	held, err := handle.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	svc := HandleNoContent[model.TaskIDParam](testHandler(),
		func(ctx context.Context, conn database.Conn, p *model.TaskIDParam) error {
			t.Fatal("handler must not run without a connection")
			return nil
		}, http.StatusNoContent)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req := newRequest(http.MethodDelete, "", handle)
	pipeline.Insert(req.Extensions, pipeline.Params{"id": "3f1c2a52-8a49-4c39-9d5b-0c0c3e3f5d10"})

	_, err = pipeline.Oneshot(ctx, svc, req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), handle.InFlight())
}

func TestHandleNoContent(t *testing.T) {
	handle := database.NewHandle(repositorytest.NewTaskTable())

	svc := HandleNoContent[model.TaskIDParam](testHandler(),
		func(ctx context.Context, conn database.Conn, p *model.TaskIDParam) error {
			assert.Equal(t, "3f1c2a52-8a49-4c39-9d5b-0c0c3e3f5d10", p.ID)
			return nil
		}, http.StatusNoContent)

	req := newRequest(http.MethodDelete, "", handle)
	pipeline.Insert(req.Extensions, pipeline.Params{"id": "3f1c2a52-8a49-4c39-9d5b-0c0c3e3f5d10"})

	res, err := pipeline.Oneshot(context.Background(), svc, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.Status)
	assert.Nil(t, res.Body)
}

func TestServeOpenAPIUI(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "openapi.html"), []byte("<html>docs</html>"), 0o600))

	h := &OpenAPIHandler{Handler: testHandler(), dir: dir}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/docs", nil), rec)

	require.NoError(t, h.ServeOpenAPIUI(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "docs")

	h.dir = filepath.Join(dir, "missing")
	assert.Error(t, h.ServeOpenAPIUI(e.NewContext(httptest.NewRequest(http.MethodGet, "/docs", nil), httptest.NewRecorder())))
}
