package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deppfellow/go-taskapi/internal/database"
	"github.com/deppfellow/go-taskapi/internal/lib/cache"
	"github.com/deppfellow/go-taskapi/internal/lib/cache/cachetest"
	"github.com/deppfellow/go-taskapi/internal/model"
	"github.com/deppfellow/go-taskapi/internal/repository"
	"github.com/deppfellow/go-taskapi/internal/repository/repositorytest"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestTaskServiceWithoutCache(t *testing.T) {
	ctx := context.Background()
	table := repositorytest.NewTaskTable()
	svc := NewTaskService(repository.NewTaskRepository(), nil)

	created, err := svc.CreateTask(ctx, table, &model.CreateTaskPayload{Title: "b"})
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, table, &model.CreateTaskPayload{Title: "a", Done: true})
	require.NoError(t, err)

	tasks, err := svc.ListTasks(ctx, table, &model.ListTasksQuery{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].Title)

	updated, err := svc.UpdateTask(ctx, table, &model.UpdateTaskPayload{ID: created.ID.String(), Title: ptr("c")})
	require.NoError(t, err)
	assert.Equal(t, "c", updated.Title)

	got, err := svc.GetTask(ctx, table, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	require.NoError(t, svc.DeleteTask(ctx, table, created.ID))
	_, err = svc.GetTask(ctx, table, created.ID)
	assert.True(t, errors.Is(err, pgx.ErrNoRows))

	err = svc.DeleteTask(ctx, table, uuid.New())
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
}

func newCachedService() (*TaskService, *cachetest.Redis) {
	rdb := cachetest.NewRedis()
	return NewTaskService(repository.NewTaskRepository(), cache.NewTaskCache(rdb, 30*time.Second)), rdb
}

func TestTaskServiceCacheFollowsWrites(t *testing.T) {
	ctx := context.Background()
	table := repositorytest.NewTaskTable()
	svc, rdb := newCachedService()

	created, err := svc.CreateTask(ctx, table, &model.CreateTaskPayload{Title: "old"})
	require.NoError(t, err)

	got, err := svc.GetTask(ctx, table, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "old", got.Title)
	_, cached := rdb.Value(cache.Key(created.ID))
	require.True(t, cached)

	// served from the cache from now on
	statements := table.Statements()
	_, err = svc.GetTask(ctx, table, created.ID)
	require.NoError(t, err)
	assert.Equal(t, statements, table.Statements())

	_, err = svc.UpdateTask(ctx, table, &model.UpdateTaskPayload{ID: created.ID.String(), Title: ptr("new")})
	require.NoError(t, err)

	got, err = svc.GetTask(ctx, table, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)

	require.NoError(t, svc.DeleteTask(ctx, table, created.ID))

	_, err = svc.GetTask(ctx, table, created.ID)
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
}

// pausingConn stops the first armed SELECT after the row has been read, until
// resume is closed. The row returned is the one read before the pause.
type pausingConn struct {
	database.Conn
	armed  atomic.Bool
	read   chan struct{}
	resume chan struct{}
}

func newPausingConn(conn database.Conn) *pausingConn {
	c := &pausingConn{Conn: conn, read: make(chan struct{}), resume: make(chan struct{})}
	c.armed.Store(true)
	return c
}

func (c *pausingConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	row := c.Conn.QueryRow(ctx, sql, args...)
	if strings.HasPrefix(strings.TrimSpace(sql), "SELECT") && c.armed.CompareAndSwap(true, false) {
		close(c.read)
		<-c.resume
	}
	return row
}

// lateRead starts a GetTask that reads the row and then waits until the
// returned function is called, which lets it finish and returns its result.
func lateRead(t *testing.T, svc *TaskService, conn database.Conn, id uuid.UUID) func() (*model.Task, error) {
	t.Helper()

	paused := newPausingConn(conn)
	type result struct {
		task *model.Task
		err  error
	}
	done := make(chan result, 1)

	go func() {
		task, err := svc.GetTask(context.Background(), paused, id)
		done <- result{task, err}
	}()
	<-paused.read

	return func() (*model.Task, error) {
		close(paused.resume)
		r := <-done
		return r.task, r.err
	}
}

func TestLateReadDoesNotOverwriteUpdate(t *testing.T) {
	ctx := context.Background()
	table := repositorytest.NewTaskTable()
	svc, _ := newCachedService()

	task := model.Task{ID: uuid.New(), Title: "old"}
	table.Seed(task)

	finish := lateRead(t, svc, table, task.ID)

	updated, err := svc.UpdateTask(ctx, table, &model.UpdateTaskPayload{ID: task.ID.String(), Title: ptr("new")})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)

	stale, err := finish()
	require.NoError(t, err)
	assert.Equal(t, "old", stale.Title)

	got, err := svc.GetTask(ctx, table, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
}

func TestLateReadDoesNotResurrectDeletedTask(t *testing.T) {
	ctx := context.Background()
	table := repositorytest.NewTaskTable()
	svc, _ := newCachedService()

	task := model.Task{ID: uuid.New(), Title: "doomed"}
	table.Seed(task)

	finish := lateRead(t, svc, table, task.ID)

	require.NoError(t, svc.DeleteTask(ctx, table, task.ID))

	_, err := finish()
	require.NoError(t, err)

	_, err = svc.GetTask(ctx, table, task.ID)
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
}
