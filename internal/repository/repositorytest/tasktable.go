// Package repositorytest provides an in-memory stand-in for the tasks table
// that speaks the database.Conn interface.
package repositorytest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/deppfellow/go-taskapi/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TaskTable is a fake connection holding the tasks table in memory.
//
// Like a single PostgreSQL connection it does not support concurrent
// statements: every statement that starts while another is still running
// is counted in Overlaps. Tests assert it stays zero.
type TaskTable struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]model.Task
	err   error

	active     atomic.Int32
	overlaps   atomic.Int32
	statements atomic.Int32
}

// NewTaskTable returns an empty table.
func NewTaskTable() *TaskTable {
	return &TaskTable{tasks: make(map[uuid.UUID]model.Task)}
}

// Seed inserts tasks directly.
func (t *TaskTable) Seed(tasks ...model.Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, task := range tasks {
		t.tasks[task.ID] = task
	}
}

// Snapshot returns the stored task with id.
func (t *TaskTable) Snapshot(id uuid.UUID) (model.Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	return task, ok
}

// Len returns the number of stored tasks.
func (t *TaskTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// FailWith makes every following statement fail with err. nil restores
// normal operation.
func (t *TaskTable) FailWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// Overlaps returns how many statements ran concurrently with another one.
func (t *TaskTable) Overlaps() int {
	return int(t.overlaps.Load())
}

// Statements returns the number of statements executed.
func (t *TaskTable) Statements() int {
	return int(t.statements.Load())
}

// enter marks a statement as running and widens the window in which a
// concurrent statement would be noticed.
func (t *TaskTable) enter() func() {
	t.statements.Add(1)
	if t.active.Add(1) > 1 {
		t.overlaps.Add(1)
	}
	runtime.Gosched()
	return func() { t.active.Add(-1) }
}

func (t *TaskTable) Ping(ctx context.Context) error {
	defer t.enter()()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *TaskTable) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	defer t.enter()()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		return pgconn.CommandTag{}, t.err
	}

	if verb(sql) != "DELETE" || len(args) != 1 {
		return pgconn.CommandTag{}, fmt.Errorf("repositorytest: unsupported exec %q", sql)
	}

	id := args[0].(uuid.UUID)
	if _, ok := t.tasks[id]; !ok {
		return pgconn.NewCommandTag("DELETE 0"), nil
	}
	delete(t.tasks, id)
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (t *TaskTable) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	defer t.enter()()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		return nil, t.err
	}

	if verb(sql) != "SELECT" || len(args) != 2 {
		return nil, fmt.Errorf("repositorytest: unsupported query %q", sql)
	}

	limit, offset := args[0].(int), args[1].(int)

	all := make([]model.Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		all = append(all, task)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Title != all[j].Title {
			return all[i].Title < all[j].Title
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	if offset > len(all) {
		offset = len(all)
	}
	end := min(offset+limit, len(all))

	return &rows{tasks: all[offset:end], pos: -1}, nil
}

func (t *TaskTable) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	defer t.enter()()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		return row{err: t.err}
	}

	switch {
	case verb(sql) == "SELECT" && len(args) == 1:
		task, ok := t.tasks[args[0].(uuid.UUID)]
		if !ok {
			return row{err: pgx.ErrNoRows}
		}
		return row{task: task}

	case verb(sql) == "INSERT" && len(args) == 4:
		task := model.Task{
			ID:          args[0].(uuid.UUID),
			Title:       args[1].(string),
			Description: cloneString(args[2].(*string)),
			Done:        args[3].(bool),
		}
		if _, exists := t.tasks[task.ID]; exists {
			return row{err: &pgconn.PgError{Code: "23505", TableName: "tasks", ConstraintName: "tasks_pkey"}}
		}
		t.tasks[task.ID] = task
		return row{task: task}

	case verb(sql) == "UPDATE" && len(args) == 4:
		id := args[0].(uuid.UUID)
		task, ok := t.tasks[id]
		if !ok {
			return row{err: pgx.ErrNoRows}
		}
		task.Title = *args[1].(*string)
		if description := args[2].(*string); description != nil {
			task.Description = cloneString(description)
		}
		if done := args[3].(*bool); done != nil {
			task.Done = *done
		}
		t.tasks[id] = task
		return row{task: task}
	}

	return row{err: fmt.Errorf("repositorytest: unsupported query %q", sql)}
}

func verb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// scanTask copies task into the destinations of a
// "SELECT id, title, description, done" row.
func scanTask(task model.Task, dest []any) error {
	if len(dest) != 4 {
		return fmt.Errorf("repositorytest: expected 4 scan targets, got %d", len(dest))
	}

	id, ok1 := dest[0].(*uuid.UUID)
	title, ok2 := dest[1].(*string)
	description, ok3 := dest[2].(**string)
	done, ok4 := dest[3].(*bool)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return errors.New("repositorytest: unexpected scan target types")
	}

	*id = task.ID
	*title = task.Title
	*description = cloneString(task.Description)
	*done = task.Done
	return nil
}

type row struct {
	task model.Task
	err  error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanTask(r.task, dest)
}

type rows struct {
	tasks  []model.Task
	pos    int
	closed bool
}

func (r *rows) Close() {
	r.closed = true
}

func (r *rows) Err() error {
	return nil
}

func (r *rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.tasks)))
}

func (r *rows) FieldDescriptions() []pgconn.FieldDescription {
	return []pgconn.FieldDescription{{Name: "id"}, {Name: "title"}, {Name: "description"}, {Name: "done"}}
}

func (r *rows) Next() bool {
	if r.closed {
		return false
	}
	r.pos++
	if r.pos >= len(r.tasks) {
		r.closed = true
		return false
	}
	return true
}

func (r *rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.tasks) {
		return errors.New("repositorytest: scan outside of a row")
	}
	return scanTask(r.tasks[r.pos], dest)
}

func (r *rows) Values() ([]any, error) {
	task := r.tasks[r.pos]
	return []any{task.ID, task.Title, task.Description, task.Done}, nil
}

func (r *rows) RawValues() [][]byte {
	return make([][]byte, 4)
}

func (r *rows) Conn() *pgx.Conn {
	return nil
}
