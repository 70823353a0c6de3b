package repository

import (
	"context"

	"github.com/deppfellow/go-taskapi/internal/database"
	"github.com/deppfellow/go-taskapi/internal/model"
	"github.com/deppfellow/go-taskapi/internal/sqlerr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// TasksTable is the table behind the task routes.
const TasksTable = "tasks"

const (
	listTasksSQL = `SELECT id, title, description, done FROM tasks ORDER BY title, id LIMIT $1 OFFSET $2`

	createTaskSQL = `INSERT INTO tasks (id, title, description, done) VALUES ($1, $2, $3, $4)
RETURNING id, title, description, done`

	getTaskSQL = `SELECT id, title, description, done FROM tasks WHERE id = $1`

	updateTaskSQL = `UPDATE tasks
SET title = $2, description = COALESCE($3, description), done = COALESCE($4, done)
WHERE id = $1
RETURNING id, title, description, done`

	deleteTaskSQL = `DELETE FROM tasks WHERE id = $1`
)

// NotFound is the error for a missing task. It wraps pgx.ErrNoRows so the
// error table reports "Task not found".
func NotFound() error {
	return errors.Wrap(pgx.ErrNoRows, sqlerr.TablePrefix+TasksTable)
}

type TaskRepository struct{}

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{}
}

// List returns one page of tasks ordered by title, then id.
func (r *TaskRepository) List(ctx context.Context, conn database.Conn, limit, offset int) ([]model.Task, error) {
	rows, err := conn.Query(ctx, listTasksSQL, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tasks")
	}

	tasks, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Task])
	if err != nil {
		return nil, errors.Wrap(err, "failed to collect tasks")
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// Create inserts a task with a new id.
func (r *TaskRepository) Create(ctx context.Context, conn database.Conn, payload *model.CreateTaskPayload) (*model.Task, error) {
	task, err := scanTask(conn.QueryRow(ctx, createTaskSQL,
		uuid.New(),
		payload.Title,
		payload.Description,
		payload.Done,
	))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create task")
	}
	return task, nil
}

// Get returns the task with id. A missing task is a not-found error.
func (r *TaskRepository) Get(ctx context.Context, conn database.Conn, id uuid.UUID) (*model.Task, error) {
	task, err := scanTask(conn.QueryRow(ctx, getTaskSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFound()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get task %s", id)
	}
	return task, nil
}

// Update replaces the title and, when given, description and done.
func (r *TaskRepository) Update(ctx context.Context, conn database.Conn, id uuid.UUID, payload *model.UpdateTaskPayload) (*model.Task, error) {
	task, err := scanTask(conn.QueryRow(ctx, updateTaskSQL,
		id,
		payload.Title,
		payload.Description,
		payload.Done,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFound()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update task %s", id)
	}
	return task, nil
}

// Delete removes the task. Deleting a missing task is a not-found error.
func (r *TaskRepository) Delete(ctx context.Context, conn database.Conn, id uuid.UUID) error {
	tag, err := conn.Exec(ctx, deleteTaskSQL, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete task %s", id)
	}
	if tag.RowsAffected() == 0 {
		return NotFound()
	}
	return nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var task model.Task
	if err := row.Scan(&task.ID, &task.Title, &task.Description, &task.Done); err != nil {
		return nil, err
	}
	return &task, nil
}
