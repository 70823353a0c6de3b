package handler

import (
	"context"

	"github.com/deppfellow/go-taskapi/internal/database"
	"github.com/deppfellow/go-taskapi/internal/model"
	"github.com/deppfellow/go-taskapi/internal/server"
	"github.com/deppfellow/go-taskapi/internal/service"
)

// TaskHandler serves the /entities resource.
type TaskHandler struct {
	Handler
	tasks *service.TaskService
}

func NewTaskHandler(s *server.Server, tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{
		Handler: NewHandler(s),
		tasks:   tasks,
	}
}

// ListTasks returns a page of tasks ordered by title, then id.
func (h *TaskHandler) ListTasks(ctx context.Context, conn database.Conn, q *model.ListTasksQuery) ([]model.Task, error) {
	return h.tasks.ListTasks(ctx, conn, q)
}

func (h *TaskHandler) CreateTask(ctx context.Context, conn database.Conn, payload *model.CreateTaskPayload) (*model.Task, error) {
	return h.tasks.CreateTask(ctx, conn, payload)
}

func (h *TaskHandler) GetTask(ctx context.Context, conn database.Conn, p *model.TaskIDParam) (*model.Task, error) {
	return h.tasks.GetTask(ctx, conn, p.TaskID())
}

func (h *TaskHandler) UpdateTask(ctx context.Context, conn database.Conn, payload *model.UpdateTaskPayload) (*model.Task, error) {
	return h.tasks.UpdateTask(ctx, conn, payload)
}

// DeleteTask fails with 404 when the task does not exist.
func (h *TaskHandler) DeleteTask(ctx context.Context, conn database.Conn, p *model.TaskIDParam) error {
	return h.tasks.DeleteTask(ctx, conn, p.TaskID())
}
