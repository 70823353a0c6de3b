package router

import (
	"errors"
	"net/http"

	"github.com/deppfellow/go-taskapi/internal/handler"
	"github.com/deppfellow/go-taskapi/internal/model"
	"github.com/deppfellow/go-taskapi/internal/pipeline"
)

const (
	tasksPath = "/entities"
	taskPath  = "/entities/:id"
)

func registerTaskRoutes(r *pipeline.Router, h *handler.Handlers) error {
	tasks := h.Tasks

	return errors.Join(
		r.Register(http.MethodGet, tasksPath,
			handler.Handle[model.ListTasksQuery](tasks.Handler, tasks.ListTasks, http.StatusOK)),
		r.Register(http.MethodPost, tasksPath,
			handler.Handle[model.CreateTaskPayload](tasks.Handler, tasks.CreateTask, http.StatusCreated)),
		r.Register(http.MethodGet, taskPath,
			handler.Handle[model.TaskIDParam](tasks.Handler, tasks.GetTask, http.StatusOK)),
		r.Register(http.MethodPatch, taskPath,
			handler.Handle[model.UpdateTaskPayload](tasks.Handler, tasks.UpdateTask, http.StatusOK)),
		r.Register(http.MethodDelete, taskPath,
			handler.HandleNoContent[model.TaskIDParam](tasks.Handler, tasks.DeleteTask, http.StatusNoContent)),
	)
}
