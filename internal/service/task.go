package service

import (
	"context"

	"github.com/deppfellow/go-taskapi/internal/database"
	"github.com/deppfellow/go-taskapi/internal/lib/cache"
	"github.com/deppfellow/go-taskapi/internal/model"
	"github.com/deppfellow/go-taskapi/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TaskService implements the task operations. Each method runs on the
// connection the caller acquired for the current request.
type TaskService struct {
	repo  *repository.TaskRepository
	cache *cache.TaskCache
}

// NewTaskService returns a TaskService. taskCache may be nil.
func NewTaskService(repo *repository.TaskRepository, taskCache *cache.TaskCache) *TaskService {
	return &TaskService{repo: repo, cache: taskCache}
}

func (s *TaskService) ListTasks(ctx context.Context, conn database.Conn, q *model.ListTasksQuery) ([]model.Task, error) {
	limit, offset := q.Page()
	return s.repo.List(ctx, conn, limit, offset)
}

func (s *TaskService) CreateTask(ctx context.Context, conn database.Conn, payload *model.CreateTaskPayload) (*model.Task, error) {
	task, err := s.repo.Create(ctx, conn, payload)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("task_id", task.ID.String()).Msg("task created")
	return task, nil
}

// GetTask reads through the cache. A recently deleted task is reported as
// not found without asking the database.
func (s *TaskService) GetTask(ctx context.Context, conn database.Conn, id uuid.UUID) (*model.Task, error) {
	switch task, result := s.cache.Get(ctx, id); result {
	case cache.Hit:
		return task, nil
	case cache.Deleted:
		return nil, repository.NotFound()
	}

	task, err := s.repo.Get(ctx, conn, id)
	if err != nil {
		return nil, err
	}

	s.cache.Fill(ctx, task)
	return task, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, conn database.Conn, payload *model.UpdateTaskPayload) (*model.Task, error) {
	id := payload.TaskID()

	task, err := s.repo.Update(ctx, conn, id, payload)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, task)
	return task, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, conn database.Conn, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, conn, id); err != nil {
		return err
	}

	s.cache.MarkDeleted(ctx, id)
	zerolog.Ctx(ctx).Info().Str("task_id", id.String()).Msg("task deleted")
	return nil
}
