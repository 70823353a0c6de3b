// Package service contains the business logic.
//
// It sits between the handler and repository layers.
// It receives validated data from the handler, performs
// business operations, and calls repository methods to interact
// with the data
package service

import (
	"github.com/deppfellow/go-taskapi/internal/lib/cache"
	"github.com/deppfellow/go-taskapi/internal/repository"
	"github.com/deppfellow/go-taskapi/internal/server"
)

type Services struct {
	Tasks *TaskService
}

// NewService wires the services. The task cache is enabled when the server
// has a Redis client.
func NewService(s *server.Server, repos *repository.Repositories) (*Services, error) {
	var taskCache *cache.TaskCache
	if s.Redis != nil {
		taskCache = cache.NewTaskCache(s.Redis, s.Config.Redis.CacheTTL)
	}

	return &Services{
		Tasks: NewTaskService(repos.Tasks, taskCache),
	}, nil
}
