// Package repository handles all interactions with the database.
//
// It contains raw SQL queries and methods to fetch, persist,
// or update data, abstracting SQL logic away from the service layer.
//
// Repositories hold no connection. Every method takes the database.Conn
// the current request acquired from the shared handle.
package repository

// Repositories is a container for all repository instances.
type Repositories struct {
	Tasks *TaskRepository
}

// NewRepositories constructs the repository container.
func NewRepositories() *Repositories {
	return &Repositories{
		Tasks: NewTaskRepository(),
	}
}
