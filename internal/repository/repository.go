package repository

import (
	"context"

	"github.com/splax/taskboard/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// TaskRepository persists tasks. Update and delete are scoped to the owner
// so a write can never land on a record belonging to someone else.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTaskByID(ctx context.Context, id string) (*domain.Task, error)
	ListTasksByOwner(ctx context.Context, ownerID string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, task *domain.Task) error
	DeleteTask(ctx context.Context, id, ownerID string) error
}

// Store is the full credential store used by the API.
type Store interface {
	UserRepository
	TaskRepository
	Ping(ctx context.Context) error
	Close()
}
