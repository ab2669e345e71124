package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/repository"
)

var (
	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")
	// ErrForbidden is returned when the task belongs to another principal.
	ErrForbidden = errors.New("task belongs to another user")
)

// Event types published after successful writes.
const (
	EventCreated = "task.created"
	EventUpdated = "task.updated"
	EventDeleted = "task.deleted"
)

// Event describes a change to one of an owner's tasks.
type Event struct {
	Type string      `json:"type"`
	Task domain.Task `json:"task"`
}

// Publisher fans events out to an owner's live subscribers.
type Publisher interface {
	Publish(ownerID string, event Event)
}

// Service implements owner-scoped task operations.
type Service struct {
	repo      repository.TaskRepository
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a Service. publisher may be nil.
func New(repo repository.TaskRepository, publisher Publisher, logger *slog.Logger) Service {
	return Service{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

// Create stores a new task owned by p.
func (s Service) Create(ctx context.Context, p domain.Principal, draft domain.TaskDraft) (*domain.Task, error) {
	title, err := domain.NormalizeTitle(draft.Title)
	if err != nil {
		return nil, err
	}
	priority, err := domain.ParsePriority(draft.Priority)
	if err != nil {
		return nil, err
	}
	status, err := domain.ParseStatus(draft.Status)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}
	now := s.now().UTC()
	task := &domain.Task{
		ID:          id.String(),
		OwnerID:     p.ID,
		Title:       title,
		Description: strings.TrimSpace(draft.Description),
		Priority:    priority,
		Status:      status,
		DueDate:     utcPtr(draft.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.logger.Info("task created", "task_id", task.ID, "user_id", p.ID)
	s.publish(EventCreated, *task)
	return task, nil
}

// List returns the principal's tasks, most recent first.
func (s Service) List(ctx context.Context, p domain.Principal) ([]domain.Task, error) {
	tasks, err := s.repo.ListTasksByOwner(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Get returns a single task owned by p.
func (s Service) Get(ctx context.Context, p domain.Principal, id string) (*domain.Task, error) {
	return s.load(ctx, p, id)
}

// Update applies the present fields of patch to a task owned by p.
func (s Service) Update(ctx context.Context, p domain.Principal, id string, patch domain.TaskPatch) (*domain.Task, error) {
	task, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := apply(task, patch); err != nil {
		return nil, err
	}
	task.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// deleted between load and write
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.logger.Info("task updated", "task_id", task.ID, "user_id", p.ID)
	s.publish(EventUpdated, *task)
	return task, nil
}

// Delete removes a task owned by p.
func (s Service) Delete(ctx context.Context, p domain.Principal, id string) error {
	task, err := s.load(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTask(ctx, task.ID, p.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete task: %w", err)
	}
	s.logger.Info("task deleted", "task_id", task.ID, "user_id", p.ID)
	s.publish(EventDeleted, *task)
	return nil
}

func (s Service) load(ctx context.Context, p domain.Principal, id string) (*domain.Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	task, err := s.repo.GetTaskByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task.OwnerID != p.ID {
		s.logger.Warn("task access denied", "task_id", id, "user_id", p.ID)
		return nil, ErrForbidden
	}
	return task, nil
}

// apply copies allow-listed fields; id and owner are never touched.
func apply(task *domain.Task, patch domain.TaskPatch) error {
	if patch.Title != nil {
		title, err := domain.NormalizeTitle(*patch.Title)
		if err != nil {
			return err
		}
		task.Title = title
	}
	if patch.Description != nil {
		task.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		if strings.TrimSpace(*patch.Priority) == "" {
			return &domain.ValidationError{Field: "priority", Message: "must not be empty"}
		}
		priority, err := domain.ParsePriority(*patch.Priority)
		if err != nil {
			return err
		}
		task.Priority = priority
	}
	if patch.Status != nil {
		if strings.TrimSpace(*patch.Status) == "" {
			return &domain.ValidationError{Field: "status", Message: "must not be empty"}
		}
		status, err := domain.ParseStatus(*patch.Status)
		if err != nil {
			return err
		}
		task.Status = status
	}
	switch {
	case patch.DueDate != nil:
		task.DueDate = utcPtr(patch.DueDate)
	case patch.ClearDueDate:
		task.DueDate = nil
	}
	return nil
}

func (s Service) publish(eventType string, task domain.Task) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(task.OwnerID, Event{Type: eventType, Task: task})
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
