package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/repository"
)

var (
	ann = domain.Principal{ID: "ann", Name: "Ann", Email: "a@x.com"}
	bob = domain.Principal{ID: "bob", Name: "Bob", Email: "b@x.com"}
)

func TestCreateDefaultsAndListRoundTrip(t *testing.T) {
	svc, _, pub := newService()

	created, err := svc.Create(context.Background(), ann, domain.TaskDraft{Title: "  T  "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.OwnerID != ann.ID || created.Title != "T" {
		t.Fatalf("unexpected task: %+v", created)
	}
	if created.Priority != domain.PriorityLow || created.Status != domain.StatusPending {
		t.Fatalf("defaults not applied: %+v", created)
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("timestamps not set: %+v", created)
	}

	tasks, err := svc.List(context.Background(), ann)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "T" || tasks[0].Status != domain.StatusPending || tasks[0].Priority != domain.PriorityLow {
		t.Fatalf("unexpected list: %+v", tasks)
	}
	if got := pub.types(); len(got) != 1 || got[0] != EventCreated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, repo, _ := newService()
	cases := []struct {
		draft domain.TaskDraft
		field string
	}{
		{domain.TaskDraft{Title: "   "}, "title"},
		{domain.TaskDraft{Title: "x", Priority: "urgent"}, "priority"},
		{domain.TaskDraft{Title: "x", Status: "done"}, "status"},
	}
	for _, tc := range cases {
		_, err := svc.Create(context.Background(), ann, tc.draft)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Field != tc.field {
			t.Fatalf("draft %+v: expected %s validation error, got %v", tc.draft, tc.field, err)
		}
	}
	if repo.count() != 0 {
		t.Fatal("invalid drafts must not be persisted")
	}
}

func TestListIsScopedAndNewestFirst(t *testing.T) {
	svc, _, _ := newService()
	clock := time.Date(2026, time.May, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	for _, title := range []string{"a1", "a2", "a3"} {
		if _, err := svc.Create(context.Background(), ann, domain.TaskDraft{Title: title}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := svc.Create(context.Background(), bob, domain.TaskDraft{Title: "b1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := svc.List(context.Background(), ann)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 || tasks[0].Title != "a3" || tasks[2].Title != "a1" {
		t.Fatalf("unexpected order: %+v", tasks)
	}
	for _, task := range tasks {
		if task.OwnerID != ann.ID {
			t.Fatalf("foreign task leaked: %+v", task)
		}
	}
	bobs, _ := svc.List(context.Background(), bob)
	if len(bobs) != 1 || bobs[0].Title != "b1" {
		t.Fatalf("unexpected bob list: %+v", bobs)
	}
}

func TestUpdateAppliesAllowListedFields(t *testing.T) {
	svc, _, pub := newService()
	created, _ := svc.Create(context.Background(), ann, domain.TaskDraft{Title: "T", Description: "keep"})

	due := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	title := "Renamed"
	status := "completed"
	updated, err := svc.Update(context.Background(), ann, created.ID, domain.TaskPatch{Title: &title, Status: &status, DueDate: &due})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Renamed" || updated.Status != domain.StatusCompleted || updated.Description != "keep" {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if updated.DueDate == nil || !updated.DueDate.Equal(due) || updated.DueDate.Location() != time.UTC {
		t.Fatalf("due date not normalized: %v", updated.DueDate)
	}
	if updated.ID != created.ID || updated.OwnerID != ann.ID {
		t.Fatalf("identity changed: %+v", updated)
	}

	// status may jump backwards
	back := "pending"
	if _, err := svc.Update(context.Background(), ann, created.ID, domain.TaskPatch{Status: &back, ClearDueDate: true}); err != nil {
		t.Fatalf("update back to pending: %v", err)
	}
	got, _ := svc.Get(context.Background(), ann, created.ID)
	if got.Status != domain.StatusPending || got.DueDate != nil {
		t.Fatalf("unexpected task: %+v", got)
	}
	if types := pub.types(); len(types) != 3 || types[2] != EventUpdated {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestUpdateRejectsInvalidPatch(t *testing.T) {
	svc, repo, _ := newService()
	created, _ := svc.Create(context.Background(), ann, domain.TaskDraft{Title: "T"})

	blank := "  "
	bad := "urgent"
	for _, patch := range []domain.TaskPatch{{Title: &blank}, {Priority: &bad}, {Status: &blank}} {
		_, err := svc.Update(context.Background(), ann, created.ID, patch)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("patch %+v: expected validation error, got %v", patch, err)
		}
	}
	stored := repo.get(created.ID)
	if stored.Title != "T" || stored.Priority != domain.PriorityLow {
		t.Fatalf("invalid patch leaked into store: %+v", stored)
	}
}

func TestUpdateAndDeleteEnforceOwnership(t *testing.T) {
	svc, repo, _ := newService()
	created, _ := svc.Create(context.Background(), ann, domain.TaskDraft{Title: "Ann's"})

	title := "stolen"
	if _, err := svc.Update(context.Background(), bob, created.ID, domain.TaskPatch{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.Delete(context.Background(), bob, created.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Get(context.Background(), bob, created.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	stored := repo.get(created.ID)
	if stored == nil || stored.Title != "Ann's" {
		t.Fatalf("record changed by non-owner: %+v", stored)
	}

	if _, err := svc.Update(context.Background(), ann, "missing", domain.TaskPatch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTwice(t *testing.T) {
	svc, _, pub := newService()
	created, _ := svc.Create(context.Background(), ann, domain.TaskDraft{Title: "T"})

	if err := svc.Delete(context.Background(), ann, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(context.Background(), ann, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if types := pub.types(); len(types) != 2 || types[1] != EventDeleted {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestStoreFailuresAreWrapped(t *testing.T) {
	svc, repo, _ := newService()
	repo.failWith = errors.New("disk full")
	_, err := svc.Create(context.Background(), ann, domain.TaskDraft{Title: "T"})
	if err == nil || errors.Is(err, ErrNotFound) || !errors.Is(err, repo.failWith) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, err := svc.List(context.Background(), ann); !errors.Is(err, repo.failWith) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func newService() (Service, *taskRepoMock, *recordingPublisher) {
	repo := &taskRepoMock{tasks: make(map[string]domain.Task)}
	pub := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(repo, pub, logger), repo, pub
}

type taskRepoMock struct {
	mu       sync.Mutex
	tasks    map[string]domain.Task
	failWith error
}

func (m *taskRepoMock) CreateTask(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.tasks[task.ID] = *task
	return nil
}

func (m *taskRepoMock) GetTaskByID(_ context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &task, nil
}

func (m *taskRepoMock) ListTasksByOwner(_ context.Context, ownerID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]domain.Task, 0)
	for _, task := range m.tasks {
		if task.OwnerID == ownerID {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *taskRepoMock) UpdateTask(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tasks[task.ID]
	if !ok || existing.OwnerID != task.OwnerID {
		return repository.ErrNotFound
	}
	m.tasks[task.ID] = *task
	return nil
}

func (m *taskRepoMock) DeleteTask(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tasks[id]
	if !ok || existing.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *taskRepoMock) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *taskRepoMock) get(id string) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil
	}
	return &task
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ string, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
