// Package sqlite provides a SQLite-backed credential store for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/repository"
)

// Store persists users and tasks in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ repository.UserRepository = (*Store)(nil)
	_ repository.TaskRepository = (*Store)(nil)
	_ repository.Store          = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the SQLite database at path. Migrations are applied separately.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	path = strings.TrimPrefix(path, "sqlite://")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a single writer keeps read-modify-write statements serialized
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// DB exposes the handle for the migration runner.
func (s *Store) DB() *sql.DB {
	return s.sqlDB
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *Store) Close() {
	if s == nil || s.sqlDB == nil {
		return
	}
	_ = s.sqlDB.Close()
}

// CreateUser inserts a user.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, toMillis(user.CreatedAt),
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// GetUserByEmail fetches a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// GetUserByID retrieves a user by identifier.
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// CreateTask inserts a task.
func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return fmt.Errorf("task required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO tasks (id, owner_id, title, description, priority, status, due_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.OwnerID,
		task.Title,
		task.Description,
		string(task.Priority),
		string(task.Status),
		dueToNull(task.DueDate),
		toMillis(task.CreatedAt),
		toMillis(task.UpdatedAt),
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// GetTaskByID fetches a task regardless of owner.
func (s *Store) GetTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, owner_id, title, description, priority, status, due_date, created_at, updated_at
		 FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasksByOwner returns the owner's tasks, newest first.
func (s *Store) ListTasksByOwner(ctx context.Context, ownerID string) ([]domain.Task, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, owner_id, title, description, priority, status, due_date, created_at, updated_at
		 FROM tasks WHERE owner_id = ?
		 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask overwrites the mutable columns of a task owned by task.OwnerID.
func (s *Store) UpdateTask(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return fmt.Errorf("task required")
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE tasks
		 SET title = ?, description = ?, priority = ?, status = ?, due_date = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		task.Title,
		task.Description,
		string(task.Priority),
		string(task.Status),
		dueToNull(task.DueDate),
		toMillis(task.UpdatedAt),
		task.ID,
		task.OwnerID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

// DeleteTask removes a task owned by ownerID.
func (s *Store) DeleteTask(ctx context.Context, id, ownerID string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var (
		u       domain.User
		created int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created); err != nil {
		return nil, mapError(err)
	}
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

func scanTask(row scanner) (*domain.Task, error) {
	var (
		task             domain.Task
		priority, status string
		due              sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Description,
		&priority,
		&status,
		&due,
		&created,
		&updated,
	); err != nil {
		return nil, mapError(err)
	}
	task.Priority = domain.Priority(priority)
	task.Status = domain.Status(status)
	if due.Valid {
		t := fromMillis(due.Int64)
		task.DueDate = &t
	}
	task.CreatedAt = fromMillis(created)
	task.UpdatedAt = fromMillis(updated)
	return &task, nil
}

func dueToNull(due *time.Time) sql.NullInt64 {
	if due == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*due), Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%w: %v", repository.ErrConflict, err)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return repository.ErrNotFound
		}
	}
	return err
}
