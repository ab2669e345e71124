package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/splax/taskboard/pkg/logger"
)

func TestRunnerSQLiteLifecycle(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "migrate.db")
	runner, err := Open("sqlite", dsn, logger.Discard())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer runner.Close()

	ctx := context.Background()
	if err := runner.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := runner.Ensure(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// second run is a no-op
	if err := runner.Ensure(ctx); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if err := runner.Status(ctx); err != nil {
		t.Fatalf("status: %v", err)
	}

	var tables int
	row := runner.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'tasks')`)
	if err := row.Scan(&tables); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 2 {
		t.Fatalf("expected users and tasks tables, got %d", tables)
	}

	if err := runner.Down(ctx, 0); err != nil {
		t.Fatalf("down: %v", err)
	}
	row = runner.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'tasks'`)
	if err := row.Scan(&tables); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 0 {
		t.Fatal("expected tasks table to be dropped")
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(nil, "sqlite", nil); err == nil {
		t.Fatal("expected nil handle error")
	}
	if _, err := Open("mysql", "dsn", nil); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
