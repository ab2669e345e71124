package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/splax/taskboard/internal/app/migrate"
	"github.com/splax/taskboard/internal/repository/sqlite"
	"github.com/splax/taskboard/pkg/config"
	"github.com/splax/taskboard/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	log := logger.New("migrate", slog.LevelInfo)
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var runner *migrate.Runner
	if cfg.DatabaseDriver == config.DriverSQLite {
		store, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open sqlite database", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		runner, err = migrate.New(store.DB(), cfg.DatabaseDriver, log)
		if err != nil {
			log.Error("failed to configure migration runner", "error", err)
			os.Exit(1)
		}
	} else {
		runner, err = migrate.Open(cfg.DatabaseDriver, cfg.DatabaseURL, log)
		if err != nil {
			log.Error("failed to configure migration runner", "error", err)
			os.Exit(1)
		}
	}
	defer runner.Close()

	switch *command {
	case "up":
		if err := runner.Ensure(ctx); err != nil {
			log.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	case "status":
		if err := runner.Status(ctx); err != nil {
			log.Error("failed to fetch migration status", "error", err)
			os.Exit(1)
		}
	case "down":
		if err := runner.Down(ctx, *target); err != nil {
			log.Error("failed to roll back migrations", "error", err)
			os.Exit(1)
		}
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(1)
	}

	log.Info("migration command completed", "command", *command, "driver", cfg.DatabaseDriver)
}
