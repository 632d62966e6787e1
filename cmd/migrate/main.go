package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/backendless/internal/app/migrate"
	"github.com/splax/backendless/pkg/config"
	"github.com/splax/backendless/pkg/logger"
)

// migration is one parsed invocation of the tool.
type migration struct {
	action string
	target int64
}

var errUsage = errors.New("usage: migrate [--dir path] [--database-url url] [--timeout d] up|status|down [version]|redo")

// parseMigration reads the positional action and its optional version.
func parseMigration(args []string) (migration, error) {
	if len(args) == 0 {
		return migration{action: "up"}, nil
	}
	m := migration{action: strings.ToLower(args[0])}
	switch m.action {
	case "up", "status", "redo":
		if len(args) != 1 {
			return migration{}, errUsage
		}
	case "down":
		if len(args) > 2 {
			return migration{}, errUsage
		}
		if len(args) == 2 {
			target, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || target < 0 {
				return migration{}, fmt.Errorf("invalid target version %q", args[1])
			}
			m.target = target
		}
	default:
		return migration{}, fmt.Errorf("unknown action %q", args[0])
	}
	return m, nil
}

// run executes m against the runner. redo rolls back the latest version and
// applies it again.
func (m migration) run(ctx context.Context, runner *migrate.Runner) error {
	switch m.action {
	case "up":
		return runner.Ensure(ctx)
	case "status":
		return runner.Status(ctx)
	case "down":
		return runner.Down(ctx, m.target)
	case "redo":
		if err := runner.Down(ctx, 0); err != nil {
			return err
		}
		return runner.Ensure(ctx)
	}
	return errUsage
}

func main() {
	cfg := config.LoadAPIConfig()
	dir := flag.String("dir", cfg.MigrationsDir, "migrations directory (embedded schema when empty)")
	databaseURL := flag.String("database-url", cfg.DatabaseURL, "postgres connection string")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	flag.Parse()

	log := logger.New("migrate", logger.ParseLevel(cfg.LogLevel))
	m, err := parseMigration(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, errUsage)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, *databaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, *dir, log)
	if err != nil {
		log.Error("failed to configure migration runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Ping(ctx); err != nil {
		log.Error("database unreachable", "error", err)
		os.Exit(1)
	}
	if err := m.run(ctx, runner); err != nil {
		log.Error("migration failed", "action", m.action, "error", err)
		os.Exit(1)
	}
	log.Info("migration completed", "action", m.action)
}
