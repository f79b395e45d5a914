// Command migrate applies the run history schema to Postgres.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/eliaszeru/Excel-splitter/internal/logger"
)

func main() {
	var databaseURL string
	var migrationsPath string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, steps, version, force")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("Database URL is required, use -database or DATABASE_URL")
	}

	logger.Info("Connecting to database", "migrations", migrationsPath)

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		logger.Fatal("Failed to create migration instance", "error", err)
	}
	defer m.Close()

	if err := run(m, command, flag.Args()); err != nil {
		logger.Fatal("Migration failed", "command", command, "error", err)
	}
}

// run executes one migration command; args carries its positional argument
func run(m *migrate.Migrate, command string, args []string) error {
	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Run history schema is up to date")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("Migrations applied")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		logger.Info("Migrations rolled back")

	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		if err := m.Steps(n); err != nil {
			return err
		}
		logger.Info("Migrated steps", "steps", n)

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("No migrations applied yet")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("Current version", "version", version, "dirty", dirty)

	case "force":
		version, err := intArg(args)
		if err != nil {
			return err
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Info("Forced version", "version", version)

	default:
		return fmt.Errorf("unknown command %q (use: up, down, steps, version, force)", command)
	}
	return nil
}

func intArg(args []string) (int, error) {
	if len(args) < 1 {
		return 0, errors.New("command requires a number argument")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", args[0], err)
	}
	return n, nil
}
