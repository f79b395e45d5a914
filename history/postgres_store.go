package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key
const uniqueViolation = "23505"

// PostgresRunStore implements RunStore backed by PostgreSQL
type PostgresRunStore struct {
	db *sql.DB
}

var _ RunStore = (*PostgresRunStore)(nil)

// NewPostgresRunStore creates a new PostgreSQL-backed RunStore
func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// Add inserts a run
func (s *PostgresRunStore) Add(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	files, err := json.Marshal(nonNil(run.Files))
	if err != nil {
		return fmt.Errorf("failed to encode files: %w", err)
	}
	failures, err := json.Marshal(nonNil(run.Failures))
	if err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, source, rule_count, total_files, rules_skipped,
			rules_failed, partial, files, failures, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, run.ID, run.SessionID, run.Source, run.RuleCount, run.TotalFiles, run.RulesSkipped,
		run.RulesFailed, run.Partial, files, failures, run.StartedAt, run.FinishedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("run %s: %w", run.ID, ErrRunExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID
func (s *PostgresRunStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, source, rule_count, total_files, rules_skipped,
			rules_failed, partial, files, failures, started_at, finished_at
		FROM runs
		WHERE id = $1
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListBySession returns the session's runs ordered by start time
func (s *PostgresRunStore) ListBySession(ctx context.Context, sessionID string) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, source, rule_count, total_files, rules_skipped,
			rules_failed, partial, files, failures, started_at, finished_at
		FROM runs
		WHERE session_id = $1
		ORDER BY started_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run      Run
		files    []byte
		failures []byte
	)
	if err := sc.Scan(&run.ID, &run.SessionID, &run.Source, &run.RuleCount, &run.TotalFiles,
		&run.RulesSkipped, &run.RulesFailed, &run.Partial, &files, &failures,
		&run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(files, &run.Files); err != nil {
		return nil, fmt.Errorf("invalid files for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal(failures, &run.Failures); err != nil {
		return nil, fmt.Errorf("invalid failures for run %s: %w", run.ID, err)
	}
	if len(run.Failures) == 0 {
		run.Failures = nil
	}

	return &run, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
