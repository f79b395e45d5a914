// Package history records the outcome of every split run so clients can list
// what a session produced.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrRunNotFound is returned when no run has the requested id
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when adding a run whose id is taken
	ErrRunExists = errors.New("run already exists")
)

// File is one generated output of a run
type File struct {
	Name      string `json:"filename"`
	Rows      int    `json:"rows"`
	Reference string `json:"download_url"`
}

// Failure is one rule that failed during a run
type Failure struct {
	Index int    `json:"rule_index"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// Run is the stored summary of one split run
type Run struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Source       string    `json:"source"`
	RuleCount    int       `json:"rule_count"`
	TotalFiles   int       `json:"total_files"`
	RulesSkipped int       `json:"rules_skipped"`
	RulesFailed  int       `json:"rules_failed"`
	Partial      bool      `json:"partial"`
	Files        []File    `json:"files"`
	Failures     []Failure `json:"failures,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// RunStore persists runs
type RunStore interface {
	// Add stores a new run; ids must be unique
	Add(ctx context.Context, run *Run) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id string) (*Run, error)

	// ListBySession returns a session's runs, oldest first
	ListBySession(ctx context.Context, sessionID string) ([]*Run, error)
}

// InMemoryRunStore implements RunStore using an in-memory map
// Thread-safe with RWMutex
type InMemoryRunStore struct {
	runs map[string]*Run
	mu   sync.RWMutex
}

var _ RunStore = (*InMemoryRunStore)(nil)

// NewInMemoryRunStore creates a new in-memory run store
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs: make(map[string]*Run),
	}
}

// Add adds a run to the store
func (s *InMemoryRunStore) Add(ctx context.Context, run *Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s: %w", run.ID, ErrRunExists)
	}

	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

// Get retrieves a run by ID
func (s *InMemoryRunStore) Get(ctx context.Context, id string) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	cp := *run
	return &cp, nil
}

// ListBySession returns the session's runs ordered by start time
func (s *InMemoryRunStore) ListBySession(ctx context.Context, sessionID string) ([]*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*Run
	for _, run := range s.runs {
		if run.SessionID == sessionID {
			cp := *run
			runs = append(runs, &cp)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}
