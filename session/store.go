// Package session maps upload tokens to loaded datasets. A session is
// created on upload and lives until it is deleted explicitly or goes unused
// for longer than the store's TTL.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eliaszeru/Excel-splitter/dataset"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session ids
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session under a taken id
	ErrSessionExists = errors.New("session already exists")
)

// Session is one uploaded dataset and where its source file was stored
type Session struct {
	ID         string
	Dataset    *dataset.Dataset
	UploadPath string
	CreatedAt  time.Time
	LastAccess time.Time
}

// Store provides an abstraction over session storage
type Store interface {
	// Create registers a new session for ds and returns it. An empty id
	// asks the store to pick one.
	Create(id string, ds *dataset.Dataset, uploadPath string) (*Session, error)

	// Get returns a live session and refreshes its expiry
	Get(id string) (*Session, error)

	// Delete removes a session and returns what was stored
	Delete(id string) (*Session, error)
}

// Config holds configuration for session expiry
type Config struct {
	// TTL is how long a session may go unused before it expires.
	// Set to 0 for no expiration (explicit deletion only)
	TTL time.Duration

	// OnEvict is called, without locks held, for every session removed
	// because it expired. It is not called for Delete.
	OnEvict func(Session)
}

// DefaultConfig returns a one hour sliding TTL
func DefaultConfig() Config {
	return Config{
		TTL: time.Hour,
	}
}

// InMemoryStore is a Store backed by a map.
// Thread-safe for concurrent access
type InMemoryStore struct {
	sessions map[string]*Session
	config   Config
	now      func() time.Time
	newID    func() string
	mu       sync.Mutex
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store
func NewInMemoryStore(config Config) *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		config:   config,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create registers a new session under id, or under a random id when id is empty
func (s *InMemoryStore) Create(id string, ds *dataset.Dataset, uploadPath string) (*Session, error) {
	if ds == nil {
		return nil, errors.New("dataset is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = s.newID()
	}
	if _, exists := s.sessions[id]; exists {
		return nil, ErrSessionExists
	}

	now := s.now()
	sess := &Session{
		ID:         id,
		Dataset:    ds,
		UploadPath: uploadPath,
		CreatedAt:  now,
		LastAccess: now,
	}
	s.sessions[sess.ID] = sess

	cp := *sess
	return &cp, nil
}

// Get returns the session and slides its expiry forward
func (s *InMemoryStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, exists := s.sessions[id]
	if !exists {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	now := s.now()
	if s.expired(sess, now) {
		delete(s.sessions, id)
		evicted := *sess
		s.mu.Unlock()
		s.evict(evicted)
		return nil, ErrSessionNotFound
	}

	sess.LastAccess = now
	cp := *sess
	s.mu.Unlock()
	return &cp, nil
}

// Delete removes the session
func (s *InMemoryStore) Delete(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	delete(s.sessions, id)

	cp := *sess
	return &cp, nil
}

// Len returns the number of stored sessions, expired or not
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts every expired session and returns how many were removed
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	now := s.now()
	var evicted []Session
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			evicted = append(evicted, *sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range evicted {
		s.evict(sess)
	}
	return len(evicted)
}

// RunJanitor sweeps every interval until ctx is done
func (s *InMemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *InMemoryStore) expired(sess *Session, now time.Time) bool {
	return s.config.TTL > 0 && now.Sub(sess.LastAccess) > s.config.TTL
}

func (s *InMemoryStore) evict(sess Session) {
	if s.config.OnEvict != nil {
		s.config.OnEvict(sess)
	}
}
