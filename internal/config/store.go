package config

import (
	"sync"
)

// Store holds the live configuration shared by the scheduler and the dashboard.
// Readers get deep copies, so a snapshot never changes under its holder.
type Store struct {
	mu  sync.RWMutex
	cfg Configuration
}

func NewStore(cfg Configuration) *Store {
	return &Store{cfg: cfg.Clone()}
}

// Snapshot returns a deep copy of the current configuration.
func (s *Store) Snapshot() Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies `mutate` to a copy of the configuration, validates the result
// with Check and only then makes it current. Errors from `mutate` or Check
// leave the store untouched.
func (s *Store) Update(mutate func(cfg *Configuration) error) (Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	err := mutate(&next)
	if err != nil {
		return Configuration{}, err
	}
	err = next.Check()
	if err != nil {
		return Configuration{}, err
	}
	s.cfg = next
	return next.Clone(), nil
}

// SetThreadID rewrites the id of every thread whose id is `from` to `to`.
// It reports whether any thread was changed.
func (s *Store) SetThreadID(from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for i := range s.cfg.Threads {
		if s.cfg.Threads[i].Id == from {
			s.cfg.Threads[i].Id = to
			changed = true
		}
	}
	return changed
}
