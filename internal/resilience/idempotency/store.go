// Package idempotency provides a request-scoped result cache with an
// at-most-one-execution guarantee. It makes retried operations safe: the
// first successful result for a request id is cached and every later call
// with the same id observes that exact result without re-running the
// operation.
package idempotency

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config holds the configuration for a Store.
type Config struct {
	// Retention is how long a cached result is kept after creation.
	// Zero disables purging (records live for the process lifetime).
	Retention time.Duration

	// PurgeInterval is how often expired records are swept.
	// Zero disables the background sweeper.
	PurgeInterval time.Duration
}

// DefaultConfig returns a retention window suitable for gossip forwards,
// comfortably longer than any retry schedule.
func DefaultConfig() Config {
	return Config{
		Retention:     10 * time.Minute,
		PurgeInterval: 1 * time.Minute,
	}
}

type record struct {
	result    any
	createdAt time.Time
}

// Store caches results keyed by request id. It is safe for concurrent use;
// callers need no external locking.
type Store struct {
	mu      sync.RWMutex
	records map[string]record
	flight  singleflight.Group

	retention time.Duration
	now       func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a Store and, if cfg.PurgeInterval is positive, starts its
// background sweeper. Close releases the sweeper.
func New(cfg Config) *Store {
	s := &Store{
		records:   make(map[string]record),
		retention: cfg.Retention,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
	if cfg.PurgeInterval > 0 && cfg.Retention > 0 {
		go s.purgeLoop(cfg.PurgeInterval)
	}
	return s
}

// GetOrCompute returns the cached result for requestID if present. Otherwise
// it runs compute, caches the result on success, and returns it. Concurrent
// callers with the same requestID share a single in-flight compute; compute
// never runs twice for the same id while one execution is outstanding.
//
// Failed computes are not cached: a later call with the same id runs
// compute again. The cached result for an id is always the one from the
// first successful compute and is never overwritten.
func (s *Store) GetOrCompute(requestID string, compute func() (any, error)) (any, error) {
	if result, ok := s.Get(requestID); ok {
		return result, nil
	}

	result, err, _ := s.flight.Do(requestID, func() (any, error) {
		// Re-check under the flight: another caller may have completed and
		// cached between our lookup and this execution.
		if cached, ok := s.Get(requestID); ok {
			return cached, nil
		}

		result, err := compute()
		if err != nil {
			return nil, err
		}
		s.put(requestID, result)
		return result, nil
	})
	return result, err
}

// Get returns the cached result for requestID without computing anything.
func (s *Store) Get(requestID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[requestID]
	if !ok {
		return nil, false
	}
	return rec.result, true
}

// Len returns the number of cached records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close stops the background sweeper. The store remains usable afterwards.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) put(requestID string, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// First successful result wins.
	if _, exists := s.records[requestID]; exists {
		return
	}
	s.records[requestID] = record{result: result, createdAt: s.now()}
}

func (s *Store) purgeLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.purge()
		case <-s.stop:
			return
		}
	}
}

// purge removes records older than the retention window. In-flight computes
// are unaffected: they only appear in the map once complete.
func (s *Store) purge() {
	cutoff := s.now().Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if rec.createdAt.Before(cutoff) {
			delete(s.records, id)
		}
	}
}
