// Package memory is a process-local implementation of the usage, counter and
// metrics stores, used in development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

type Store struct {
	mu       sync.Mutex
	usage    map[string]int
	counters map[string]int
	metrics  map[string]domain.MetricsRecord
	writes   map[string]int
}

func New() *Store {
	return &Store{
		usage:    make(map[string]int),
		counters: make(map[string]int),
		metrics:  make(map[string]domain.MetricsRecord),
		writes:   make(map[string]int),
	}
}

func usageKey(userID, month, resource string) string {
	return userID + "|" + month + "|" + resource
}

func (s *Store) IncrementUsage(_ context.Context, userID, month, resource string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := usageKey(userID, month, resource)
	s.usage[k]++
	return s.usage[k], nil
}

func (s *Store) DecrementUsage(_ context.Context, userID, month, resource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := usageKey(userID, month, resource)
	if s.usage[k] > 0 {
		s.usage[k]--
	}
	return nil
}

// Usage returns the current count for a user, month and resource.
func (s *Store) Usage(userID, month, resource string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[usageKey(userID, month, resource)]
}

func (s *Store) Increment(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *Store) Decrement(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[key] > 0 {
		s.counters[key]--
	}
	return nil
}

// Counter returns the current value of an anonymous counter.
func (s *Store) Counter(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key]
}

func (s *Store) SaveMetrics(_ context.Context, rec domain.MetricsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[rec.RequestID] = rec
	s.writes[rec.RequestID]++
	return nil
}

// Metrics returns the last saved record for a request and how many times it
// was written.
func (s *Store) Metrics(requestID string) (domain.MetricsRecord, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.metrics[requestID]
	return rec, s.writes[requestID], ok
}
