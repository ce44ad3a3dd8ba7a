package queue

import (
	"sync"
)

// Storage keeps the queue outside of the Store so it survives restarts.
type Storage interface {
	SaveEntry(entry Entry) error
	DeleteEntry(requestID string) error
	DeleteAllEntries() error
	LoadEntries() ([]Entry, error)
	SaveMostRecentBatchedOrigin(origin string) error
	LoadMostRecentBatchedOrigin() (string, error)
}

// InMemStorage is a Storage for sessions that are not persisted.
type InMemStorage struct {
	mu      sync.Mutex
	entries map[string]Entry
	origin  string
}

func NewInMemStorage() *InMemStorage {
	return &InMemStorage{entries: make(map[string]Entry)}
}

func (s *InMemStorage) SaveEntry(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Request.RequestID] = entry
	return nil
}

func (s *InMemStorage) DeleteEntry(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, requestID)
	return nil
}

func (s *InMemStorage) DeleteAllEntries() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	return nil
}

func (s *InMemStorage) LoadEntries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		res = append(res, e)
	}
	return res, nil
}

func (s *InMemStorage) SaveMostRecentBatchedOrigin(origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = origin
	return nil
}

func (s *InMemStorage) LoadMostRecentBatchedOrigin() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin, nil
}
