package store

import (
	"context"
	"fmt"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates a Store held in process memory. Records are kept
// encoded so callers never share maps with the store.
func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string][]byte)}
}

func (s *memoryStore) Save(_ context.Context, rec Record) error {
	if rec.TaskID == "" {
		return ErrEmptyTaskID
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.TaskID] = data
	return nil
}

func (s *memoryStore) Load(_ context.Context, taskID string) (Record, error) {
	s.mu.RLock()
	data, ok := s.records[taskID]
	s.mu.RUnlock()

	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return decodeRecord(taskID, data)
}

func (s *memoryStore) List(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.records))
	for id, data := range s.records {
		rec, err := decodeRecord(id, data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return newestFirst(records, limit), nil
}

func (s *memoryStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, taskID)
	return nil
}

func (s *memoryStore) Close() error { return nil }
