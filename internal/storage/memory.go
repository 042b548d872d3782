package storage

import (
	"context"
	"sync"

	"whopays/internal/core"
)

// MemoryStore keeps records and history in process memory. It implements
// both ports and is used for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]core.Amounts
	history []core.HistoryEntry
}

var (
	_ KeyValueStore = (*MemoryStore)(nil)
	_ HistoryLog    = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]core.Amounts)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (core.Amounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return core.Amounts{}, nil
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, key string, values core.Amounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = values.Quantized()
	return nil
}

// EnsureSchema is a no-op; the in-memory log has no header.
func (s *MemoryStore) EnsureSchema(_ context.Context) error {
	return nil
}

func (s *MemoryStore) Append(_ context.Context, entry core.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.TotalCost = core.Quantize(entry.TotalCost)
	entry.People = append([]string{}, entry.People...)
	s.history = append(s.history, entry)
	return nil
}

func (s *MemoryStore) ReadAll(_ context.Context) ([]core.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.HistoryEntry, len(s.history))
	for i, e := range s.history {
		e.People = append([]string{}, e.People...)
		out[i] = e
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	return nil
}
