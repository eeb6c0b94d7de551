package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory document store: collection -> id -> JSON body.
// Used for tests and single-process runs without a backend.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]json.RawMessage),
	}
}

func (s *MemoryStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(s.data[collection]))
	for id, body := range s.data[collection] {
		docs = append(docs, Document{ID: id, Data: body})
	}
	// stable order for deterministic listings
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.data[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Document{ID: id, Data: body}, nil
}

func (s *MemoryStore) Add(ctx context.Context, collection string, data any) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[collection] == nil {
		s.data[collection] = make(map[string]json.RawMessage)
	}
	id := uuid.New().String()
	s.data[collection][id] = body
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	s.data[collection][id] = body
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(s.data[collection], id)
	return nil
}
