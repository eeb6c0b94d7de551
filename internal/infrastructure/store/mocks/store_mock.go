package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-shop/internal/infrastructure/store"
)

// Call records parameters passed to a mutating store method.
type Call struct {
	Collection string
	ID         string
	Data       any
}

// MockStore is a Store for testing: it delegates to an in-memory store,
// records every mutating call, and lets tests inject failures.
type MockStore struct {
	mem *store.MemoryStore

	mu          sync.Mutex
	AddCalls    []Call
	UpdateCalls []Call
	DeleteCalls []Call

	AddErr    error
	UpdateErr error
	DeleteErr error

	// UpdateCallback, when set, is consulted before delegating. Returning a
	// non-nil error fails the call without touching the underlying store.
	UpdateCallback func(ctx context.Context, collection, id string, data any) error
}

var _ store.Store = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{mem: store.NewMemoryStore()}
}

func (m *MockStore) GetAll(ctx context.Context, collection string) ([]store.Document, error) {
	return m.mem.GetAll(ctx, collection)
}

func (m *MockStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	return m.mem.Get(ctx, collection, id)
}

func (m *MockStore) Add(ctx context.Context, collection string, data any) (string, error) {
	m.mu.Lock()
	m.AddCalls = append(m.AddCalls, Call{Collection: collection, Data: data})
	err := m.AddErr
	m.mu.Unlock()

	if err != nil {
		return "", err
	}
	return m.mem.Add(ctx, collection, data)
}

func (m *MockStore) Update(ctx context.Context, collection, id string, data any) error {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, Call{Collection: collection, ID: id, Data: data})
	err := m.UpdateErr
	cb := m.UpdateCallback
	m.mu.Unlock()

	if cb != nil {
		if cbErr := cb(ctx, collection, id, data); cbErr != nil {
			return cbErr
		}
	}
	if err != nil {
		return err
	}
	return m.mem.Update(ctx, collection, id, data)
}

func (m *MockStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, Call{Collection: collection, ID: id})
	err := m.DeleteErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.mem.Delete(ctx, collection, id)
}
