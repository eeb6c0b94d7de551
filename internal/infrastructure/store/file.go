package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// FileStore is a JSON-file-backed document store. The whole data set is held
// in memory and flushed to disk after every mutation, so a crash between
// operations never leaves a half-written file (write to tmp, then rename).
type FileStore struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore constructs a FileStore at the given path, loading the file if
// it already exists.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		data: make(map[string]map[string]json.RawMessage),
		path: path,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// no file yet; that's fine
			return nil
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	return nil
}

// flush writes the data set to disk. Callers must hold the write lock.
func (s *FileStore) flush() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *FileStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(s.data[collection]))
	for id, body := range s.data[collection] {
		docs = append(docs, Document{ID: id, Data: body})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *FileStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.data[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return Document{ID: id, Data: body}, nil
}

func (s *FileStore) Add(ctx context.Context, collection string, data any) (string, error) {
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
	if err := s.flush(); err != nil {
		delete(s.data[collection], id)
		return "", err
	}
	return id, nil
}

func (s *FileStore) Update(ctx context.Context, collection, id string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.data[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	s.data[collection][id] = body
	if err := s.flush(); err != nil {
		s.data[collection][id] = prev
		return err
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.data[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(s.data[collection], id)
	if err := s.flush(); err != nil {
		s.data[collection][id] = prev
		return err
	}
	return nil
}
