package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shop.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	id, err := s.Add(ctx, CollectionProducts, testDoc{Name: "tea", Count: 3})
	require.NoError(t, err)

	// Reopen from disk.
	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	doc, err := reopened.Get(ctx, CollectionProducts, id)
	require.NoError(t, err)
	var got testDoc
	require.NoError(t, json.Unmarshal(doc.Data, &got))
	assert.Equal(t, "tea", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestFileStoreDeletePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shop.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	id, err := s.Add(ctx, CollectionProducts, testDoc{Name: "tea"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, CollectionProducts, id))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = reopened.Get(ctx, CollectionProducts, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "shop.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	docs, err := s.GetAll(context.Background(), CollectionProducts)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestFileStoreNoTempFileLeftBehind(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Add(ctx, CollectionProducts, testDoc{Name: "tea"})
	require.NoError(t, err)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
