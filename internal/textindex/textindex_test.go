package textindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memorized/internal/kv"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	store, err := kv.Open(kv.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	idx, err := Open(store, "")
	require.NoError(t, err)
	return idx
}

func TestIndexChunkAndSubstringSearch(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.IndexChunk("doc1:0", "the quick brown fox", 1))
	require.NoError(t, idx.IndexChunk("doc2:0", "a lazy dog sleeps", 2))

	hits, err := idx.Substring("fox")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc1:0", hits[0].Key)
}

func TestIndexMemoryPrefixed(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.IndexMemory("m1", "remember the milk", 1))

	hits, err := idx.Substring("milk")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "mem:m1", hits[0].Key)
}

func TestRemoveDeletesFromPrimary(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.IndexChunk("doc1:0", "hello world", 1))
	require.NoError(t, idx.Remove("doc1:0"))

	hits, err := idx.Substring("hello")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchFallsBackWithoutSecondary(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.IndexChunk("doc1:0", "graph search engine", 1))

	hits, err := idx.Search("search", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestGetReturnsStoredTextOrFalse(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.IndexChunk("doc1:0", "first chunk text", 1))

	text, ok, err := idx.Get("doc1:0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first chunk text", text)

	_, ok, err = idx.Get("missing:0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrphanChunkKeys(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.IndexChunk("doc1:0", "alive chunk", 1))
	require.NoError(t, idx.IndexChunk("doc2:0", "orphaned chunk", 1))
	require.NoError(t, idx.IndexMemory("m1", "should be ignored", 1))

	alive := map[string]bool{"doc1": true}
	orphans, err := idx.OrphanChunkKeys(func(docID string) (bool, error) {
		return alive[docID], nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc2:0"}, orphans)
}
