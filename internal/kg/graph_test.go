package kg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memorized/internal/kv"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	store, err := kv.Open(kv.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestEnsureNodeIdempotent(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.EnsureNode(TypeEntity, "Apple", 100))
	require.NoError(t, g.EnsureNode(TypeEntity, "Apple", 200))

	n, err := g.GetNode(TypeEntity, "Apple")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, int64(100), n.CreatedAt)
}

func TestLinkEntitiesAndReverseLookup(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.LinkEntities("doc1", []string{"Apple", "Banana"}))
	require.NoError(t, g.LinkEntities("doc2", []string{"Banana"}))

	ents, err := g.EntitiesForDoc("doc1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Apple", "Banana"}, ents)

	docs, err := g.DocsForEntity("Banana")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1", "doc2"}, docs)
}

func TestRelateDocumentsByEntitiesJaccard(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.LinkEntities("A", []string{"Apple", "Banana"}))
	require.NoError(t, g.LinkEntities("B", []string{"Banana", "Cherry"}))

	score, related, err := g.RelateDocumentsByEntities("A", "B", 1)
	require.NoError(t, err)
	assert.True(t, related)
	assert.InDelta(t, 1.0/3.0, score, 1e-9)

	entries, err := g.edges.ScanPrefix([]byte("Document::A->Document::B"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRelateDocumentsByEntitiesNoOverlapSkipsEdge(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.LinkEntities("A", []string{"Apple"}))
	require.NoError(t, g.LinkEntities("B", []string{"Cherry"}))

	_, related, err := g.RelateDocumentsByEntities("A", "B", 1)
	require.NoError(t, err)
	assert.False(t, related)
}

func TestTagAndRemoveTag(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.TagEntity("Apple", []string{"fruit", "red"}, 1))
	n, err := g.GetNode(TypeEntity, "Apple")
	require.NoError(t, err)
	assert.Equal(t, []string{"fruit", "red"}, n.Tags)

	require.NoError(t, g.RemoveTag("Apple", []string{"red"}))
	n, err = g.GetNode(TypeEntity, "Apple")
	require.NoError(t, err)
	assert.Equal(t, []string{"fruit"}, n.Tags)
}

func TestDeleteEntityCascades(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.EnsureNode(TypeEntity, "Apple", 1))
	require.NoError(t, g.EnsureNode(TypeDocument, "doc1", 1))
	require.NoError(t, g.AddEdge(EntityNodeKey("Apple"), DocumentNodeKey("doc1"), "MENTIONS", 1, nil))
	require.NoError(t, g.LinkEntities("doc1", []string{"Apple"}))

	removed, err := g.DeleteEntity("Apple")
	require.NoError(t, err)
	assert.Greater(t, removed, 0)

	n, err := g.GetNode(TypeEntity, "Apple")
	require.NoError(t, err)
	assert.Nil(t, n)

	docs, err := g.DocsForEntity("Apple")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRemoveDanglingEdges(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.EnsureNode(TypeEntity, "Apple", 1))
	require.NoError(t, g.AddEdge(EntityNodeKey("Apple"), DocumentNodeKey("ghost"), "MENTIONS", 1, nil))

	removed, err := g.RemoveDanglingEdges()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestSearchNodesFilters(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.EnsureNode(TypeEntity, "Apple", 1))
	require.NoError(t, g.EnsureNode(TypeDocument, "doc1", 1))

	results, err := g.SearchNodes(string(TypeEntity), "app", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Apple", results[0].Node.Label)
}

func TestMemoriesMentioningEntity(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.EnsureNode(TypeEntity, "Apple", 1))
	require.NoError(t, g.AddEdge(MemoryNodeKey("mem1"), EntityNodeKey("Apple"), "MENTIONS", 1, nil))
	require.NoError(t, g.AddEdge(MemoryNodeKey("mem2"), EntityNodeKey("Banana"), "MENTIONS", 1, nil))

	ids, err := g.MemoriesMentioningEntity("Apple")
	require.NoError(t, err)
	assert.Equal(t, []string{"mem1"}, ids)

	none, err := g.MemoriesMentioningEntity("Cherry")
	require.NoError(t, err)
	assert.Empty(t, none)
}
