package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memorized/internal/embed"
	"memorized/internal/kg"
	"memorized/internal/kv"
	"memorized/internal/textindex"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := kv.Open(kv.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	graph := kg.New(store)
	text, err := textindex.Open(store, "")
	require.NoError(t, err)
	embedder := embed.NewPlaceholder(8)

	tick := int64(1000)
	clock := func() int64 { tick++; return tick }

	return New(store, graph, text, embedder, Options{Now: clock})
}

func TestAddDefaultsToSTMWithExpiry(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(context.Background(), AddRequest{Content: "Apple met Banana"})
	require.NoError(t, err)
	assert.Equal(t, LayerSTM, rec.Layer)
	require.NotNil(t, rec.ExpiresAt)
	assert.Greater(t, *rec.ExpiresAt, rec.CreatedAt)
}

func TestAddRejectsEmptyContent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add(context.Background(), AddRequest{Content: "   "})
	assert.Error(t, err)
}

func TestAddWithReferencesComputesJaccardScore(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.graph.LinkEntities("doc1", []string{"Apple", "Banana"}))

	rec, err := s.Add(context.Background(), AddRequest{
		Content:    "Apple and Banana talked",
		References: []ReferenceInput{{DocID: "doc1", ChunkID: "c1"}},
	})
	require.NoError(t, err)
	require.Len(t, rec.DocRefs, 1)
	assert.InDelta(t, 1.0, rec.DocRefs[0].Score, 1e-9)
}

func TestAddWithExplicitScoreOverridesJaccard(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(context.Background(), AddRequest{
		Content:    "no overlap",
		References: []ReferenceInput{{DocID: "doc1", ChunkID: "c1", Score: floatPtr(0.42)}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.42, rec.DocRefs[0].Score, 1e-9)
}

func TestUpdateBumpsVersionAndReembedsOnContentChange(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(context.Background(), AddRequest{Content: "original"})
	require.NoError(t, err)

	newContent := "updated content"
	res, err := s.Update(context.Background(), rec.ID, &newContent, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Version)
	assert.True(t, res.Reembedded)

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated content", got.Content)
}

func TestUpdateWithoutContentDoesNotReembed(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(context.Background(), AddRequest{Content: "original"})
	require.NoError(t, err)

	res, err := s.Update(context.Background(), rec.ID, nil, []byte(`{"k":"v"}`))
	require.NoError(t, err)
	assert.False(t, res.Reembedded)
}

func TestDeleteCascades(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(context.Background(), AddRequest{Content: "Apple"})
	require.NoError(t, err)

	deleted, cascaded, err := s.Delete(rec.ID, false)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.True(t, cascaded)

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteWithBackupPersistsSnapshot(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(context.Background(), AddRequest{Content: "Apple"})
	require.NoError(t, err)

	_, _, err = s.Delete(rec.ID, true)
	require.NoError(t, err)

	entries, err := s.backupTree().Iterate()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDeleteMissingReturnsError(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Delete("nope", false)
	assert.Error(t, err)
}

func TestBumpAccessStrengthensByLayer(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(context.Background(), AddRequest{Content: "Apple"})
	require.NoError(t, err)

	require.NoError(t, s.BumpAccess(rec.ID))
	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AccessCount)
	assert.InDelta(t, 1.05, got.Importance, 1e-9)
}

func floatPtr(f float64) *float64 { return &f }

func TestSearchFiltersByQueryAndBumpsAccess(t *testing.T) {
	s := newTestStore(t)
	apple, err := s.Add(context.Background(), AddRequest{Content: "Apple met Banana"})
	require.NoError(t, err)
	_, err = s.Add(context.Background(), AddRequest{Content: "Cherry alone"})
	require.NoError(t, err)

	results, err := s.Search("apple", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, apple.ID, results[0].ID)

	got, err := s.Get(apple.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AccessCount)
}

func TestSearchFiltersByLayerAndEpisode(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add(context.Background(), AddRequest{Content: "Apple one", EpisodeID: "ep1"})
	require.NoError(t, err)
	matching, err := s.Add(context.Background(), AddRequest{Content: "Apple two", EpisodeID: "ep2"})
	require.NoError(t, err)

	results, err := s.Search("apple", SearchOptions{Episode: "ep2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, matching.ID, results[0].ID)
}

func TestRefsForMemoryAndDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(context.Background(), AddRequest{
		Content:    "Apple met Banana",
		References: []ReferenceInput{{DocID: "doc1", ChunkID: "0", Score: floatPtr(0.75)}},
	})
	require.NoError(t, err)

	memRefs, err := s.RefsForMemory(rec.ID)
	require.NoError(t, err)
	require.Len(t, memRefs, 1)
	assert.Equal(t, "doc1", memRefs[0].DocID)
	assert.Equal(t, "0", memRefs[0].ChunkID)
	assert.Equal(t, 0.75, memRefs[0].Score)

	docRefs, err := s.RefsForDocument("doc1")
	require.NoError(t, err)
	require.Len(t, docRefs, 1)
	assert.Equal(t, rec.ID, docRefs[0].MemoryID)
	assert.Equal(t, 0.75, docRefs[0].Score)
}

func TestValidateRefsFlagsMissingMemoryAndDocument(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Add(context.Background(), AddRequest{
		Content:    "Apple met Banana",
		References: []ReferenceInput{{DocID: "doc1", ChunkID: "0", Score: floatPtr(0.5)}},
	})
	require.NoError(t, err)

	hasChunk := func(docID string) (bool, error) { return docID == "doc1", nil }

	invalid, removed, err := s.ValidateRefs(false, hasChunk)
	require.NoError(t, err)
	assert.Empty(t, invalid)
	assert.Zero(t, removed)

	_, _, err = s.Delete(rec.ID, false)
	require.NoError(t, err)

	_, err = s.Add(context.Background(), AddRequest{
		Content:    "dangling",
		References: []ReferenceInput{{DocID: "gone", ChunkID: "0", Score: floatPtr(0.5)}},
	})
	require.NoError(t, err)

	hasNoChunks := func(docID string) (bool, error) { return false, nil }
	invalid, removed, err = s.ValidateRefs(true, hasNoChunks)
	require.NoError(t, err)
	assert.NotEmpty(t, invalid)
	assert.Equal(t, len(invalid), removed)
}

func TestSearchRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		_, err := s.Add(context.Background(), AddRequest{Content: "Apple"})
		require.NoError(t, err)
	}

	results, err := s.Search("apple", SearchOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
