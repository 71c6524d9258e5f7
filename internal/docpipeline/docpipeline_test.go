package docpipeline

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

func newTestPipeline(t *testing.T) *Pipeline {
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

	return New(store, graph, text, embedder, Options{MaxConcurrentIngest: 2, Now: clock})
}

func TestStoreNewDocumentChunksAndEmbeds(t *testing.T) {
	p := newTestPipeline(t)
	res, err := p.Store(context.Background(), StoreRequest{Path: "a.md", Content: "# T\nhello", MIME: "md"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 1, res.Chunks)
}

func TestStoreDedupReturnsZeroChunks(t *testing.T) {
	p := newTestPipeline(t)
	first, err := p.Store(context.Background(), StoreRequest{Path: "a.md", Content: "# T\nhello", MIME: "md"})
	require.NoError(t, err)

	second, err := p.Store(context.Background(), StoreRequest{Path: "a.md", Content: "# T\nhello", MIME: "md"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0, second.Chunks)
}

func TestStoreNewContentAtSamePathBumpsVersion(t *testing.T) {
	p := newTestPipeline(t)
	first, err := p.Store(context.Background(), StoreRequest{Path: "a.md", Content: "# T\nhello", MIME: "md"})
	require.NoError(t, err)

	second, err := p.Store(context.Background(), StoreRequest{Path: "a.md", Content: "# T\nhello world", MIME: "md"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	raw, err := p.docsInfo.Get([]byte(second.ID))
	require.NoError(t, err)
	require.NotNil(t, raw)

	latest, err := p.pathLatest.Get([]byte("a.md"))
	require.NoError(t, err)
	assert.Equal(t, second.ID, string(latest))
}

func TestRetrieveByID(t *testing.T) {
	p := newTestPipeline(t)
	res, err := p.Store(context.Background(), StoreRequest{Content: "hello world", MIME: "txt"})
	require.NoError(t, err)

	got, err := p.Retrieve(res.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)
	assert.Len(t, got.Chunks, 1)
}

func TestRetrieveMissingReturnsNotFound(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.Retrieve("nope", "", "")
	assert.Error(t, err)
}

func TestStoreRejectsNeitherContentNorPath(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.Store(context.Background(), StoreRequest{})
	assert.Error(t, err)
}

func TestAnalyzeReturnsEntitiesSummaryAndRelated(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	a, err := p.Store(ctx, StoreRequest{Path: "a.md", Content: "Apple met Banana in Paris", MIME: "md"})
	require.NoError(t, err)
	b, err := p.Store(ctx, StoreRequest{Path: "b.md", Content: "Apple met Banana again", MIME: "md"})
	require.NoError(t, err)

	// induceCrossDocRelations only links the newly-stored document outward,
	// so the RELATED edge runs b -> a, not a -> b.
	res, err := p.Analyze(b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, res.ID)
	assert.NotEmpty(t, res.Entities)
	require.NotNil(t, res.Summary)
	assert.Contains(t, *res.Summary, "Apple")
	require.Len(t, res.DocRefs, 1)
	assert.Equal(t, a.ID, res.DocRefs[0].DocID)
}

func TestAnalyzeMissingDocumentReturnsEmptyReport(t *testing.T) {
	p := newTestPipeline(t)
	res, err := p.Analyze("nope")
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
	assert.Nil(t, res.Summary)
	assert.Empty(t, res.DocRefs)
}

func TestChunkingSnapsToRuneBoundary(t *testing.T) {
	text := make([]byte, 999)
	for i := range text {
		text[i] = 'a'
	}
	text = append(text, []byte("é")...)
	chunks := splitChunks(string(text))
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.False(t, isContinuationByte(string(text)[ch.Position.Start]))
	}
}
