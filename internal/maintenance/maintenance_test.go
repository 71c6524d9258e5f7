package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memorized/internal/docpipeline"
	"memorized/internal/embed"
	"memorized/internal/kg"
	"memorized/internal/kv"
	"memorized/internal/memory"
	"memorized/internal/textindex"
)

type fixture struct {
	svc   *Service
	mem   *memory.Store
	docs  *docpipeline.Pipeline
	graph *kg.Graph
	store *kv.Store
}

func newFixture(t *testing.T, dataDir string) *fixture {
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

	memStore := memory.New(store, graph, text, embedder, memory.Options{Now: clock})
	docs := docpipeline.New(store, graph, text, embedder, docpipeline.Options{Now: clock})
	svc := New(text, graph, memStore, docs, dataDir, clock)
	return &fixture{svc: svc, mem: memStore, docs: docs, graph: graph, store: store}
}

func TestSweepOrphanTextRemovesEntriesForDeletedDocument(t *testing.T) {
	f := newFixture(t, t.TempDir())
	res, err := f.docs.Store(context.Background(), docpipeline.StoreRequest{Content: "alpha beta gamma delta epsilon zeta", MIME: "text/plain"})
	require.NoError(t, err)

	removed, err := f.svc.text.OrphanChunkKeys(f.docs.HasAnyChunk)
	require.NoError(t, err)
	assert.Empty(t, removed, "chunks still present, nothing should be orphaned yet")

	_, err = f.store.Tree("chunks").RemovePrefix([]byte(res.ID + ":"))
	require.NoError(t, err)

	n, err := f.svc.SweepOrphanText()
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, n)
}

func TestSweepOrphanEmbeddingsRemovesVectorsForDeletedMemory(t *testing.T) {
	f := newFixture(t, t.TempDir())
	rec, err := f.mem.Add(context.Background(), memory.AddRequest{Content: "Orange"})
	require.NoError(t, err)

	require.NoError(t, f.store.Tree("memories").Remove([]byte(rec.ID)))

	n, err := f.svc.SweepOrphanEmbeddings()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	vec, err := f.mem.Vectors().Get(rec.ID)
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestSweepDanglingEdgesDelegatesToGraph(t *testing.T) {
	f := newFixture(t, t.TempDir())
	require.NoError(t, f.graph.EnsureNode(kg.TypeEntity, "Apple", 1))
	require.NoError(t, f.graph.AddEdge(kg.MemoryNodeKey("ghost"), kg.EntityNodeKey("Apple"), "MENTIONS", 1, nil))

	n, err := f.svc.SweepDanglingEdges()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestValidateDimensionsReportsInvalidEntries(t *testing.T) {
	f := newFixture(t, t.TempDir())
	_, err := f.mem.Add(context.Background(), memory.AddRequest{Content: "Pear"})
	require.NoError(t, err)

	total, invalid, err := f.svc.ValidateDimensions()
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, invalid)
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "warm"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "warm", "data.db"), []byte("hello"), 0o644))

	f := newFixture(t, dataDir)
	backupDir := t.TempDir()

	dest, manifest, err := f.svc.Snapshot(backupDir, SnapshotOptions{})
	require.NoError(t, err)
	assert.False(t, manifest.IncludeIndices)
	assert.Contains(t, manifest.SizesMB, "warm")

	restoreDir := t.TempDir()
	f2 := newFixture(t, restoreDir)
	got, err := f2.svc.Restore(dest)
	require.NoError(t, err)
	assert.Equal(t, manifest.CreatedAt, got.CreatedAt)

	data, err := os.ReadFile(filepath.Join(restoreDir, "warm", "data.db"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCompactRebuildsNeighborGraphAndReindexesMemories(t *testing.T) {
	f := newFixture(t, t.TempDir())
	_, err := f.mem.Add(context.Background(), memory.AddRequest{Content: "Quince"})
	require.NoError(t, err)

	flushed := false
	report, err := f.svc.Compact(context.Background(), func() error { flushed = true; return nil }, 2)
	require.NoError(t, err)
	assert.True(t, flushed)
	assert.True(t, report.NeighborGraphRebuilt)
	assert.Equal(t, 1, report.MemoriesReindexed)
}

func TestRunSweepsCombinesAllReports(t *testing.T) {
	f := newFixture(t, t.TempDir())
	report, err := f.svc.RunSweeps()
	require.NoError(t, err)
	assert.Equal(t, 0, report.OrphanTextRemoved)
	assert.Equal(t, 0, report.OrphanVectorRemoved)
	assert.Equal(t, 0, report.DanglingEdgesRemoved)
}
