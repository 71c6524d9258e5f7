package lifecycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memorized/internal/embed"
	"memorized/internal/kg"
	"memorized/internal/kv"
	"memorized/internal/memory"
	"memorized/internal/textindex"
)

type testFixture struct {
	sched *Scheduler
	mem   *memory.Store
	store *kv.Store
	tick  *int64
}

func newFixture(t *testing.T) *testFixture {
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
	sched := New(store, Options{Now: clock})
	return &testFixture{sched: sched, mem: memStore, store: store, tick: &tick}
}

func TestTickPromotesOnImportanceExactlyOnce(t *testing.T) {
	f := newFixture(t)
	rec, err := f.mem.Add(context.Background(), memory.AddRequest{Content: "Apple"})
	require.NoError(t, err)

	require.NoError(t, f.mem.BumpAccess(rec.ID)) // importance -> 1.05, still below 1.5

	got, err := f.mem.Get(rec.ID)
	require.NoError(t, err)
	got.Importance = 2.0
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	require.NoError(t, f.store.Tree("memories").Put([]byte(rec.ID), raw))

	result, err := f.sched.Tick()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Promoted)

	promoted, err := f.mem.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.LayerLTM, promoted.Layer)
	require.NotNil(t, promoted.PromotedAt)

	entries, err := f.store.Tree("consolidation_log").Iterate()
	require.NoError(t, err)
	assert.Len(t, entries, 1, "promotion predicate must be evaluated exactly once per tick")
}

func TestTickExpiresSTMPastTTLWithoutPromotion(t *testing.T) {
	f := newFixture(t)
	rec, err := f.mem.Add(context.Background(), memory.AddRequest{Content: "Banana"})
	require.NoError(t, err)

	got, err := f.mem.Get(rec.ID)
	require.NoError(t, err)
	past := int64(1)
	got.ExpiresAt = &past
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	require.NoError(t, f.store.Tree("memories").Put([]byte(rec.ID), raw))

	result, err := f.sched.Tick()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 0, result.Promoted)

	after, err := f.mem.Get(rec.ID)
	require.NoError(t, err)
	assert.Nil(t, after)
}

func TestTickPromotionTakesPrecedenceOverExpiry(t *testing.T) {
	f := newFixture(t)
	rec, err := f.mem.Add(context.Background(), memory.AddRequest{Content: "Cherry"})
	require.NoError(t, err)

	got, err := f.mem.Get(rec.ID)
	require.NoError(t, err)
	past := int64(1)
	got.ExpiresAt = &past
	got.AccessCount = 3
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	require.NoError(t, f.store.Tree("memories").Put([]byte(rec.ID), raw))

	result, err := f.sched.Tick()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Promoted)
	assert.Equal(t, 0, result.Expired)

	after, err := f.mem.Get(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, memory.LayerLTM, after.Layer)
}

func TestTickDecaysLTMImportance(t *testing.T) {
	f := newFixture(t)
	rec, err := f.mem.Add(context.Background(), memory.AddRequest{Content: "Date", LayerHint: memory.LayerLTM})
	require.NoError(t, err)

	result, err := f.sched.Tick()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Decayed)

	after, err := f.mem.Get(rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.99, after.Importance, 1e-9)
	_ = rec
}

func TestEnforceSTMCapDropsOldestByLastAccess(t *testing.T) {
	f := newFixture(t)
	f.sched.stmMaxItems = 1

	first, err := f.mem.Add(context.Background(), memory.AddRequest{Content: "Elder"})
	require.NoError(t, err)
	_, err = f.mem.Add(context.Background(), memory.AddRequest{Content: "Younger"})
	require.NoError(t, err)

	_, err = f.sched.Tick()
	require.NoError(t, err)

	gone, err := f.mem.Get(first.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestConsolidateDryRunCountsWithoutPromoting(t *testing.T) {
	f := newFixture(t)
	rec, err := f.mem.Add(context.Background(), memory.AddRequest{Content: "Fig"})
	require.NoError(t, err)
	got, err := f.mem.Get(rec.ID)
	require.NoError(t, err)
	got.Importance = 2.0
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	require.NoError(t, f.store.Tree("memories").Put([]byte(rec.ID), raw))

	result, err := f.sched.Consolidate(ConsolidateOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 0, result.Promoted)

	after, err := f.mem.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.LayerSTM, after.Layer)
}

func TestConsolidateRespectsLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		rec, err := f.mem.Add(context.Background(), memory.AddRequest{Content: "grape"})
		require.NoError(t, err)
		got, err := f.mem.Get(rec.ID)
		require.NoError(t, err)
		got.Importance = 2.0
		raw, err := json.Marshal(got)
		require.NoError(t, err)
		require.NoError(t, f.store.Tree("memories").Put([]byte(rec.ID), raw))
	}

	result, err := f.sched.Consolidate(ConsolidateOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Promoted)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	f.sched.interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sched.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}
