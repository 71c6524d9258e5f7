// Package fusion implements the C9 Fusion Search: a union of a memories
// substring scan, a doc-text-index substring scan, a knowledge-graph
// entity-mention walk, and a vector ANN pass over the memory neighbor graph,
// behind a short-TTL result cache, grounded on original_source's
// search_fusion handler in server/src/main.rs.
package fusion

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"memorized/internal/embed"
	"memorized/internal/kg"
	"memorized/internal/memory"
	"memorized/internal/textindex"
)

// Result is one fused candidate, carrying per-source explain metadata.
type Result struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Layer   string          `json:"layer"`
	DocRefs []memory.DocRef `json:"docRefs,omitempty"`
	Explain map[string]any  `json:"explain,omitempty"`
}

// Request is the input to Search.
type Request struct {
	Query   string
	Limit   int
	From    *int64
	To      *int64
	Layer   string
	Episode string
}

// Response is the output of Search.
type Response struct {
	Results []Result
	TookMs  int64
}

// Clock supplies the current time in epoch milliseconds.
type Clock func() int64

type cacheEntry struct {
	ts      int64
	results []Result
}

// Options configures Engine construction.
type Options struct {
	Now      Clock
	CacheTTL time.Duration // default 3s, per FUSION_CACHE_TTL_MS
	CacheMax int           // default 1000, per FUSION_CACHE_MAX
}

// Engine bundles the collaborators a fusion query reads from, plus its cache
// and metrics.
type Engine struct {
	mem      *memory.Store
	text     *textindex.Index
	graph    *kg.Graph
	embedder embed.Provider
	now      Clock

	cache *lru.Cache[string, cacheEntry]
	ttlMs int64

	metrics *Metrics
}

// New wires an Engine from its collaborators.
func New(mem *memory.Store, text *textindex.Index, graph *kg.Graph, embedder embed.Provider, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = defaultClock
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	max := opts.CacheMax
	if max <= 0 {
		max = 1000
	}
	cache, _ := lru.New[string, cacheEntry](max)
	return &Engine{
		mem:      mem,
		text:     text,
		graph:    graph,
		embedder: embedder,
		now:      now,
		cache:    cache,
		ttlMs:    ttl.Milliseconds(),
		metrics:  newMetrics(),
	}
}

// Metrics exposes the engine's rolling metrics for the status/metrics
// surfaces.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Prune removes cache entries older than the configured TTL (spec.md
// §4.10's "cache prune"). Size-based eviction needs no separate pass: the
// underlying LRU cache was constructed with a fixed capacity and evicts the
// least-recently-used entry on every Add once full.
func (e *Engine) Prune(now int64) {
	for _, key := range e.cache.Keys() {
		entry, ok := e.cache.Peek(key)
		if !ok {
			continue
		}
		if now-entry.ts > e.ttlMs {
			e.cache.Remove(key)
		}
	}
}

// Search runs the fusion algorithm described in spec.md §4.9.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(req.Query)
	cacheKey := "q=" + q + "::limit=" + strconv.Itoa(limit)
	now := e.now()

	if entry, ok := e.cache.Get(cacheKey); ok && now-entry.ts <= e.ttlMs {
		e.metrics.recordHit(now)
		return &Response{Results: truncate(entry.results, limit), TookMs: 0}, nil
	}

	started := now
	full, err := e.gather(ctx, q, limit, req)
	if err != nil {
		return nil, err
	}
	stableSortDescending(full)

	e.cache.Add(cacheKey, cacheEntry{ts: now, results: full})

	took := e.now() - started
	e.metrics.recordMiss(e.now(), took)

	return &Response{Results: truncate(full, limit), TookMs: took}, nil
}

// gather collects candidates from the text, doc-index, KG, and vector-ANN
// sources, deduplicated by id on first insertion.
func (e *Engine) gather(ctx context.Context, q string, limit int, req Request) ([]Result, error) {
	var results []Result
	seen := map[string]struct{}{}
	add := func(r Result) bool {
		if _, ok := seen[r.ID]; ok {
			return false
		}
		seen[r.ID] = struct{}{}
		results = append(results, r)
		return true
	}

	if err := e.gatherMemoryText(q, req, add); err != nil {
		return nil, err
	}
	if err := e.gatherDocText(q, add); err != nil {
		return nil, err
	}
	if q != "" {
		if err := e.gatherKG(q, add); err != nil {
			return nil, err
		}
		if err := e.gatherVector(ctx, q, limit, add); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// gatherMemoryText scans the memories tree, keeping records whose lowercased
// content contains q and that pass the optional time/layer/episode filters.
// Every match triggers the access-bump side effect (spec.md §4.8).
func (e *Engine) gatherMemoryText(q string, req Request, add func(Result) bool) error {
	entries, err := e.mem.Tree().Iterate()
	if err != nil {
		return err
	}
	for _, en := range entries {
		var rec memory.Record
		if err := json.Unmarshal(en.Value, &rec); err != nil {
			continue // CorruptionTolerable: skip malformed records
		}
		if !strings.Contains(strings.ToLower(rec.Content), q) {
			continue
		}
		if req.From != nil && rec.CreatedAt < *req.From {
			continue
		}
		if req.To != nil && rec.CreatedAt > *req.To {
			continue
		}
		if req.Layer != "" && rec.Layer != req.Layer {
			continue
		}
		if req.Episode != "" && rec.EpisodeID != req.Episode {
			continue
		}
		if add(Result{
			ID:      rec.ID,
			Score:   0,
			Layer:   rec.Layer,
			DocRefs: rec.DocRefs,
			Explain: map[string]any{"text": 1.0},
		}) {
			_ = e.mem.BumpAccess(rec.ID)
		}
	}
	return nil
}

// gatherDocText scans the full text_index tree (chunks and memory mirrors
// alike), keeping entries whose lowercased value contains q. The emitted id
// is the raw text_index key, matching original_source's literal behavior.
func (e *Engine) gatherDocText(q string, add func(Result) bool) error {
	hits, err := e.text.Substring(q)
	if err != nil {
		return err
	}
	for _, h := range hits {
		add(Result{
			ID:      h.Key,
			Score:   0,
			Layer:   "doc",
			Explain: map[string]any{"text": 1.0, "source": "doc-index"},
		})
	}
	return nil
}

// gatherKG looks up memories whose MENTIONS edge targets an entity named q.
func (e *Engine) gatherKG(q string, add func(Result) bool) error {
	ids, err := e.graph.MemoriesMentioningEntity(q)
	if err != nil {
		return err
	}
	for _, id := range ids {
		add(Result{ID: id, Score: 0, Layer: e.memoryLayer(id), Explain: map[string]any{"kg": 1.0}})
	}
	return nil
}

// gatherVector embeds q and runs ANN search over the memory neighbor graph
// (or brute force, if no graph has been built yet).
func (e *Engine) gatherVector(ctx context.Context, q string, limit int, add func(Result) bool) error {
	vecs, err := e.embedder.Embed(ctx, []string{q})
	if err != nil || len(vecs) == 0 {
		return err
	}
	topK, err := e.mem.Vectors().ANNSearch(vecs[0], limit)
	if err != nil {
		return err
	}
	for _, s := range topK {
		add(Result{
			ID:      s.ID,
			Score:   0,
			Layer:   e.memoryLayer(s.ID),
			Explain: map[string]any{"vector": s.Score, "source": "vector-ann"},
		})
	}
	return nil
}

func (e *Engine) memoryLayer(id string) string {
	rec, err := e.mem.Get(id)
	if err != nil || rec == nil {
		return memory.LayerSTM
	}
	return rec.Layer
}

// truncate returns at most limit leading elements of rs (rs itself, never
// copied, if it already fits).
func truncate(rs []Result, limit int) []Result {
	if limit <= 0 || len(rs) <= limit {
		return rs
	}
	return rs[:limit]
}

// stableSortDescending sorts by score descending, preserving insertion order
// among ties (spec.md §4.9 step 3).
func stableSortDescending(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Score > rs[j].Score })
}

func defaultClock() int64 {
	return time.Now().UnixMilli()
}
