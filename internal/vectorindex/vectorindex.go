// Package vectorindex implements the C6 Vector Index: brute-force cosine
// top-K search plus a persisted approximate nearest-neighbor graph used for
// greedy search at larger scale, grounded on original_source's
// vector_index.rs (sled-backed vector tree + neighbor graph) and on the
// teacher's internal/store/vector.go shape (id/vector pairs over an
// embedded KV engine) — the ANN traversal algorithm itself has no
// counterpart in the teacher's coder/hnsw dependency, which is why this
// package does not wrap it (see DESIGN.md).
package vectorindex

import (
	"container/heap"
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"memorized/internal/kv"
	"memorized/internal/vecmath"
)

const (
	// NeighborGraphM is the fixed fan-out of the persisted neighbor graph
	// (reference value from spec.md §4.6).
	NeighborGraphM = 16
	// seedScanCount is how many ids (in tree iteration order) are
	// considered when picking the single greedy-search seed.
	seedScanCount = 16
	// frontierFanout bounds how many of a popped node's neighbors are
	// pushed onto the frontier.
	frontierFanout = 8
	// visitedCap bounds the greedy walk so it terminates on dense graphs.
	visitedCap = 1024
)

// Index stores raw vectors in one tree and, optionally, a persisted top-M
// neighbor list per id in a second tree. Document-chunk embeddings use
// brute-force search only (no neighbor tree); memory embeddings use both.
type Index struct {
	vectors   *kv.Tree
	neighbors *kv.Tree
	dim       int
}

// New wires a vector tree (vectorsTree) and, if neighborsTree is non-empty,
// a persisted neighbor-graph tree from store.
func New(store *kv.Store, dim int, vectorsTree, neighborsTree string) *Index {
	ix := &Index{
		vectors: store.Tree(vectorsTree),
		dim:     dim,
	}
	if neighborsTree != "" {
		ix.neighbors = store.Tree(neighborsTree)
	}
	return ix
}

// Put stores (or overwrites) the embedding for id. It does not update the
// neighbor graph; callers rebuild periodically via RebuildNeighborGraph.
func (ix *Index) Put(id string, vec []float32) error {
	if len(vec) != ix.dim {
		return vecmath.ErrDimMismatch(ix.dim, len(vec))
	}
	return ix.vectors.Put([]byte(id), vecmath.Pack(vec))
}

// Get returns the stored vector for id, or nil if absent or malformed.
func (ix *Index) Get(id string) ([]float32, error) {
	data, err := ix.vectors.Get([]byte(id))
	if err != nil || data == nil {
		return nil, err
	}
	if !vecmath.ValidDim(data, ix.dim) {
		return nil, nil
	}
	return vecmath.Unpack(data)
}

// Remove deletes id's vector and its neighbor-list entry (if a neighbor
// tree is configured). It does not scrub id out of other ids' neighbor
// lists; RebuildNeighborGraph or maintenance handles that.
func (ix *Index) Remove(id string) error {
	if err := ix.vectors.Remove([]byte(id)); err != nil {
		return err
	}
	if ix.neighbors == nil {
		return nil
	}
	return ix.neighbors.Remove([]byte(id))
}

// IDs returns every id with a stored vector, regardless of dimension
// validity — used by maintenance's orphan-embedding sweep.
func (ix *Index) IDs() ([]string, error) {
	entries, err := ix.vectors.Iterate()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, string(e.Key))
	}
	return ids, nil
}

// ValidateDims reports the total number of stored vectors and how many have
// a byte length inconsistent with the configured dimension (spec.md §4.11
// dimension validation).
func (ix *Index) ValidateDims() (total, invalid int, err error) {
	entries, err := ix.vectors.Iterate()
	if err != nil {
		return 0, 0, err
	}
	total = len(entries)
	for _, e := range entries {
		if !vecmath.ValidDim(e.Value, ix.dim) {
			invalid++
		}
	}
	return total, invalid, nil
}

// Scored is a single (id, similarity) search result.
type Scored struct {
	ID    string
	Score float32
}

// BruteForceTopK computes cosine similarity against every stored vector and
// returns the K highest, descending by score. Entries with the wrong byte
// length for the configured dimension are skipped rather than erroring, per
// spec.md §4.6's dimension-validation rule.
func (ix *Index) BruteForceTopK(query []float32, k int) ([]Scored, error) {
	entries, err := ix.vectors.Iterate()
	if err != nil {
		return nil, err
	}
	all := make([]Scored, 0, len(entries))
	for _, e := range entries {
		if !vecmath.ValidDim(e.Value, ix.dim) {
			continue
		}
		vec, err := vecmath.Unpack(e.Value)
		if err != nil {
			continue
		}
		all = append(all, Scored{ID: string(e.Key), Score: vecmath.Cosine(query, vec)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}

// RebuildNeighborGraph recomputes each stored id's top-M nearest neighbors
// by brute-force cosine comparison, replacing every row in the neighbors
// tree (partial rebuilds are not supported, per spec.md §4.6). Rows are
// computed in parallel via an errgroup, bounded by concurrency.
func (ix *Index) RebuildNeighborGraph(ctx context.Context, concurrency int) error {
	if ix.neighbors == nil {
		return nil
	}
	entries, err := ix.vectors.Iterate()
	if err != nil {
		return err
	}
	vecs := make(map[string][]float32, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !vecmath.ValidDim(e.Value, ix.dim) {
			continue
		}
		v, err := vecmath.Unpack(e.Value)
		if err != nil {
			continue
		}
		id := string(e.Key)
		vecs[id] = v
		ids = append(ids, id)
	}

	g, gctx := errgroup.WithContext(ctx)
	if concurrency <= 0 {
		concurrency = 1
	}
	g.SetLimit(concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			self := vecs[id]
			neigh := make([]Scored, 0, len(ids)-1)
			for _, other := range ids {
				if other == id {
					continue
				}
				neigh = append(neigh, Scored{ID: other, Score: vecmath.Cosine(self, vecs[other])})
			}
			sort.Slice(neigh, func(i, j int) bool { return neigh[i].Score > neigh[j].Score })
			if len(neigh) > NeighborGraphM {
				neigh = neigh[:NeighborGraphM]
			}
			return ix.neighbors.Put([]byte(id), encodeNeighbors(neigh))
		})
	}
	return g.Wait()
}

// ANNSearch picks a single seed (the highest-cosine match among the first
// seedScanCount ids scanned), then greedily walks the persisted neighbor
// graph: pop a node from the frontier stack, score it, push up to
// frontierFanout of its stored neighbors as next frontier, until the
// frontier empties or the visited set exceeds visitedCap. It falls back to
// BruteForceTopK when no neighbor graph has been built yet.
func (ix *Index) ANNSearch(query []float32, k int) ([]Scored, error) {
	if ix.neighbors == nil {
		return ix.BruteForceTopK(query, k)
	}
	hasGraph, err := ix.neighbors.HasPrefix(nil)
	if err != nil {
		return nil, err
	}
	if !hasGraph {
		return ix.BruteForceTopK(query, k)
	}

	seed, err := ix.pickSeed(query, seedScanCount)
	if err != nil {
		return nil, err
	}
	if seed == "" {
		return ix.BruteForceTopK(query, k)
	}

	visited := make(map[string]bool, visitedCap)
	best := &topKHeap{}
	heap.Init(best)

	frontier := []string{seed}
	for len(frontier) > 0 && len(visited) <= visitedCap {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		vec, err := ix.Get(id)
		if err != nil || vec == nil {
			continue
		}
		score := vecmath.Cosine(query, vec)
		pushBounded(best, Scored{ID: id, Score: score}, k)

		neigh, err := ix.loadNeighbors(id)
		if err != nil {
			continue
		}
		if len(neigh) > frontierFanout {
			neigh = neigh[:frontierFanout]
		}
		for _, n := range neigh {
			if !visited[n.ID] {
				frontier = append(frontier, n.ID)
			}
		}
	}

	out := make([]Scored, best.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(best).(Scored)
	}
	return out, nil
}

// pickSeed scans the first n ids in tree order and returns the one with
// highest cosine similarity to query.
func (ix *Index) pickSeed(query []float32, n int) (string, error) {
	entries, err := ix.vectors.Iterate()
	if err != nil {
		return "", err
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	best := ""
	var bestScore float32
	first := true
	for _, e := range entries {
		if !vecmath.ValidDim(e.Value, ix.dim) {
			continue
		}
		vec, err := vecmath.Unpack(e.Value)
		if err != nil {
			continue
		}
		score := vecmath.Cosine(query, vec)
		if first || score > bestScore {
			best = string(e.Key)
			bestScore = score
			first = false
		}
	}
	return best, nil
}

func (ix *Index) loadNeighbors(id string) ([]Scored, error) {
	data, err := ix.neighbors.Get([]byte(id))
	if err != nil || data == nil {
		return nil, err
	}
	return decodeNeighbors(data), nil
}

// topKHeap is a min-heap over Scored by score, so the smallest of the
// currently-kept top-K sits at the root and is the cheapest to evict.
type topKHeap []Scored

func (h topKHeap) Len() int            { return len(h) }
func (h topKHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h topKHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *topKHeap) Push(x interface{}) { *h = append(*h, x.(Scored)) }
func (h *topKHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func pushBounded(h *topKHeap, s Scored, k int) {
	if k <= 0 {
		return
	}
	if h.Len() < k {
		heap.Push(h, s)
		return
	}
	if (*h)[0].Score < s.Score {
		heap.Pop(h)
		heap.Push(h, s)
	}
}
