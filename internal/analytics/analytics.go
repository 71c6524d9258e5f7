// Package analytics implements the C13.1 batch-analytics routes
// (analyze_patterns, trends, clusters, relationships, effectiveness) —
// grounded directly on original_source's advanced_analyze_patterns,
// advanced_trends, advanced_clusters, advanced_relationships, and
// advanced_effectiveness handlers in server/src/main.rs. Unlike the
// engine's read/write paths, these are read-only full-scan reports: no
// invariant to violate, just a full iteration of memories and kg_edges.
package analytics

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"memorized/internal/entity"
	"memorized/internal/kg"
	"memorized/internal/memory"
)

// Clock supplies the current time in epoch milliseconds.
type Clock func() int64

func defaultClock() int64 { return time.Now().UnixMilli() }

// Service bundles the collaborators analytics scans. It never mutates
// either tree.
type Service struct {
	mem   *memory.Store
	graph *kg.Graph
	now   Clock
}

// New wires a Service to the given memory store and knowledge graph.
func New(mem *memory.Store, graph *kg.Graph, now Clock) *Service {
	if now == nil {
		now = defaultClock
	}
	return &Service{mem: mem, graph: graph, now: now}
}

// Pattern is one recurring concept surfaced by AnalyzePatterns.
type Pattern struct {
	Concept string `json:"concept"`
	Support int    `json:"support"`
	Trend   string `json:"trend"`
}

// AnalyzePatterns extracts entities from every memory created within
// [from, to] (either bound optional) and returns the ones mentioned at
// least minSupport times, most-supported first. Trend is always "flat":
// original_source never computes a real trend value for this route either.
func (s *Service) AnalyzePatterns(from, to *int64, minSupport int) ([]Pattern, error) {
	if minSupport <= 0 {
		minSupport = 2
	}
	entries, err := s.mem.Tree().Iterate()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, e := range entries {
		var rec memory.Record
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue // CorruptionTolerable: skip malformed record
		}
		if from != nil && rec.CreatedAt < *from {
			continue
		}
		if to != nil && rec.CreatedAt > *to {
			continue
		}
		for _, ent := range entity.Extract(rec.Content) {
			counts[ent]++
		}
	}
	out := make([]Pattern, 0, len(counts))
	for concept, support := range counts {
		if support < minSupport {
			continue
		}
		out = append(out, Pattern{Concept: concept, Support: support, Trend: "flat"})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Support != out[j].Support {
			return out[i].Support > out[j].Support
		}
		return out[i].Concept < out[j].Concept
	})
	return out, nil
}

// TrendBucket is one time-bucket's STM/LTM memory counts.
type TrendBucket struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	STM   int64 `json:"STM"`
	LTM   int64 `json:"LTM"`
}

// Trends buckets [from, to] into the given number of equal-width windows
// (minimum width 1ms) and counts STM/LTM memories created in each. Returns
// no buckets if either from or to is unset, matching original_source.
func (s *Service) Trends(from, to *int64, buckets int) ([]TrendBucket, error) {
	if buckets <= 0 {
		buckets = 10
	}
	if from == nil || to == nil {
		return []TrendBucket{}, nil
	}
	entries, err := s.mem.Tree().Iterate()
	if err != nil {
		return nil, err
	}
	span := *to - *from
	if span < 1 {
		span = 1
	}
	step := span / int64(buckets)
	if step < 1 {
		step = 1
	}
	out := make([]TrendBucket, 0, buckets)
	for i := 0; i < buckets; i++ {
		start := *from + int64(i)*step
		end := start + step - 1
		if i == buckets-1 {
			end = *to
		}
		bucket := TrendBucket{Start: start, End: end}
		for _, e := range entries {
			var rec memory.Record
			if err := json.Unmarshal(e.Value, &rec); err != nil {
				continue
			}
			if rec.CreatedAt < start || rec.CreatedAt > end {
				continue
			}
			switch rec.Layer {
			case memory.LayerSTM:
				bucket.STM++
			case memory.LayerLTM:
				bucket.LTM++
			}
		}
		out = append(out, bucket)
	}
	return out, nil
}

// Cluster is a connected component of documents linked by RELATED edges.
type Cluster struct {
	Docs []string `json:"docs"`
}

// Clusters finds connected components of the kg_edges subgraph restricted
// to RELATED edges and returns every component with more than one document,
// normalized to bare document ids.
func (s *Service) Clusters() ([]Cluster, error) {
	edges, err := s.graph.AllEdges()
	if err != nil {
		return nil, err
	}
	adj := make(map[string][]string)
	for _, e := range edges {
		if e.Relation != "RELATED" {
			continue
		}
		adj[e.Src] = append(adj[e.Src], e.Dst)
		adj[e.Dst] = append(adj[e.Dst], e.Src)
	}
	seen := make(map[string]bool)
	var clusters []Cluster
	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if seen[n] {
			continue
		}
		stack := []string{n}
		var comp []string
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[cur] {
				continue
			}
			seen[cur] = true
			comp = append(comp, cur)
			for _, m := range adj[cur] {
				if !seen[m] {
					stack = append(stack, m)
				}
			}
		}
		if len(comp) <= 1 {
			continue
		}
		docs := make([]string, 0, len(comp))
		for _, key := range comp {
			if doc, ok := strings.CutPrefix(key, "Document::"); ok {
				docs = append(docs, doc)
			}
		}
		sort.Strings(docs)
		clusters = append(clusters, Cluster{Docs: docs})
	}
	return clusters, nil
}

// RelationshipGroup counts edges sharing a (srcType, relation, dstType)
// signature.
type RelationshipGroup struct {
	Group string `json:"group"`
	Count int64  `json:"count"`
}

// Relationships groups every kg_edges entry by (src node type, relation,
// dst node type) and returns the counts, most frequent first.
func (s *Service) Relationships() ([]RelationshipGroup, error) {
	edges, err := s.graph.AllEdges()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, e := range edges {
		srcType, _, _ := strings.Cut(e.Src, "::")
		dstType, _, _ := strings.Cut(e.Dst, "::")
		counts[srcType+":"+e.Relation+":"+dstType]++
	}
	out := make([]RelationshipGroup, 0, len(counts))
	for group, count := range counts {
		out = append(out, RelationshipGroup{Group: group, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Group < out[j].Group
	})
	return out, nil
}

// EffectivenessScore is one memory's computed effectiveness heuristic.
type EffectivenessScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Effectiveness scores every memory as importance × (1 + log10(access_count))
// × exp(-age/halfLifeMs), highest first — the same recency-weighted
// heuristic as original_source's advanced_effectiveness. halfLifeMs <= 0
// falls back to the original's 30-day default.
func (s *Service) Effectiveness(halfLifeMs int64) ([]EffectivenessScore, error) {
	if halfLifeMs <= 0 {
		halfLifeMs = 30 * 24 * 3600 * 1000
	}
	entries, err := s.mem.Tree().Iterate()
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]EffectivenessScore, 0, len(entries))
	for _, e := range entries {
		var rec memory.Record
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue
		}
		age := float64(now - rec.CreatedAt)
		if age < 0 {
			age = 0
		}
		recency := math.Exp(-age / float64(halfLifeMs))
		accessBoost := math.Log10(float64(rec.AccessCount))
		if accessBoost < 0 {
			accessBoost = 0
		}
		score := rec.Importance * (1 + accessBoost) * recency
		out = append(out, EffectivenessScore{ID: rec.ID, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
