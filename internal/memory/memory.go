// Package memory implements the C8 Memory Store: CRUD over the memories
// tree, STM/LTM layer bookkeeping, knowledge-graph linking of mentioned
// entities and document evidence, and the access-bump side effect —
// grounded directly on original_source's memory_add/memory_update/
// memory_delete handlers in server/src/main.rs.
package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"memorized/internal/apperr"
	"memorized/internal/embed"
	"memorized/internal/entity"
	"memorized/internal/kg"
	"memorized/internal/kv"
	"memorized/internal/textindex"
	"memorized/internal/vectorindex"
)

const (
	LayerSTM = "STM"
	LayerLTM = "LTM"

	stmTTL = time.Hour
)

// Clock supplies the current time in epoch milliseconds.
type Clock func() int64

// DocRef is a scored reference from a memory to a document (and optionally
// a specific chunk within it).
type DocRef struct {
	DocID   string  `json:"docId"`
	ChunkID string  `json:"chunkId,omitempty"`
	Score   float64 `json:"score"`
}

// Record is the value stored under memories[id].
type Record struct {
	ID           string          `json:"id"`
	Content      string          `json:"content"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Layer        string          `json:"layer"`
	SessionID    string          `json:"session_id,omitempty"`
	EpisodeID    string          `json:"episode_id,omitempty"`
	CreatedAt    int64           `json:"created_at"`
	ExpiresAt    *int64          `json:"expires_at,omitempty"`
	DocRefs      []DocRef        `json:"docRefs,omitempty"`
	Importance   float64         `json:"importance"`
	AccessCount  int64           `json:"access_count"`
	LastAccessTS int64           `json:"last_access_ts"`
	PromotedAt   *int64          `json:"promoted_at,omitempty"`
	Version      int             `json:"version"`
}

// ReferenceInput is a caller-supplied document reference on Add.
type ReferenceInput struct {
	DocID   string
	ChunkID string
	Score   *float64
}

// AddRequest is the input to Add.
type AddRequest struct {
	Content    string
	Metadata   json.RawMessage
	LayerHint  string
	SessionID  string
	EpisodeID  string
	References []ReferenceInput
}

// Store wires the memories tree and its collaborators.
type Store struct {
	memories *kv.Tree
	docRefs  *kv.Tree
	graph    *kg.Graph
	text     *textindex.Index
	vectors  *vectorindex.Index
	embedder embed.Provider
	now      Clock

	strengthenLTMMul float64
	strengthenSTMAdd float64
}

// Options configures Store construction.
type Options struct {
	Now              Clock
	StrengthenLTMMul float64 // default 1.05
	StrengthenSTMAdd float64 // default 0.05
}

// New wires a Store from a KV store and its collaborators.
func New(store *kv.Store, graph *kg.Graph, text *textindex.Index, embedder embed.Provider, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = defaultClock
	}
	ltmMul := opts.StrengthenLTMMul
	if ltmMul == 0 {
		ltmMul = 1.05
	}
	stmAdd := opts.StrengthenSTMAdd
	if stmAdd == 0 {
		stmAdd = 0.05
	}
	return &Store{
		memories:         store.Tree("memories"),
		docRefs:          store.Tree("doc_refs"),
		graph:            graph,
		text:             text,
		vectors:          vectorindex.New(store, embedder.Dim(), "mem_embeddings", "hnsw_mem_neighbors"),
		embedder:         embedder,
		now:              now,
		strengthenLTMMul: ltmMul,
		strengthenSTMAdd: stmAdd,
	}
}

// Vectors exposes the memory vector index for fusion search and lifecycle
// maintenance.
func (s *Store) Vectors() *vectorindex.Index { return s.vectors }

// Tree exposes the raw memories tree for components (fusion, lifecycle)
// that must scan every record.
func (s *Store) Tree() *kv.Tree { return s.memories }

// Add creates a new memory record per spec.md §4.8.
func (s *Store) Add(ctx context.Context, req AddRequest) (*Record, error) {
	if trimEmpty(req.Content) {
		return nil, apperr.Invalid("content must not be empty")
	}

	id := uuid.NewString()
	layer := req.LayerHint
	if layer == "" {
		layer = LayerSTM
	}
	now := s.now()

	rec := &Record{
		ID:         id,
		Content:    req.Content,
		Metadata:   req.Metadata,
		Layer:      layer,
		SessionID:  req.SessionID,
		EpisodeID:  req.EpisodeID,
		CreatedAt:  now,
		Importance: 1.0,
		Version:    1,
	}
	if layer == LayerSTM {
		exp := now + stmTTL.Milliseconds()
		rec.ExpiresAt = &exp
	}

	if err := s.graph.EnsureNode(kg.TypeMemory, id, now); err != nil {
		return nil, err
	}
	entities := entity.Extract(req.Content)
	for _, e := range entities {
		if err := s.graph.EnsureNode(kg.TypeEntity, e, now); err != nil {
			return nil, err
		}
		if err := s.graph.AddEdge(kg.MemoryNodeKey(id), kg.EntityNodeKey(e), "MENTIONS", now, nil); err != nil {
			return nil, err
		}
	}
	if req.EpisodeID != "" {
		if err := s.graph.EnsureEpisodeNode(req.EpisodeID, now, "", req.SessionID); err != nil {
			return nil, err
		}
		if err := s.graph.AddEdge(kg.MemoryNodeKey(id), kg.EpisodeNodeKey(req.EpisodeID), "IN_EPISODE", now, nil); err != nil {
			return nil, err
		}
	}

	if len(req.References) > 0 {
		refs := make([]DocRef, 0, len(req.References))
		for _, r := range req.References {
			if err := s.graph.EnsureNode(kg.TypeDocument, r.DocID, now); err != nil {
				return nil, err
			}
			if err := s.graph.AddEdge(kg.MemoryNodeKey(id), kg.DocumentNodeKey(r.DocID), "EVIDENCE", now, nil); err != nil {
				return nil, err
			}
			docEnts, err := s.graph.EntitiesForDoc(r.DocID)
			if err != nil {
				return nil, err
			}
			score := entity.Jaccard(entities, docEnts)
			if r.Score != nil {
				score = *r.Score
			}
			ref := DocRef{DocID: r.DocID, ChunkID: r.ChunkID, Score: score}
			refs = append(refs, ref)

			key := "mem::" + id + "::doc::" + r.DocID + "::chunk::" + r.ChunkID
			val, err := json.Marshal(map[string]float64{"score": score})
			if err != nil {
				return nil, err
			}
			if err := s.docRefs.Put([]byte(key), val); err != nil {
				return nil, err
			}
		}
		rec.DocRefs = refs
	}

	if err := s.put(rec); err != nil {
		return nil, err
	}
	if err := s.text.IndexMemory(id, req.Content, now); err != nil {
		return nil, err
	}
	if err := s.embedAndStore(ctx, id, req.Content); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the memory record for id, or nil if absent.
func (s *Store) Get(id string) (*Record, error) {
	raw, err := s.memories.Get([]byte(id))
	if err != nil || raw == nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SearchOptions filters a Search call the same way fusion.Request narrows
// gatherMemoryText: an empty field means unfiltered.
type SearchOptions struct {
	Limit   int
	From    *int64
	To      *int64
	Layer   string
	Episode string
}

// SearchResult pairs a matching record with its substring-match score,
// always 1.0 per spec.md's "`/memory/search?q=bravo` returns M with score
// 1.0" example — every source in fusion.gatherMemoryText scores a text hit
// the same flat way.
type SearchResult struct {
	*Record
	Score float64 `json:"score"`
}

// Search scans the memories tree for records whose lowercased content
// contains the lowercased query, applying the optional time/layer/episode
// filters. Every match triggers the access-bump side effect (spec.md §4.8),
// mirroring fusion.Engine.gatherMemoryText's single-source behavior for the
// standalone /memory/search route, which has no doc-text/KG/vector sources
// to union.
func (s *Store) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	entries, err := s.memories.Iterate()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	matches := make([]SearchResult, 0, limit)
	for _, en := range entries {
		var rec Record
		if err := json.Unmarshal(en.Value, &rec); err != nil {
			continue // CorruptionTolerable: skip malformed records
		}
		if q != "" && !strings.Contains(strings.ToLower(rec.Content), q) {
			continue
		}
		if opts.From != nil && rec.CreatedAt < *opts.From {
			continue
		}
		if opts.To != nil && rec.CreatedAt > *opts.To {
			continue
		}
		if opts.Layer != "" && rec.Layer != opts.Layer {
			continue
		}
		if opts.Episode != "" && rec.EpisodeID != opts.Episode {
			continue
		}
		recCopy := rec
		matches = append(matches, SearchResult{Record: &recCopy, Score: 1.0})
		_ = s.BumpAccess(rec.ID)
		if len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func (s *Store) put(rec *Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.memories.Put([]byte(rec.ID), val)
}

// UpdateResult reports what Update actually changed.
type UpdateResult struct {
	ID              string
	Version         int
	Reembedded      bool
	UpdatedIndices  []string
}

// Update patches content and/or metadata, bumping version and, if content
// changed, re-embedding and refreshing both text indices.
func (s *Store) Update(ctx context.Context, id string, content *string, metadata json.RawMessage) (*UpdateResult, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.NotFoundf("memory %s not found", id)
	}

	reembed := false
	if content != nil {
		rec.Content = *content
		reembed = true
	}
	if metadata != nil {
		rec.Metadata = metadata
	}
	rec.Version++

	if err := s.put(rec); err != nil {
		return nil, err
	}

	result := &UpdateResult{ID: id, Version: rec.Version, Reembedded: reembed}
	if reembed {
		if err := s.embedAndStore(ctx, id, rec.Content); err != nil {
			return nil, err
		}
		if err := s.text.IndexMemory(id, rec.Content, s.now()); err != nil {
			return nil, err
		}
		result.UpdatedIndices = []string{"text", "vector"}
	}
	return result, nil
}

// Delete removes a memory record and cascades its dependent state, per
// spec.md §4.8 and §3's memory-cascade invariant.
func (s *Store) Delete(id string, backup bool) (deleted, cascaded bool, err error) {
	raw, err := s.memories.Get([]byte(id))
	if err != nil {
		return false, false, err
	}
	if raw == nil {
		return false, false, apperr.NotFoundf("memory %s not found", id)
	}

	if backup {
		key := strconv.FormatInt(s.now(), 10) + ":" + id
		if bkErr := s.backupTree().Put([]byte(key), raw); bkErr != nil {
			return false, false, bkErr
		}
	}

	if _, err := s.graph.RemoveEdgesFromPrefix(kg.MemoryNodeKey(id) + "->"); err != nil {
		return false, false, err
	}
	if err := s.text.Remove("mem:" + id); err != nil {
		return false, false, err
	}
	if err := s.vectors.Remove(id); err != nil {
		return false, false, err
	}
	if _, err := s.docRefs.RemovePrefix([]byte("mem::" + id + "::")); err != nil {
		return false, false, err
	}

	if err := s.memories.Remove([]byte(id)); err != nil {
		return false, false, err
	}
	return true, true, nil
}

// BumpAccess applies the access-bump side effect described in spec.md §4.8:
// increment access_count, refresh last_access_ts, and strengthen importance
// (multiplicatively for LTM, additively for STM). It is called whenever a
// memory surfaces in a text/substring match.
func (s *Store) BumpAccess(id string) error {
	rec, err := s.Get(id)
	if err != nil || rec == nil {
		return err
	}
	now := s.now()
	rec.AccessCount++
	rec.LastAccessTS = now
	if rec.Layer == LayerLTM {
		rec.Importance *= s.strengthenLTMMul
	} else {
		rec.Importance += s.strengthenSTMAdd
	}
	return s.put(rec)
}

// MemoryDocRef is one document reference from a memory's point of view.
type MemoryDocRef struct {
	DocID   string  `json:"docId"`
	ChunkID string  `json:"chunkId,omitempty"`
	Score   float64 `json:"score"`
}

// RefsForMemory returns every doc_refs entry for memID, per
// document.refs_for_memory (original_source's document_refs_for_memory).
func (s *Store) RefsForMemory(memID string) ([]MemoryDocRef, error) {
	entries, err := s.docRefs.ScanPrefix([]byte("mem::" + memID + "::"))
	if err != nil {
		return nil, err
	}
	out := make([]MemoryDocRef, 0, len(entries))
	for _, e := range entries {
		parts := strings.Split(string(e.Key), "::")
		if len(parts) < 6 {
			continue
		}
		out = append(out, MemoryDocRef{DocID: parts[3], ChunkID: parts[5], Score: refScore(e.Value)})
	}
	return out, nil
}

// DocumentMemoryRef is one memory referencing a document, from the
// document's point of view.
type DocumentMemoryRef struct {
	MemoryID string  `json:"memoryId"`
	ChunkID  string  `json:"chunkId,omitempty"`
	Score    float64 `json:"score"`
}

// RefsForDocument returns every doc_refs entry mentioning docID, per
// document.refs_for_document (original_source's document_refs_for_document).
func (s *Store) RefsForDocument(docID string) ([]DocumentMemoryRef, error) {
	entries, err := s.docRefs.Iterate()
	if err != nil {
		return nil, err
	}
	needle := "::doc::" + docID + "::"
	out := make([]DocumentMemoryRef, 0)
	for _, e := range entries {
		key := string(e.Key)
		if !strings.Contains(key, needle) {
			continue
		}
		parts := strings.Split(key, "::")
		if len(parts) < 6 {
			continue
		}
		out = append(out, DocumentMemoryRef{MemoryID: parts[1], ChunkID: parts[5], Score: refScore(e.Value)})
	}
	return out, nil
}

func refScore(raw []byte) float64 {
	var v map[string]float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v["score"]
}

// ValidateRefs scans every doc_refs entry for a malformed key, a memory id
// that no longer exists, or a document with no surviving chunk (reported by
// hasAnyChunk, since memory.Store has no direct view of the chunks tree),
// returning the offending keys. If fix is true, each offending entry is
// removed and the count returned as removed. Grounded on original_source's
// document_validate_refs.
func (s *Store) ValidateRefs(fix bool, hasAnyChunk func(docID string) (bool, error)) (invalid []string, removed int, err error) {
	entries, err := s.docRefs.Iterate()
	if err != nil {
		return nil, 0, err
	}
	for _, e := range entries {
		key := string(e.Key)
		parts := strings.Split(key, "::")
		bad := len(parts) < 6
		if !bad {
			memOK, err := s.memories.Has([]byte(parts[1]))
			if err != nil {
				return nil, 0, err
			}
			docOK, err := hasAnyChunk(parts[3])
			if err != nil {
				return nil, 0, err
			}
			bad = !memOK || !docOK || parts[5] == ""
		}
		if !bad {
			continue
		}
		invalid = append(invalid, key)
		if fix {
			if err := s.docRefs.Remove(e.Key); err != nil {
				return nil, 0, err
			}
			removed++
		}
	}
	return invalid, removed, nil
}

func (s *Store) backupTree() *kv.Tree {
	return s.memories.Sibling("backups_memories")
}

func (s *Store) embedAndStore(ctx context.Context, id, content string) error {
	vecs, err := s.embedder.Embed(ctx, []string{content})
	if err != nil {
		return err
	}
	return s.vectors.Put(id, vecs[0])
}

func trimEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func defaultClock() int64 {
	return time.Now().UnixMilli()
}
