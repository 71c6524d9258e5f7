// Package docpipeline implements the C7 Document Pipeline: extract, hash,
// dedup, version, chunk, embed, extract entities, link into the knowledge
// graph, and induce cross-document relations — grounded directly on
// original_source's document_store handler in server/src/main.rs, with the
// ingest concurrency cap rendered as golang.org/x/sync/semaphore.Weighted
// the way the teacher bounds concurrent indexing work.
package docpipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"memorized/internal/apperr"
	"memorized/internal/embed"
	"memorized/internal/entity"
	"memorized/internal/extract"
	"memorized/internal/kg"
	"memorized/internal/kv"
	"memorized/internal/textindex"
	"memorized/internal/vectorindex"
)

// Clock supplies the current time in epoch milliseconds, so tests can
// control it.
type Clock func() int64

// Pipeline wires every tree and collaborator the ingest path touches.
type Pipeline struct {
	docs         *kv.Tree
	docsInfo     *kv.Tree
	docsMeta     *kv.Tree
	pathLatest   *kv.Tree
	versions     *kv.Tree
	chunks       *kv.Tree
	vectors      *vectorindex.Index
	text         *textindex.Index
	graph        *kg.Graph
	embedder     embed.Provider
	ingestSema   *semaphore.Weighted
	pdfLimits    extract.Limits
	now          Clock
}

// Options configures Pipeline construction.
type Options struct {
	MaxConcurrentIngest int
	PDFLimits           extract.Limits
	Now                 Clock
}

// New wires a Pipeline from a KV store and its collaborators.
func New(store *kv.Store, graph *kg.Graph, text *textindex.Index, embedder embed.Provider, opts Options) *Pipeline {
	maxConcurrent := opts.MaxConcurrentIngest
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	now := opts.Now
	if now == nil {
		now = defaultClock
	}
	return &Pipeline{
		docs:       store.Tree("docs"),
		docsInfo:   store.Tree("docs_info"),
		docsMeta:   store.Tree("docs_meta"),
		pathLatest: store.Tree("doc_path_latest"),
		versions:   store.Tree("doc_versions"),
		chunks:     store.Tree("chunks"),
		vectors:    vectorindex.New(store, embedder.Dim(), "embeddings", ""),
		text:       text,
		graph:      graph,
		embedder:   embedder,
		ingestSema: semaphore.NewWeighted(int64(maxConcurrent)),
		pdfLimits:  opts.PDFLimits,
		now:        now,
	}
}

// StoreRequest is the input to Store: either Content is set directly, or
// Path names a file to read from disk.
type StoreRequest struct {
	Path     string
	Content  string
	MIME     string
	Metadata json.RawMessage
}

// StoreResult is the response to a successful Store call.
type StoreResult struct {
	ID     string `json:"id"`
	Hash   string `json:"hash"`
	Chunks int    `json:"chunks"`
}

// DocInfo is the value stored under docs_info[id].
type DocInfo struct {
	Path      string `json:"path"`
	Hash      string `json:"hash"`
	Version   int    `json:"version"`
	PrevID    string `json:"prev_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Store runs the full ingest pipeline described in spec.md §4.7.
func (p *Pipeline) Store(ctx context.Context, req StoreRequest) (*StoreResult, error) {
	if err := p.ingestSema.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.ingestSema.Release(1)

	content, err := p.extractContent(req)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])
	now := p.now()

	if existing, err := p.docs.Get([]byte(hash)); err != nil {
		return nil, err
	} else if existing != nil {
		id := string(existing)
		if req.Path != "" {
			if err := p.recordVersion(id, req.Path, hash, now); err != nil {
				return nil, err
			}
		}
		return &StoreResult{ID: id, Hash: hash, Chunks: 0}, nil
	}

	id := uuid.NewString()
	if err := p.docs.Put([]byte(hash), []byte(id)); err != nil {
		return nil, err
	}
	if len(req.Metadata) > 0 {
		if err := p.docsMeta.Put([]byte(id+":meta"), req.Metadata); err != nil {
			return nil, err
		}
	}
	if req.Path != "" {
		if err := p.recordVersion(id, req.Path, hash, now); err != nil {
			return nil, err
		}
	}

	chunkHeaders := splitChunks(content)
	texts := make([]string, len(chunkHeaders))
	for i, ch := range chunkHeaders {
		texts[i] = content[ch.Position.Start:ch.Position.End]
	}

	for i, ch := range chunkHeaders {
		key := chunkKey(id, ch.Position.Start)
		val, err := json.Marshal(ch)
		if err != nil {
			return nil, err
		}
		if err := p.chunks.Put([]byte(key), val); err != nil {
			return nil, err
		}
		if err := p.text.IndexChunk(key, texts[i], now); err != nil {
			return nil, err
		}
	}

	if len(texts) > 0 {
		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		for i, ch := range chunkHeaders {
			key := chunkKey(id, ch.Position.Start)
			if err := p.vectors.Put(key, vecs[i]); err != nil {
				return nil, err
			}
		}
	}

	entities := entity.Extract(content)
	if err := p.graph.EnsureNode(kg.TypeDocument, id, now); err != nil {
		return nil, err
	}
	if err := p.graph.LinkEntities(id, entities); err != nil {
		return nil, err
	}
	for _, e := range entities {
		if err := p.graph.EnsureNode(kg.TypeEntity, e, now); err != nil {
			return nil, err
		}
		if err := p.graph.AddEdge(kg.EntityNodeKey(e), kg.DocumentNodeKey(id), "MENTIONS", now, nil); err != nil {
			return nil, err
		}
	}

	if err := p.induceCrossDocRelations(id, now); err != nil {
		return nil, err
	}

	return &StoreResult{ID: id, Hash: hash, Chunks: len(chunkHeaders)}, nil
}

func (p *Pipeline) induceCrossDocRelations(id string, now int64) error {
	entries, err := p.pathLatest.Iterate()
	if err != nil {
		return err
	}
	for _, e := range entries {
		otherID := string(e.Value)
		if otherID == id {
			continue
		}
		if _, _, err := p.graph.RelateDocumentsByEntities(id, otherID, now); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) recordVersion(id, path, hash string, now int64) error {
	var prevID string
	if v, err := p.pathLatest.Get([]byte(path)); err != nil {
		return err
	} else if v != nil {
		prevID = string(v)
	}

	prevVersion := 0
	if prevID != "" {
		if raw, err := p.docsInfo.Get([]byte(prevID)); err != nil {
			return err
		} else if raw != nil {
			var info DocInfo
			if json.Unmarshal(raw, &info) == nil {
				prevVersion = info.Version
			}
		}
	}

	ver := prevVersion
	if prevID != id {
		ver = prevVersion + 1
	}

	if existing, err := p.docsInfo.Get([]byte(id)); err != nil {
		return err
	} else if existing == nil {
		info := DocInfo{Path: path, Hash: hash, Version: ver, PrevID: prevID, CreatedAt: now}
		val, err := json.Marshal(info)
		if err != nil {
			return err
		}
		if err := p.docsInfo.Put([]byte(id), val); err != nil {
			return err
		}
	}

	if err := p.pathLatest.Put([]byte(path), []byte(id)); err != nil {
		return err
	}
	verKey := path + ":" + strconv.Itoa(ver)
	return p.versions.Put([]byte(verKey), []byte(id))
}

// RetrieveResult is the response shape for document retrieval.
type RetrieveResult struct {
	ID       string            `json:"id"`
	Chunks   []ChunkHeader     `json:"chunks"`
	Metadata json.RawMessage   `json:"metadata,omitempty"`
}

// ErrNotFound is returned when no document resolves for the given lookup.
var ErrNotFound = apperr.NotFoundf("document not found")

// Retrieve resolves a document by id, hash, or path (in that precedence)
// and returns its chunk headers and caller metadata.
func (p *Pipeline) Retrieve(id, hash, path string) (*RetrieveResult, error) {
	resolved := id
	switch {
	case hash != "":
		v, err := p.docs.Get([]byte(hash))
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, ErrNotFound
		}
		resolved = string(v)
	case path != "":
		v, err := p.pathLatest.Get([]byte(path))
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, ErrNotFound
		}
		resolved = string(v)
	}
	if resolved == "" {
		return nil, apperr.Invalid("specify id, hash, or path")
	}

	entries, err := p.chunks.ScanPrefix([]byte(resolved + ":"))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	headers := make([]ChunkHeader, 0, len(entries))
	for _, e := range entries {
		var ch ChunkHeader
		if json.Unmarshal(e.Value, &ch) == nil {
			headers = append(headers, ch)
		}
	}

	meta, err := p.docsMeta.Get([]byte(resolved + ":meta"))
	if err != nil {
		return nil, err
	}

	return &RetrieveResult{ID: resolved, Chunks: headers, Metadata: meta}, nil
}

// HasAnyChunk reports whether docID still has at least one entry in the
// chunks tree, used by maintenance's orphan text-index sweep.
func (p *Pipeline) HasAnyChunk(docID string) (bool, error) {
	return p.chunks.HasPrefix([]byte(docID + ":"))
}

// RelatedDoc is one document related to another via a RELATED edge.
type RelatedDoc struct {
	DocID string  `json:"docId"`
	Score float64 `json:"score"`
}

// AnalyzeResult is document.analyze's response shape, per original_source's
// document_analyze handler.
type AnalyzeResult struct {
	ID          string       `json:"id"`
	KeyConcepts []string     `json:"keyConcepts"`
	Entities    []string     `json:"entities"`
	Summary     *string      `json:"summary,omitempty"`
	DocRefs     []RelatedDoc `json:"docRefs"`
}

// Analyze composes a lightweight document report: entities mentioned in the
// document (the first 5 doubling as keyConcepts, since no frequency signal
// is tracked per entity-per-doc), a summary drawn from the first chunk's
// indexed text, and the documents it relates to via induceCrossDocRelations'
// RELATED edges — grounded directly on original_source's document_analyze.
func (p *Pipeline) Analyze(id string) (*AnalyzeResult, error) {
	entities, err := p.graph.EntitiesForDoc(id)
	if err != nil {
		return nil, err
	}
	keyConcepts := entities
	if len(keyConcepts) > 5 {
		keyConcepts = keyConcepts[:5]
	}

	var summary *string
	firstChunks, err := p.chunks.ScanPrefix([]byte(id + ":"))
	if err != nil {
		return nil, err
	}
	if len(firstChunks) > 0 {
		if text, ok, err := p.text.Get(string(firstChunks[0].Key)); err != nil {
			return nil, err
		} else if ok {
			if len(text) > 300 {
				text = text[:300]
			}
			summary = &text
		}
	}

	edges, err := p.graph.AllEdges()
	if err != nil {
		return nil, err
	}
	src := kg.DocumentNodeKey(id)
	related := make([]RelatedDoc, 0)
	for _, e := range edges {
		if e.Src != src || e.Relation != "RELATED" {
			continue
		}
		if docID, ok := strings.CutPrefix(e.Dst, "Document::"); ok {
			related = append(related, RelatedDoc{DocID: docID, Score: e.Score})
		}
	}

	return &AnalyzeResult{ID: id, KeyConcepts: keyConcepts, Entities: entities, Summary: summary, DocRefs: related}, nil
}

func (p *Pipeline) extractContent(req StoreRequest) (string, error) {
	if req.Content != "" {
		mime := req.MIME
		if mime == "" {
			mime = "md"
		}
		return extract.Extract([]byte(req.Content), mime, p.pdfLimits)
	}
	if req.Path == "" {
		return "", apperr.Invalid("provide either content or path")
	}
	mime := resolveMIME(req.MIME, req.Path)
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return "", apperr.NotFoundf("failed to read document from %s", req.Path)
	}
	return extract.Extract(data, mime, p.pdfLimits)
}

func resolveMIME(mime, path string) string {
	if mime != "" {
		return mime
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "pdf"
	case strings.HasSuffix(lower, ".md"):
		return "md"
	default:
		return "txt"
	}
}

func chunkKey(docID string, start int) string {
	return docID + ":" + strconv.Itoa(start)
}

func defaultClock() int64 {
	return time.Now().UnixMilli()
}
