// Package textindex implements the C5 Text Index: a primary prefix-scannable
// text_index tree in the KV store, mirrored into a secondary external
// full-text index (bleve, commit-on-write, memory-mapped), grounded on the
// teacher's internal/store/bm25.go (blevesearch/bleve/v2 wrapping) and on
// original_source's index_chunks_sled/index_memory_sled/tantivy mirroring.
//
// Writes go to both layers. Reads prefer the secondary index when it is
// open; they fall back to a substring scan of the primary tree otherwise.
// Both layers tolerate stale entries — maintenance prunes them.
package textindex

import (
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"memorized/internal/kv"
)

// EntryType distinguishes chunk text from memory text in the secondary
// index schema (id, type, content, timestamp).
type EntryType string

const (
	TypeChunk  EntryType = "chunk"
	TypeMemory EntryType = "memory"
)

type bleveDoc struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Content   string    `json:"content"`
	Timestamp int64     `json:"timestamp"`
}

// Index bundles the primary KV tree and the optional secondary bleve index.
type Index struct {
	primary *kv.Tree

	mu        sync.RWMutex
	secondary bleve.Index
}

// Open wires a primary tree from store and, if path is non-empty, opens (or
// creates) a bleve index at path as the secondary layer. path == "" runs
// with substring-scan fallback only.
func Open(store *kv.Store, path string) (*Index, error) {
	idx := &Index{primary: store.Tree("text_index")}
	if path == "" {
		return idx, nil
	}
	b, err := bleve.Open(path)
	if err != nil {
		mapping := bleve.NewIndexMapping()
		b, err = bleve.New(path, mapping)
		if err != nil {
			return nil, err
		}
	}
	idx.secondary = b
	return idx, nil
}

// Close releases the secondary index handle, if any.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.secondary != nil {
		return idx.secondary.Close()
	}
	return nil
}

// IndexChunk writes docId:startOffset -> text to both layers.
func (idx *Index) IndexChunk(key string, text string, timestamp int64) error {
	return idx.put(key, TypeChunk, text, timestamp)
}

// IndexMemory writes mem:id -> text to both layers.
func (idx *Index) IndexMemory(memID string, text string, timestamp int64) error {
	return idx.put("mem:"+memID, TypeMemory, text, timestamp)
}

func (idx *Index) put(key string, typ EntryType, text string, timestamp int64) error {
	if err := idx.primary.Put([]byte(key), []byte(text)); err != nil {
		return err
	}
	idx.mu.RLock()
	sec := idx.secondary
	idx.mu.RUnlock()
	if sec == nil {
		return nil
	}
	return sec.Index(key, bleveDoc{ID: key, Type: typ, Content: text, Timestamp: timestamp})
}

// Remove deletes key from both layers.
func (idx *Index) Remove(key string) error {
	if err := idx.primary.Remove([]byte(key)); err != nil {
		return err
	}
	idx.mu.RLock()
	sec := idx.secondary
	idx.mu.RUnlock()
	if sec == nil {
		return nil
	}
	return sec.Delete(key)
}

// Get returns the raw text stored under key in the primary tree, used by
// document.analyze to compose a trivial summary from a document's first
// chunk.
func (idx *Index) Get(key string) (string, bool, error) {
	raw, err := idx.primary.Get([]byte(key))
	if err != nil || raw == nil {
		return "", false, err
	}
	return string(raw), true, nil
}

// Hit is a single text-index match.
type Hit struct {
	Key  string
	Text string
}

// Substring returns every primary-tree entry whose lowercased value
// contains the lowercased query — the fallback path, and also the only path
// when no secondary index is configured.
func (idx *Index) Substring(query string) ([]Hit, error) {
	entries, err := idx.primary.Iterate()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var out []Hit
	for _, e := range entries {
		text := string(e.Value)
		if strings.Contains(strings.ToLower(text), needle) {
			out = append(out, Hit{Key: string(e.Key), Text: text})
		}
	}
	return out, nil
}

// Search prefers the secondary bleve index (a real full-text match query)
// when open, falling back to Substring otherwise.
func (idx *Index) Search(query string, limit int) ([]Hit, error) {
	idx.mu.RLock()
	sec := idx.secondary
	idx.mu.RUnlock()
	if sec == nil || query == "" {
		return idx.Substring(query)
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"content"}
	res, err := sec.Search(req)
	if err != nil {
		return idx.Substring(query)
	}
	out := make([]Hit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		content, _ := hit.Fields["content"].(string)
		out = append(out, Hit{Key: hit.ID, Text: content})
	}
	return out, nil
}

// OrphanChunkKeys returns every text_index key of the form "docId:offset"
// whose docId has no remaining entry in chunks (spec.md §4.11 orphan text).
func (idx *Index) OrphanChunkKeys(hasAnyChunk func(docID string) (bool, error)) ([]string, error) {
	entries, err := idx.primary.Iterate()
	if err != nil {
		return nil, err
	}
	var orphans []string
	seen := map[string]bool{}
	for _, e := range entries {
		key := string(e.Key)
		if strings.HasPrefix(key, "mem:") {
			continue
		}
		docID, _, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		ok2, cached := seen[docID]
		if !cached {
			has, err := hasAnyChunk(docID)
			if err != nil {
				return nil, err
			}
			ok2 = has
			seen[docID] = ok2
		}
		if !ok2 {
			orphans = append(orphans, key)
		}
	}
	return orphans, nil
}
