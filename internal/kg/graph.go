// Package kg implements the C4 Knowledge Graph: typed nodes
// (Entity/Document/Memory/Episode), directed labelled edges, and
// Jaccard-based document relation induction, grounded on
// original_source/server/src/kg.rs.
package kg

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"memorized/internal/entity"
	"memorized/internal/kv"
)

// NodeType enumerates the typed node kinds in the graph.
type NodeType string

const (
	TypeEntity   NodeType = "Entity"
	TypeDocument NodeType = "Document"
	TypeMemory   NodeType = "Memory"
	TypeEpisode  NodeType = "Episode"
)

// Node is the schema-less-from-the-source node body, modeled as a tagged
// variant with required core fields plus an open extension bag (Tags).
type Node struct {
	Type      NodeType `json:"type"`
	ID        string   `json:"id,omitempty"`
	Label     string   `json:"label,omitempty"`
	CreatedAt int64    `json:"created_at"`
	Name      string   `json:"name,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Edge is a directed, labelled relation between two node keys.
type Edge struct {
	Src       string  `json:"src"`
	Dst       string  `json:"dst"`
	Relation  string  `json:"relation"`
	Score     float64 `json:"score,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// Graph bundles the trees backing the knowledge graph.
type Graph struct {
	nodes    *kv.Tree // Type::name -> Node
	edges    *kv.Tree // Src->Dst::RELATION -> Edge
	entities *kv.Tree // entity name -> u64 mention count
	links    *kv.Tree // docId::entity -> {} (reverse doc->entity index)
}

// New wires a Graph to the given KV store.
func New(store *kv.Store) *Graph {
	return &Graph{
		nodes:    store.Tree("kg_nodes"),
		edges:    store.Tree("kg_edges"),
		entities: store.Tree("kg_entities"),
		links:    store.Tree("kg_links"),
	}
}

func nodeKey(t NodeType, name string) string { return string(t) + "::" + name }

func edgeKey(src, dst, relation string) string { return src + "->" + dst + "::" + relation }

// EnsureNode idempotently inserts a node under Type::name if absent.
func (g *Graph) EnsureNode(t NodeType, name string, createdAt int64) error {
	key := []byte(nodeKey(t, name))
	exists, err := g.nodes.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	n := Node{Type: t, CreatedAt: createdAt}
	switch t {
	case TypeEntity:
		n.Label = name
	default:
		n.ID = name
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return g.nodes.Put(key, data)
}

// EnsureEpisodeNode additionally carries an optional display name and
// session id, matching ensure_episode_node in the original.
func (g *Graph) EnsureEpisodeNode(episodeID string, createdAt int64, name, sessionID string) error {
	key := []byte(nodeKey(TypeEpisode, episodeID))
	exists, err := g.nodes.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	n := Node{Type: TypeEpisode, ID: episodeID, CreatedAt: createdAt, Name: name, SessionID: sessionID}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return g.nodes.Put(key, data)
}

// GetNode returns the node stored under Type::name, or nil if absent.
func (g *Graph) GetNode(t NodeType, name string) (*Node, error) {
	data, err := g.nodes.Get([]byte(nodeKey(t, name)))
	if err != nil || data == nil {
		return nil, err
	}
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("kg: decode node %s::%s: %w", t, name, err)
	}
	return &n, nil
}

// AddEdge inserts or overwrites the edge src->dst::relation.
func (g *Graph) AddEdge(src, dst, relation string, createdAt int64, score *float64) error {
	e := Edge{Src: src, Dst: dst, Relation: relation, CreatedAt: createdAt}
	if score != nil {
		e.Score = *score
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return g.edges.Put([]byte(edgeKey(src, dst, relation)), data)
}

// LinkEntities increments the per-entity mention counter and records a flat
// docId::entity reverse-lookup link for each entity mentioned in docId.
func (g *Graph) LinkEntities(docID string, entities []string) error {
	for _, e := range entities {
		count := uint64(0)
		if raw, err := g.entities.Get([]byte(e)); err != nil {
			return err
		} else if raw != nil {
			count = decodeU64(raw)
		}
		if err := g.entities.Put([]byte(e), encodeU64(count+1)); err != nil {
			return err
		}
		if err := g.links.Put([]byte(docID+"::"+e), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

// EntitiesForDoc returns the entities linked to docID via LinkEntities.
func (g *Graph) EntitiesForDoc(docID string) ([]string, error) {
	entries, err := g.links.ScanPrefix([]byte(docID + "::"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		_, ent, ok := strings.Cut(string(e.Key), "::")
		if ok {
			out = append(out, ent)
		}
	}
	return out, nil
}

// DocsForEntity returns every document id whose link key ends with ::name.
func (g *Graph) DocsForEntity(name string) ([]string, error) {
	entries, err := g.links.Iterate()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	suffix := "::" + name
	for _, e := range entries {
		key := string(e.Key)
		if strings.HasSuffix(key, suffix) {
			docID, _, _ := strings.Cut(key, "::")
			if _, ok := seen[docID]; !ok {
				seen[docID] = struct{}{}
				out = append(out, docID)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// RelateDocumentsByEntities computes the Jaccard similarity of the entity
// sets mentioned by documents a and b; if it is > 0, it writes a directed
// Document::a -> Document::b :: RELATED edge with that score. Edges are
// asymmetric: the reverse direction is not implied and must be induced
// separately if wanted.
func (g *Graph) RelateDocumentsByEntities(a, b string, now int64) (float64, bool, error) {
	aEnts, err := g.EntitiesForDoc(a)
	if err != nil {
		return 0, false, err
	}
	bEnts, err := g.EntitiesForDoc(b)
	if err != nil {
		return 0, false, err
	}
	j := entity.Jaccard(aEnts, bEnts)
	if j <= 0 {
		return 0, false, nil
	}
	src := nodeKey(TypeDocument, a)
	dst := nodeKey(TypeDocument, b)
	if err := g.AddEdge(src, dst, "RELATED", now, &j); err != nil {
		return 0, false, err
	}
	return j, true, nil
}

// SearchNodes scans kg_nodes, filtering by node type (if non-empty) and a
// case-insensitive substring match against key, label, or id (if pattern is
// non-empty).
func (g *Graph) SearchNodes(nodeType, pattern string, limit int) ([]NodeResult, error) {
	entries, err := g.nodes.Iterate()
	if err != nil {
		return nil, err
	}
	lowerPattern := strings.ToLower(pattern)
	var out []NodeResult
	for _, e := range entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		var n Node
		if err := json.Unmarshal(e.Value, &n); err != nil {
			continue // CorruptionTolerable: skip malformed node
		}
		if nodeType != "" && string(n.Type) != nodeType {
			continue
		}
		if pattern != "" {
			key := string(e.Key)
			matches := strings.Contains(strings.ToLower(key), lowerPattern) ||
				strings.Contains(strings.ToLower(n.Label), lowerPattern) ||
				strings.Contains(strings.ToLower(n.ID), lowerPattern)
			if !matches {
				continue
			}
		}
		out = append(out, NodeResult{Key: string(e.Key), Node: n})
	}
	return out, nil
}

// NodeResult pairs a node with its storage key.
type NodeResult struct {
	Key  string `json:"key"`
	Node Node   `json:"node"`
}

// TagEntity merges tags into the entity node's tag set (creating the node
// if it does not yet exist).
func (g *Graph) TagEntity(name string, tags []string, now int64) error {
	n, err := g.GetNode(TypeEntity, name)
	if err != nil {
		return err
	}
	if n == nil {
		n = &Node{Type: TypeEntity, Label: name, CreatedAt: now}
	}
	set := make(map[string]struct{}, len(n.Tags)+len(tags))
	for _, t := range n.Tags {
		set[t] = struct{}{}
	}
	for _, t := range tags {
		set[t] = struct{}{}
	}
	n.Tags = sortedKeys(set)
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return g.nodes.Put([]byte(nodeKey(TypeEntity, name)), data)
}

// RemoveTag removes tags from an entity's tag set; a no-op if the entity or
// tags are absent.
func (g *Graph) RemoveTag(name string, tags []string) error {
	n, err := g.GetNode(TypeEntity, name)
	if err != nil || n == nil {
		return err
	}
	remove := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		remove[t] = struct{}{}
	}
	kept := make([]string, 0, len(n.Tags))
	for _, t := range n.Tags {
		if _, drop := remove[t]; !drop {
			kept = append(kept, t)
		}
	}
	n.Tags = kept
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return g.nodes.Put([]byte(nodeKey(TypeEntity, name)), data)
}

// EntityDetails bundles an entity node with the documents mentioning it and
// its outgoing edges, per get_entity_details in the original.
type EntityDetails struct {
	Entity string `json:"entity"`
	Node   *Node  `json:"node"`
	Docs   []string `json:"docs"`
	Edges  []Edge   `json:"edges"`
}

// GetEntityDetails implements get_entity_details.
func (g *Graph) GetEntityDetails(name string) (*EntityDetails, error) {
	n, err := g.GetNode(TypeEntity, name)
	if err != nil {
		return nil, err
	}
	docs, err := g.DocsForEntity(name)
	if err != nil {
		return nil, err
	}
	prefix := nodeKey(TypeEntity, name) + "->"
	entries, err := g.edges.ScanPrefix([]byte(prefix))
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(entries))
	for _, e := range entries {
		var edge Edge
		if err := json.Unmarshal(e.Value, &edge); err == nil {
			edges = append(edges, edge)
		}
	}
	return &EntityDetails{Entity: name, Node: n, Docs: docs, Edges: edges}, nil
}

// DeleteEntity removes the entity node, its mention counter, every
// outgoing edge, every incoming edge found by full scan, and every kg_links
// entry ending in ::name. Returns the count of keys removed.
func (g *Graph) DeleteEntity(name string) (int, error) {
	removed := 0
	key := []byte(nodeKey(TypeEntity, name))
	if ok, err := g.nodes.Has(key); err != nil {
		return 0, err
	} else if ok {
		if err := g.nodes.Remove(key); err != nil {
			return 0, err
		}
		removed++
	}
	_ = g.entities.Remove([]byte(name))

	srcPrefix := nodeKey(TypeEntity, name) + "->"
	n, err := g.edges.RemovePrefix([]byte(srcPrefix))
	if err != nil {
		return 0, err
	}
	removed += n

	entries, err := g.edges.Iterate()
	if err != nil {
		return 0, err
	}
	dstKey := nodeKey(TypeEntity, name)
	for _, e := range entries {
		var edge Edge
		if err := json.Unmarshal(e.Value, &edge); err != nil {
			continue
		}
		if edge.Dst == dstKey {
			if err := g.edges.Remove(e.Key); err != nil {
				return 0, err
			}
			removed++
		}
	}

	linkEntries, err := g.links.Iterate()
	if err != nil {
		return 0, err
	}
	suffix := "::" + name
	for _, e := range linkEntries {
		if strings.HasSuffix(string(e.Key), suffix) {
			_ = g.links.Remove(e.Key)
		}
	}
	return removed, nil
}

// RemoveEdgesFromPrefix removes every edge whose key starts with prefix
// (e.g. "Memory::id->") and is used by the memory-delete cascade.
func (g *Graph) RemoveEdgesFromPrefix(prefix string) (int, error) {
	return g.edges.RemovePrefix([]byte(prefix))
}

// RemoveDanglingEdges removes every edge whose src or dst is not itself a
// key present in kg_nodes (spec.md §4.11 integrity sweep).
func (g *Graph) RemoveDanglingEdges() (int, error) {
	entries, err := g.edges.Iterate()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		var edge Edge
		if err := json.Unmarshal(e.Value, &edge); err != nil {
			continue
		}
		srcOK, err := g.nodes.Has([]byte(edge.Src))
		if err != nil {
			return 0, err
		}
		dstOK, err := g.nodes.Has([]byte(edge.Dst))
		if err != nil {
			return 0, err
		}
		if !srcOK || !dstOK {
			if err := g.edges.Remove(e.Key); err != nil {
				return 0, err
			}
			removed++
		}
	}
	return removed, nil
}

// MemoriesMentioningEntity returns the memory ids whose MENTIONS edge key
// ends with "->Entity::name::MENTIONS", used by fusion search's KG source.
func (g *Graph) MemoriesMentioningEntity(name string) ([]string, error) {
	entries, err := g.edges.Iterate()
	if err != nil {
		return nil, err
	}
	suffix := "->" + nodeKey(TypeEntity, name) + "::MENTIONS"
	var out []string
	for _, e := range entries {
		key := string(e.Key)
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		src, _, ok := strings.Cut(key, "->")
		if !ok {
			continue
		}
		if id, ok := strings.CutPrefix(src, "Memory::"); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// AllEdges returns every edge in the graph, used by the HTTP surface's
// "read graph" route (spec.md §6's `/kg/*` table entry).
func (g *Graph) AllEdges() ([]Edge, error) {
	entries, err := g.edges.Iterate()
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(entries))
	for _, e := range entries {
		var edge Edge
		if err := json.Unmarshal(e.Value, &edge); err != nil {
			continue // CorruptionTolerable: skip malformed edge
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func decodeU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < len(b) && i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// MemoryNodeKey, EntityNodeKey, DocumentNodeKey build canonical kg_nodes
// keys for the given id/name, exported for callers in other packages (e.g.
// memory and docpipeline) that need to reference a node without round
// tripping through Graph.
func MemoryNodeKey(id string) string   { return nodeKey(TypeMemory, id) }
func EntityNodeKey(name string) string  { return nodeKey(TypeEntity, name) }
func DocumentNodeKey(id string) string  { return nodeKey(TypeDocument, id) }
func EpisodeNodeKey(id string) string   { return nodeKey(TypeEpisode, id) }
