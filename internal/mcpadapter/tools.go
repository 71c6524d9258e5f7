package mcpadapter

import (
	"context"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DocumentStoreInput mirrors POST /document/store's JSON body.
type DocumentStoreInput struct {
	Path    string `json:"path,omitempty" jsonschema:"document path, used for versioning"`
	Content string `json:"content,omitempty" jsonschema:"inline document content"`
	MIME    string `json:"mime,omitempty" jsonschema:"content MIME hint: md, pdf, or plain text"`
}

// DocumentRetrieveInput mirrors GET /document/retrieve's query parameters.
type DocumentRetrieveInput struct {
	ID   string `json:"id,omitempty" jsonschema:"document id"`
	Hash string `json:"hash,omitempty" jsonschema:"document content hash"`
	Path string `json:"path,omitempty" jsonschema:"document path"`
}

// MemoryAddInput mirrors POST /memory/add's JSON body.
type MemoryAddInput struct {
	Content   string `json:"content" jsonschema:"memory text content"`
	Layer     string `json:"layer,omitempty" jsonschema:"STM or LTM, defaults to STM"`
	SessionID string `json:"sessionId,omitempty" jsonschema:"optional session identifier"`
	EpisodeID string `json:"episodeId,omitempty" jsonschema:"optional episode identifier"`
}

// MemorySearchInput mirrors GET /memory/search's query parameters.
type MemorySearchInput struct {
	Query   string `json:"q" jsonschema:"substring query"`
	Layer   string `json:"layer,omitempty" jsonschema:"filter by STM or LTM"`
	Episode string `json:"episode,omitempty" jsonschema:"filter by episode id"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// MemoryUpdateInput mirrors POST /memory/update's JSON body.
type MemoryUpdateInput struct {
	ID      string `json:"id" jsonschema:"memory id"`
	Content string `json:"content,omitempty" jsonschema:"replacement content"`
}

// MemoryDeleteInput mirrors POST /memory/delete's JSON body.
type MemoryDeleteInput struct {
	ID     string `json:"id" jsonschema:"memory id"`
	Backup bool   `json:"backup,omitempty" jsonschema:"snapshot before deleting"`
}

// KGSearchInput mirrors GET /kg/search's query parameters.
type KGSearchInput struct {
	Type  string `json:"type,omitempty" jsonschema:"node type filter: Entity, Document, Memory, Episode"`
	Query string `json:"q,omitempty" jsonschema:"case-insensitive substring match"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of nodes"`
}

// SearchFusionInput mirrors GET /search/fusion's query parameters.
type SearchFusionInput struct {
	Query   string `json:"q" jsonschema:"hybrid search query"`
	Layer   string `json:"layer,omitempty" jsonschema:"filter by STM or LTM"`
	Episode string `json:"episode,omitempty" jsonschema:"filter by episode id"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// Output is a deliberately open passthrough of whatever the HTTP surface
// returned — the adapter forwards JSON, it does not reshape it, since the
// HTTP surface is the canonical response shape (spec.md §6).
type Output = map[string]any

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "document.store",
		Description: "Ingest and chunk a document, deduplicating by content hash.",
	}, s.documentStore)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "document.retrieve",
		Description: "Fetch a document's chunk headers and metadata by id, hash, or path.",
	}, s.documentRetrieve)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory.add",
		Description: "Add a short-term memory, linking mentioned entities.",
	}, s.memoryAdd)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory.search",
		Description: "Substring-search memories by content, layer, and episode.",
	}, s.memorySearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory.update",
		Description: "Update a memory's content, bumping its version and re-embedding.",
	}, s.memoryUpdate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory.delete",
		Description: "Delete a memory and cascade its edges and indices.",
	}, s.memoryDelete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "kg.search",
		Description: "Search knowledge-graph nodes by type and substring.",
	}, s.kgSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search.fusion",
		Description: "Hybrid fusion search across text, vector, and graph sources.",
	}, s.searchFusion)
}

func (s *Server) documentStore(ctx context.Context, _ *mcp.CallToolRequest, in DocumentStoreInput) (*mcp.CallToolResult, Output, error) {
	var out Output
	if err := s.http.postJSON(ctx, "/document/store", in, &out); err != nil {
		return nil, nil, mapError(err)
	}
	return nil, out, nil
}

func (s *Server) documentRetrieve(ctx context.Context, _ *mcp.CallToolRequest, in DocumentRetrieveInput) (*mcp.CallToolResult, Output, error) {
	var out Output
	q := queryFrom(map[string]string{"id": in.ID, "hash": in.Hash, "path": in.Path})
	if err := s.http.getJSON(ctx, "/document/retrieve", q, &out); err != nil {
		return nil, nil, mapError(err)
	}
	return nil, out, nil
}

func (s *Server) memoryAdd(ctx context.Context, _ *mcp.CallToolRequest, in MemoryAddInput) (*mcp.CallToolResult, Output, error) {
	var out Output
	if err := s.http.postJSON(ctx, "/memory/add", in, &out); err != nil {
		return nil, nil, mapError(err)
	}
	return nil, out, nil
}

func (s *Server) memorySearch(ctx context.Context, _ *mcp.CallToolRequest, in MemorySearchInput) (*mcp.CallToolResult, Output, error) {
	var out Output
	fields := map[string]string{"q": in.Query, "layer": in.Layer, "episode": in.Episode}
	if in.Limit > 0 {
		fields["limit"] = strconv.Itoa(in.Limit)
	}
	if err := s.http.getJSON(ctx, "/memory/search", queryFrom(fields), &out); err != nil {
		return nil, nil, mapError(err)
	}
	return nil, out, nil
}

func (s *Server) memoryUpdate(ctx context.Context, _ *mcp.CallToolRequest, in MemoryUpdateInput) (*mcp.CallToolResult, Output, error) {
	var out Output
	if err := s.http.postJSON(ctx, "/memory/update", in, &out); err != nil {
		return nil, nil, mapError(err)
	}
	return nil, out, nil
}

func (s *Server) memoryDelete(ctx context.Context, _ *mcp.CallToolRequest, in MemoryDeleteInput) (*mcp.CallToolResult, Output, error) {
	var out Output
	if err := s.http.postJSON(ctx, "/memory/delete", in, &out); err != nil {
		return nil, nil, mapError(err)
	}
	return nil, out, nil
}

func (s *Server) kgSearch(ctx context.Context, _ *mcp.CallToolRequest, in KGSearchInput) (*mcp.CallToolResult, Output, error) {
	var out Output
	fields := map[string]string{"type": in.Type, "q": in.Query}
	if in.Limit > 0 {
		fields["limit"] = strconv.Itoa(in.Limit)
	}
	if err := s.http.getJSON(ctx, "/kg/search", queryFrom(fields), &out); err != nil {
		return nil, nil, mapError(err)
	}
	return nil, out, nil
}

func (s *Server) searchFusion(ctx context.Context, _ *mcp.CallToolRequest, in SearchFusionInput) (*mcp.CallToolResult, Output, error) {
	var out Output
	fields := map[string]string{"q": in.Query, "layer": in.Layer, "episode": in.Episode}
	if in.Limit > 0 {
		fields["limit"] = strconv.Itoa(in.Limit)
	}
	if err := s.http.getJSON(ctx, "/search/fusion", queryFrom(fields), &out); err != nil {
		return nil, nil, mapError(err)
	}
	return nil, out, nil
}
