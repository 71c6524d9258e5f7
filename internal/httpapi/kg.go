package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"memorized/internal/apperr"
	"memorized/internal/kg"
)

func (s *Server) registerKG() {
	s.mux.HandleFunc("GET /kg/search", s.handleKGSearch)
	s.mux.HandleFunc("GET /kg/node", s.handleKGGetNode)
	s.mux.HandleFunc("GET /kg/graph", s.handleKGGraph)
	s.mux.HandleFunc("GET /kg/entity", s.handleKGEntityDetails)
	s.mux.HandleFunc("POST /kg/entity", s.handleKGCreateEntity)
	s.mux.HandleFunc("POST /kg/relation", s.handleKGCreateRelation)
	s.mux.HandleFunc("POST /kg/tag", s.handleKGTag)
	s.mux.HandleFunc("POST /kg/untag", s.handleKGUntag)
	s.mux.HandleFunc("POST /kg/delete", s.handleKGDelete)
}

func (s *Server) handleKGSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	res, err := s.app.Graph.SearchNodes(q.Get("type"), q.Get("q"), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"nodes": res})
}

func (s *Server) handleKGGetNode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nodeType, name := q.Get("type"), q.Get("name")
	if nodeType == "" || name == "" {
		respondError(w, apperr.Invalid("type and name are required"))
		return
	}
	n, err := s.app.Graph.GetNode(kg.NodeType(nodeType), name)
	if err != nil {
		respondError(w, err)
		return
	}
	if n == nil {
		respondError(w, apperr.NotFoundf("node %s::%s not found", nodeType, name))
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// handleKGGraph returns every node and edge, per spec.md §6's "read graph"
// /kg/* entry.
func (s *Server) handleKGGraph(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.app.Graph.SearchNodes("", "", 0)
	if err != nil {
		respondError(w, err)
		return
	}
	edges, err := s.app.Graph.AllEdges()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "edges": edges})
}

func (s *Server) handleKGEntityDetails(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondError(w, apperr.Invalid("name is required"))
		return
	}
	details, err := s.app.Graph.GetEntityDetails(name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, details)
}

type kgCreateEntityRequest struct {
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

func (s *Server) handleKGCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req kgCreateEntityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Name == "" {
		respondError(w, apperr.Invalid("name is required"))
		return
	}
	now := time.Now().UnixMilli()
	if err := s.app.Graph.EnsureNode(kg.TypeEntity, req.Name, now); err != nil {
		respondError(w, err)
		return
	}
	if len(req.Tags) > 0 {
		if err := s.app.Graph.TagEntity(req.Name, req.Tags, now); err != nil {
			respondError(w, err)
			return
		}
	}
	n, err := s.app.Graph.GetNode(kg.TypeEntity, req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

type kgCreateRelationRequest struct {
	Src      string   `json:"src"`
	Dst      string   `json:"dst"`
	Relation string   `json:"relation"`
	Score    *float64 `json:"score,omitempty"`
}

func (s *Server) handleKGCreateRelation(w http.ResponseWriter, r *http.Request) {
	var req kgCreateRelationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Src == "" || req.Dst == "" || req.Relation == "" {
		respondError(w, apperr.Invalid("src, dst, and relation are required"))
		return
	}
	if err := s.app.Graph.AddEdge(req.Src, req.Dst, req.Relation, time.Now().UnixMilli(), req.Score); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"created": true})
}

type kgTagRequest struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func (s *Server) handleKGTag(w http.ResponseWriter, r *http.Request) {
	var req kgTagRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Name == "" {
		respondError(w, apperr.Invalid("name is required"))
		return
	}
	if err := s.app.Graph.TagEntity(req.Name, req.Tags, time.Now().UnixMilli()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tagged": true})
}

func (s *Server) handleKGUntag(w http.ResponseWriter, r *http.Request) {
	var req kgTagRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Name == "" {
		respondError(w, apperr.Invalid("name is required"))
		return
	}
	if err := s.app.Graph.RemoveTag(req.Name, req.Tags); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"untagged": true})
}

type kgDeleteRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleKGDelete(w http.ResponseWriter, r *http.Request) {
	var req kgDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Name == "" {
		respondError(w, apperr.Invalid("name is required"))
		return
	}
	removed, err := s.app.Graph.DeleteEntity(req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
