package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"memorized/internal/apperr"
	"memorized/internal/memory"
)

func (s *Server) registerMemory() {
	s.mux.HandleFunc("POST /memory/add", s.handleMemoryAdd)
	s.mux.HandleFunc("GET /memory/search", s.handleMemorySearch)
	s.mux.HandleFunc("POST /memory/update", s.handleMemoryUpdate)
	s.mux.HandleFunc("POST /memory/delete", s.handleMemoryDelete)
}

func (s *Server) handleMemoryAdd(w http.ResponseWriter, r *http.Request) {
	var req memory.AddRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	rec, err := s.app.Memory.Add(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// handleMemorySearch is the plain substring search over memories, distinct
// from /search/fusion's multi-source union.
func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := memory.SearchOptions{Layer: q.Get("layer"), Episode: q.Get("episode")}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := q.Get("from"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.From = &n
		}
	}
	if v := q.Get("to"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.To = &n
		}
	}
	results, err := s.app.Memory.Search(q.Get("q"), opts)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

type memoryUpdateRequest struct {
	ID       string          `json:"id"`
	Content  *string         `json:"content,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (s *Server) handleMemoryUpdate(w http.ResponseWriter, r *http.Request) {
	var req memoryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.ID == "" {
		respondError(w, apperr.Invalid("id is required"))
		return
	}
	res, err := s.app.Memory.Update(r.Context(), req.ID, req.Content, req.Metadata)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type memoryDeleteRequest struct {
	ID     string `json:"id"`
	Backup bool   `json:"backup,omitempty"`
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	var req memoryDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.ID == "" {
		respondError(w, apperr.Invalid("id is required"))
		return
	}
	deleted, cascaded, err := s.app.Memory.Delete(req.ID, req.Backup)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "cascaded": cascaded})
}
