package httpapi

import (
	"net/http"

	"memorized/internal/apperr"
	"memorized/internal/docpipeline"
)

func (s *Server) registerDocuments() {
	s.mux.HandleFunc("POST /document/store", s.handleDocumentStore)
	s.mux.HandleFunc("GET /document/retrieve", s.handleDocumentRetrieve)
	s.mux.HandleFunc("GET /document/analyze", s.handleDocumentAnalyze)
	s.mux.HandleFunc("GET /document/refs_for_memory", s.handleDocumentRefsForMemory)
	s.mux.HandleFunc("GET /document/refs_for_document", s.handleDocumentRefsForDocument)
	s.mux.HandleFunc("POST /document/validate_refs", s.handleDocumentValidateRefs)
}

func (s *Server) handleDocumentStore(w http.ResponseWriter, r *http.Request) {
	var req docpipeline.StoreRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	res, err := s.app.Docs.Store(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDocumentRetrieve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, hash, path := q.Get("id"), q.Get("hash"), q.Get("path")
	if id == "" && hash == "" && path == "" {
		respondError(w, apperr.Invalid("specify id, hash, or path"))
		return
	}
	res, err := s.app.Docs.Retrieve(id, hash, path)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDocumentAnalyze(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, apperr.Invalid("id is required"))
		return
	}
	res, err := s.app.Docs.Analyze(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDocumentRefsForMemory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, apperr.Invalid("id is required"))
		return
	}
	refs, err := s.app.Memory.RefsForMemory(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "docRefs": refs})
}

func (s *Server) handleDocumentRefsForDocument(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, apperr.Invalid("id is required"))
		return
	}
	refs, err := s.app.Memory.RefsForDocument(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "memories": refs})
}

type validateRefsRequest struct {
	Fix bool `json:"fix,omitempty"`
}

func (s *Server) handleDocumentValidateRefs(w http.ResponseWriter, r *http.Request) {
	var req validateRefsRequest
	if err := decodeJSON(r, &req); err != nil && r.ContentLength != 0 {
		respondError(w, err)
		return
	}
	invalid, removed, err := s.app.Memory.ValidateRefs(req.Fix, s.app.Docs.HasAnyChunk)
	if err != nil {
		respondError(w, err)
		return
	}
	body := map[string]any{"invalid": invalid}
	if req.Fix {
		body["removed"] = removed
	}
	respondJSON(w, http.StatusOK, body)
}
