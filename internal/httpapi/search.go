package httpapi

import (
	"net/http"
	"strconv"

	"memorized/internal/fusion"
)

func (s *Server) registerSearch() {
	s.mux.HandleFunc("GET /search/fusion", s.handleSearchFusion)
}

func (s *Server) handleSearchFusion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := fusion.Request{
		Query:   q.Get("q"),
		Layer:   q.Get("layer"),
		Episode: q.Get("episode"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.Limit = n
		}
	}
	if v := q.Get("from"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.From = &n
		}
	}
	if v := q.Get("to"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.To = &n
		}
	}
	res, err := s.app.Fusion.Search(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
