package httpapi

import "net/http"

func (s *Server) registerObservability() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /tools", s.handleTools)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.app.Fusion.Metrics().Snapshot()
	degraded := false
	threshold := s.app.Config.StatusP95MsThreshold
	if threshold > 0 && int64(snap.P95Ms) > threshold {
		degraded = true
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  statusLabel(degraded),
		"fusion":  snap,
		"dataDir": s.app.Config.DataDir,
	})
}

func statusLabel(degraded bool) string {
	if degraded {
		return "degraded"
	}
	return "ok"
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.app.Fusion.Metrics().Snapshot())
}

// toolCatalog mirrors the stdio adapter's tools/list result so both
// surfaces agree on the tool catalog (spec.md §6).
func toolCatalog() []map[string]string {
	return []map[string]string{
		{"name": "document.store", "description": "Ingest and chunk a document"},
		{"name": "document.retrieve", "description": "Fetch a document's chunk headers"},
		{"name": "memory.add", "description": "Add a memory"},
		{"name": "memory.search", "description": "Substring-search memories"},
		{"name": "memory.update", "description": "Update a memory's content or metadata"},
		{"name": "memory.delete", "description": "Delete a memory"},
		{"name": "kg.search", "description": "Search knowledge-graph nodes"},
		{"name": "search.fusion", "description": "Hybrid fusion search"},
	}
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"tools": toolCatalog()})
}
