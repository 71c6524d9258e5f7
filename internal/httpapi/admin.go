package httpapi

import (
	"net/http"

	"memorized/internal/apperr"
	"memorized/internal/lifecycle"
	"memorized/internal/maintenance"
)

func (s *Server) registerAdmin() {
	s.mux.HandleFunc("POST /system/cleanup", s.handleSystemCleanup)
	s.mux.HandleFunc("POST /system/backup", s.handleSystemBackup)
	s.mux.HandleFunc("POST /system/restore", s.handleSystemRestore)
	s.mux.HandleFunc("POST /system/compact", s.handleSystemCompact)
	s.mux.HandleFunc("GET /system/validate", s.handleSystemValidate)

	s.mux.HandleFunc("POST /advanced/consolidate", s.handleAdvancedConsolidate)
	s.mux.HandleFunc("POST /advanced/reindex", s.handleSystemCompact)
	s.mux.HandleFunc("POST /advanced/analyze_patterns", s.handleAdvancedAnalyzePatterns)
	s.mux.HandleFunc("POST /advanced/trends", s.handleAdvancedTrends)
	s.mux.HandleFunc("POST /advanced/clusters", s.handleAdvancedClusters)
	s.mux.HandleFunc("POST /advanced/relationships", s.handleAdvancedRelationships)
	s.mux.HandleFunc("POST /advanced/effectiveness", s.handleAdvancedEffectiveness)

	s.mux.HandleFunc("POST /data/export", s.handleDataExport)
	s.mux.HandleFunc("POST /data/import", s.handleDataImport)
}

// handleSystemCleanup runs one on-demand lifecycle tick (STM expiry/
// promotion, LTM decay, STM LRU eviction) outside the scheduler's interval.
func (s *Server) handleSystemCleanup(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Lifecycle.Tick()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type backupRequest struct {
	Destination    string `json:"destination,omitempty"`
	IncludeIndices *bool  `json:"includeIndices,omitempty"`
}

func (s *Server) handleSystemBackup(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if err := decodeJSON(r, &req); err != nil && r.ContentLength != 0 {
		respondError(w, err)
		return
	}
	dest := req.Destination
	if dest == "" {
		dest = s.app.Config.BackupDir
	}
	includeIndices := true
	if req.IncludeIndices != nil {
		includeIndices = *req.IncludeIndices
	}
	path, manifest, err := s.app.Maintenance.Snapshot(dest, maintenance.SnapshotOptions{
		IncludeIndices: includeIndices,
		IndexDir:       s.app.Config.DataDir + "/index",
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"path": path, "manifest": manifest})
}

type restoreRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleSystemRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Source == "" {
		respondError(w, apperr.Invalid("source is required"))
		return
	}
	manifest, err := s.app.Maintenance.Restore(req.Source)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"restored": true, "manifest": manifest})
}

func (s *Server) handleSystemCompact(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.Maintenance.Compact(r.Context(), s.app.Store.Flush, 16)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSystemValidate(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.Maintenance.RunSweeps()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type consolidateRequest struct {
	Limit  int  `json:"limit,omitempty"`
	DryRun bool `json:"dryRun,omitempty"`
}

func (s *Server) handleAdvancedConsolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if err := decodeJSON(r, &req); err != nil && r.ContentLength != 0 {
		respondError(w, err)
		return
	}
	res, err := s.app.Lifecycle.Consolidate(lifecycle.ConsolidateOptions{Limit: req.Limit, DryRun: req.DryRun})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type analyzePatternsRequest struct {
	Window struct {
		From *int64 `json:"from,omitempty"`
		To   *int64 `json:"to,omitempty"`
	} `json:"window"`
	MinSupport int `json:"minSupport,omitempty"`
}

func (s *Server) handleAdvancedAnalyzePatterns(w http.ResponseWriter, r *http.Request) {
	var req analyzePatternsRequest
	if err := decodeJSON(r, &req); err != nil && r.ContentLength != 0 {
		respondError(w, err)
		return
	}
	patterns, err := s.app.Analytics.AnalyzePatterns(req.Window.From, req.Window.To, req.MinSupport)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
}

type trendsRequest struct {
	From    *int64 `json:"from,omitempty"`
	To      *int64 `json:"to,omitempty"`
	Buckets int    `json:"buckets,omitempty"`
}

func (s *Server) handleAdvancedTrends(w http.ResponseWriter, r *http.Request) {
	var req trendsRequest
	if err := decodeJSON(r, &req); err != nil && r.ContentLength != 0 {
		respondError(w, err)
		return
	}
	timeline, err := s.app.Analytics.Trends(req.From, req.To, req.Buckets)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"timeline": timeline})
}

func (s *Server) handleAdvancedClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.app.Analytics.Clusters()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"clusters": clusters})
}

func (s *Server) handleAdvancedRelationships(w http.ResponseWriter, r *http.Request) {
	rels, err := s.app.Analytics.Relationships()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"relationships": rels})
}

func (s *Server) handleAdvancedEffectiveness(w http.ResponseWriter, r *http.Request) {
	scores, err := s.app.Analytics.Effectiveness(s.app.Config.EffectHalfLifeMs)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"effectiveness": scores})
}

type exportRequest struct {
	IncludeIndices *bool `json:"includeIndices,omitempty"`
}

// handleDataExport snapshots into Config.ExportDir — the same underlying
// machinery as /system/backup, aimed at a different directory, per
// original_source's data_export delegating straight to create_backup.
func (s *Server) handleDataExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil && r.ContentLength != 0 {
		respondError(w, err)
		return
	}
	includeIndices := true
	if req.IncludeIndices != nil {
		includeIndices = *req.IncludeIndices
	}
	path, manifest, err := s.app.Maintenance.Snapshot(s.app.Config.ExportDir, maintenance.SnapshotOptions{
		IncludeIndices: includeIndices,
		IndexDir:       s.app.Config.DataDir + "/index",
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"path": path, "manifest": manifest})
}

type importRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleDataImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Source == "" {
		respondError(w, apperr.Invalid("source is required"))
		return
	}
	manifest, err := s.app.Maintenance.Restore(req.Source)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"imported": true, "manifest": manifest})
}
