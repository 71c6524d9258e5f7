// Package httpapi implements the C12 HTTP surface: a thin net/http.ServeMux
// translating each route in spec.md §6's table to a call against the core
// engine packages (C1-C11) and rendering apperr.Error as the canonical JSON
// error envelope — grounded on the pack's internal/httpapi/server.go
// (intelligencedev-manifold), since the teacher's own server is a stdio MCP
// server with no HTTP surface of its own.
package httpapi

import (
	"encoding/json"
	"net/http"

	"memorized/internal/apperr"
	"memorized/internal/appstate"
)

// Server bundles the application state and the route table.
type Server struct {
	app *appstate.AppState
	mux *http.ServeMux
}

// NewServer wires every route in spec.md §6 onto app.
func NewServer(app *appstate.AppState) *Server {
	s := &Server{app: app, mux: http.NewServeMux()}
	s.registerObservability()
	s.registerDocuments()
	s.registerKG()
	s.registerMemory()
	s.registerSearch()
	s.registerAdmin()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// errorEnvelope is the canonical shape from spec.md §7.
type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError translates err into the canonical error envelope. apperr
// errors carry their own Kind/HTTPStatus; anything else is treated as
// Internal.
func respondError(w http.ResponseWriter, err error) {
	ae, ok := err.(*apperr.Error)
	if !ok {
		ae = apperr.New(apperr.Internal, err.Error(), err)
	}
	env := errorEnvelope{}
	env.Error.Code = string(ae.Kind)
	env.Error.Message = ae.Message
	env.Error.Details = ae.Details
	respondJSON(w, ae.Kind.HTTPStatus(), env)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.New(apperr.InvalidInput, "malformed JSON body", err)
	}
	return nil
}
