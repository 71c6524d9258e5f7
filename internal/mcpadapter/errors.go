package mcpadapter

import "fmt"

// Standard JSON-RPC and MCP-specific error codes. spec.md §6 only calls out
// two: unknown methods (-32601, handled by the go-sdk's own JSON-RPC
// dispatch before a tool handler ever runs) and tool errors (-32000, which
// every handler in this package maps to via mapError).
const (
	ErrCodeMethodNotFound = -32601
	ErrCodeToolError      = -32000
)

// MCPError is a JSON-RPC error surfaced from a tool handler, grounded on
// the teacher's internal/mcp.MCPError shape (Code + Message fields the
// go-sdk renders back onto the wire).
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string { return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message) }

// mapError wraps any handler-side failure (HTTP loopback error or local
// validation) as a -32000 tool error, per spec.md §6. Unlike the teacher's
// MapError, which fans a handful of sentinel errors out to distinct
// negative codes, this server's error taxonomy (apperr.Kind) already
// carries its own semantics in the HTTP envelope's "code" field, which
// mapError folds into the message instead of reinventing a second code
// space.
func mapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	if httpErr, ok := err.(*httpError); ok && httpErr.body.Error.Message != "" {
		return &MCPError{Code: ErrCodeToolError, Message: fmt.Sprintf("%s: %s", httpErr.body.Error.Code, httpErr.body.Error.Message)}
	}
	return &MCPError{Code: ErrCodeToolError, Message: err.Error()}
}
