package mcpadapter

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"memorized/pkg/version"
)

// Server is the stdio MCP adapter: a thin typed-tool wrapper around the
// HTTP surface, grounded on the teacher's internal/mcp.Server (same
// mcp.NewServer/mcp.AddTool/mcp.StdioTransport shape, generalized from an
// in-process search engine call to a loopback HTTP round trip).
type Server struct {
	mcp  *mcp.Server
	http *httpClient
}

// New builds a Server whose tool handlers call the HTTP surface already
// listening at baseURL (e.g. "http://127.0.0.1:8080", matching HTTP_BIND).
func New(baseURL string) *Server {
	s := &Server{http: newHTTPClient(baseURL)}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "memorized", Version: version.Version}, nil)
	s.registerTools()
	return s
}

// Run serves the adapter over stdio until ctx is cancelled. Requests
// without an id are notifications and produce no response; unknown
// methods return -32601 — both handled by the go-sdk's own JSON-RPC
// dispatch before any tool handler in this package runs.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}
