// Package mcpadapter implements the C13 stdio JSON-RPC adapter: an MCP
// server over stdio whose tool handlers dispatch to the HTTP surface over
// loopback, per spec.md §6 ("tools/call... dispatches to the HTTP surface
// over loopback") — grounded on the teacher's internal/mcp/server.go and
// tools.go (mcp.NewServer, mcp.AddTool typed handlers, mcp.StdioTransport),
// generalized from the teacher's in-process search engine call to a real
// net/http.Client round trip against this server's own HTTP surface.
package mcpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// httpClient is the loopback dispatcher every tool handler calls through.
type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{baseURL: baseURL, client: &http.Client{Timeout: 30 * time.Second}}
}

type httpError struct {
	status int
	body   errorEnvelope
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

func (e *httpError) Error() string {
	if e.body.Error.Message != "" {
		return fmt.Sprintf("%s: %s", e.body.Error.Code, e.body.Error.Message)
	}
	return fmt.Sprintf("http status %d", e.status)
}

func (c *httpClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *httpClient) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var env errorEnvelope
		_ = json.Unmarshal(raw, &env)
		return &httpError{status: resp.StatusCode, body: env}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// queryFrom builds url.Values from a set of optional string/int fields,
// skipping zero values.
func queryFrom(fields map[string]string) url.Values {
	q := url.Values{}
	for k, v := range fields {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}
