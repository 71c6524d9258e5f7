package ui

import (
	"encoding/json"
	"fmt"
	"io"
)

// StatusInfo is the server-health snapshot GET /status returns (spec.md
// §6), adapted from the teacher's index-health StatusInfo to this
// server's fusion-search metrics instead of indexing/storage stats.
type StatusInfo struct {
	Status  string `json:"status"`
	DataDir string `json:"dataDir"`

	QueryCount  int64   `json:"queryCount"`
	CacheHits   int64   `json:"cacheHits"`
	CacheMisses int64   `json:"cacheMisses"`
	LastMs      int64   `json:"lastMs"`
	AvgMs       float64 `json:"avgMs"`
	P50Ms       float64 `json:"p50Ms"`
	P95Ms       float64 `json:"p95Ms"`
	QPS1m       float64 `json:"qps1m"`
}

// StatusRenderer prints a StatusInfo to a terminal.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a renderer; pass noColor for non-TTY output.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	styles := DefaultStyles()
	if noColor {
		styles = NoColorStyles()
	}
	return &StatusRenderer{out: out, styles: styles}
}

// Render writes a one-shot human-readable status report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("memorized status"))
	_, _ = fmt.Fprintf(r.out, "  Status:  %s\n", r.renderStatus(info.Status))
	_, _ = fmt.Fprintf(r.out, "  Data:    %s\n", info.DataDir)
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintln(r.out, "  Fusion search:")
	_, _ = fmt.Fprintf(r.out, "    Queries:      %d (%.1f/min)\n", info.QueryCount, info.QPS1m*60)
	_, _ = fmt.Fprintf(r.out, "    Cache:        %d hits / %d misses\n", info.CacheHits, info.CacheMisses)
	_, _ = fmt.Fprintf(r.out, "    Latency:      p50 %.1fms  p95 %.1fms  avg %.1fms  last %dms\n",
		info.P50Ms, info.P95Ms, info.AvgMs, info.LastMs)
	return nil
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ok":
		return r.styles.Success.Render(status)
	case "degraded":
		return r.styles.Warning.Render(status)
	default:
		return r.styles.Error.Render(status)
	}
}
