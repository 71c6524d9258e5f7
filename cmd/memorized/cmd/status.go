package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"memorized/internal/ui"
)

// statusResponse mirrors GET /status's JSON body (internal/httpapi's
// handleStatus).
type statusResponse struct {
	Status  string `json:"status"`
	DataDir string `json:"dataDir"`
	Fusion  struct {
		Count       int64   `json:"count"`
		CacheHits   int64   `json:"cache_hits"`
		CacheMisses int64   `json:"cache_misses"`
		LastMs      int64   `json:"last_ms"`
		AvgMs       float64 `json:"avg_ms"`
		P50Ms       float64 `json:"p50Ms"`
		P95Ms       float64 `json:"p95Ms"`
		QPS1m       float64 `json:"qps_1m"`
	} `json:"fusion"`
}

func (r statusResponse) toStatusInfo() ui.StatusInfo {
	return ui.StatusInfo{
		Status:      r.Status,
		DataDir:     r.DataDir,
		QueryCount:  r.Fusion.Count,
		CacheHits:   r.Fusion.CacheHits,
		CacheMisses: r.Fusion.CacheMisses,
		LastMs:      r.Fusion.LastMs,
		AvgMs:       r.Fusion.AvgMs,
		P50Ms:       r.Fusion.P50Ms,
		P95Ms:       r.Fusion.P95Ms,
		QPS1m:       r.Fusion.QPS1m,
	}
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running server's health and fusion-search metrics",
		Long: `status queries GET /status on a running 'memorized serve'
instance. With --watch, it renders a live-updating dashboard instead of
printing once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := resolvedConfig(cmd)
			baseURL := loopbackURL(cfg.HTTPBind)

			if watch {
				return ui.RunWatch(func() (ui.StatusInfo, error) {
					resp, err := fetchStatus(baseURL)
					if err != nil {
						return ui.StatusInfo{}, err
					}
					return resp.toStatusInfo(), nil
				})
			}

			resp, err := fetchStatus(baseURL)
			if err != nil {
				return fmt.Errorf("fetch status from %s: %w (is 'memorized serve' running?)", baseURL, err)
			}

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return renderer.RenderJSON(resp.toStatusInfo())
			}
			return renderer.Render(resp.toStatusInfo())
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "Render a live-updating dashboard")
	return cmd
}

func fetchStatus(baseURL string) (statusResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/status")
	if err != nil {
		return statusResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return statusResponse{}, err
	}
	return out, nil
}
