package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"memorized/internal/appstate"
	"memorized/internal/cliutil"
)

func newCompactCmd() *cobra.Command {
	var concurrency int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Flush the store, rebuild the neighbor graph, and reindex memories",
		Long: `compact runs the same routine as POST /system/compact
(spec.md §4.11): flush the KV store, rebuild the memory vector neighbor
graph, and re-write every memory into the text index to trigger a
segment merge.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompact(cmd, concurrency, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Neighbor-graph rebuild concurrency")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the compact report as JSON")
	return cmd
}

func runCompact(cmd *cobra.Command, concurrency int, jsonOutput bool) error {
	cfg := resolvedConfig(cmd)
	app, err := appstate.Open(cfg)
	if err != nil {
		return fmt.Errorf("open appstate: %w", err)
	}
	defer app.Close()

	report, err := app.Maintenance.Compact(cmd.Context(), app.Store.Flush, concurrency)
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	out := cliutil.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(report)
	}
	out.Successf("neighbor graph rebuilt, %d memories reindexed", report.MemoriesReindexed)
	return nil
}
