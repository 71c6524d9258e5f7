package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"memorized/internal/appstate"
	"memorized/internal/cliutil"
)

func newValidateCmd() *cobra.Command {
	var fix bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the full integrity sweep over the data directory",
		Long: `validate runs every maintenance sweep (orphan text-index
entries, orphan memory embeddings, dangling knowledge-graph edges,
embedding dimension mismatches) plus a dangling document-reference
check across every memory, matching GET /system/validate and
POST /document/validate_refs (spec.md §4.8, §4.11).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, fix, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Remove dangling document references from affected memories")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the combined report as JSON")
	return cmd
}

func runValidate(cmd *cobra.Command, fix bool, jsonOutput bool) error {
	cfg := resolvedConfig(cmd)
	app, err := appstate.Open(cfg)
	if err != nil {
		return fmt.Errorf("open appstate: %w", err)
	}
	defer app.Close()

	sweepReport, err := app.Maintenance.RunSweeps()
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	invalidRefs, removed, err := app.Memory.ValidateRefs(fix, app.Docs.HasAnyChunk)
	if err != nil {
		return fmt.Errorf("validate refs: %w", err)
	}

	out := cliutil.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(map[string]any{
			"sweep":               sweepReport,
			"danglingRefs":        invalidRefs,
			"danglingRefsRemoved": removed,
		})
	}

	out.Successf("orphan text removed: %d", sweepReport.OrphanTextRemoved)
	out.Successf("orphan embeddings removed: %d", sweepReport.OrphanVectorRemoved)
	out.Successf("dangling edges removed: %d", sweepReport.DanglingEdgesRemoved)
	out.Successf("embeddings validated: %d/%d invalid", sweepReport.EmbeddingsInvalid, sweepReport.EmbeddingsTotal)
	if len(invalidRefs) > 0 {
		out.Warning(fmt.Sprintf("%d memories had dangling document references (%d removed)", len(invalidRefs), removed))
	} else {
		out.Success("no dangling document references")
	}
	return nil
}
