package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"memorized/internal/appstate"
	"memorized/internal/cliutil"
	"memorized/internal/maintenance"
)

func newBackupCmd() *cobra.Command {
	var includeIndices bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the data directory into a timestamped backup",
		Long: `backup copies the warm and cold KV trees (and, with
--include-indices, the external text index) into a new
backup-dir/snapshot-<timestamp> directory, writing a JSON manifest
(spec.md §4.11).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackup(cmd, includeIndices, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&includeIndices, "include-indices", false, "Also copy the external text index directory")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the manifest as JSON")
	return cmd
}

func runBackup(cmd *cobra.Command, includeIndices bool, jsonOutput bool) error {
	cfg := resolvedConfig(cmd)
	app, err := appstate.Open(cfg)
	if err != nil {
		return fmt.Errorf("open appstate: %w", err)
	}
	defer app.Close()

	opts := maintenance.SnapshotOptions{IncludeIndices: includeIndices, IndexDir: cfg.DataDir + "/index/bleve"}
	dest, manifest, err := app.Maintenance.Snapshot(cfg.BackupDir, opts)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	out := cliutil.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(map[string]any{"path": dest, "manifest": manifest})
	}
	out.Successf("snapshot written to %s", dest)
	return nil
}
