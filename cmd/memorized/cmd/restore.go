package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"memorized/internal/appstate"
	"memorized/internal/cliutil"
)

func newRestoreCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "restore <snapshot-dir>",
		Short: "Restore the data directory from a backup snapshot",
		Long: `restore copies a snapshot-dir's warm/cold (and, if present,
index) directories back over the data directory (spec.md §4.11).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd, args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the restored manifest as JSON")
	return cmd
}

func runRestore(cmd *cobra.Command, snapshotDir string, jsonOutput bool) error {
	cfg := resolvedConfig(cmd)
	app, err := appstate.Open(cfg)
	if err != nil {
		return fmt.Errorf("open appstate: %w", err)
	}
	defer app.Close()

	manifest, err := app.Maintenance.Restore(snapshotDir)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	out := cliutil.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(manifest)
	}
	out.Successf("restored from %s (created %d)", snapshotDir, manifest.CreatedAt)
	return nil
}
