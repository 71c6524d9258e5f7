package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"memorized/internal/appstate"
	"memorized/internal/cliutil"
	"memorized/internal/docpipeline"
)

func newIngestCmd() *cobra.Command {
	var mime string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ingest <path> [path...]",
		Short: "Store one or more documents in the document pipeline",
		Long: `ingest reads each path from disk and runs it through the same
chunk/embed/index pipeline as POST /document/store (spec.md §4.7),
deduplicating by content hash.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, mime, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&mime, "mime", "", "MIME hint: md, pdf, or empty for plain text")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output each result as JSON")
	return cmd
}

func runIngest(cmd *cobra.Command, paths []string, mime string, jsonOutput bool) error {
	cfg := resolvedConfig(cmd)
	app, err := appstate.Open(cfg)
	if err != nil {
		return fmt.Errorf("open appstate: %w", err)
	}
	defer app.Close()

	out := cliutil.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	var failed int
	for _, path := range paths {
		res, err := app.Docs.Store(ctx, docpipeline.StoreRequest{Path: path, MIME: mime})
		if err != nil {
			out.Errorf("%s: %v", path, err)
			failed++
			continue
		}
		if jsonOutput {
			if err := out.JSON(res); err != nil {
				return err
			}
			continue
		}
		out.Successf("%s -> id=%s hash=%s chunks=%d", path, res.ID, res.Hash, res.Chunks)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed to ingest", failed, len(paths))
	}
	return nil
}
