// Package cmd provides the CLI commands for memorized.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"memorized/internal/config"
	"memorized/internal/logging"
	"memorized/pkg/version"
)

// Root-level flags, overlaid onto config.Load()'s environment defaults.
var (
	flagDataDir  string
	flagHTTPBind string
	flagDebug    bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for memorized.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memorized",
		Short: "Hybrid memory and knowledge server for AI agents",
		Long: `memorized stores short- and long-term agent memories, ingested
documents, and a knowledge graph in one embedded store, and serves them
over an HTTP API and a stdio MCP adapter.

Run 'memorized serve' to start the server.`,
		Version:      version.Version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate("memorized version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (overrides DATA_DIR)")
	cmd.PersistentFlags().StringVar(&flagHTTPBind, "http-bind", "", "HTTP listen address (overrides HTTP_BIND)")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug-level logging to stderr")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// resolvedConfig layers the root flags over config.Load()'s environment
// defaults (spec.md §6).
func resolvedConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = flagDataDir
		cfg.BackupDir = cfg.DataDir + "/backups"
		cfg.ExportDir = cfg.DataDir + "/export"
	}
	if cmd.Flags().Changed("http-bind") {
		cfg.HTTPBind = flagHTTPBind
	}
	return &cfg
}

// startLogging installs a debug-level stderr logger when --debug is set.
// Serve's own logging.Setup (file-backed, per appstate.Open) takes over
// once the server actually starts; this only covers the one-shot
// subcommands that never call appstate.Open.
func startLogging(cmd *cobra.Command, _ []string) error {
	if !flagDebug {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.Options{Level: "debug", WriteToStderr: true})
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}
