package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"memorized/internal/appstate"
	"memorized/internal/cliutil"
	"memorized/internal/httpapi"
	"memorized/internal/mcpadapter"
)

func newServeCmd() *cobra.Command {
	var stdio bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, and optionally the stdio MCP adapter",
		Long: `serve starts the HTTP surface (spec.md §6) and the lifecycle
scheduler. With --stdio, it additionally starts the MCP stdio adapter,
which dispatches tool calls back to the HTTP surface over loopback.

Per the MCP protocol, stdout is reserved exclusively for JSON-RPC
messages when --stdio is set: no status output is written to stdout in
that mode. Use 'memorized status' against the HTTP surface instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, stdio)
		},
	}

	cmd.Flags().BoolVar(&stdio, "stdio", false, "Also run the MCP stdio adapter")
	return cmd
}

func runServe(cmd *cobra.Command, stdio bool) error {
	cfg := resolvedConfig(cmd)

	app, err := appstate.Open(cfg)
	if err != nil {
		return fmt.Errorf("open appstate: %w", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:    cfg.HTTPBind,
		Handler: httpapi.NewServer(app),
	}

	errCh := make(chan error, 3)

	go func() {
		app.Logger.Info("lifecycle scheduler starting")
		if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("lifecycle: %w", err)
			return
		}
		errCh <- nil
	}()

	go func() {
		app.Logger.Info("http surface starting", slog.String("bind", cfg.HTTPBind))
		if !stdio {
			cliutil.New(cmd.OutOrStdout()).Successf("listening on http://%s", cfg.HTTPBind)
		}
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
			return
		}
		errCh <- nil
	}()

	if stdio {
		adapter := mcpadapter.New(loopbackURL(cfg.HTTPBind))
		go func() {
			app.Logger.Info("mcp stdio adapter starting")
			if err := adapter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("mcp stdio: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	select {
	case <-ctx.Done():
		app.Logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			stop()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	return nil
}

// loopbackURL turns an HTTP_BIND value (which may omit a host, e.g.
// ":8080") into a dialable loopback base URL for the MCP adapter's HTTP
// client.
func loopbackURL(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "http://" + bind
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + host + ":" + port
}
