// Command aitable-mcp exposes AITable datasheets as MCP tools over HTTP or stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"aitable-mcp/internal/aitable"
	"aitable-mcp/internal/config"
	"aitable-mcp/internal/logging"
	"aitable-mcp/internal/server"
	"aitable-mcp/internal/tools"
)

const name = "aitable-mcp"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           name,
	Short:         "MCP server for AITable datasheets",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context(), mustFlagString(cmd, "config"))
	},
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdin/stdout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStdio(cmd.Context(), mustFlagString(cmd, "config"))
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", os.Getenv("AITABLE_MCP_CONFIG"), "path to a YAML or TOML config file")
	rootCmd.AddCommand(serveCmd, stdioCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

func mustFlagString(cmd *cobra.Command, flag string) string {
	val, err := cmd.Flags().GetString(flag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
	return val
}

// setup loads configuration and wires the remote client into a dispatcher.
// Logs always go to stderr; stdout is reserved for the stdio transport.
func setup(configPath string) (*config.Config, *slog.Logger, *tools.Dispatcher, *server.Metrics, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	client := aitable.New(cfg.AITable.BaseURL, cfg.AITable.Token, &http.Client{Timeout: cfg.AITable.Timeout})
	d, err := tools.New(client, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var metrics *server.Metrics
	if cfg.Metrics.Enabled {
		metrics = server.NewMetrics()
		client.Observe = metrics.ObserveRemote
		d.Observe = metrics.ObserveTool
	}
	return cfg, logger, d, metrics, nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, d, metrics, err := setup(configPath)
	if err != nil {
		return err
	}
	if cfg.Server.Token == "" {
		logger.Warn("MCP_TOKEN not set; /mcp endpoints are open. Set MCP_TOKEN to secure them.")
	}

	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		Token:          cfg.Server.Token,
		SessionTTL:     cfg.Server.SessionTTL,
		RequestTimeout: cfg.Server.RequestTimeout,
		Name:           name,
		Version:        version,
		Logger:         logger,
		Metrics:        metrics,
	}, d)
	go srv.SweepSessions(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Banner(os.Stderr, name, version, "http", httpServer.Addr)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting MCP HTTP server", "addr", httpServer.Addr, "tools", len(d.Tools()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down http server")
	}
	return nil
}

func runStdio(ctx context.Context, configPath string) error {
	_, logger, d, _, err := setup(configPath)
	if err != nil {
		return err
	}
	logging.Banner(os.Stderr, name, version, "stdio", "")
	return server.ServeStdio(ctx, d, name, version, os.Stdin, os.Stdout, logger)
}
