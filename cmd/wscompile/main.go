// Package main provides the wscompile binary entry point.
// wscompile hosts the working-set-compiler component, which turns
// multi-channel retrieval candidates into a bounded, diverse,
// explainable working set for downstream agent prompting.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/contextdb/wscompile/internal/wsconfig"
	workingsetcompiler "github.com/contextdb/wscompile/processor/workingset-compiler"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "wscompile"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		httpAddr   string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "wscompile",
		Short: "Working set compiler",
		Long: `wscompile compiles candidate spans from semantic, lexical, structural,
and graph retrieval channels into a bounded, diverse, explainable
working set under a token budget.

It communicates over NATS using the semstreams framework and exposes
an HTTP endpoint for replaying prior compile responses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, httpAddr, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8090", "HTTP listen address for replay and health endpoints")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, httpAddr, logLevel string) error {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	absRoot, err := filepath.Abs(cfg.Repo.Root)
	if err != nil {
		return fmt.Errorf("resolve repo root: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return fmt.Errorf("repo root is not a directory: %s", absRoot)
	}

	ctx := context.Background()
	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	componentConfig := buildComponentConfig(cfg, absRoot)
	rawConfig, err := json.Marshal(componentConfig)
	if err != nil {
		return fmt.Errorf("marshal component config: %w", err)
	}

	deps := component.Dependencies{
		NATSClient: natsClient,
		Logger:     logger,
	}

	comp, err := workingsetcompiler.NewComponent(rawConfig, deps)
	if err != nil {
		return fmt.Errorf("create working-set-compiler component: %w", err)
	}
	wsc, ok := comp.(*workingsetcompiler.Component)
	if !ok {
		return fmt.Errorf("unexpected component type %T", comp)
	}

	if err := wsc.Initialize(); err != nil {
		return fmt.Errorf("initialize component: %w", err)
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := wsc.Start(signalCtx); err != nil {
		return fmt.Errorf("start component: %w", err)
	}
	slog.Info("working-set-compiler ready", "version", Version, "repo_root", absRoot)

	mux := http.NewServeMux()
	wsc.RegisterHTTPHandlers("/wscompile/", mux)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
		}
	}()

	<-signalCtx.Done()
	slog.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	if err := wsc.Stop(30 * time.Second); err != nil {
		slog.Error("error stopping component", "error", err)
	}

	slog.Info("wscompile shutdown complete")
	return nil
}

func loadConfig(configPath string) (*wsconfig.Config, error) {
	if configPath != "" {
		return wsconfig.LoadFromFile(configPath)
	}
	return wsconfig.DefaultConfig(), nil
}

func buildComponentConfig(cfg *wsconfig.Config, repoRoot string) workingsetcompiler.Config {
	c := workingsetcompiler.DefaultConfig()
	c.RepoRoot = repoRoot
	c.SemanticServiceURL = cfg.Generators.SemanticURL
	c.LexicalServiceURL = cfg.Generators.LexicalURL
	c.GraphServiceURL = cfg.Generators.GraphURL
	c.SessionServiceURL = cfg.Generators.SessionURL
	c.MemoryServiceURL = cfg.Generators.MemoryURL
	c.DiversityLambda = cfg.Scoring.DiversityLambda
	c.SourceRatioCap = cfg.Scoring.SourceRatioCap
	return c
}

func connectToNATS(ctx context.Context, cfg *wsconfig.Config, logger *slog.Logger) (*natsclient.Client, error) {
	url := cfg.NATS.URL
	if envURL := os.Getenv("WSCOMPILE_NATS_URL"); envURL != "" {
		url = envURL
	}
	if url == "" {
		url = "nats://localhost:4222"
	}

	logger.Info("connecting to NATS", "url", url)

	client, err := natsclient.NewClient(url,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, url)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, url)
	}

	logger.Info("connected to NATS", "url", url)
	return client, nil
}

func wrapNATSError(err error, url string) error {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set WSCOMPILE_NATS_URL to point to your NATS server.`, err, url)
	}
	return fmt.Errorf("NATS connection failed: %w", err)
}
