// alertbridge exposes security-alert triage operations (tag, severity
// change, list) from a Kibana-style alerting backend as MCP tools.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sentinelops/alertbridge/pkg/api"
	"github.com/sentinelops/alertbridge/pkg/config"
	"github.com/sentinelops/alertbridge/pkg/kibana"
	"github.com/sentinelops/alertbridge/pkg/tools"
	"github.com/sentinelops/alertbridge/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", ""),
		"Path to optional YAML configuration file")
	mode := flag.String("mode", "",
		"Server mode: stdio or http (overrides configuration)")
	flag.Parse()

	// Load .env before reading any configuration from the environment.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment",
			"error", err)
	}

	// In stdio mode stdout belongs to the protocol; logs must go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Server.Mode = *mode
		if err := cfg.Validate(); err != nil {
			slog.Error("Invalid server mode", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Starting alertbridge",
		"version", version.Full(),
		"mode", cfg.Server.Mode)

	// The shared session is created exactly once and closed on every exit
	// path; all backend calls for the process lifetime go through it.
	session, err := kibana.NewSession(kibana.SessionConfig{
		URL:                cfg.Kibana.URL,
		APIKey:             cfg.Kibana.APIKey,
		Username:           cfg.Kibana.Username,
		Password:           cfg.Kibana.Password,
		Timeout:            cfg.Kibana.Timeout(),
		InsecureSkipVerify: cfg.Kibana.SkipTLSVerify(),
	})
	if err != nil {
		slog.Error("Failed to configure backend session", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Error("Error closing backend session", "error", err)
		}
	}()

	client := kibana.NewClient(session,
		kibana.WithSearchLimits(cfg.Search.DefaultLimit, cfg.Search.MaxPageSize))
	dispatcher := tools.NewDispatcher(client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Server.Mode {
	case config.ModeStdio:
		runStdio(ctx, dispatcher)
	case config.ModeHTTP:
		runHTTP(ctx, client, dispatcher, cfg.Server.HTTPPort)
	}

	slog.Info("Shutdown complete")
}

func runStdio(ctx context.Context, dispatcher *tools.Dispatcher) {
	if err := tools.RunStdio(ctx, dispatcher); err != nil && ctx.Err() == nil {
		slog.Error("MCP server error", "error", err)
		os.Exit(1)
	}
}

func runHTTP(ctx context.Context, client *kibana.Client, dispatcher *tools.Dispatcher, port string) {
	server := api.NewServer(client, tools.NewHTTPHandler(dispatcher))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + port
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
}
