// ABOUTME: Entry point for docs-copilot, the session host behind the docs site AI popup
// ABOUTME: Loads config, sets up logging, and runs the widget API server

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/docs-copilot/internal/config"
	"github.com/2389/docs-copilot/internal/server"
	"github.com/2389/docs-copilot/internal/thread"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _                                       _ _       _
  __| | ___   ___ ___        ___ ___  _ __ (_) | ___ | |_
 / _' |/ _ \ / __/ __|_____ / __/ _ \| '_ \| | |/ _ \| __|
| (_| | (_) | (__\__ \_____| (_| (_) | |_) | | | (_) | |_
 \__,_|\___/ \___|___/      \___\___/| .__/|_|_|\___/ \__|
                                     |_|
`

// getConfigPath returns the path to the config file.
// Priority: DOCS_COPILOT_CONFIG env var > XDG_CONFIG_HOME/docs-copilot/config.yaml > ~/.config/docs-copilot/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DOCS_COPILOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "docs-copilot", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: docs-copilot <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the widget API server")
		fmt.Println("  health    Check server health")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, thread.ErrRandomUnavailable) {
			fmt.Fprintln(os.Stderr, "Error: cannot issue thread ids on this host")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Agent:     %s\n", cfg.Agent.Endpoint)
	if cfg.Reset.URL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Reset:     %s\n", cfg.Reset.URL)
	}
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Archive:   %s\n", cfg.Database.Path)
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}

	fmt.Println()

	logger.Info("starting docs-copilot",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"tailscale", cfg.Tailscale.Enabled,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	if cfg.Tailscale.Enabled {
		url = fmt.Sprintf("http://%s/health", cfg.Tailscale.Hostname)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
