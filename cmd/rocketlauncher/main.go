// ABOUTME: Entry point for the rocketlauncher chat dashboard
// ABOUTME: Subcommands serve the dashboard, seed the catalog and probe health

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/rocketlauncher/internal/config"
	"github.com/2389/rocketlauncher/internal/server"
	"github.com/2389/rocketlauncher/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _        _   _                        _
 _ __ ___   ___| | _____| |_| | __ _ _   _ _ __   ___| |__   ___ _ __
| '__/ _ \ / __| |/ / _ \ __| |/ _' | | | | '_ \ / __| '_ \ / _ \ '__|
| | | (_) | (__|   <  __/ |_| | (_| | |_| | | | | (__| | | |  __/ |
|_|  \___/ \___|_|\_\___|\__|_|\__,_|\__,_|_| |_|\___|_| |_|\___|_|
`

// getConfigPath returns the path to the config file.
// Priority: ROCKETLAUNCHER_CONFIG > XDG_CONFIG_HOME/rocketlauncher/config.yaml > ~/.config/rocketlauncher/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ROCKETLAUNCHER_CONFIG"); envPath != "" {
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

	return filepath.Join(configDir, "rocketlauncher", "config.yaml")
}

func printUsage() {
	fmt.Println("Usage: rocketlauncher <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                  Start the chat dashboard")
	fmt.Println("  seed <file>            Load workflows, assistants and webhooks from a YAML or TOML file")
	fmt.Println("  health                 Check dashboard health")
	fmt.Println("  version                Print the version")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, getConfigPath())
	case "seed":
		err = runSeed(ctx, getConfigPath(), os.Args[2:])
	case "health":
		err = runHealth(ctx, getConfigPath())
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, configPath string) error {
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
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Workflows:  %s\n", cfg.Workflows.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Assistants: %s\n", cfg.Assistants.BaseURL)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale:  ")
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
		fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	}
	if cfg.Chat.PersistTranscripts {
		yellow.Println("    ▶ Transcripts are persisted per workflow")
	}

	fmt.Println()

	logger.Info("starting rocketlauncher",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

// runSeed writes the catalog documents in a seed file into the configured store
func runSeed(ctx context.Context, configPath string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: rocketlauncher seed <file.yaml|file.toml>")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	data, err := store.LoadSeedFile(args[0])
	if err != nil {
		return err
	}

	dbPath := cfg.Database.Path
	if envPath := os.Getenv("ROCKETLAUNCHER_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStoreWithDriver(cfg.Database.Driver, dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	result, err := store.Seed(ctx, s, data)
	if err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	green := color.New(color.FgGreen)
	collections := make([]string, 0, len(result))
	for c := range result {
		collections = append(collections, c)
	}
	sort.Strings(collections)

	for _, c := range collections {
		green.Print("    ✓ ")
		fmt.Printf("%-14s %d\n", c, result[c])
	}
	if len(collections) == 0 {
		fmt.Println("    nothing to seed")
	}
	return nil
}

func runHealth(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is not set; probe the tailnet address directly")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
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

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
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
		handler = newColorHandler(os.Stdout, level)
	}

	return slog.New(handler)
}
