// Package main provides arenad - the Sovereign Arena metering proxy daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sovereign-arena/level5-proxy/internal/app"
	"github.com/sovereign-arena/level5-proxy/internal/config"
	"github.com/sovereign-arena/level5-proxy/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.arena", "Data directory")
		listenAddr  = flag.String("listen", "", "Proxy listen address, overrides config")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("arenad %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	if *listenAddr != "" {
		cfg.Proxy.ListenAddr = *listenAddr
	}
	cfg.Logging.Level = *logLevel

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(*dataDir))

	if cfg.Proxy.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY not set, OpenAI-dialect requests will fail unless X-MOCK-UPSTREAM is used")
	}
	if cfg.Proxy.AnthropicAPIKey == "" {
		log.Warn("ANTHROPIC_API_KEY not set, Anthropic-dialect requests will fail unless X-MOCK-UPSTREAM is used")
	}
	if cfg.Mirror.RPCHTTPURL == "" {
		log.Warn("HELIUS_RPC_URL not set, liquid mirror will not discover on-chain deposits")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal("Failed to initialize app", "error", err)
	}

	if err := a.Run(ctx); err != nil {
		log.Fatal("Failed to start app", "error", err)
	}

	printBanner(log, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")
	cancel()

	if err := a.Shutdown(); err != nil {
		log.Error("Error during shutdown", "error", err)
	}

	log.Info("Goodbye!")
}

func printBanner(log *logging.Logger, cfg *config.Config) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  Sovereign Arena metering proxy (%s)", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Listening on: %s", cfg.Proxy.ListenAddr)
	log.Infof("  Data dir:     %s", config.ExpandDataDir(cfg.Storage.DataDir))
	log.Infof("  Program ID:   %s", cfg.Mirror.ProgramID)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
