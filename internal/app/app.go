// Package app wires the ledger, pricing table, liquid mirror, and proxy
// server into a single running instance. It is the composition root: no
// package below it reaches for a global singleton, and nothing above it
// (cmd/arenad) reaches into its internals.
package app

import (
	"context"
	"fmt"

	"github.com/sovereign-arena/level5-proxy/internal/config"
	"github.com/sovereign-arena/level5-proxy/internal/ledger"
	"github.com/sovereign-arena/level5-proxy/internal/mirror"
	"github.com/sovereign-arena/level5-proxy/internal/pricing"
	"github.com/sovereign-arena/level5-proxy/internal/proxy"
	"github.com/sovereign-arena/level5-proxy/pkg/logging"
)

// App owns every long-lived component of the arena proxy daemon.
type App struct {
	cfg    *config.Config
	log    *logging.Logger
	ledger *ledger.Ledger
	mirror *mirror.Mirror
	proxy  *proxy.Server
}

// New constructs an App from cfg. It opens the ledger's SQLite database but
// does not start the mirror or proxy server; call Run for that.
func New(cfg *config.Config) (*App, error) {
	log := logging.GetDefault()

	l, err := ledger.New(&ledger.Config{DataDir: config.ExpandDataDir(cfg.Storage.DataDir)})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if err := l.SetExchangeRate(ledger.MintSOL, cfg.Mirror.InitialSOLRate); err != nil {
		log.Warn("failed to apply configured SOL rate, keeping seeded default", "error", err)
	}

	table := pricing.NewTable()

	m := mirror.New(mirror.Config{
		RPCHTTPURL:      cfg.Mirror.RPCHTTPURL,
		RPCWSURL:        cfg.Mirror.RPCWSURL,
		ProgramID:       cfg.Mirror.ProgramID,
		USDCMintAddress: cfg.Mirror.USDCMintAddress,
	}, l)

	p := proxy.New(proxy.Config{
		ListenAddr:       cfg.Proxy.ListenAddr,
		OpenAIAPIKey:     cfg.Proxy.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.Proxy.OpenAIBaseURL,
		AnthropicAPIKey:  cfg.Proxy.AnthropicAPIKey,
		AnthropicBaseURL: cfg.Proxy.AnthropicBaseURL,
		AnthropicVersion: cfg.Proxy.AnthropicVersion,
	}, l, table)

	return &App{cfg: cfg, log: log, ledger: l, mirror: m, proxy: p}, nil
}

// Run starts the mirror's background sync activities and the proxy's HTTP
// server. It returns once the server is listening; callers stop the App via
// Shutdown, typically on a signal.
func (a *App) Run(ctx context.Context) error {
	a.mirror.Start(ctx)

	if err := a.proxy.Start(); err != nil {
		a.mirror.Stop()
		return fmt.Errorf("start proxy: %w", err)
	}

	return nil
}

// Shutdown stops the proxy server and mirror, then closes the ledger.
func (a *App) Shutdown() error {
	var firstErr error

	if err := a.proxy.Stop(); err != nil {
		firstErr = fmt.Errorf("stop proxy: %w", err)
	}

	a.mirror.Stop()

	if err := a.ledger.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close ledger: %w", err)
	}

	return firstErr
}
