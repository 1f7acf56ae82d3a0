// Package mirror maintains a live, eventually-consistent projection of
// on-chain deposit accounts into the local ledger.
package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/sovereign-arena/level5-proxy/internal/ledger"
	"github.com/sovereign-arena/level5-proxy/internal/rpcclient"
	"github.com/sovereign-arena/level5-proxy/pkg/logging"
)

const (
	pollInterval     = 5 * time.Second
	maxBackoff       = 60 * time.Second
	discoverEveryN   = 6
	accountInfoTimeout    = 10 * time.Second
	programAccountsTimeout = 30 * time.Second
)

// Config configures the mirror's upstream RPC endpoints, the program ID
// whose deposit accounts it watches, and the base58 USDC mint address used
// to recognize multi-asset (V2/V3) deposit accounts as USDC.
type Config struct {
	RPCHTTPURL      string
	RPCWSURL        string
	ProgramID       string
	USDCMintAddress string
}

// normalizeMint maps a parsed account's raw mint field to the ledger's
// canonical symbol. The legacy (48-byte) layout already reports the "SOL"
// sentinel directly; V2/V3 layouts report the actual base58-encoded mint
// address, which is only recognizable as USDC by comparing it against the
// configured USDC mint. Any other mint address is unrecognized — the
// ledger only ever seeds SOL and USDC — and is skipped.
func (m *Mirror) normalizeMint(raw string) (ledger.Mint, bool) {
	switch {
	case raw == string(ledger.MintSOL):
		return ledger.MintSOL, true
	case m.cfg.USDCMintAddress != "" && raw == m.cfg.USDCMintAddress:
		return ledger.MintUSDC, true
	default:
		return "", false
	}
}

// Mirror owns the in-memory watch set and drives the three cooperating
// discovery/poll/watch activities that keep it synced to the ledger.
type Mirror struct {
	cfg    Config
	client *rpcclient.Client
	ledger *ledger.Ledger
	log    *logging.Logger

	watchedMu sync.RWMutex
	watched   map[string]string // account address -> owner pubkey

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Mirror. Call Start to begin the background activities.
func New(cfg Config, l *ledger.Ledger) *Mirror {
	return &Mirror{
		cfg:     cfg,
		client:  rpcclient.New(cfg.RPCHTTPURL, programAccountsTimeout),
		ledger:  l,
		log:     logging.GetDefault().Component("mirror"),
		watched: make(map[string]string),
		stopCh:  make(chan struct{}),
	}
}

// Start runs discovery once synchronously, then launches the poll and watch
// loops as background goroutines.
func (m *Mirror) Start(ctx context.Context) {
	if err := m.discover(ctx); err != nil {
		m.log.Warn("initial discovery failed", "error", err)
	}

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.pollLoop(ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.watchLoop(ctx)
	}()
}

// Stop signals all background activities to exit and waits for them.
func (m *Mirror) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Mirror) addWatched(address, owner string) {
	m.watchedMu.Lock()
	defer m.watchedMu.Unlock()
	m.watched[address] = owner
}

func (m *Mirror) watchedAddresses() []string {
	m.watchedMu.RLock()
	defer m.watchedMu.RUnlock()
	addrs := make([]string, 0, len(m.watched))
	for addr := range m.watched {
		addrs = append(addrs, addr)
	}
	return addrs
}
