package mirror

import (
	"context"
	"time"

	"github.com/sovereign-arena/level5-proxy/internal/chain"
	"github.com/sovereign-arena/level5-proxy/internal/rpcclient"
)

const (
	wsReconnectBase = 1 * time.Second
)

// watchLoop holds a persistent WebSocket subscription for every watched
// account and reconciles each notification as it arrives. On disconnect it
// reconnects with exponential backoff (base 1s, capped at maxBackoff).
func (m *Mirror) watchLoop(ctx context.Context) {
	backoff := wsReconnectBase

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		client, err := rpcclient.NewWSClient(m.cfg.RPCWSURL)
		if err != nil {
			m.log.Warn("watch: dial failed", "error", err)
			if !m.sleepBackoff(&backoff) {
				return
			}
			continue
		}

		for _, address := range m.watchedAddresses() {
			if _, err := client.Subscribe(address); err != nil {
				m.log.Warn("watch: subscribe failed", "address", address, "error", err)
			}
		}

		backoff = wsReconnectBase
		m.runWatchSession(ctx, client)
	}
}

// runWatchSession pumps notifications from one WS connection until it
// drops or the mirror is stopped.
func (m *Mirror) runWatchSession(ctx context.Context, client *rpcclient.WSClient) {
	defer client.Close()

	listenErr := make(chan error, 1)
	go func() { listenErr <- client.Listen() }()

	for {
		select {
		case <-m.stopCh:
			return
		case err := <-listenErr:
			if err != nil {
				m.log.Warn("watch: connection lost", "error", err)
			}
			return
		case notif := <-client.Notifications():
			parsed, err := chain.ParseDepositAccount(notif.Data)
			if err != nil || parsed == nil {
				continue
			}
			mint, ok := m.normalizeMint(parsed.Mint)
			if !ok {
				m.log.Debug("watch: unrecognized mint, skipping", "mint", parsed.Mint)
				continue
			}
			m.syncBalance(parsed.Owner, string(mint), parsed.Balance, parsed.DepositCode)
		}
	}
}

// sleepBackoff waits for *backoff (doubling it afterward, capped at
// maxBackoff), returning false if the mirror was stopped meanwhile.
func (m *Mirror) sleepBackoff(backoff *time.Duration) bool {
	select {
	case <-m.stopCh:
		return false
	case <-time.After(*backoff):
	}
	*backoff *= 2
	if *backoff > maxBackoff {
		*backoff = maxBackoff
	}
	return true
}
