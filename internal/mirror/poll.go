package mirror

import (
	"context"
	"time"

	"github.com/sovereign-arena/level5-proxy/internal/chain"
)

// pollLoop issues getAccountInfo for every watched account on each tick,
// running discovery again every discoverEveryN ticks (≈30s at the nominal
// 5s interval). On RPC error the interval doubles, capped at maxBackoff,
// and resets to pollInterval on the next success.
func (m *Mirror) pollLoop(ctx context.Context) {
	interval := pollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tickCount := 0

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			tickCount++

			ok := m.pollOnce(ctx)

			if tickCount%discoverEveryN == 0 {
				if err := m.discover(ctx); err != nil {
					m.log.Warn("periodic discovery failed", "error", err)
					ok = false
				}
			}

			next := interval
			if ok {
				next = pollInterval
			} else {
				next *= 2
				if next > maxBackoff {
					next = maxBackoff
				}
			}
			if next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// pollOnce refreshes every watched account once. It returns false if any
// account lookup failed, signalling the caller to back off.
func (m *Mirror) pollOnce(ctx context.Context) bool {
	ok := true

	for _, address := range m.watchedAddresses() {
		reqCtx, cancel := context.WithTimeout(ctx, accountInfoTimeout)
		data, err := m.client.GetAccountInfo(reqCtx, address)
		cancel()

		if err != nil {
			m.log.Warn("poll: getAccountInfo failed", "address", address, "error", err)
			ok = false
			continue
		}
		if data == nil {
			continue
		}

		parsed, err := chain.ParseDepositAccount(data)
		if err != nil || parsed == nil {
			continue
		}

		mint, recognized := m.normalizeMint(parsed.Mint)
		if !recognized {
			m.log.Debug("poll: unrecognized mint, skipping", "address", address, "mint", parsed.Mint)
			continue
		}
		m.syncBalance(parsed.Owner, string(mint), parsed.Balance, parsed.DepositCode)
	}

	return ok
}
