package mirror

import (
	"encoding/json"
	"time"

	"github.com/sovereign-arena/level5-proxy/internal/ledger"
)

// syncBalance is the reconciliation kernel: it compares the on-chain
// balance against the ledger's local view, activates a pending deposit
// code on first deposit, and appends a correction/deposit transaction for
// any non-zero delta. A zero delta is an idempotent no-op.
func (m *Mirror) syncBalance(owner string, mintStr string, onChainBalance int64, depositCode string) {
	mint := ledger.Mint(mintStr)

	current, err := m.ledger.GetBalance(owner, mint)
	if err != nil {
		m.log.Error("sync_balance: get balance failed", "owner", owner, "mint", mint, "error", err)
		return
	}

	delta := onChainBalance - current
	if delta == 0 {
		return
	}

	if delta > 0 && current == 0 && depositCode != "" {
		if _, ok, err := m.ledger.ActivateToken(depositCode, owner); err != nil {
			m.log.Error("sync_balance: activate token failed", "depositCode", depositCode, "error", err)
		} else if ok {
			m.log.Info("activated api token on first deposit", "owner", owner, "depositCode", depositCode)
		}
	}

	txType := ledger.TxMirrorDeposit
	if delta < 0 {
		txType = ledger.TxMirrorCorrection
	}

	usage, err := json.Marshal(map[string]interface{}{
		"on_chain_balance":     onChainBalance,
		"local_balance_before": current,
		"synced_at":            time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		m.log.Error("sync_balance: marshal usage snapshot failed", "error", err)
		return
	}

	if err := m.ledger.UpdateBalance(owner, mint, delta, txType, string(usage)); err != nil {
		m.log.Error("sync_balance: update balance failed", "owner", owner, "mint", mint, "error", err)
	}
}
