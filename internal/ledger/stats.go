package ledger

import "fmt"

// Stats is the aggregate view of the ledger exposed by the admin surface.
type Stats struct {
	TotalDeposits   int64 `json:"total_deposits"`
	TotalDebits     int64 `json:"total_debits"`
	NetRevenue      int64 `json:"net_revenue"`
	ActiveAgents    int64 `json:"active_agents"`
	RegisteredTokens int64 `json:"registered_tokens"`
}

// GetStats aggregates over the transaction log and agent table per spec
// §4.6: total_deposits is the sum of positive MIRROR_DEPOSIT amounts,
// total_debits is the sum of absolute-value DEBIT amounts, net_revenue
// mirrors total_debits, active_agents counts distinct pubkeys holding any
// positive balance, and registered_tokens is the row count of the
// api_tokens table.
func (l *Ledger) GetStats() (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var stats Stats

	row := l.db.QueryRow(
		`SELECT COALESCE(SUM(amount_signed), 0) FROM transactions WHERE type = ? AND amount_signed > 0`,
		string(TxMirrorDeposit),
	)
	if err := row.Scan(&stats.TotalDeposits); err != nil {
		return nil, fmt.Errorf("get stats: total deposits: %w", err)
	}

	row = l.db.QueryRow(
		`SELECT COALESCE(SUM(-amount_signed), 0) FROM transactions WHERE type = ? AND amount_signed < 0`,
		string(TxDebit),
	)
	if err := row.Scan(&stats.TotalDebits); err != nil {
		return nil, fmt.Errorf("get stats: total debits: %w", err)
	}
	stats.NetRevenue = stats.TotalDebits

	row = l.db.QueryRow(`SELECT COUNT(DISTINCT pubkey) FROM agents WHERE balance > 0`)
	if err := row.Scan(&stats.ActiveAgents); err != nil {
		return nil, fmt.Errorf("get stats: active agents: %w", err)
	}

	row = l.db.QueryRow(`SELECT COUNT(*) FROM api_tokens`)
	if err := row.Scan(&stats.RegisteredTokens); err != nil {
		return nil, fmt.Errorf("get stats: registered tokens: %w", err)
	}

	return &stats, nil
}
