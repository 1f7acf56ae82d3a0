package mirror

import (
	"context"
	"fmt"

	"github.com/sovereign-arena/level5-proxy/internal/chain"
)

// discover issues getProgramAccounts, parses every returned account and
// reconciles it into the ledger. Invalid accounts are skipped silently —
// parse failure is not a mirror failure.
func (m *Mirror) discover(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, programAccountsTimeout)
	defer cancel()

	accounts, err := m.client.GetProgramAccounts(ctx, m.cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	for _, acc := range accounts {
		parsed, err := chain.ParseDepositAccount(acc.Data)
		if err != nil || parsed == nil {
			continue
		}

		m.addWatched(acc.Pubkey, parsed.Owner)

		mint, ok := m.normalizeMint(parsed.Mint)
		if !ok {
			m.log.Debug("discover: unrecognized mint, skipping", "account", acc.Pubkey, "mint", parsed.Mint)
			continue
		}
		m.syncBalance(parsed.Owner, string(mint), parsed.Balance, parsed.DepositCode)
	}

	return nil
}
