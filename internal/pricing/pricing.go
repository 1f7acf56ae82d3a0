// Package pricing implements the model rate table and the USDC-first,
// SOL-fallback debit policy used to charge agents for proxied usage.
package pricing

import (
	"fmt"
	"strings"

	"github.com/sovereign-arena/level5-proxy/internal/ledger"
)

// Rate holds the per-1k-token price, in USDC smallest units (micro-USDC),
// for a model's input and output tokens.
type Rate struct {
	InputMicroUSDCPer1K  int64
	OutputMicroUSDCPer1K int64
}

// defaultRate applies to any model with no matching entry.
var defaultRate = Rate{InputMicroUSDCPer1K: 5000, OutputMicroUSDCPer1K: 15000}

// Table is a static, prefix-matched model rate table. Prefixes ending in
// "-*" match any model name sharing that prefix; exact entries take
// priority over prefix entries.
type Table struct {
	exact    map[string]Rate
	prefixes []prefixEntry
}

type prefixEntry struct {
	prefix string
	rate   Rate
}

// NewTable builds the representative rate table from spec.
func NewTable() *Table {
	t := &Table{exact: make(map[string]Rate)}

	t.register("claude-sonnet-4-5-*", Rate{InputMicroUSDCPer1K: 3000, OutputMicroUSDCPer1K: 15000})
	t.register("claude-opus-*", Rate{InputMicroUSDCPer1K: 15000, OutputMicroUSDCPer1K: 75000})
	t.register("claude-haiku-*", Rate{InputMicroUSDCPer1K: 800, OutputMicroUSDCPer1K: 4000})
	t.register("gpt-4o", Rate{InputMicroUSDCPer1K: 2500, OutputMicroUSDCPer1K: 10000})
	t.register("gpt-5.2", Rate{InputMicroUSDCPer1K: 1500, OutputMicroUSDCPer1K: 4500})
	t.register("claude-4.5-opus", Rate{InputMicroUSDCPer1K: 3000, OutputMicroUSDCPer1K: 15000})

	return t
}

func (t *Table) register(pattern string, rate Rate) {
	if strings.HasSuffix(pattern, "-*") {
		t.prefixes = append(t.prefixes, prefixEntry{prefix: strings.TrimSuffix(pattern, "*"), rate: rate})
		return
	}
	t.exact[pattern] = rate
}

// Entries returns every registered model pattern and its rate, for the
// admin/pricing surface. Prefix patterns are reported with their "-*"
// suffix restored.
func (t *Table) Entries() map[string]Rate {
	entries := make(map[string]Rate, len(t.exact)+len(t.prefixes))
	for model, rate := range t.exact {
		entries[model] = rate
	}
	for _, p := range t.prefixes {
		entries[p.prefix+"*"] = p.rate
	}
	return entries
}

// DefaultRate returns the rate applied to any model with no matching
// entry.
func (t *Table) DefaultRate() Rate {
	return defaultRate
}

// Lookup returns the rate for model, falling back to the default rate for
// unknown models.
func (t *Table) Lookup(model string) Rate {
	if rate, ok := t.exact[model]; ok {
		return rate
	}
	for _, p := range t.prefixes {
		if strings.HasPrefix(model, p.prefix) {
			return p.rate
		}
	}
	return defaultRate
}

// Usage is a parsed token count from an upstream response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// CostUSDC computes the cost of usage under model's rate, floored to the
// nearest USDC micro-unit.
func (t *Table) CostUSDC(usage Usage, model string) int64 {
	rate := t.Lookup(model)
	cost := (usage.InputTokens*rate.InputMicroUSDCPer1K + usage.OutputTokens*rate.OutputMicroUSDCPer1K) / 1000
	return cost
}

// ErrInsufficientFunds is returned by DebitAgent when neither USDC nor SOL
// fallback covers the cost.
var ErrInsufficientFunds = fmt.Errorf("insufficient funds")

// DebitAgent implements the strict USDC-first / SOL-fallback debit policy:
// USDC is tried first; only if the USDC balance falls short does it convert
// costUSDC to lamports at the current SOL rate and try SOL. Partial
// cross-asset debits are never performed. It returns the mint actually
// debited.
func DebitAgent(l *ledger.Ledger, pubkey string, costUSDC int64, usageJSON string) (*ledger.Mint, error) {
	ok, _, err := l.UpdateBalanceConditional(pubkey, ledger.MintUSDC, -costUSDC, ledger.TxDebit, usageJSON)
	if err != nil {
		return nil, fmt.Errorf("debit usdc: %w", err)
	}
	if ok {
		mint := ledger.MintUSDC
		return &mint, nil
	}

	rate, err := l.GetExchangeRate(ledger.MintSOL)
	if err != nil {
		return nil, fmt.Errorf("get sol rate: %w", err)
	}
	if rate <= 0 {
		return nil, ErrInsufficientFunds
	}

	costSOL := ceilDiv(costUSDC*1000, rate)

	ok, _, err = l.UpdateBalanceConditional(pubkey, ledger.MintSOL, -costSOL, ledger.TxDebit, usageJSON)
	if err != nil {
		return nil, fmt.Errorf("debit sol: %w", err)
	}
	if ok {
		mint := ledger.MintSOL
		return &mint, nil
	}

	return nil, ErrInsufficientFunds
}

// ceilDiv computes ceil(numerator / rate) as an integer lamport amount,
// rounding toward the house on any fractional remainder.
func ceilDiv(numerator int64, rate float64) int64 {
	quotient := float64(numerator) / rate
	whole := int64(quotient)
	if quotient > float64(whole) {
		whole++
	}
	return whole
}
