package pricing

import (
	"os"
	"testing"

	"github.com/sovereign-arena/level5-proxy/internal/ledger"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "arena-pricing-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	l, err := ledger.New(&ledger.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestTableLookupExactAndPrefix(t *testing.T) {
	table := NewTable()

	got := table.Lookup("claude-sonnet-4-5-20250929")
	want := Rate{InputMicroUSDCPer1K: 3000, OutputMicroUSDCPer1K: 15000}
	if got != want {
		t.Errorf("Lookup(claude-sonnet-4-5-*) = %+v, want %+v", got, want)
	}

	got = table.Lookup("gpt-4o")
	want = Rate{InputMicroUSDCPer1K: 2500, OutputMicroUSDCPer1K: 10000}
	if got != want {
		t.Errorf("Lookup(gpt-4o) = %+v, want %+v", got, want)
	}

	got = table.Lookup("some-unknown-model")
	if got != defaultRate {
		t.Errorf("Lookup(unknown) = %+v, want default %+v", got, defaultRate)
	}
}

func TestCostUSDC(t *testing.T) {
	table := NewTable()

	cost := table.CostUSDC(Usage{InputTokens: 100, OutputTokens: 50}, "claude-haiku-latest")
	// 100*800/1000 + 50*4000/1000 = 80 + 200 = 280
	if cost != 280 {
		t.Errorf("CostUSDC() = %d, want 280", cost)
	}

	// Matches spec.md §8 Scenario 1's worked example: gpt-5.2 at
	// {1500, 4500} against usage {15, 25} -> floor(22.5 + 112.5) = 135.
	cost = table.CostUSDC(Usage{InputTokens: 15, OutputTokens: 25}, "gpt-5.2")
	if cost != 135 {
		t.Errorf("CostUSDC(gpt-5.2) = %d, want 135", cost)
	}
}

func TestDebitAgentUSDCFirst(t *testing.T) {
	l := newTestLedger(t)
	pubkey := "agent-1"

	if err := l.UpdateBalance(pubkey, ledger.MintUSDC, 1_000_000, ledger.TxDeposit, ""); err != nil {
		t.Fatalf("seed balance error = %v", err)
	}

	mint, err := DebitAgent(l, pubkey, 375, `{"input":100,"output":50}`)
	if err != nil {
		t.Fatalf("DebitAgent() error = %v", err)
	}
	if mint == nil || *mint != ledger.MintUSDC {
		t.Fatalf("DebitAgent() mint = %v, want USDC", mint)
	}

	balance, err := l.GetBalance(pubkey, ledger.MintUSDC)
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if balance != 1_000_000-375 {
		t.Errorf("GetBalance() after debit = %d, want %d", balance, 1_000_000-375)
	}
}

func TestDebitAgentSOLFallback(t *testing.T) {
	l := newTestLedger(t)
	pubkey := "agent-1"

	if err := l.UpdateBalance(pubkey, ledger.MintSOL, 50_000_000_000, ledger.TxDeposit, ""); err != nil {
		t.Fatalf("seed balance error = %v", err)
	}
	if err := l.SetExchangeRate(ledger.MintSOL, 150.0); err != nil {
		t.Fatalf("SetExchangeRate() error = %v", err)
	}

	// Matches spec.md §8 Scenario 2: 100 input + 50 output tokens against
	// gpt-5.2 ({1500, 4500}) costs 375 USDC-micro, converting to 2500
	// lamports at a 150.0 SOL/USD rate.
	table := NewTable()
	costUSDC := table.CostUSDC(Usage{InputTokens: 100, OutputTokens: 50}, "gpt-5.2")
	if costUSDC != 375 {
		t.Fatalf("CostUSDC(gpt-5.2) = %d, want 375", costUSDC)
	}

	mint, err := DebitAgent(l, pubkey, costUSDC, `{"input":100,"output":50}`)
	if err != nil {
		t.Fatalf("DebitAgent() error = %v", err)
	}
	if mint == nil || *mint != ledger.MintSOL {
		t.Fatalf("DebitAgent() mint = %v, want SOL", mint)
	}

	balance, err := l.GetBalance(pubkey, ledger.MintSOL)
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	want := int64(50_000_000_000 - 2500)
	if balance != want {
		t.Errorf("GetBalance() after SOL debit = %d, want %d", balance, want)
	}
}

func TestDebitAgentInsufficientFunds(t *testing.T) {
	l := newTestLedger(t)
	pubkey := "agent-1"

	_, err := DebitAgent(l, pubkey, 100, "")
	if err != ErrInsufficientFunds {
		t.Errorf("DebitAgent() error = %v, want ErrInsufficientFunds", err)
	}
}

func TestDebitAgentSOLFallbackDisabledAtZeroRate(t *testing.T) {
	l := newTestLedger(t)
	pubkey := "agent-1"

	if err := l.UpdateBalance(pubkey, ledger.MintSOL, 50_000_000_000, ledger.TxDeposit, ""); err != nil {
		t.Fatalf("seed balance error = %v", err)
	}
	if err := l.SetExchangeRate(ledger.MintSOL, 0); err != nil {
		t.Fatalf("SetExchangeRate() error = %v", err)
	}

	_, err := DebitAgent(l, pubkey, 100, "")
	if err != ErrInsufficientFunds {
		t.Errorf("DebitAgent() with zero SOL rate error = %v, want ErrInsufficientFunds", err)
	}
}

func TestCeilDiv(t *testing.T) {
	if got := ceilDiv(2500*150, 150.0); got != 2500 {
		t.Errorf("ceilDiv(375000, 150.0) = %d, want 2500", got)
	}
	if got := ceilDiv(1, 3.0); got != 1 {
		t.Errorf("ceilDiv(1, 3.0) = %d, want 1", got)
	}
}
