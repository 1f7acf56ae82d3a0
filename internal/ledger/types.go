package ledger

import "time"

// Mint identifies an asset in the ledger ("SOL" or "USDC").
type Mint string

// Well-known mints seeded at init.
const (
	MintSOL  Mint = "SOL"
	MintUSDC Mint = "USDC"
)

// TxType is the kind of transaction recorded in the append-only log.
type TxType string

// Transaction kinds, per the data model.
const (
	TxDeposit          TxType = "DEPOSIT"
	TxDebit            TxType = "DEBIT"
	TxMirrorDeposit    TxType = "MIRROR_DEPOSIT"
	TxMirrorCorrection TxType = "MIRROR_CORRECTION"
	TxManualSeed       TxType = "MANUAL_SEED"
	TxReset            TxType = "RESET"
)

// Transaction is one append-only ledger entry.
type Transaction struct {
	ID          string
	AgentPubkey string
	Mint        Mint
	Type        TxType
	Amount      int64 // signed: positive credits, negative debits
	UsageJSON   string
	Timestamp   time.Time
}

// TokenConfig is the per-mint pricing/decimals metadata.
type TokenConfig struct {
	Mint     Mint
	Symbol   string
	Decimals uint8
	USDRate  float64
}

// APIToken is a capability token record tying a token to a deposit code and,
// once activated, to a pubkey.
type APIToken struct {
	APIToken     string
	DepositCode  string
	Pubkey       string // empty until activated
	CreatedAt    time.Time
	ActivatedAt  *time.Time
}

// IsActivated reports whether this token has been bound to a pubkey.
func (t *APIToken) IsActivated() bool {
	return t.Pubkey != ""
}
