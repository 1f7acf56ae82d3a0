package ledger

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// defaultSOLRate is the seeded USD rate for SOL, used until an operator
// sets a real one via SetExchangeRate.
const defaultSOLRate = 150.0

// seedTokenConfig inserts each well-known mint that has no row yet. It is
// idempotent: existing rows (e.g. an operator-adjusted SOL rate from a prior
// run) are left untouched.
func (l *Ledger) seedTokenConfig() error {
	seeds := []TokenConfig{
		{Mint: MintSOL, Symbol: "SOL", Decimals: 9, USDRate: defaultSOLRate},
		{Mint: MintUSDC, Symbol: "USDC", Decimals: 6, USDRate: 1.0},
	}

	for _, tc := range seeds {
		_, err := l.db.Exec(
			`INSERT OR IGNORE INTO token_config (mint, symbol, decimals, usd_rate) VALUES (?, ?, ?, ?)`,
			string(tc.Mint), tc.Symbol, tc.Decimals, tc.USDRate,
		)
		if err != nil {
			return fmt.Errorf("seed token %s: %w", tc.Mint, err)
		}
	}
	return nil
}

// GetTokenConfig returns the config for mint.
func (l *Ledger) GetTokenConfig(mint Mint) (*TokenConfig, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var tc TokenConfig
	var mintStr string
	err := l.db.QueryRow(
		`SELECT mint, symbol, decimals, usd_rate FROM token_config WHERE mint = ?`,
		string(mint),
	).Scan(&mintStr, &tc.Symbol, &tc.Decimals, &tc.USDRate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unknown mint %q", mint)
	}
	if err != nil {
		return nil, fmt.Errorf("get token config: %w", err)
	}
	tc.Mint = Mint(mintStr)
	return &tc, nil
}

// GetExchangeRate returns the current USD rate for mint.
func (l *Ledger) GetExchangeRate(mint Mint) (float64, error) {
	tc, err := l.GetTokenConfig(mint)
	if err != nil {
		return 0, err
	}
	return tc.USDRate, nil
}

// SetExchangeRate updates the USD rate for mint. The app calls it at startup
// to apply the configured SOL rate.
func (l *Ledger) SetExchangeRate(mint Mint, rate float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, err := l.db.Exec(`UPDATE token_config SET usd_rate = ? WHERE mint = ?`, rate, string(mint))
	if err != nil {
		return fmt.Errorf("set exchange rate: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("unknown mint %q", mint)
	}
	return nil
}

const depositCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const depositCodeLen = 8

// generateDepositCode produces an 8-character uppercase alphanumeric code,
// excluding visually ambiguous characters (0/O, 1/I).
func generateDepositCode() (string, error) {
	buf := make([]byte, depositCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate deposit code: %w", err)
	}
	code := make([]byte, depositCodeLen)
	for i, b := range buf {
		code[i] = depositCodeAlphabet[int(b)%len(depositCodeAlphabet)]
	}
	return string(code), nil
}

// CreateAPIToken mints a new API token paired with a fresh deposit code. The
// token is unactivated (no pubkey bound) until ActivateToken is called.
func (l *Ledger) CreateAPIToken() (apiToken, depositCode string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	apiToken = uuid.New().String()
	now := time.Now()

	// Deposit codes are short and drawn from a restricted alphabet, so
	// collisions are plausible; retry a few times before giving up.
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		depositCode, err = generateDepositCode()
		if err != nil {
			return "", "", err
		}

		_, err = l.db.Exec(
			`INSERT INTO api_tokens (api_token, deposit_code, pubkey, created_at, activated_at)
			 VALUES (?, ?, NULL, ?, NULL)`,
			apiToken, depositCode, now.Unix(),
		)
		if err == nil {
			return apiToken, depositCode, nil
		}
		if !isUniqueConstraintErr(err) {
			return "", "", fmt.Errorf("create api token: %w", err)
		}
	}
	return "", "", fmt.Errorf("create api token: exhausted deposit code attempts")
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ActivateToken binds pubkey to the api_token registered under depositCode,
// provided that code exists and has not already been activated. It returns
// the api_token on success, or ok=false if no matching unactivated code
// exists.
func (l *Ledger) ActivateToken(depositCode, pubkey string) (apiToken string, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return "", false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRow(
		`SELECT api_token FROM api_tokens WHERE deposit_code = ? AND pubkey IS NULL`,
		depositCode,
	).Scan(&apiToken)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup deposit code: %w", err)
	}

	now := time.Now()
	if _, err := tx.Exec(
		`UPDATE api_tokens SET pubkey = ?, activated_at = ? WHERE deposit_code = ? AND pubkey IS NULL`,
		pubkey, now.Unix(), depositCode,
	); err != nil {
		return "", false, fmt.Errorf("activate token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit: %w", err)
	}

	return apiToken, true, nil
}

// FindTokenByDepositCode looks up the token record for depositCode, but only
// while it remains unactivated (pubkey IS NULL). Once a code is bound to a
// pubkey it is no longer discoverable this way.
func (l *Ledger) FindTokenByDepositCode(depositCode string) (*APIToken, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var t APIToken
	var createdAt int64
	err := l.db.QueryRow(
		`SELECT api_token, deposit_code, created_at FROM api_tokens
		 WHERE deposit_code = ? AND pubkey IS NULL`,
		depositCode,
	).Scan(&t.APIToken, &t.DepositCode, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find token by deposit code: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

// GetPubkeyFromToken resolves api_token to its bound pubkey. Returns
// ok=false if the token is unknown or not yet activated.
func (l *Ledger) GetPubkeyFromToken(apiToken string) (pubkey string, ok bool, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var pk sql.NullString
	err = l.db.QueryRow(`SELECT pubkey FROM api_tokens WHERE api_token = ?`, apiToken).Scan(&pk)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get pubkey from token: %w", err)
	}
	if !pk.Valid || pk.String == "" {
		return "", false, nil
	}
	return pk.String, true, nil
}
