package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetBalance returns the current balance for (pubkey, mint), or 0 if the row
// does not yet exist.
func (l *Ledger) GetBalance(pubkey string, mint Mint) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var balance int64
	err := l.db.QueryRow(
		`SELECT balance FROM agents WHERE pubkey = ? AND mint = ?`,
		pubkey, string(mint),
	).Scan(&balance)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// GetAllBalances returns every mint balance held by pubkey.
func (l *Ledger) GetAllBalances(pubkey string) (map[Mint]int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(`SELECT mint, balance FROM agents WHERE pubkey = ?`, pubkey)
	if err != nil {
		return nil, fmt.Errorf("get all balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[Mint]int64)
	for rows.Next() {
		var mint string
		var balance int64
		if err := rows.Scan(&mint, &balance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances[Mint(mint)] = balance
	}
	return balances, rows.Err()
}

// UpdateBalance atomically applies delta to (pubkey, mint), lazily creating
// the row on first touch, and appends a transaction record. It does not
// itself enforce non-negativity; callers that must prevent overdraft should
// use UpdateBalanceConditional instead.
func (l *Ledger) UpdateBalance(pubkey string, mint Mint, delta int64, txType TxType, usageJSON string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO agents (pubkey, mint, balance, updated_at) VALUES (?, ?, 0, ?)`,
		pubkey, string(mint), now.Unix(),
	); err != nil {
		return fmt.Errorf("insert agent row: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE agents SET balance = balance + ?, updated_at = ? WHERE pubkey = ? AND mint = ?`,
		delta, now.Unix(), pubkey, string(mint),
	); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	if err := insertTransaction(tx, pubkey, mint, txType, delta, usageJSON, now); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateBalanceConditional atomically applies delta only if the resulting
// balance would be non-negative, returning ok=false (no transaction
// recorded, no balance change) otherwise. This is the recommended
// tightening of the overdraft race described in the concurrency model: a
// single conditional UPDATE replaces the separate read-then-write the
// pricing engine would otherwise need.
func (l *Ledger) UpdateBalanceConditional(pubkey string, mint Mint, delta int64, txType TxType, usageJSON string) (ok bool, newBalance int64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return false, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO agents (pubkey, mint, balance, updated_at) VALUES (?, ?, 0, ?)`,
		pubkey, string(mint), now.Unix(),
	); err != nil {
		return false, 0, fmt.Errorf("insert agent row: %w", err)
	}

	result, err := tx.Exec(
		`UPDATE agents SET balance = balance + ?, updated_at = ?
		 WHERE pubkey = ? AND mint = ? AND balance + ? >= 0`,
		delta, now.Unix(), pubkey, string(mint), delta,
	)
	if err != nil {
		return false, 0, fmt.Errorf("conditional update: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		// Would overdraw (or row vanished under us). No-op.
		return false, 0, nil
	}

	if err := insertTransaction(tx, pubkey, mint, txType, delta, usageJSON, now); err != nil {
		return false, 0, err
	}

	var balance int64
	if err := tx.QueryRow(`SELECT balance FROM agents WHERE pubkey = ? AND mint = ?`, pubkey, string(mint)).Scan(&balance); err != nil {
		return false, 0, fmt.Errorf("read new balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit: %w", err)
	}

	return true, balance, nil
}

func insertTransaction(tx *sql.Tx, pubkey string, mint Mint, txType TxType, delta int64, usageJSON string, when time.Time) error {
	id := uuid.New().String()
	_, err := tx.Exec(
		`INSERT INTO transactions (id, agent_pubkey, mint, type, amount_signed, usage_json, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, pubkey, string(mint), string(txType), delta, nullableString(usageJSON), when.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// GetTransactionHistory returns transactions for pubkey, newest first. If
// mint is non-nil, results are further filtered to that mint.
func (l *Ledger) GetTransactionHistory(pubkey string, mint *Mint) ([]*Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	query := `SELECT id, agent_pubkey, mint, type, amount_signed, usage_json, timestamp
	          FROM transactions WHERE agent_pubkey = ?`
	args := []interface{}{pubkey}

	if mint != nil {
		query += " AND mint = ?"
		args = append(args, string(*mint))
	}
	query += " ORDER BY timestamp DESC, rowid DESC"

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get transaction history: %w", err)
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		var t Transaction
		var mintStr, typeStr string
		var usageJSON sql.NullString
		var ts int64

		if err := rows.Scan(&t.ID, &t.AgentPubkey, &mintStr, &typeStr, &t.Amount, &usageJSON, &ts); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		t.Mint = Mint(mintStr)
		t.Type = TxType(typeStr)
		t.Timestamp = time.Unix(ts, 0)
		if usageJSON.Valid {
			t.UsageJSON = usageJSON.String
		}

		txs = append(txs, &t)
	}
	return txs, rows.Err()
}
