// Package ledger provides the durable multi-asset balance store for the
// metering proxy: per-(pubkey,mint) balances, an append-only transaction
// log, token-config rates and the API-token registry.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sovereign-arena/level5-proxy/pkg/logging"
)

// Ledger is the durable balance store backed by a single local SQLite file.
type Ledger struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	log    *logging.Logger
}

// Config holds ledger storage configuration.
type Config struct {
	DataDir string
}

// New opens (creating if absent) the ledger database and applies schema.
func New(cfg *Config) (*Ledger, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ledger.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent request load and lets WAL mode keep
	// readers unblocked.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	l := &Ledger{
		db:     db,
		dbPath: dbPath,
		log:    logging.GetDefault().Component("ledger"),
	}

	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := l.seedTokenConfig(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed token config: %w", err)
	}

	return l, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// DB returns the underlying database connection, for callers (tests) that
// need ad-hoc access beyond the ledger's own API.
func (l *Ledger) DB() *sql.DB {
	return l.db
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		pubkey TEXT NOT NULL,
		mint TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (pubkey, mint)
	);

	CREATE INDEX IF NOT EXISTS idx_agents_pubkey ON agents(pubkey);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		agent_pubkey TEXT NOT NULL,
		mint TEXT NOT NULL,
		type TEXT NOT NULL,
		amount_signed INTEGER NOT NULL,
		usage_json TEXT,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_agent ON transactions(agent_pubkey, mint);
	CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(type);

	CREATE TABLE IF NOT EXISTS token_config (
		mint TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		decimals INTEGER NOT NULL,
		usd_rate REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS api_tokens (
		api_token TEXT PRIMARY KEY,
		deposit_code TEXT NOT NULL UNIQUE,
		pubkey TEXT,
		created_at INTEGER NOT NULL,
		activated_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_api_tokens_deposit_code ON api_tokens(deposit_code);
	CREATE INDEX IF NOT EXISTS idx_api_tokens_pubkey ON api_tokens(pubkey);
	`

	_, err := l.db.Exec(schema)
	return err
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
