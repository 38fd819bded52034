package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/splitledger/splitledger/internal/currency"
)

// schema sets up the ledger tables. Amounts are INTEGER minor units; the
// currencies table's decimals column defines the scale per currency.
// Transactions and shares are soft-deleted via flags; only an explicit purge
// hits the ON DELETE CASCADE on transaction_shares.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS currencies (
    code TEXT PRIMARY KEY,
    numeric_code INTEGER NOT NULL UNIQUE,
    decimals INTEGER NOT NULL,
    symbol TEXT,
    name_en TEXT NOT NULL,
    name_ru TEXT NOT NULL,
    is_popular INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    owner_id TEXT NOT NULL REFERENCES users(id),
    status TEXT NOT NULL DEFAULT 'active',
    currency_code TEXT NOT NULL REFERENCES currencies(code),
    end_date INTEGER NOT NULL DEFAULT 0,
    auto_archive INTEGER NOT NULL DEFAULT 0,
    archived_at INTEGER NOT NULL DEFAULT 0,
    deleted_at INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id),
    joined_at INTEGER NOT NULL,
    deleted_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS expense_categories (
    id TEXT PRIMARY KEY,
    key TEXT NOT NULL UNIQUE,
    name_en TEXT NOT NULL,
    name_ru TEXT NOT NULL,
    icon TEXT
);

CREATE TABLE IF NOT EXISTS group_categories (
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    category_id TEXT NOT NULL REFERENCES expense_categories(id) ON DELETE CASCADE,
    PRIMARY KEY (group_id, category_id)
);

CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL REFERENCES groups(id),
    created_by TEXT NOT NULL REFERENCES users(id),
    kind TEXT NOT NULL,
    amount INTEGER NOT NULL,
    currency_code TEXT NOT NULL REFERENCES currencies(code),
    date INTEGER NOT NULL,
    comment TEXT NOT NULL DEFAULT '',
    category_id TEXT REFERENCES expense_categories(id),
    paid_by TEXT REFERENCES users(id),
    split_type TEXT,
    transfer_from TEXT REFERENCES users(id),
    transfer_to TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_shares (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id),
    amount INTEGER NOT NULL,
    weight INTEGER NOT NULL DEFAULT 0,
    is_deleted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tx_group_date ON transactions(group_id, date);
CREATE INDEX IF NOT EXISTS idx_txshare_tx ON transaction_shares(transaction_id);
CREATE INDEX IF NOT EXISTS idx_txshare_user ON transaction_shares(user_id);
CREATE INDEX IF NOT EXISTS idx_group_members_group ON group_members(group_id);
CREATE INDEX IF NOT EXISTS idx_groups_status ON groups(status);
CREATE UNIQUE INDEX IF NOT EXISTS uq_txshare_live
    ON transaction_shares(transaction_id, user_id) WHERE is_deleted = 0;
`

// runMigrations executes the schema setup and seeds reference data.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := seedCurrencies(db); err != nil {
		return fmt.Errorf("failed to seed currencies: %w", err)
	}
	return nil
}

// seedCurrencies inserts the reference currency set. Idempotent: existing
// rows win so a redeploy never clobbers local edits.
func seedCurrencies(db *sql.DB) error {
	for _, c := range currency.DefaultTable().All() {
		_, err := db.Exec(
			`INSERT OR IGNORE INTO currencies (code, numeric_code, decimals, symbol, name_en, name_ru, is_popular)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Code, c.NumericCode, c.Decimals, c.Symbol, c.NameEN, c.NameRU, boolToInt(c.Popular),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
