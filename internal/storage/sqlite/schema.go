package sqlite

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	username       TEXT NOT NULL UNIQUE,
	password_hash  TEXT NOT NULL,
	referral_code  TEXT NOT NULL UNIQUE,
	referred_by    TEXT,
	balance        INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	gold_coins     INTEGER NOT NULL DEFAULT 0 CHECK (gold_coins >= 0),
	treasure_boxes INTEGER NOT NULL DEFAULT 0 CHECK (treasure_boxes >= 0),
	version        INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	account_id      TEXT NOT NULL REFERENCES accounts(id),
	kind            TEXT NOT NULL,
	item            TEXT,
	amount          INTEGER NOT NULL,
	balance_after   INTEGER NOT NULL CHECK (balance_after >= 0),
	idempotency_key TEXT,
	created_at      INTEGER NOT NULL,
	UNIQUE (account_id, idempotency_key)
);

CREATE INDEX IF NOT EXISTS ledger_entries_account_seq ON ledger_entries (account_id, seq DESC);
`

// Migrate creates the tables if they do not exist
func (s *Storage) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
