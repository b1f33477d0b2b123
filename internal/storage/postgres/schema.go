package postgres

import "context"

// Constraint names used to tell unique violations apart
const (
	constraintUsername     = "accounts_username_unique"
	constraintReferralCode = "accounts_referral_code_unique"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	username       TEXT NOT NULL,
	password_hash  TEXT NOT NULL,
	referral_code  TEXT NOT NULL,
	referred_by    TEXT,
	balance        BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	gold_coins     BIGINT NOT NULL DEFAULT 0 CHECK (gold_coins >= 0),
	treasure_boxes BIGINT NOT NULL DEFAULT 0 CHECK (treasure_boxes >= 0),
	version        BIGINT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	CONSTRAINT accounts_username_unique UNIQUE (username),
	CONSTRAINT accounts_referral_code_unique UNIQUE (referral_code)
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	account_id      TEXT NOT NULL REFERENCES accounts(id),
	kind            TEXT NOT NULL,
	item            TEXT,
	amount          BIGINT NOT NULL,
	balance_after   BIGINT NOT NULL CHECK (balance_after >= 0),
	idempotency_key TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	CONSTRAINT ledger_entries_idempotency_unique UNIQUE (account_id, idempotency_key)
);

CREATE INDEX IF NOT EXISTS ledger_entries_account_seq ON ledger_entries (account_id, seq DESC);
`

// Migrate creates the tables if they do not exist
func (s *Storage) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}
