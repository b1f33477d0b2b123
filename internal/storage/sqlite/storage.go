package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/storage"
)

// DefaultLockTimeout bounds how long a mutation waits for the database
const DefaultLockTimeout = 2 * time.Second

const accountColumns = `id, username, password_hash, referral_code, COALESCE(referred_by, ''),
	balance, gold_coins, treasure_boxes, version, created_at, updated_at`

const entryColumns = `id, account_id, kind, COALESCE(item, ''), amount, balance_after,
	COALESCE(idempotency_key, ''), created_at`

// Storage is a SQLite-backed implementation of the storage interface.
// A single connection serializes all access to the database file.
type Storage struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// New opens (or creates) the database at path and applies the schema
func New(ctx context.Context, path string, lockTimeout time.Duration) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	s := &Storage{db: db, lockTimeout: lockTimeout}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return s, nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, acct *model.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, password_hash, referral_code, referred_by,
			balance, gold_coins, treasure_boxes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?)`,
		string(acct.ID), acct.Username, acct.PasswordHash, acct.ReferralCode, acct.ReferredBy,
		acct.Balance, acct.Inventory.GoldCoins, acct.Inventory.TreasureBoxes, acct.Version,
		acct.CreatedAt.UnixNano(), acct.UpdatedAt.UnixNano(),
	)
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		// "UNIQUE constraint failed: accounts.username"
		switch msg := sqliteErr.Error(); {
		case strings.Contains(msg, "accounts.username"):
			return model.ErrDuplicateUsername
		case strings.Contains(msg, "accounts.referral_code"):
			return model.ErrReferralCodeTaken
		}
	}
	return err
}

func (s *Storage) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, string(id)))
}

func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username))
}

func (s *Storage) GetAccountByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE referral_code = ?`, code))
}

func (s *Storage) ApplyToAccount(ctx context.Context, id model.AccountID, idempotencyKey string, mutate storage.MutateFunc) (*storage.ApplyResult, error) {
	// The pool has a single connection, held for the whole transaction,
	// so waiting for it is waiting for the account.
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	conn, err := s.db.Conn(lockCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, model.ErrAccountBusy
		}
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, string(id)))
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		entry, err := scanEntry(tx.QueryRowContext(ctx,
			`SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = ? AND idempotency_key = ?`,
			string(id), idempotencyKey))
		switch {
		case err == nil:
			return &storage.ApplyResult{Account: *current, Entry: *entry, Replayed: true}, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
	}

	next := *current
	entry, err := mutate(&next)
	if err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	entry.IdempotencyKey = idempotencyKey

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = ?, gold_coins = ?, treasure_boxes = ?, version = ?, updated_at = ?
		WHERE id = ?`,
		next.Balance, next.Inventory.GoldCoins, next.Inventory.TreasureBoxes, next.Version,
		next.UpdatedAt.UnixNano(), string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, kind, item, amount, balance_after, idempotency_key, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?)`,
		string(entry.ID), string(id), string(entry.Kind), string(entry.Item), entry.Amount,
		entry.BalanceAfter, entry.IdempotencyKey, entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &storage.ApplyResult{Account: next, Entry: *entry}, nil
}

// Ledger operations

func (s *Storage) ListLedgerEntries(ctx context.Context, id model.AccountID, limit int) ([]model.LedgerEntry, error) {
	if _, err := s.GetAccount(ctx, id); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = ? ORDER BY seq DESC LIMIT ?`,
		string(id), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := []model.LedgerEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Health and lifecycle

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*model.Account, error) {
	var (
		acct                 model.Account
		id                   string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&id, &acct.Username, &acct.PasswordHash, &acct.ReferralCode, &acct.ReferredBy,
		&acct.Balance, &acct.Inventory.GoldCoins, &acct.Inventory.TreasureBoxes, &acct.Version,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	acct.ID = model.AccountID(id)
	acct.CreatedAt = time.Unix(0, createdAt).UTC()
	acct.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &acct, nil
}

// scanEntry returns sql.ErrNoRows unchanged
func scanEntry(row scanner) (*model.LedgerEntry, error) {
	var (
		entry               model.LedgerEntry
		id, accountID       string
		kind, item, idemKey string
		createdAt           int64
	)
	err := row.Scan(&id, &accountID, &kind, &item, &entry.Amount, &entry.BalanceAfter, &idemKey, &createdAt)
	if err != nil {
		return nil, err
	}
	entry.ID = model.EntryID(id)
	entry.AccountID = model.AccountID(accountID)
	entry.Kind = model.EntryKind(kind)
	entry.Item = model.Item(item)
	entry.IdempotencyKey = idemKey
	entry.CreatedAt = time.Unix(0, createdAt).UTC()
	return &entry, nil
}
