package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/storage"
)

// SQLSTATE codes
const (
	codeUniqueViolation  = "23505"
	codeLockNotAvailable = "55P03"
)

const accountColumns = `id, username, password_hash, referral_code, COALESCE(referred_by, ''),
	balance, gold_coins, treasure_boxes, version, created_at, updated_at`

const entryColumns = `id, account_id, kind, COALESCE(item, ''), amount, balance_after,
	COALESCE(idempotency_key, ''), created_at`

// Storage is a PostgreSQL-backed implementation of the storage interface.
// Mutations lock the account row with SELECT ... FOR UPDATE.
type Storage struct {
	pool *pgxpool.Pool
	cfg  Config
}

// New connects to PostgreSQL and applies the schema
func New(ctx context.Context, cfg Config) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	s := NewWithPool(pool, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate postgres schema: %w", err)
	}
	return s, nil
}

// NewWithPool creates a storage over an existing pool without migrating
func NewWithPool(pool *pgxpool.Pool, cfg Config) *Storage {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultConfig().LockTimeout
	}
	return &Storage{pool: pool, cfg: cfg}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, acct *model.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, username, password_hash, referral_code, referred_by,
			balance, gold_coins, treasure_boxes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)`,
		string(acct.ID), acct.Username, acct.PasswordHash, acct.ReferralCode, acct.ReferredBy,
		acct.Balance, acct.Inventory.GoldCoins, acct.Inventory.TreasureBoxes, acct.Version,
		acct.CreatedAt, acct.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		switch pgErr.ConstraintName {
		case constraintUsername:
			return model.ErrDuplicateUsername
		case constraintReferralCode:
			return model.ErrReferralCodeTaken
		}
	}
	return err
}

func (s *Storage) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, string(id)))
}

func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username))
}

func (s *Storage) GetAccountByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code))
}

func (s *Storage) ApplyToAccount(ctx context.Context, id model.AccountID, idempotencyKey string, mutate storage.MutateFunc) (*storage.ApplyResult, error) {
	result, err := s.applyToAccount(ctx, id, idempotencyKey, mutate)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeLockNotAvailable {
		return nil, model.ErrAccountBusy
	}
	return result, err
}

func (s *Storage) applyToAccount(ctx context.Context, id model.AccountID, idempotencyKey string, mutate storage.MutateFunc) (*storage.ApplyResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockTimeout := fmt.Sprintf("%dms", s.cfg.LockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, lockTimeout); err != nil {
		return nil, err
	}

	current, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, string(id)))
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		entry, err := scanEntry(tx.QueryRow(ctx,
			`SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = $1 AND idempotency_key = $2`,
			string(id), idempotencyKey))
		switch {
		case err == nil:
			return &storage.ApplyResult{Account: *current, Entry: *entry, Replayed: true}, nil
		case !errors.Is(err, pgx.ErrNoRows):
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

	_, err = tx.Exec(ctx, `
		UPDATE accounts
		SET balance = $1, gold_coins = $2, treasure_boxes = $3, version = $4, updated_at = $5
		WHERE id = $6`,
		next.Balance, next.Inventory.GoldCoins, next.Inventory.TreasureBoxes, next.Version,
		next.UpdatedAt, string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, kind, item, amount, balance_after, idempotency_key, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8)`,
		string(entry.ID), string(id), string(entry.Kind), string(entry.Item), entry.Amount,
		entry.BalanceAfter, entry.IdempotencyKey, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &storage.ApplyResult{Account: next, Entry: *entry}, nil
}

// Ledger operations

func (s *Storage) ListLedgerEntries(ctx context.Context, id model.AccountID, limit int) ([]model.LedgerEntry, error) {
	if _, err := s.GetAccount(ctx, id); err != nil {
		return nil, err
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = $1 ORDER BY seq DESC`
	args := []any{string(id)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		acct model.Account
		id   string
	)
	err := row.Scan(
		&id, &acct.Username, &acct.PasswordHash, &acct.ReferralCode, &acct.ReferredBy,
		&acct.Balance, &acct.Inventory.GoldCoins, &acct.Inventory.TreasureBoxes, &acct.Version,
		&acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	acct.ID = model.AccountID(id)
	acct.CreatedAt = acct.CreatedAt.UTC()
	acct.UpdatedAt = acct.UpdatedAt.UTC()
	return &acct, nil
}

// scanEntry returns pgx.ErrNoRows unchanged
func scanEntry(row pgx.Row) (*model.LedgerEntry, error) {
	var (
		entry               model.LedgerEntry
		id, accountID       string
		kind, item, idemKey string
	)
	err := row.Scan(&id, &accountID, &kind, &item, &entry.Amount, &entry.BalanceAfter, &idemKey, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.ID = model.EntryID(id)
	entry.AccountID = model.AccountID(accountID)
	entry.Kind = model.EntryKind(kind)
	entry.Item = model.Item(item)
	entry.IdempotencyKey = idemKey
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}
