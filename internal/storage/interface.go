package storage

import (
	"context"

	"github.com/mcoot/gamewallet/internal/model"
)

// MutateFunc computes the next state of an account in place and returns the
// ledger entry describing the change. It receives a private copy of the
// account; returning an error discards the copy and persists nothing.
// Backends with optimistic concurrency may call it more than once, each time
// with a fresh copy, so it must not have side effects outside the account.
type MutateFunc func(acct *model.Account) (*model.LedgerEntry, error)

// ApplyResult is the outcome of ApplyToAccount
type ApplyResult struct {
	Account model.Account
	Entry   model.LedgerEntry
	// Replayed is true when the idempotency key had already been applied;
	// Entry is then the stored entry and nothing new was written.
	Replayed bool
}

// Storage defines the interface for data persistence
type Storage interface {
	// Account operations
	//
	// CreateAccount fails with model.ErrDuplicateUsername or
	// model.ErrReferralCodeTaken when a unique field is already in use.
	CreateAccount(ctx context.Context, acct *model.Account) error
	GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (*model.Account, error)

	// ApplyToAccount runs mutate against the current account state as one
	// atomic step: concurrent calls for the same account are serialized, and
	// the updated account (Version+1) and its ledger entry are persisted
	// together. When idempotencyKey is non-empty and already recorded for the
	// account, mutate is not called and the stored entry is returned.
	// Returns model.ErrAccountBusy if the account could not be acquired in time.
	ApplyToAccount(ctx context.Context, id model.AccountID, idempotencyKey string, mutate MutateFunc) (*ApplyResult, error)

	// Ledger operations
	ListLedgerEntries(ctx context.Context, id model.AccountID, limit int) ([]model.LedgerEntry, error)

	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error
}
