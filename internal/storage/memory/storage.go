package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/storage"
)

// DefaultLockTimeout bounds how long ApplyToAccount waits for an account
const DefaultLockTimeout = 2 * time.Second

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	accounts      map[model.AccountID]*accountRecord
	usernameIndex map[string]model.AccountID
	referralIndex map[string]model.AccountID

	lockTimeout time.Duration
}

// accountRecord holds one account and its ledger.
// writer serializes mutations (check-then-act); mu guards the fields so
// readers can take consistent copies while a writer is computing.
type accountRecord struct {
	writer *semaphore.Weighted

	mu          sync.RWMutex
	account     model.Account
	entries     []model.LedgerEntry // oldest first
	idempotency map[string]int      // key -> index into entries
}

// New creates a new in-memory storage instance
func New() *Storage {
	return NewWithLockTimeout(DefaultLockTimeout)
}

// NewWithLockTimeout creates an in-memory storage with a custom bound on
// per-account lock waits
func NewWithLockTimeout(lockTimeout time.Duration) *Storage {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Storage{
		accounts:      make(map[model.AccountID]*accountRecord),
		usernameIndex: make(map[string]model.AccountID),
		referralIndex: make(map[string]model.AccountID),
		lockTimeout:   lockTimeout,
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usernameIndex[acct.Username]; ok {
		return model.ErrDuplicateUsername
	}
	if _, ok := s.referralIndex[acct.ReferralCode]; ok {
		return model.ErrReferralCodeTaken
	}

	s.accounts[acct.ID] = &accountRecord{
		writer:      semaphore.NewWeighted(1),
		account:     *acct,
		idempotency: make(map[string]int),
	}
	s.usernameIndex[acct.Username] = acct.ID
	s.referralIndex[acct.ReferralCode] = acct.ID
	return nil
}

func (s *Storage) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.RLock()
	acct := rec.account
	rec.mu.RUnlock()
	return &acct, nil
}

func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	id, ok := s.usernameIndex[username]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return s.GetAccount(ctx, id)
}

func (s *Storage) GetAccountByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	s.mu.RLock()
	id, ok := s.referralIndex[code]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return s.GetAccount(ctx, id)
}

func (s *Storage) ApplyToAccount(ctx context.Context, id model.AccountID, idempotencyKey string, mutate storage.MutateFunc) (*storage.ApplyResult, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	if err := rec.writer.Acquire(lockCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.ErrAccountBusy
	}
	defer rec.writer.Release(1)

	// Only writers holding the semaphore modify the record, so reading
	// without rec.mu here cannot observe a concurrent write.
	if idempotencyKey != "" {
		if idx, ok := rec.idempotency[idempotencyKey]; ok {
			return &storage.ApplyResult{
				Account:  rec.account,
				Entry:    rec.entries[idx],
				Replayed: true,
			}, nil
		}
	}

	next := rec.account
	entry, err := mutate(&next)
	if err != nil {
		return nil, err
	}
	next.Version = rec.account.Version + 1
	entry.IdempotencyKey = idempotencyKey

	rec.mu.Lock()
	rec.account = next
	rec.entries = append(rec.entries, *entry)
	if idempotencyKey != "" {
		rec.idempotency[idempotencyKey] = len(rec.entries) - 1
	}
	rec.mu.Unlock()

	return &storage.ApplyResult{Account: next, Entry: *entry}, nil
}

// Ledger operations

func (s *Storage) ListLedgerEntries(ctx context.Context, id model.AccountID, limit int) ([]model.LedgerEntry, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()

	n := len(rec.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	entries := make([]model.LedgerEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		entries = append(entries, rec.entries[i])
	}
	return entries, nil
}

// Health and lifecycle

func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) record(id model.AccountID) (*accountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return rec, nil
}
