// Package storagetest holds the behaviour every storage backend must share.
// Backends run it from their own tests:
//
//	suite.Run(t, &storagetest.Suite{NewStorage: func(t *testing.T) storage.Storage { ... }})
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/storage"
)

// Suite is the storage conformance suite
type Suite struct {
	suite.Suite

	// NewStorage returns an empty storage for each test
	NewStorage func(t *testing.T) storage.Storage

	storage storage.Storage
	ctx     context.Context
	now     time.Time
}

func (s *Suite) SetupTest() {
	s.storage = s.NewStorage(s.T())
	s.ctx = context.Background()
	s.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

func (s *Suite) newAccount(username, referralCode string) *model.Account {
	return &model.Account{
		ID:           model.AccountID(uuid.NewString()),
		Username:     username,
		PasswordHash: "hash-" + username,
		ReferralCode: referralCode,
		CreatedAt:    s.now,
		UpdatedAt:    s.now,
	}
}

func (s *Suite) createAccount(username, referralCode string, balance int64) *model.Account {
	acct := s.newAccount(username, referralCode)
	s.Require().NoError(s.storage.CreateAccount(s.ctx, acct))
	if balance > 0 {
		_, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "", credit(balance, s.now))
		s.Require().NoError(err)
	}
	return acct
}

// credit adds amount to the balance
func credit(amount int64, at time.Time) storage.MutateFunc {
	return func(acct *model.Account) (*model.LedgerEntry, error) {
		acct.Balance += amount
		acct.UpdatedAt = at
		return &model.LedgerEntry{
			ID:           model.EntryID(uuid.NewString()),
			AccountID:    acct.ID,
			Kind:         model.EntryKindTopUp,
			Amount:       amount,
			BalanceAfter: acct.Balance,
			CreatedAt:    at,
		}, nil
	}
}

// buy spends the item price if the balance allows it
func buy(item model.Item, at time.Time) storage.MutateFunc {
	return func(acct *model.Account) (*model.LedgerEntry, error) {
		price, err := item.Price()
		if err != nil {
			return nil, err
		}
		if acct.Balance < price {
			return nil, model.ErrInsufficientBalance
		}
		acct.Balance -= price
		if err := acct.Inventory.Add(item); err != nil {
			return nil, err
		}
		acct.UpdatedAt = at
		return &model.LedgerEntry{
			ID:           model.EntryID(uuid.NewString()),
			AccountID:    acct.ID,
			Kind:         model.EntryKindPurchase,
			Item:         item,
			Amount:       -price,
			BalanceAfter: acct.Balance,
			CreatedAt:    at,
		}, nil
	}
}

// Account tests

func (s *Suite) TestCreateAndGetAccount() {
	acct := s.newAccount("alice", "REF-AAAAAA")
	acct.ReferredBy = "REF-ZZZZZZ"
	s.Require().NoError(s.storage.CreateAccount(s.ctx, acct))

	got, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(acct.ID, got.ID)
	s.Equal("alice", got.Username)
	s.Equal("hash-alice", got.PasswordHash)
	s.Equal("REF-AAAAAA", got.ReferralCode)
	s.Equal("REF-ZZZZZZ", got.ReferredBy)
	s.Equal(int64(0), got.Balance)
	s.Equal(model.Inventory{}, got.Inventory)
	s.True(acct.CreatedAt.Equal(got.CreatedAt))
}

func (s *Suite) TestGetAccountNotFound() {
	_, err := s.storage.GetAccount(s.ctx, "missing")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *Suite) TestGetAccountByUsername() {
	acct := s.createAccount("alice", "REF-AAAAAA", 0)

	got, err := s.storage.GetAccountByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(acct.ID, got.ID)

	_, err = s.storage.GetAccountByUsername(s.ctx, "Alice")
	s.ErrorIs(err, model.ErrAccountNotFound, "usernames are case-sensitive")
}

func (s *Suite) TestGetAccountByReferralCode() {
	acct := s.createAccount("alice", "REF-AAAAAA", 0)

	got, err := s.storage.GetAccountByReferralCode(s.ctx, "REF-AAAAAA")
	s.Require().NoError(err)
	s.Equal(acct.ID, got.ID)

	_, err = s.storage.GetAccountByReferralCode(s.ctx, "REF-NOPE00")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *Suite) TestCreateAccountDuplicateUsername() {
	original := s.createAccount("alice", "REF-AAAAAA", 40)

	dup := s.newAccount("alice", "REF-BBBBBB")
	err := s.storage.CreateAccount(s.ctx, dup)
	s.ErrorIs(err, model.ErrDuplicateUsername)

	got, err := s.storage.GetAccountByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(original.ID, got.ID)
	s.Equal(int64(40), got.Balance)

	_, err = s.storage.GetAccountByReferralCode(s.ctx, "REF-BBBBBB")
	s.ErrorIs(err, model.ErrAccountNotFound, "failed signup must not claim its referral code")
}

func (s *Suite) TestCreateAccountReferralCodeTaken() {
	s.createAccount("alice", "REF-AAAAAA", 0)

	err := s.storage.CreateAccount(s.ctx, s.newAccount("bob", "REF-AAAAAA"))
	s.ErrorIs(err, model.ErrReferralCodeTaken)

	_, err = s.storage.GetAccountByUsername(s.ctx, "bob")
	s.ErrorIs(err, model.ErrAccountNotFound, "failed signup must not claim its username")
}

func (s *Suite) TestConcurrentCreateSameUsername() {
	const n = 10
	var wg sync.WaitGroup
	var created, duplicates atomic.Int32

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.storage.CreateAccount(s.ctx, s.newAccount("racer", fmt.Sprintf("REF-%06d", i)))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, model.ErrDuplicateUsername):
				duplicates.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(n-1), duplicates.Load())
}

// ApplyToAccount tests

func (s *Suite) TestApplyPersistsAccountAndEntry() {
	acct := s.createAccount("alice", "REF-AAAAAA", 0)

	result, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "", credit(50, s.now))
	s.Require().NoError(err)
	s.False(result.Replayed)
	s.Equal(int64(50), result.Account.Balance)
	s.Equal(int64(1), result.Account.Version)
	s.Equal(int64(50), result.Entry.Amount)

	got, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(int64(50), got.Balance)
	s.Equal(int64(1), got.Version)

	entries, err := s.storage.ListLedgerEntries(s.ctx, acct.ID, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(result.Entry.ID, entries[0].ID)
	s.Equal(model.EntryKindTopUp, entries[0].Kind)
	s.Equal(int64(50), entries[0].BalanceAfter)
}

func (s *Suite) TestApplyUpdatesInventory() {
	acct := s.createAccount("alice", "REF-AAAAAA", 100)

	_, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "", buy(model.ItemTreasureBox, s.now))
	s.Require().NoError(err)
	_, err = s.storage.ApplyToAccount(s.ctx, acct.ID, "", buy(model.ItemGoldCoin, s.now))
	s.Require().NoError(err)

	got, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(int64(40), got.Balance)
	s.Equal(model.Inventory{GoldCoins: 1, TreasureBoxes: 1}, got.Inventory)
	s.Equal(int64(3), got.Version)
}

func (s *Suite) TestApplyErrorPersistsNothing() {
	acct := s.createAccount("alice", "REF-AAAAAA", 40)

	_, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "key-1", buy(model.ItemTreasureBox, s.now))
	s.ErrorIs(err, model.ErrInsufficientBalance)

	got, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(int64(40), got.Balance)
	s.Equal(model.Inventory{}, got.Inventory)
	s.Equal(int64(1), got.Version)

	entries, err := s.storage.ListLedgerEntries(s.ctx, acct.ID, 10)
	s.Require().NoError(err)
	s.Len(entries, 1)

	// A failed attempt does not burn the idempotency key
	_, err = s.storage.ApplyToAccount(s.ctx, acct.ID, "key-1", credit(10, s.now))
	s.Require().NoError(err)
}

func (s *Suite) TestApplyUnknownAccount() {
	called := false
	_, err := s.storage.ApplyToAccount(s.ctx, "missing", "", func(acct *model.Account) (*model.LedgerEntry, error) {
		called = true
		return nil, nil
	})
	s.ErrorIs(err, model.ErrAccountNotFound)
	s.False(called)
}

func (s *Suite) TestApplyIdempotencyKeyReplays() {
	acct := s.createAccount("alice", "REF-AAAAAA", 0)

	first, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "key-1", credit(25, s.now))
	s.Require().NoError(err)
	s.False(first.Replayed)

	called := false
	second, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "key-1", func(a *model.Account) (*model.LedgerEntry, error) {
		called = true
		return credit(25, s.now)(a)
	})
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.False(called)
	s.Equal(first.Entry.ID, second.Entry.ID)
	s.Equal(int64(25), second.Account.Balance)

	got, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(int64(25), got.Balance)
}

func (s *Suite) TestIdempotencyKeysAreScopedPerAccount() {
	alice := s.createAccount("alice", "REF-AAAAAA", 0)
	bob := s.createAccount("bob", "REF-BBBBBB", 0)

	_, err := s.storage.ApplyToAccount(s.ctx, alice.ID, "shared", credit(10, s.now))
	s.Require().NoError(err)
	result, err := s.storage.ApplyToAccount(s.ctx, bob.ID, "shared", credit(10, s.now))
	s.Require().NoError(err)
	s.False(result.Replayed)
}

func (s *Suite) TestListLedgerEntriesNewestFirstWithLimit() {
	acct := s.createAccount("alice", "REF-AAAAAA", 0)
	for i := 1; i <= 5; i++ {
		_, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "", credit(int64(i), s.now.Add(time.Duration(i)*time.Second)))
		s.Require().NoError(err)
	}

	entries, err := s.storage.ListLedgerEntries(s.ctx, acct.ID, 3)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal(int64(5), entries[0].Amount)
	s.Equal(int64(4), entries[1].Amount)
	s.Equal(int64(3), entries[2].Amount)
	s.Equal(int64(15), entries[0].BalanceAfter)
}

func (s *Suite) TestListLedgerEntriesEmpty() {
	acct := s.createAccount("alice", "REF-AAAAAA", 0)

	entries, err := s.storage.ListLedgerEntries(s.ctx, acct.ID, 10)
	s.Require().NoError(err)
	s.Empty(entries)
}

// Concurrency tests

func (s *Suite) TestConcurrentPurchasesNeverOverspend() {
	const (
		attempts   = 12
		affordable = 4
	)
	acct := s.createAccount("alice", "REF-AAAAAA", affordable*10)

	var wg sync.WaitGroup
	var succeeded, insufficient atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "", buy(model.ItemGoldCoin, s.now))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, model.ErrInsufficientBalance):
				insufficient.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(affordable), succeeded.Load())
	s.Equal(int32(attempts-affordable), insufficient.Load())

	got, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), got.Balance)
	s.Equal(int64(affordable), got.Inventory.GoldCoins)
	s.Equal(int64(affordable+1), got.Version)
}

func (s *Suite) TestConcurrentTopUpsAllApply() {
	const n = 15
	acct := s.createAccount("alice", "REF-AAAAAA", 0)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "", credit(7, s.now))
			s.NoError(err)
		}()
	}
	wg.Wait()

	got, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(int64(n*7), got.Balance)

	entries, err := s.storage.ListLedgerEntries(s.ctx, acct.ID, 0)
	s.Require().NoError(err)
	s.Len(entries, n)

	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	s.Equal(got.Balance, sum, "balance must equal the sum of ledger amounts")
}

func (s *Suite) TestConcurrentReplaysApplyOnce() {
	const n = 8
	acct := s.createAccount("alice", "REF-AAAAAA", 0)

	var wg sync.WaitGroup
	var replayed atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "same-key", credit(30, s.now))
			if s.NoError(err) && result.Replayed {
				replayed.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(n-1), replayed.Load())
	got, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(int64(30), got.Balance)
}

func (s *Suite) TestPing() {
	s.NoError(s.storage.Ping(s.ctx))
}
