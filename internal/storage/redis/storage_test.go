package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/storage"
	"github.com/mcoot/gamewallet/internal/storage/storagetest"
)

func newTestStorage(t *testing.T) (*Storage, *miniredis.Miniredis) {
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:     mini.Addr(),
		PoolSize: 32,
	})

	cfg := DefaultConfig()
	// Contended tests race many goroutines on one key
	cfg.MaxRetries = 1000
	cfg.LockTimeout = 30 * time.Second

	return NewWithClient(client, cfg), mini
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, &storagetest.Suite{
		NewStorage: func(t *testing.T) storage.Storage {
			s, _ := newTestStorage(t)
			return s
		},
	})
}

type RedisSuite struct {
	suite.Suite
	mini    *miniredis.Miniredis
	storage *Storage
	ctx     context.Context
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupTest() {
	s.storage, s.mini = newTestStorage(s.T())
	s.ctx = context.Background()
}

func (s *RedisSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

func (s *RedisSuite) createAccount() *model.Account {
	acct := &model.Account{
		ID:           model.AccountID(uuid.NewString()),
		Username:     "alice",
		PasswordHash: "hash",
		ReferralCode: "REF-AAAAAA",
	}
	s.Require().NoError(s.storage.CreateAccount(s.ctx, acct))
	return acct
}

func topUp(amount int64) storage.MutateFunc {
	return func(a *model.Account) (*model.LedgerEntry, error) {
		a.Balance += amount
		return &model.LedgerEntry{
			ID:           model.EntryID(uuid.NewString()),
			AccountID:    a.ID,
			Kind:         model.EntryKindTopUp,
			Amount:       amount,
			BalanceAfter: a.Balance,
		}, nil
	}
}

func (s *RedisSuite) TestKeyLayout() {
	acct := s.createAccount()
	_, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "k1", topUp(10))
	s.Require().NoError(err)

	s.True(s.mini.Exists("gwallet:account:" + string(acct.ID)))

	id, err := s.mini.Get("gwallet:idx:username:alice")
	s.Require().NoError(err)
	s.Equal(string(acct.ID), id)

	id, err = s.mini.Get("gwallet:idx:referral:REF-AAAAAA")
	s.Require().NoError(err)
	s.Equal(string(acct.ID), id)

	ledger, err := s.mini.List("gwallet:ledger:" + string(acct.ID))
	s.Require().NoError(err)
	s.Len(ledger, 1)

	stored := s.mini.HGet("gwallet:idem:"+string(acct.ID), "k1")
	var entry model.LedgerEntry
	s.Require().NoError(json.Unmarshal([]byte(stored), &entry))
	s.Equal(int64(10), entry.Amount)
	s.Equal("k1", entry.IdempotencyKey)
}

func (s *RedisSuite) TestAccountDoesNotExpire() {
	acct := s.createAccount()
	s.mini.FastForward(365 * 24 * time.Hour)

	_, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.NoError(err)
}

func (s *RedisSuite) TestListLedgerEntriesUnknownAccount() {
	_, err := s.storage.ListLedgerEntries(s.ctx, "missing", 10)
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *RedisSuite) TestRetryBudgetExhaustedIsBusy() {
	acct := s.createAccount()
	s.storage.cfg.MaxRetries = 3

	// Every attempt sees the account change underneath it
	attempts := 0
	_, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "", func(a *model.Account) (*model.LedgerEntry, error) {
		attempts++
		s.mini.Set("gwallet:account:"+string(acct.ID), mustJSON(s.T(), a))
		return topUp(1)(a)
	})
	s.ErrorIs(err, model.ErrAccountBusy)
	s.Equal(3, attempts)

	got, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), got.Balance)
}

func (s *RedisSuite) TestConflictIsRetried() {
	acct := s.createAccount()

	// Only the first attempt races with another writer
	attempts := 0
	result, err := s.storage.ApplyToAccount(s.ctx, acct.ID, "", func(a *model.Account) (*model.LedgerEntry, error) {
		attempts++
		if attempts == 1 {
			s.mini.Set("gwallet:account:"+string(acct.ID), mustJSON(s.T(), a))
		}
		return topUp(1)(a)
	})
	s.Require().NoError(err)
	s.Equal(2, attempts)
	s.Equal(int64(1), result.Account.Balance)
}

func (s *RedisSuite) TestCancelledContextStopsRetrying() {
	acct := s.createAccount()
	ctx, cancel := context.WithCancel(s.ctx)

	_, err := s.storage.ApplyToAccount(ctx, acct.ID, "", func(a *model.Account) (*model.LedgerEntry, error) {
		s.mini.Set("gwallet:account:"+string(acct.ID), mustJSON(s.T(), a))
		cancel()
		return topUp(1)(a)
	})
	s.ErrorIs(err, context.Canceled)
}

func (s *RedisSuite) TestPingAfterServerClose() {
	s.NoError(s.storage.Ping(s.ctx))
	s.mini.Close()
	s.Error(s.storage.Ping(s.ctx))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
