package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Writes use WATCH/MULTI/EXEC, retried on conflict.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	defaults := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaults.LockTimeout
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, acct *model.Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return err
	}

	userKey := usernameIndexKey(acct.Username)
	refKey := referralIndexKey(acct.ReferralCode)

	return s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, userKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return model.ErrDuplicateUsername
		}
		n, err = tx.Exists(ctx, refKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return model.ErrReferralCodeTaken
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, accountKey(acct.ID), data, 0)
			pipe.Set(ctx, userKey, string(acct.ID), 0)
			pipe.Set(ctx, refKey, string(acct.ID), 0)
			return nil
		})
		return err
	}, userKey, refKey)
}

func (s *Storage) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	return getAccount(ctx, s.client, id)
}

func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return s.getAccountByIndex(ctx, usernameIndexKey(username))
}

func (s *Storage) GetAccountByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	return s.getAccountByIndex(ctx, referralIndexKey(code))
}

func (s *Storage) getAccountByIndex(ctx context.Context, key string) (*model.Account, error) {
	id, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetAccount(ctx, model.AccountID(id))
}

func (s *Storage) ApplyToAccount(ctx context.Context, id model.AccountID, idemKey string, mutate storage.MutateFunc) (*storage.ApplyResult, error) {
	acctKey := accountKey(id)
	idemHashKey := idempotencyKey(id)

	var result *storage.ApplyResult
	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := getAccount(ctx, tx, id)
		if err != nil {
			return err
		}

		if idemKey != "" {
			data, err := tx.HGet(ctx, idemHashKey, idemKey).Bytes()
			switch {
			case err == nil:
				var entry model.LedgerEntry
				if err := json.Unmarshal(data, &entry); err != nil {
					return err
				}
				result = &storage.ApplyResult{Account: *current, Entry: entry, Replayed: true}
				return nil
			case !errors.Is(err, redis.Nil):
				return err
			}
		}

		next := *current
		entry, err := mutate(&next)
		if err != nil {
			return err
		}
		next.Version = current.Version + 1
		entry.IdempotencyKey = idemKey

		acctData, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		entryData, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, acctKey, acctData, 0)
			pipe.LPush(ctx, ledgerKey(id), entryData)
			if idemKey != "" {
				pipe.HSet(ctx, idemHashKey, idemKey, entryData)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = &storage.ApplyResult{Account: next, Entry: *entry}
		return nil
	}, acctKey, idemHashKey)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Ledger operations

func (s *Storage) ListLedgerEntries(ctx context.Context, id model.AccountID, limit int) ([]model.LedgerEntry, error) {
	n, err := s.client.Exists(ctx, accountKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, model.ErrAccountNotFound
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := s.client.LRange(ctx, ledgerKey(id), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.LedgerEntry, 0, len(raw))
	for _, data := range raw {
		var entry model.LedgerEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Health

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// watch runs fn in a WATCH transaction on keys, retrying with jittered
// exponential backoff while another client wins the race
func (s *Storage) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	err := backoff.Retry(func() error {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(s.retryPolicy(), ctx))
	if errors.Is(err, redis.TxFailedErr) {
		return model.ErrAccountBusy
	}
	return err
}

// retryPolicy allows MaxRetries attempts in total, all within LockTimeout
func (s *Storage) retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Millisecond
	policy.MaxInterval = 20 * time.Millisecond
	policy.MaxElapsedTime = s.cfg.LockTimeout
	return backoff.WithMaxRetries(policy, uint64(max(s.cfg.MaxRetries-1, 0)))
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getAccount(ctx context.Context, c getter, id model.AccountID) (*model.Account, error) {
	data, err := c.Get(ctx, accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}

	var acct model.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}
