package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/gamewallet/internal/dependencies/clock"
	"github.com/mcoot/gamewallet/internal/dependencies/random"
	"github.com/mcoot/gamewallet/internal/metrics"
	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/storage"
)

const (
	// ReferralCodePrefix starts every generated referral code
	ReferralCodePrefix = "REF-"
	// ReferralCodeLength is the number of random characters after the prefix
	ReferralCodeLength = 6
	// ReferralCodeAlphabet is the characters used in referral codes (avoid confusing chars)
	ReferralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxReferralCodeAttempts = 10

	// History limits
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Operation names used in logs and metrics
const (
	OpCreateAccount = "create_account"
	OpPurchase      = "purchase"
	OpTopUp         = "top_up"
)

// Notifier is told about every applied balance change
type Notifier interface {
	BalanceChanged(snapshot model.Snapshot, entry model.LedgerEntry)
}

// Config holds configuration for the ledger service
type Config struct {
	// MaxTopUp caps a single top-up amount; 0 means unlimited
	MaxTopUp int64
}

// Receipt is the result of a purchase or top-up
type Receipt struct {
	Snapshot model.Snapshot
	Entry    model.LedgerEntry
	// Replayed is true when the idempotency key matched an earlier request
	// and nothing new was applied
	Replayed bool
}

// Service owns account creation and every balance mutation
type Service struct {
	storage  storage.Storage
	clock    clock.Clock
	random   random.Random
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config
}

// NewService creates a new ledger Service. notifier and metrics may be nil.
func NewService(
	storage storage.Storage,
	clock clock.Clock,
	random random.Random,
	notifier Notifier,
	metrics *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	return &Service{
		storage:  storage,
		clock:    clock,
		random:   random,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "ledger")),
		cfg:      cfg,
	}
}

// CreateAccount stores a new account with a zero balance and a fresh referral code.
// referralCode, when non-empty, must belong to an existing account.
func (s *Service) CreateAccount(ctx context.Context, username, passwordHash, referralCode string) (*model.Account, error) {
	start := time.Now()
	acct, err := s.createAccount(ctx, username, passwordHash, referralCode)
	s.metrics.ObserveLedgerOperation(OpCreateAccount, resultLabel(err), time.Since(start))
	return acct, err
}

func (s *Service) createAccount(ctx context.Context, username, passwordHash, referralCode string) (*model.Account, error) {
	_, err := s.storage.GetAccountByUsername(ctx, username)
	if err == nil {
		return nil, model.ErrDuplicateUsername
	}
	if !errors.Is(err, model.ErrAccountNotFound) {
		return nil, err
	}

	if referralCode != "" {
		if _, err := s.storage.GetAccountByReferralCode(ctx, referralCode); err != nil {
			if errors.Is(err, model.ErrAccountNotFound) {
				return nil, model.ErrInvalidReferralCode
			}
			return nil, err
		}
	}

	now := s.clock.Now()
	for attempt := 0; attempt < maxReferralCodeAttempts; attempt++ {
		acct := &model.Account{
			ID:           model.AccountID(uuid.NewString()),
			Username:     username,
			PasswordHash: passwordHash,
			ReferralCode: ReferralCodePrefix + s.random.String(ReferralCodeLength, ReferralCodeAlphabet),
			ReferredBy:   referralCode,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		err := s.storage.CreateAccount(ctx, acct)
		if errors.Is(err, model.ErrReferralCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.InfoContext(ctx, "account created",
			slog.String("account_id", string(acct.ID)),
			slog.String("referral_code", acct.ReferralCode),
			slog.Bool("referred", referralCode != ""),
		)
		return acct, nil
	}
	return nil, fmt.Errorf("no free referral code after %d attempts: %w", maxReferralCodeAttempts, model.ErrReferralCodeTaken)
}

// GetBalanceAndInventory returns a consistent snapshot of the account
func (s *Service) GetBalanceAndInventory(ctx context.Context, id model.AccountID) (model.Snapshot, error) {
	acct, err := s.storage.GetAccount(ctx, id)
	if err != nil {
		return model.Snapshot{}, err
	}
	return acct.Snapshot(), nil
}

// Purchase spends the item's price and adds the item to the inventory.
// The balance check and the debit happen in one atomic step.
func (s *Service) Purchase(ctx context.Context, id model.AccountID, item model.Item, idempotencyKey string) (*Receipt, error) {
	start := time.Now()

	price, err := item.Price()
	if err != nil {
		s.metrics.ObserveLedgerOperation(OpPurchase, resultLabel(err), time.Since(start))
		return nil, err
	}

	now := s.clock.Now()
	requested := model.LedgerEntry{Kind: model.EntryKindPurchase, Item: item, Amount: -price}

	result, err := s.storage.ApplyToAccount(ctx, id, idempotencyKey, func(acct *model.Account) (*model.LedgerEntry, error) {
		if acct.Balance < price {
			return nil, model.ErrInsufficientBalance
		}
		acct.Balance -= price
		if err := acct.Inventory.Add(item); err != nil {
			return nil, err
		}
		acct.UpdatedAt = now
		return s.newEntry(acct, requested, now), nil
	})
	return s.complete(ctx, OpPurchase, start, &requested, result, err)
}

// TopUp adds amount diamonds to the balance
func (s *Service) TopUp(ctx context.Context, id model.AccountID, amount int64, idempotencyKey string) (*Receipt, error) {
	start := time.Now()

	if err := s.checkTopUpAmount(amount); err != nil {
		s.metrics.ObserveLedgerOperation(OpTopUp, resultLabel(err), time.Since(start))
		return nil, err
	}

	now := s.clock.Now()
	requested := model.LedgerEntry{Kind: model.EntryKindTopUp, Amount: amount}

	result, err := s.storage.ApplyToAccount(ctx, id, idempotencyKey, func(acct *model.Account) (*model.LedgerEntry, error) {
		if acct.Balance > math.MaxInt64-amount {
			return nil, fmt.Errorf("%w: balance would overflow", model.ErrInvalidAmount)
		}
		acct.Balance += amount
		acct.UpdatedAt = now
		return s.newEntry(acct, requested, now), nil
	})
	return s.complete(ctx, OpTopUp, start, &requested, result, err)
}

func (s *Service) checkTopUpAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: must be positive", model.ErrInvalidAmount)
	}
	if s.cfg.MaxTopUp > 0 && amount > s.cfg.MaxTopUp {
		return fmt.Errorf("%w: exceeds the maximum top-up of %d", model.ErrInvalidAmount, s.cfg.MaxTopUp)
	}
	return nil
}

// History returns the account's ledger entries, newest first.
// limit is clamped to [1, MaxHistoryLimit]; 0 or less means DefaultHistoryLimit.
func (s *Service) History(ctx context.Context, id model.AccountID, limit int) ([]model.LedgerEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return s.storage.ListLedgerEntries(ctx, id, limit)
}

func (s *Service) newEntry(acct *model.Account, requested model.LedgerEntry, now time.Time) *model.LedgerEntry {
	return &model.LedgerEntry{
		ID:           model.EntryID(uuid.NewString()),
		AccountID:    acct.ID,
		Kind:         requested.Kind,
		Item:         requested.Item,
		Amount:       requested.Amount,
		BalanceAfter: acct.Balance,
		CreatedAt:    now,
	}
}

// complete turns a storage result into a Receipt, checks replays against the
// requested operation, and records metrics and notifications
func (s *Service) complete(ctx context.Context, op string, start time.Time, requested *model.LedgerEntry, result *storage.ApplyResult, err error) (*Receipt, error) {
	if err == nil && result.Replayed && !result.Entry.SameOperation(requested) {
		err = model.ErrIdempotencyKeyReused
	}
	if err != nil {
		s.metrics.ObserveLedgerOperation(op, resultLabel(err), time.Since(start))
		if errors.Is(err, model.ErrAccountBusy) {
			s.logger.WarnContext(ctx, "account busy", slog.String("operation", op))
		}
		return nil, err
	}

	receipt := &Receipt{
		Snapshot: result.Account.Snapshot(),
		Entry:    result.Entry,
		Replayed: result.Replayed,
	}

	if result.Replayed {
		s.metrics.ObserveLedgerOperation(op, "replayed", time.Since(start))
		s.logger.DebugContext(ctx, "idempotent request replayed",
			slog.String("operation", op),
			slog.String("entry_id", string(result.Entry.ID)),
		)
		return receipt, nil
	}

	s.metrics.ObserveLedgerOperation(op, "ok", time.Since(start))
	s.metrics.AddDiamonds(result.Entry.Amount)
	s.logger.DebugContext(ctx, "ledger entry applied",
		slog.String("operation", op),
		slog.String("account_id", string(result.Account.ID)),
		slog.String("entry_id", string(result.Entry.ID)),
		slog.Int64("amount", result.Entry.Amount),
		slog.Int64("balance", result.Account.Balance),
	)

	if s.notifier != nil {
		s.notifier.BalanceChanged(receipt.Snapshot, receipt.Entry)
	}
	return receipt, nil
}

// resultLabel maps an operation error to a metrics label
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, model.ErrUnknownItem):
		return "unknown_item"
	case errors.Is(err, model.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, model.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, model.ErrAccountBusy):
		return "busy"
	case errors.Is(err, model.ErrIdempotencyKeyReused):
		return "idempotency_key_reused"
	case errors.Is(err, model.ErrDuplicateUsername):
		return "duplicate_username"
	case errors.Is(err, model.ErrInvalidReferralCode):
		return "invalid_referral_code"
	default:
		return "error"
	}
}
