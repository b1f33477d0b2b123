package response

import (
	"time"

	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/services/auth"
	"github.com/mcoot/gamewallet/internal/services/ledger"
)

// Purchase and top-up status messages
const (
	StatusPurchaseSuccessful = "Purchase Successful"
	StatusTopUpSuccessful    = "Topup Successful"
)

// Health values
const (
	HealthStatusUp   = "UP"
	StorageConnected = "CONNECTED"
	StorageDown      = "DOWN"
)

// Inventory represents item counts in API responses
type Inventory struct {
	GoldCoins     int64 `json:"goldCoins"`
	TreasureBoxes int64 `json:"treasureBoxes"`
}

// InventoryFromModel converts a model.Inventory
func InventoryFromModel(inv model.Inventory) Inventory {
	return Inventory{
		GoldCoins:     inv.GoldCoins,
		TreasureBoxes: inv.TreasureBoxes,
	}
}

// Account is the response for signup. It never carries the password hash.
type Account struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	ReferralCode string  `json:"referralCode"`
	ReferredBy   *string `json:"referredBy"`
}

// AccountFromModel converts a model.Account
func AccountFromModel(a *model.Account) Account {
	resp := Account{
		ID:           string(a.ID),
		Username:     a.Username,
		ReferralCode: a.ReferralCode,
	}
	if a.ReferredBy != "" {
		referredBy := a.ReferredBy
		resp.ReferredBy = &referredBy
	}
	return resp
}

// Session is the response for login
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionFromAuth converts an auth.Session
func SessionFromAuth(s *auth.Session) Session {
	return Session{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}

// Balance is the response for the balance endpoint
type Balance struct {
	Username     string    `json:"username"`
	ReferralCode string    `json:"referralCode"`
	Balance      int64     `json:"balance"`
	Inventory    Inventory `json:"inventory"`
}

// BalanceFromSnapshot converts a model.Snapshot
func BalanceFromSnapshot(s model.Snapshot) Balance {
	return Balance{
		Username:     s.Username,
		ReferralCode: s.ReferralCode,
		Balance:      s.Balance,
		Inventory:    InventoryFromModel(s.Inventory),
	}
}

// LedgerEntry represents one applied mutation in API responses
type LedgerEntry struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Item           string    `json:"item,omitempty"`
	Amount         int64     `json:"amount"`
	BalanceAfter   int64     `json:"balanceAfter"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// LedgerEntryFromModel converts a model.LedgerEntry
func LedgerEntryFromModel(e *model.LedgerEntry) LedgerEntry {
	return LedgerEntry{
		ID:             string(e.ID),
		Kind:           string(e.Kind),
		Item:           string(e.Item),
		Amount:         e.Amount,
		BalanceAfter:   e.BalanceAfter,
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      e.CreatedAt,
	}
}

// Mutation is the response for purchase and top-up
type Mutation struct {
	Status    string      `json:"status"`
	Balance   int64       `json:"balance"`
	Inventory Inventory   `json:"inventory"`
	Entry     LedgerEntry `json:"entry"`
}

// MutationFromReceipt converts a ledger.Receipt
func MutationFromReceipt(status string, r *ledger.Receipt) Mutation {
	return Mutation{
		Status:    status,
		Balance:   r.Snapshot.Balance,
		Inventory: InventoryFromModel(r.Snapshot.Inventory),
		Entry:     LedgerEntryFromModel(&r.Entry),
	}
}

// History is the response for the history endpoint
type History struct {
	Entries []LedgerEntry `json:"entries"`
}

// HistoryFromModel converts ledger entries, newest first
func HistoryFromModel(entries []model.LedgerEntry) History {
	resp := History{Entries: make([]LedgerEntry, 0, len(entries))}
	for i := range entries {
		resp.Entries = append(resp.Entries, LedgerEntryFromModel(&entries[i]))
	}
	return resp
}

// BalanceEvent is the payload of a "balance" event on the event stream
type BalanceEvent struct {
	Balance   int64       `json:"balance"`
	Inventory Inventory   `json:"inventory"`
	Version   int64       `json:"version"`
	Entry     LedgerEntry `json:"entry"`
}

// BalanceEventFromChange converts a notified balance change
func BalanceEventFromChange(s model.Snapshot, e *model.LedgerEntry) BalanceEvent {
	return BalanceEvent{
		Balance:   s.Balance,
		Inventory: InventoryFromModel(s.Inventory),
		Version:   s.Version,
		Entry:     LedgerEntryFromModel(e),
	}
}

// Health is the response for the health endpoint
type Health struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Storage   string `json:"storage"`
	Timestamp string `json:"timestamp"`
}
