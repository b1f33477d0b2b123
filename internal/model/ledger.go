package model

import "time"

// EntryID uniquely identifies a ledger entry
type EntryID string

// EntryKind is the type of ledger mutation
type EntryKind string

const (
	EntryKindPurchase EntryKind = "purchase"
	EntryKindTopUp    EntryKind = "top_up"
)

// LedgerEntry records one applied balance mutation.
// Amount is the signed balance delta; the sum of an account's entries equals its balance.
type LedgerEntry struct {
	ID             EntryID   `json:"id"`
	AccountID      AccountID `json:"account_id"`
	Kind           EntryKind `json:"kind"`
	Item           Item      `json:"item,omitempty"`
	Amount         int64     `json:"amount"`
	BalanceAfter   int64     `json:"balance_after"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SameOperation reports whether two entries describe the same requested operation
func (e *LedgerEntry) SameOperation(other *LedgerEntry) bool {
	return e.Kind == other.Kind && e.Item == other.Item && e.Amount == other.Amount
}
