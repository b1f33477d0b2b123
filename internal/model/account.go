package model

import "time"

// AccountID uniquely identifies a wallet account
type AccountID string

// Inventory holds the item counts owned by an account
type Inventory struct {
	GoldCoins     int64 `json:"goldCoins"`
	TreasureBoxes int64 `json:"treasureBoxes"`
}

// Add increments the count for an item by one
func (inv *Inventory) Add(item Item) error {
	switch item {
	case ItemGoldCoin:
		inv.GoldCoins++
	case ItemTreasureBox:
		inv.TreasureBoxes++
	default:
		return ErrUnknownItem
	}
	return nil
}

// Account is a user's wallet: credentials, referral data, balance and inventory.
// It contains no reference types, so assigning an Account copies it fully.
type Account struct {
	ID           AccountID `json:"id"`
	Username     string    `json:"username"`      // case-sensitive, immutable
	PasswordHash string    `json:"password_hash"` // bcrypt hash, never returned by the API
	ReferralCode string    `json:"referral_code"`
	ReferredBy   string    `json:"referred_by,omitempty"` // referral code used at signup
	Balance      int64     `json:"balance"`
	Inventory    Inventory `json:"inventory"`
	Version      int64     `json:"version"` // bumped by every ledger mutation
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot returns the read-only balance view of the account
func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		AccountID:    a.ID,
		Username:     a.Username,
		ReferralCode: a.ReferralCode,
		Balance:      a.Balance,
		Inventory:    a.Inventory,
		Version:      a.Version,
	}
}

// Snapshot is a consistent point-in-time view of an account's balance and inventory
type Snapshot struct {
	AccountID    AccountID
	Username     string
	ReferralCode string
	Balance      int64
	Inventory    Inventory
	Version      int64
}
