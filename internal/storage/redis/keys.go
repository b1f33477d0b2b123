package redis

import (
	"fmt"

	"github.com/mcoot/gamewallet/internal/model"
)

// Key prefix for all wallet data
const keyPrefix = "gwallet"

// accountKey returns the Redis key for an Account (JSON)
func accountKey(id model.AccountID) string {
	return fmt.Sprintf("%s:account:%s", keyPrefix, id)
}

// usernameIndexKey returns the Redis key for the username -> account_id index
func usernameIndexKey(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", keyPrefix, username)
}

// referralIndexKey returns the Redis key for the referral code -> account_id index
func referralIndexKey(code string) string {
	return fmt.Sprintf("%s:idx:referral:%s", keyPrefix, code)
}

// ledgerKey returns the Redis key for the LIST of an account's ledger entries, newest first
func ledgerKey(id model.AccountID) string {
	return fmt.Sprintf("%s:ledger:%s", keyPrefix, id)
}

// idempotencyKey returns the Redis key for the HASH of idempotency key -> entry JSON
func idempotencyKey(id model.AccountID) string {
	return fmt.Sprintf("%s:idem:%s", keyPrefix, id)
}
