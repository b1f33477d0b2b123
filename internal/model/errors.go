package model

import "errors"

// Common errors used across the application
var (
	// Account errors
	ErrAccountNotFound     = errors.New("account not found")
	ErrDuplicateUsername   = errors.New("username already exists")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrReferralCodeTaken   = errors.New("referral code already in use")

	// Auth errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")

	// Ledger errors
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrUnknownItem          = errors.New("unknown item")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrAccountBusy          = errors.New("account is busy, try again")
	ErrIdempotencyKeyReused = errors.New("idempotency key was used for a different operation")
)
