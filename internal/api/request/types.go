package request

import "github.com/mcoot/gamewallet/internal/model"

// SignupRequest is the request body for creating an account
type SignupRequest struct {
	Username     string `json:"username" validate:"required,min=3,max=64"`
	Password     string `json:"password" validate:"required,maxbytes=72"`
	ReferralCode string `json:"referralCode" validate:"omitempty,max=16"`
}

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// PurchaseRequest is the request body for buying an item
type PurchaseRequest struct {
	Item model.Item `json:"item" validate:"required"`
}

// TopUpRequest is the request body for adding diamonds.
// Amount is a pointer so a missing field can be told apart from zero.
type TopUpRequest struct {
	Amount *int64 `json:"amount" validate:"required"`
}
