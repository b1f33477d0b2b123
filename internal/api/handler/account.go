package handler

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/gamewallet/internal/api/request"
	"github.com/mcoot/gamewallet/internal/api/response"
	"github.com/mcoot/gamewallet/internal/services/auth"
)

// AccountHandler handles signup and login
type AccountHandler struct {
	authService *auth.Service
	logger      *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(authService *auth.Service, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		authService: authService,
		logger:      logger,
	}
}

// Signup handles POST /signup
func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req request.SignupRequest
	if err := request.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	acct, err := h.authService.Signup(r.Context(), req.Username, req.Password, req.ReferralCode)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.AccountFromModel(acct))
}

// Login handles POST /login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if err := request.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	session, err := h.authService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SessionFromAuth(session))
}
