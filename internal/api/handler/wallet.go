package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mcoot/gamewallet/internal/api/apierr"
	"github.com/mcoot/gamewallet/internal/api/middleware"
	"github.com/mcoot/gamewallet/internal/api/request"
	"github.com/mcoot/gamewallet/internal/api/response"
	"github.com/mcoot/gamewallet/internal/services/ledger"
)

const (
	// IdempotencyKeyHeader carries the client's key for purchase and top-up
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses that replayed an earlier request
	ReplayedHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 255
)

// WalletHandler handles balance, purchase, top-up and history endpoints
type WalletHandler struct {
	ledger *ledger.Service
	logger *slog.Logger
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(ledgerService *ledger.Service, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		ledger: ledgerService,
		logger: logger,
	}
}

// Balance handles GET /balance
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	acct := middleware.MustGetAccount(r.Context())

	snapshot, err := h.ledger.GetBalanceAndInventory(r.Context(), acct.ID)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.BalanceFromSnapshot(snapshot))
}

// Purchase handles POST /purchase
func (h *WalletHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	acct := middleware.MustGetAccount(r.Context())

	key, err := idempotencyKey(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	var req request.PurchaseRequest
	if err := request.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	receipt, err := h.ledger.Purchase(r.Context(), acct.ID, req.Item, key)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeReceipt(w, response.StatusPurchaseSuccessful, receipt)
}

// TopUp handles POST /top-up
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	acct := middleware.MustGetAccount(r.Context())

	key, err := idempotencyKey(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	var req request.TopUpRequest
	if err := request.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	receipt, err := h.ledger.TopUp(r.Context(), acct.ID, *req.Amount, key)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeReceipt(w, response.StatusTopUpSuccessful, receipt)
}

// History handles GET /history
func (h *WalletHandler) History(w http.ResponseWriter, r *http.Request) {
	acct := middleware.MustGetAccount(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(h.logger, w, r, apierr.NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.ledger.History(r.Context(), acct.ID, limit)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.HistoryFromModel(entries))
}

func idempotencyKey(r *http.Request) (string, error) {
	key := r.Header.Get(IdempotencyKeyHeader)
	if len(key) > maxIdempotencyKeyLength {
		return "", apierr.NewInvalidRequestError("Idempotency-Key must be at most 255 characters")
	}
	return key, nil
}

func writeReceipt(w http.ResponseWriter, status string, receipt *ledger.Receipt) {
	if receipt.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	response.JSON(w, http.StatusOK, response.MutationFromReceipt(status, receipt))
}
