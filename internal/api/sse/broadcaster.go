package sse

import (
	"encoding/json"
	"log/slog"

	"github.com/mcoot/gamewallet/internal/api/response"
	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/services/ledger"
)

// EventBalance is sent after every applied purchase or top-up
const EventBalance = "balance"

// Broadcaster pushes balance changes to the account's open streams
type Broadcaster struct {
	hubManager *HubManager
	logger     *slog.Logger
}

// Ensure Broadcaster implements ledger.Notifier
var _ ledger.Notifier = (*Broadcaster)(nil)

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hubManager *HubManager, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hubManager: hubManager,
		logger:     logger.With(slog.String("component", "sse-broadcaster")),
	}
}

// BalanceChanged sends a balance event. Accounts without open streams are skipped.
func (b *Broadcaster) BalanceChanged(snapshot model.Snapshot, entry model.LedgerEntry) {
	hub := b.hubManager.GetHub(snapshot.AccountID)
	if hub == nil {
		return
	}

	data, err := json.Marshal(response.BalanceEventFromChange(snapshot, &entry))
	if err != nil {
		b.logger.Error("failed to encode balance event", slog.String("error", err.Error()))
		return
	}
	hub.BroadcastEvent(EventBalance, string(data))
}
