package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
	errW   io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w, errW io.Writer) *Output {
	return &Output{format: format, w: w, errW: errW}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		_, _ = fmt.Fprintln(o.errW, string(data))
	} else {
		_, _ = fmt.Fprintf(o.errW, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Account:
		o.printAccount(v)
	case Session:
		o.printSession(v)
	case Balance:
		o.printBalance(v)
	case Mutation:
		o.printMutation(v)
	case History:
		o.printHistory(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Account response type (matches API)
type Account struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	ReferralCode string  `json:"referralCode"`
	ReferredBy   *string `json:"referredBy"`
}

// Session response type
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Inventory response type
type Inventory struct {
	GoldCoins     int64 `json:"goldCoins"`
	TreasureBoxes int64 `json:"treasureBoxes"`
}

// Balance response type
type Balance struct {
	Username     string    `json:"username"`
	ReferralCode string    `json:"referralCode"`
	Balance      int64     `json:"balance"`
	Inventory    Inventory `json:"inventory"`
}

// LedgerEntry response type
type LedgerEntry struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Item           string    `json:"item,omitempty"`
	Amount         int64     `json:"amount"`
	BalanceAfter   int64     `json:"balanceAfter"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Mutation is the purchase and top-up response type
type Mutation struct {
	Status    string      `json:"status"`
	Balance   int64       `json:"balance"`
	Inventory Inventory   `json:"inventory"`
	Entry     LedgerEntry `json:"entry"`
	// Replayed is set from the Idempotent-Replayed response header
	Replayed bool `json:"replayed,omitempty"`
}

// History response type
type History struct {
	Entries []LedgerEntry `json:"entries"`
}

// HealthResult response type
type HealthResult struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Storage   string `json:"storage"`
	Timestamp string `json:"timestamp"`
}

func (o *Output) printAccount(a Account) {
	_, _ = fmt.Fprintf(o.w, "Account: %s (%s)\n", a.Username, a.ID)
	_, _ = fmt.Fprintf(o.w, "Referral code: %s\n", a.ReferralCode)
	if a.ReferredBy != nil {
		_, _ = fmt.Fprintf(o.w, "Referred by: %s\n", *a.ReferredBy)
	}
}

func (o *Output) printSession(s Session) {
	_, _ = fmt.Fprintln(o.w, "Logged in")
	_, _ = fmt.Fprintf(o.w, "Expires: %s\n", s.ExpiresAt.Local().Format(time.RFC1123))
}

func (o *Output) printInventory(inv Inventory) {
	_, _ = fmt.Fprintf(o.w, "Gold coins: %d\n", inv.GoldCoins)
	_, _ = fmt.Fprintf(o.w, "Treasure boxes: %d\n", inv.TreasureBoxes)
}

func (o *Output) printBalance(b Balance) {
	_, _ = fmt.Fprintf(o.w, "Account: %s\n", b.Username)
	_, _ = fmt.Fprintf(o.w, "Referral code: %s\n", b.ReferralCode)
	_, _ = fmt.Fprintf(o.w, "Balance: %d diamonds\n", b.Balance)
	o.printInventory(b.Inventory)
}

func (o *Output) printMutation(m Mutation) {
	status := m.Status
	if m.Replayed {
		status += " (replayed)"
	}
	_, _ = fmt.Fprintln(o.w, status)
	_, _ = fmt.Fprintf(o.w, "Balance: %d diamonds\n", m.Balance)
	o.printInventory(m.Inventory)
}

func (o *Output) printHistory(h History) {
	if len(h.Entries) == 0 {
		_, _ = fmt.Fprintln(o.w, "No ledger entries")
		return
	}
	for _, e := range h.Entries {
		what := e.Kind
		if e.Item != "" {
			what += " " + e.Item
		}
		_, _ = fmt.Fprintf(o.w, "%s  %-22s %+6d  balance %d\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), what, e.Amount, e.BalanceAfter)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	_, _ = fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	if h.Storage != "" {
		_, _ = fmt.Fprintf(o.w, "Storage: %s\n", h.Storage)
	}
}
