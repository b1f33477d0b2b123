package cli

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mcoot/gamewallet/internal/model"
)

const (
	// busyRetries is how often a mutation is retried when the account is busy
	busyRetries = 3
	busyBackoff = 200 * time.Millisecond
)

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show balance and inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Balance

			if err := client.Get("/balance", &result); err != nil {
				return err
			}

			newOutput(cmd).Print(result)
			return nil
		},
	}
}

func newPurchaseCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:       "purchase <gold_coin|treasure_box>",
		Short:     "Buy an item with diamonds",
		Args:      cobra.ExactArgs(1),
		ValidArgs: itemNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := mutate("/purchase", map[string]string{"item": args[0]}, key)
			if err != nil {
				return err
			}
			newOutput(cmd).Print(*result)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key (default: a new random key)")

	return cmd
}

func newTopUpCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "top-up <amount>",
		Short: "Add diamonds to the balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: must be a whole number", args[0])
			}

			result, err := mutate("/top-up", map[string]int64{"amount": amount}, key)
			if err != nil {
				return err
			}
			newOutput(cmd).Print(*result)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key (default: a new random key)")

	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show ledger entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/history"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			var result History

			if err := client.Get(path, &result); err != nil {
				return err
			}

			newOutput(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of entries (server default 50, max 200)")

	return cmd
}

// mutate posts a purchase or top-up. Every attempt carries the same
// idempotency key, so retrying a busy account never applies it twice.
func mutate(path string, body any, key string) (*Mutation, error) {
	if key == "" {
		key = uuid.NewString()
	}
	headers := map[string]string{"Idempotency-Key": key}

	var (
		result Mutation
		header http.Header
	)
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = busyBackoff
	err := backoff.Retry(func() error {
		var err error
		header, err = client.DoWithHeaders(http.MethodPost, path, headers, body, &result)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "ACCOUNT_BUSY" {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithMaxRetries(policy, busyRetries))
	if err != nil {
		return nil, err
	}

	result.Replayed = header.Get("Idempotent-Replayed") == "true"
	return &result, nil
}

// itemNames lists the catalog for shell completion
func itemNames() []string {
	items := model.Items()
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = string(item)
	}
	return names
}
