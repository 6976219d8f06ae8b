package SOLRPC

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

var (
	ErrUnconfirmed       = errors.New("transaction not confirmed in time")
	ErrTransactionFailed = errors.New("transaction failed on chain")
)

type TxStatus int

const (
	TxUnknown   TxStatus = iota // not seen by the node yet
	TxProcessed                 // seen, not yet at the required commitment
	TxConfirmed
	TxFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxProcessed:
		return "processed"
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SignatureStatus reports how far a transaction got. Confirmed and finalized both count as confirmed.
func (c *Client) SignatureStatus(ctx context.Context, signature string) (TxStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return TxUnknown, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	return WithClient(c, func(client *rpc.Client) (TxStatus, error) {
		res, err := client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return TxUnknown, err
		}
		if len(res.Value) == 0 || res.Value[0] == nil {
			return TxUnknown, nil
		}

		st := res.Value[0]
		if st.Err != nil {
			return TxFailed, nil
		}
		switch st.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return TxConfirmed, nil
		default:
			return TxProcessed, nil
		}
	})
}

// PollConfirmation calls fetch every interval until the transaction is confirmed, fails,
// or maxAttempts polls have been made. Fetch errors count as an unknown status.
func PollConfirmation(ctx context.Context, fetch func(ctx context.Context) (TxStatus, error), interval time.Duration, maxAttempts int, logger *zap.Logger) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := fetch(ctx)
		if err != nil {
			logger.Debug("error checking transaction status", zap.Int("attempt", attempt), zap.Error(err))
		}
		switch status {
		case TxConfirmed:
			return nil
		case TxFailed:
			return ErrTransactionFailed
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return ErrUnconfirmed
}

// WaitForConfirmation polls the signature status of a sent transaction.
func (c *Client) WaitForConfirmation(ctx context.Context, signature string, interval time.Duration, maxAttempts int) error {
	return PollConfirmation(ctx, func(ctx context.Context) (TxStatus, error) {
		return c.SignatureStatus(ctx, signature)
	}, interval, maxAttempts, c.logger)
}
