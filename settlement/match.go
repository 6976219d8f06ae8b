// Package settlement decides what an inbound bridge transaction is worth:
// who sent it, how much of the bridged asset arrived, and what that converts to.
package settlement

import (
	"errors"
	"math"

	"trtlbridge/types"
)

var (
	ErrNoSender         = errors.New("TX has no spendable inputs")
	ErrTooManySenders   = errors.New("TX has too many senders")
	ErrNoMatchingOutput = errors.New("TX does not match bridge conditions")
	ErrNonPositive      = errors.New("TX sends no bridged amount")
	ErrAmountOverflow   = errors.New("TX amount overflows")
)

// Rejection is returned when a transaction is not a valid settlement.
// Reason is shown to the user as is.
type Rejection struct {
	Reason string
	Err    error
}

func (r *Rejection) Error() string { return r.Reason }

func (r *Rejection) Unwrap() error { return r.Err }

func reject(err error) *Rejection {
	return &Rejection{Reason: err.Error(), Err: err}
}

// IsRejection reports whether err rejects the transaction as input, as opposed to failing to process it.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// Match is a validated settlement.
type Match struct {
	Sender string
	Amount uint64
}

// MatchSettlement finds the single sender of a transaction and the quantity of assetID it delivered to receivingAddress.
func MatchSettlement(inputs []types.TxInput, outputs []types.TxOutput, receivingAddress, assetID string) (Match, error) {
	senders := make(map[string]struct{})
	var sender string
	for _, in := range inputs {
		if in.Collateral || in.Reference {
			continue
		}
		if _, ok := senders[in.Address]; !ok {
			senders[in.Address] = struct{}{}
			sender = in.Address
		}
	}

	if len(senders) == 0 {
		return Match{}, reject(ErrNoSender)
	}
	if len(senders) > 1 {
		return Match{}, reject(ErrTooManySenders)
	}

	var (
		amount  uint64
		matched bool
	)
	for _, out := range outputs {
		if out.Address != receivingAddress {
			continue
		}
		for _, a := range out.Amount {
			if a.Unit != assetID {
				continue
			}
			matched = true
			if a.Quantity > math.MaxUint64-amount {
				return Match{}, reject(ErrAmountOverflow)
			}
			amount += a.Quantity
		}
	}

	if !matched {
		return Match{}, reject(ErrNoMatchingOutput)
	}
	if amount == 0 {
		return Match{}, reject(ErrNonPositive)
	}

	return Match{Sender: sender, Amount: amount}, nil
}
