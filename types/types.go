package types

import "time"

// SchemaVersion of BridgeRecord documents written by this service.
// Documents without a version are the pre-versioned ada/sol shape and get migrated at startup.
const SchemaVersion = 1

type BridgeStatus string

const (
	StatusPending   BridgeStatus = "pending"   // source transaction matched, payout not sent
	StatusSubmitted BridgeStatus = "submitted" // payout signed and recorded, sent or about to be
	StatusCompleted BridgeStatus = "completed" // payout confirmed
	StatusFailed    BridgeStatus = "failed"    // retries exhausted, needs manual review
)

// Conversion keeps the inputs the destination amount was computed from,
// so it can be recomputed and drift audited later.
type Conversion struct {
	SourceDecimals    uint8  `json:"sourceDecimals" bson:"sourceDecimals"`
	DestDecimals      uint8  `json:"destDecimals" bson:"destDecimals"`
	SourceCirculating uint64 `json:"sourceCirculating" bson:"sourceCirculating"`
	DestCirculating   uint64 `json:"destCirculating" bson:"destCirculating"`
}

// BridgeRecord is one inbound Cardano settlement and its Solana payout.
type BridgeRecord struct {
	ID                 string       `json:"id"`
	SchemaVersion      int          `json:"schemaVersion"`
	Status             BridgeStatus `json:"status"`
	SourceTxHash       string       `json:"sourceTxHash"`
	SourceAddress      string       `json:"sourceAddress"`
	SourceAmount       uint64       `json:"sourceAmount"`
	DestinationAddress string       `json:"destinationAddress"`
	DestinationAmount  uint64       `json:"destinationAmount"`
	DestinationTxHash  string       `json:"destinationTxHash,omitempty"`
	PendingTxHash      string       `json:"pendingTxHash,omitempty"`
	// last block height at which the pending payout can still land
	PendingValidUntil  uint64       `json:"pendingValidUntil,omitempty"`
	Completed          bool         `json:"completed"`
	Attempts           int          `json:"attempts"`
	Message            string       `json:"message,omitempty"` // messages that help to track processing/errors
	Conversion         Conversion   `json:"conversion"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// AppendMessage joins processing notes the way operators read them in the stats endpoints.
func (r *BridgeRecord) AppendMessage(msg string) {
	if r.Message == "" {
		r.Message = msg
	} else {
		r.Message += "; " + msg
	}
}

// WalletLink binds a Cardano wallet to the Solana wallet receiving its payouts.
// Stored in redis, the registry is small and read on every bridge submission.
type WalletLink struct {
	ID        string `json:"id"`
	Cardano   string `json:"cardano,omitempty"`
	Solana    string `json:"solana,omitempty"`
	TsCreated int64  `json:"tsCreated"`
}

// AssetAmount is a quantity of one asset (unit = policy id + hex name, or "lovelace").
type AssetAmount struct {
	Unit     string
	Quantity uint64
}

type TxInput struct {
	Address string
	Amount  []AssetAmount
	// collateral and reference inputs are not spent by a valid transaction
	Collateral bool
	Reference  bool
}

type TxOutput struct {
	Address string
	Amount  []AssetAmount
}

// TxUTXOs is a transaction's resolved inputs and outputs as returned by the indexer.
type TxUTXOs struct {
	Hash    string
	Inputs  []TxInput
	Outputs []TxOutput
}
