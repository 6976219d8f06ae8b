package handlers

import (
	"github.com/shopspring/decimal"

	"trtlbridge/SOLRPC"
	"trtlbridge/types"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

type APIStateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type APIHealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type BridgeTxRequest struct {
	TxHash string `json:"txHash" validate:"required,len=64,hexadecimal"`
}

type APIResponseRecordID struct {
	ID string `json:"id"`
}

type APIResponseRecords struct {
	Count int                   `json:"count"`
	Items []*types.BridgeRecord `json:"items"`
}

// WalletRequest links a Cardano wallet with a Solana wallet, either may be missing.
type WalletRequest struct {
	Cardano string `json:"cardano" validate:"omitempty,cardano_address"`
	Solana  string `json:"solana" validate:"omitempty,solana_address"`
}

type APIResponseWallets struct {
	Count int                 `json:"count"`
	Items []*types.WalletLink `json:"items"`
}

type APIResponseTimestamp struct {
	Now int64 `json:"now"`
}

type APIResponseBalance struct {
	TokenAmount *SOLRPC.TokenAmount `json:"tokenAmount"`
}

type APIResponsePrice struct {
	Asset string          `json:"asset"`
	USD   decimal.Decimal `json:"usd"`
}

type APIResponseTVL struct {
	TVL decimal.Decimal `json:"tvl"`
}
