// Package handlers serves the bridge HTTP API.
package handlers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trtlbridge/SOLRPC"
	"trtlbridge/blockfrost"
	"trtlbridge/oracle"
	"trtlbridge/types"
)

// Bridge records submitted Cardano transactions.
type Bridge interface {
	Submit(ctx context.Context, txHash string) (*types.BridgeRecord, bool, error)
}

type Records interface {
	GetByID(ctx context.Context, id string) (*types.BridgeRecord, error)
	ListByStatus(ctx context.Context, status types.BridgeStatus, limit int) ([]*types.BridgeRecord, error)
	ResetFailed(ctx context.Context, id string) (*types.BridgeRecord, error)
}

type Wallets interface {
	ListWalletLinks(ctx context.Context) ([]*types.WalletLink, error)
	FindWalletLinks(ctx context.Context, cardano, solana string) ([]*types.WalletLink, error)
	GetWalletLink(ctx context.Context, id string) (*types.WalletLink, error)
	UpsertWalletLink(ctx context.Context, rec *types.WalletLink) error
	DeleteWalletLink(ctx context.Context, id string) (bool, error)
}

type Indexer interface {
	Transaction(ctx context.Context, txHash string) (*blockfrost.Transaction, error)
}

type Balance interface {
	AppBalance(ctx context.Context) (*SOLRPC.TokenAmount, error)
}

type Prices interface {
	USDPrice(ctx context.Context, asset string) (decimal.Decimal, error)
	PoolTVL(ctx context.Context, poolType string) (decimal.Decimal, error)
	RequiredLP(ctx context.Context, pool string) (*oracle.RequiredLP, error)
}

// Deps are the services behind the API.
type Deps struct {
	Bridge Bridge
	// runs one payout pass, a pass already running is not an error
	RunPayouts func(ctx context.Context) error
	Records    Records
	Wallets    Wallets
	Indexer    Indexer
	Balance    Balance
	Prices     Prices
	// named dependency checks reported by /health
	Checks map[string]func(ctx context.Context) error
}

type Handlers struct {
	deps     Deps
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

func New(deps Deps, logger *zap.Logger) *Handlers {
	return &Handlers{
		deps:     deps,
		validate: newValidator(),
		logger:   logger.With(zap.String("component", "http")),
		now:      time.Now,
	}
}
