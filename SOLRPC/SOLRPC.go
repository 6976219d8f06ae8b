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

var ErrInvalidAddress = errors.New("invalid solana address")

// Config of the payout wallet.
type Config struct {
	RPCList   []string
	SecretKey string
	Mint      string
	Decimals  uint8
	// polling of transactions sent while creating token accounts
	ConfirmInterval    time.Duration
	ConfirmMaxAttempts int
}

// Client pays out the bridged token from the application wallet.
type Client struct {
	rpcList         []string
	key             solana.PrivateKey
	mint            solana.PublicKey
	decimals        uint8
	confirmInterval time.Duration
	confirmAttempts int
	logger          *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if len(cfg.RPCList) == 0 {
		return nil, errors.New("no solana RPC URLs provided")
	}
	key, err := ParseKeypair(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	mintKey, err := solana.PublicKeyFromBase58(cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint %q: %w", cfg.Mint, err)
	}
	if cfg.ConfirmInterval == 0 {
		cfg.ConfirmInterval = time.Second
	}
	if cfg.ConfirmMaxAttempts == 0 {
		cfg.ConfirmMaxAttempts = 60
	}

	return &Client{
		rpcList:         cfg.RPCList,
		key:             key,
		mint:            mintKey,
		decimals:        cfg.Decimals,
		confirmInterval: cfg.ConfirmInterval,
		confirmAttempts: cfg.ConfirmMaxAttempts,
		logger:          logger.With(zap.String("component", "solana")),
	}, nil
}

// WithClient runs f against every configured endpoint in turn until one succeeds.
func WithClient[T any](c *Client, f func(client *rpc.Client) (T, error)) (res T, err error) {
	for _, url := range c.rpcList {
		client := rpc.New(url)

		res, err = f(client)
		client.Close()
		if err == nil {
			return
		}
		c.logger.Warn("solana RPC call failed", zap.String("url", url), zap.Error(err))
	}
	return
}

func (c *Client) PublicKey() solana.PublicKey {
	return c.key.PublicKey()
}

// AppTokenAccount is the application's associated account the payouts are funded from.
func (c *Client) AppTokenAccount() (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(c.key.PublicKey(), c.mint)
	return ata, err
}

// ParseAddress validates a base58 wallet address.
func ParseAddress(address string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}
	return pk, nil
}

// TokenAmount mirrors the RPC ui token amount.
type TokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       uint8    `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// AppBalance returns the token balance of the application's funding account.
func (c *Client) AppBalance(ctx context.Context) (*TokenAmount, error) {
	ata, err := c.AppTokenAccount()
	if err != nil {
		return nil, err
	}

	return WithClient(c, func(client *rpc.Client) (*TokenAmount, error) {
		res, err := client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
		if err != nil {
			return nil, err
		}
		if res.Value == nil {
			return nil, fmt.Errorf("empty balance for %s", ata)
		}
		return &TokenAmount{
			Amount:         res.Value.Amount,
			Decimals:       res.Value.Decimals,
			UIAmount:       res.Value.UiAmount,
			UIAmountString: res.Value.UiAmountString,
		}, nil
	})
}
