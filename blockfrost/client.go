// Package blockfrost is a small client for the Blockfrost Cardano indexer REST API.
package blockfrost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trtlbridge/types"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRPS          = 10
	defaultMaxRetries   = 2
	defaultRetryBackoff = 500 * time.Millisecond
)

// ErrNotFound is returned while a transaction is not indexed yet.
var ErrNotFound = errors.New("not found")

type Config struct {
	BaseURL   string
	ProjectID string
	Timeout   time.Duration
	RPS       float64
	// retries of 5xx and network errors inside one call
	MaxRetries   int
	RetryBackoff time.Duration
}

type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	logger         *zap.Logger
}

// APIError is the error body Blockfrost answers with.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Err        string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("blockfrost: %d %s: %s", e.StatusCode, e.Err, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsTransient reports errors worth retrying later: rate limits, server errors, open circuit, network.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr)
}

func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RPS == 0 {
		config.RPS = defaultRPS
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaultMaxRetries
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = defaultRetryBackoff
	}
	logger = logger.With(zap.String("component", "blockfrost"))

	cbSettings := gobreaker.Settings{
		Name:        "Blockfrost",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// client errors say nothing about the indexer's health
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(config.RPS), 1),
		logger:         logger,
	}
}

// Amount is a quantity of one unit as Blockfrost encodes it.
type Amount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

type utxosJSON struct {
	Hash   string `json:"hash"`
	Inputs []struct {
		Address    string   `json:"address"`
		Amount     []Amount `json:"amount"`
		Collateral bool     `json:"collateral"`
		Reference  bool     `json:"reference"`
	} `json:"inputs"`
	Outputs []struct {
		Address string   `json:"address"`
		Amount  []Amount `json:"amount"`
	} `json:"outputs"`
}

func parseAmounts(in []Amount) ([]types.AssetAmount, error) {
	out := make([]types.AssetAmount, 0, len(in))
	for _, a := range in {
		q, err := strconv.ParseUint(a.Quantity, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q of %s: %w", a.Quantity, a.Unit, err)
		}
		out = append(out, types.AssetAmount{Unit: a.Unit, Quantity: q})
	}
	return out, nil
}

// TransactionUTXOs returns the resolved inputs and outputs of a transaction.
func (c *Client) TransactionUTXOs(ctx context.Context, txHash string) (*types.TxUTXOs, error) {
	var resp utxosJSON
	if err := c.doRequest(ctx, "/txs/"+url.PathEscape(txHash)+"/utxos", &resp); err != nil {
		return nil, fmt.Errorf("get tx utxos failed: %w", err)
	}

	utxos := &types.TxUTXOs{Hash: resp.Hash}
	for _, in := range resp.Inputs {
		amount, err := parseAmounts(in.Amount)
		if err != nil {
			return nil, err
		}
		utxos.Inputs = append(utxos.Inputs, types.TxInput{
			Address:    in.Address,
			Amount:     amount,
			Collateral: in.Collateral,
			Reference:  in.Reference,
		})
	}
	for _, out := range resp.Outputs {
		amount, err := parseAmounts(out.Amount)
		if err != nil {
			return nil, err
		}
		utxos.Outputs = append(utxos.Outputs, types.TxOutput{Address: out.Address, Amount: amount})
	}
	return utxos, nil
}

// Transaction is the indexer's view of a transaction.
type Transaction struct {
	Hash          string   `json:"hash"`
	Block         string   `json:"block"`
	BlockHeight   int64    `json:"block_height"`
	BlockTime     int64    `json:"block_time"`
	Slot          int64    `json:"slot"`
	Index         int      `json:"index"`
	OutputAmount  []Amount `json:"output_amount"`
	Fees          string   `json:"fees"`
	Deposit       string   `json:"deposit"`
	Size          int      `json:"size"`
	UTXOCount     int      `json:"utxo_count"`
	ValidContract bool     `json:"valid_contract"`
}

func (c *Client) Transaction(ctx context.Context, txHash string) (*Transaction, error) {
	var resp Transaction
	if err := c.doRequest(ctx, "/txs/"+url.PathEscape(txHash), &resp); err != nil {
		return nil, fmt.Errorf("get tx failed: %w", err)
	}
	return &resp, nil
}

type Asset struct {
	Asset       string `json:"asset"`
	PolicyID    string `json:"policy_id"`
	AssetName   string `json:"asset_name"`
	Fingerprint string `json:"fingerprint"`
	Quantity    uint64 `json:"-"`
}

// Asset returns an asset's current on chain quantity, used as its circulating supply.
func (c *Client) Asset(ctx context.Context, assetID string) (*Asset, error) {
	var resp struct {
		Asset
		Quantity string `json:"quantity"`
	}
	if err := c.doRequest(ctx, "/assets/"+url.PathEscape(assetID), &resp); err != nil {
		return nil, fmt.Errorf("get asset failed: %w", err)
	}

	q, err := strconv.ParseUint(resp.Quantity, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid asset quantity %q: %w", resp.Quantity, err)
	}
	asset := resp.Asset
	asset.Quantity = q
	return &asset, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, response interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestInternal(ctx, endpoint, response)
	})
	return err
}

func (c *Client) doRequestInternal(ctx context.Context, endpoint string, response interface{}) error {
	fullURL := c.config.BaseURL + endpoint

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("project_id", c.config.ProjectID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read body: %w", err)
			continue
		}

		if resp.StatusCode >= 400 {
			apiErr := &APIError{}
			if json.Unmarshal(body, apiErr) != nil || apiErr.StatusCode == 0 {
				apiErr = &APIError{Message: string(body)}
			}
			apiErr.StatusCode = resp.StatusCode
			if resp.StatusCode >= 500 {
				c.logger.Warn("indexer server error", zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
				lastErr = apiErr
				continue
			}
			return apiErr
		}

		if response != nil && len(body) > 0 {
			if err := json.Unmarshal(body, response); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}
