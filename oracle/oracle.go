// Package oracle prices the TRTL liquidity pools: USD prices, pool TVL, LP supply,
// and the LP tokens a position needs to reach the configured USD target.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"trtlbridge/config"
	"trtlbridge/metrics"
)

var (
	ErrUnknownPool = errors.New("invalid pool type")
	// ErrUnavailable wraps every upstream failure, the caller answers 503.
	ErrUnavailable = errors.New("price data unavailable")
)

// Cache keeps quotes between requests. Satisfied by the redis store.
type Cache interface {
	GetCached(ctx context.Context, key string) ([]byte, bool, error)
	SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Oracle struct {
	cfg        config.OracleConfig
	cache      Cache
	httpClient *http.Client
	breakers   map[string]*gobreaker.CircuitBreaker
	logger     *zap.Logger
}

const (
	upstreamCoinGecko = "coingecko"
	upstreamTapTools  = "taptools"
	upstreamKoios     = "koios"
	upstreamRaydium   = "raydium"
)

// New builds an oracle, cache may be nil.
func New(cfg config.OracleConfig, cache Cache, logger *zap.Logger) *Oracle {
	logger = logger.With(zap.String("component", "oracle"))

	breakers := map[string]*gobreaker.CircuitBreaker{}
	for _, name := range []string{upstreamCoinGecko, upstreamTapTools, upstreamKoios, upstreamRaydium} {
		breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Info("circuit breaker state changed",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	return &Oracle{
		cfg:        cfg,
		cache:      cache,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breakers:   breakers,
		logger:     logger,
	}
}

// cached returns the quote under key, calling fetch on a miss. Cache failures only cost a fetch.
func (o *Oracle) cached(ctx context.Context, key string, fetch func() (decimal.Decimal, error)) (decimal.Decimal, error) {
	if o.cache != nil {
		raw, ok, err := o.cache.GetCached(ctx, key)
		if err != nil {
			o.logger.Warn("oracle cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			if v, err := decimal.NewFromString(string(raw)); err == nil {
				return v, nil
			}
		}
	}

	v, err := fetch()
	if err != nil {
		return decimal.Zero, err
	}

	if o.cache != nil && o.cfg.CacheTTL > 0 {
		if err := o.cache.SetCached(ctx, key, []byte(v.String()), o.cfg.CacheTTL); err != nil {
			o.logger.Warn("oracle cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}

func (o *Oracle) doJSON(ctx context.Context, upstream, method, fullURL string, headers map[string]string, body, out interface{}) error {
	_, err := o.breakers[upstream].Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reqBody = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := o.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%s answered %d: %s", upstream, resp.StatusCode, string(msg))
		}
		if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("unmarshal %s response: %w", upstream, err)
		}
		return nil, nil
	})

	result := "ok"
	if err != nil {
		result = "error"
		o.logger.Warn("upstream request failed", zap.String("upstream", upstream), zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.UpstreamRequests.WithLabelValues(upstream, result).Inc()
	return err
}

// USDPrice returns the CoinGecko USD price of asset (a CoinGecko coin id).
func (o *Oracle) USDPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	return o.cached(ctx, "price:"+asset, func() (decimal.Decimal, error) {
		var resp struct {
			MarketData struct {
				CurrentPrice struct {
					USD *decimal.Decimal `json:"usd"`
				} `json:"current_price"`
			} `json:"market_data"`
		}
		if err := o.doJSON(ctx, upstreamCoinGecko, http.MethodGet, o.cfg.CoinGeckoURL+"/coins/"+url.PathEscape(asset), nil, nil, &resp); err != nil {
			return decimal.Zero, err
		}
		if resp.MarketData.CurrentPrice.USD == nil || !resp.MarketData.CurrentPrice.USD.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: price information is not available for %s", ErrUnavailable, asset)
		}
		return *resp.MarketData.CurrentPrice.USD, nil
	})
}

func (o *Oracle) adaPool(poolType string) (config.LPPool, error) {
	switch poolType {
	case "v1":
		return o.cfg.Pools.ADAV1, nil
	case "v2":
		return o.cfg.Pools.ADAV2, nil
	}
	return config.LPPool{}, fmt.Errorf("%w: %q", ErrUnknownPool, poolType)
}

// PoolTVL returns the TVL of a Minswap TRTL/ADA pool in ADA: twice the locked ADA side.
func (o *Oracle) PoolTVL(ctx context.Context, poolType string) (decimal.Decimal, error) {
	pool, err := o.adaPool(poolType)
	if err != nil {
		return decimal.Zero, err
	}

	return o.cached(ctx, "tvl:"+poolType, func() (decimal.Decimal, error) {
		var resp []struct {
			TokenBLocked decimal.Decimal `json:"tokenBLocked"`
		}
		u := o.cfg.TapToolsURL + "/token/pools?onchainID=" + url.QueryEscape(pool.OnchainID)
		if err := o.doJSON(ctx, upstreamTapTools, http.MethodGet, u, map[string]string{"x-api-key": o.cfg.TapToolsAPIKey}, nil, &resp); err != nil {
			return decimal.Zero, err
		}
		if len(resp) == 0 {
			return decimal.Zero, fmt.Errorf("%w: pool %s not found", ErrUnavailable, pool.OnchainID)
		}
		return resp[0].TokenBLocked.Mul(decimal.NewFromInt(2)), nil
	})
}

// LPSupply returns the circulating LP tokens of a TRTL/ADA pool.
// Pools with a supply address count only the tokens held there.
func (o *Oracle) LPSupply(ctx context.Context, poolType string) (decimal.Decimal, error) {
	pool, err := o.adaPool(poolType)
	if err != nil {
		return decimal.Zero, err
	}
	headers := map[string]string{"Authorization": "Bearer " + o.cfg.KoiosAPIKey}

	return o.cached(ctx, "lpsupply:"+poolType, func() (decimal.Decimal, error) {
		if pool.SupplyAddress == "" {
			var resp []struct {
				TotalSupply decimal.Decimal `json:"total_supply"`
			}
			body := map[string]interface{}{"_asset_list": [][]string{{pool.PolicyID, pool.TokenName}}}
			if err := o.doJSON(ctx, upstreamKoios, http.MethodPost, o.cfg.KoiosURL+"/asset_info", headers, body, &resp); err != nil {
				return decimal.Zero, err
			}
			if len(resp) == 0 {
				return decimal.Zero, fmt.Errorf("%w: LP asset %s not found", ErrUnavailable, pool.PolicyID)
			}
			return resp[0].TotalSupply, nil
		}

		var resp []struct {
			PaymentAddress string          `json:"payment_address"`
			Quantity       decimal.Decimal `json:"quantity"`
		}
		body := map[string]string{"_asset_policy": pool.PolicyID, "_asset_name": pool.TokenName}
		if err := o.doJSON(ctx, upstreamKoios, http.MethodPost, o.cfg.KoiosURL+"/asset_addresses", headers, body, &resp); err != nil {
			return decimal.Zero, err
		}
		for _, entry := range resp {
			if entry.PaymentAddress == pool.SupplyAddress {
				return entry.Quantity, nil
			}
		}
		return decimal.Zero, fmt.Errorf("%w: supply address not found in LP holders", ErrUnavailable)
	})
}

// SOLLPPrice returns the USD price of one Raydium TRTL/SOL LP token.
func (o *Oracle) SOLLPPrice(ctx context.Context) (decimal.Decimal, error) {
	return o.cached(ctx, "lpprice:sol", func() (decimal.Decimal, error) {
		var resp struct {
			Data []*struct {
				LPPrice decimal.Decimal `json:"lpPrice"`
			} `json:"data"`
		}
		u := o.cfg.RaydiumURL + "/pools/info/ids?ids=" + url.QueryEscape(o.cfg.Pools.SOL)
		if err := o.doJSON(ctx, upstreamRaydium, http.MethodGet, u, nil, nil, &resp); err != nil {
			return decimal.Zero, err
		}
		if len(resp.Data) == 0 || resp.Data[0] == nil {
			return decimal.Zero, fmt.Errorf("%w: raydium pool %s not found", ErrUnavailable, o.cfg.Pools.SOL)
		}
		return resp.Data[0].LPPrice, nil
	})
}
