package oracle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	PoolADAV1 = "ada-v1"
	PoolADAV2 = "ada-v2"
	PoolSOL   = "sol"
)

// RequiredLP answers how many LP tokens of pool are worth the configured USD target.
type RequiredLP struct {
	Pool         string          `json:"pool"`
	TargetUSD    decimal.Decimal `json:"targetUsd"`
	USDPerLP     decimal.Decimal `json:"usdPerLp"`
	TokensNeeded decimal.Decimal `json:"tokensNeeded"`
}

// LPValueUSD is the USD value of one LP token of an ADA pool.
func LPValueUSD(tvlADA, adaUSD, lpSupply decimal.Decimal) (decimal.Decimal, error) {
	if !lpSupply.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: LP supply is zero", ErrUnavailable)
	}
	return tvlADA.Mul(adaUSD).Div(lpSupply), nil
}

// TokensForTarget is target / usdPerLP.
func TokensForTarget(target, usdPerLP decimal.Decimal) (decimal.Decimal, error) {
	if !usdPerLP.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: LP token has no value", ErrUnavailable)
	}
	return target.Div(usdPerLP), nil
}

func (o *Oracle) RequiredLP(ctx context.Context, pool string) (*RequiredLP, error) {
	target, err := decimal.NewFromString(o.cfg.TargetUSD)
	if err != nil {
		return nil, fmt.Errorf("invalid oracle.target_usd %q: %w", o.cfg.TargetUSD, err)
	}

	var usdPerLP decimal.Decimal
	switch pool {
	case PoolSOL:
		if usdPerLP, err = o.SOLLPPrice(ctx); err != nil {
			return nil, err
		}
	case PoolADAV1, PoolADAV2:
		poolType := pool[len("ada-"):]
		adaUSD, err := o.USDPrice(ctx, o.cfg.BaseAsset)
		if err != nil {
			return nil, err
		}
		tvl, err := o.PoolTVL(ctx, poolType)
		if err != nil {
			return nil, err
		}
		supply, err := o.LPSupply(ctx, poolType)
		if err != nil {
			return nil, err
		}
		if usdPerLP, err = LPValueUSD(tvl, adaUSD, supply); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPool, pool)
	}

	needed, err := TokensForTarget(target, usdPerLP)
	if err != nil {
		return nil, err
	}
	return &RequiredLP{Pool: pool, TargetUSD: target, USDPerLP: usdPerLP, TokensNeeded: needed}, nil
}
