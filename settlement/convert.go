package settlement

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrZeroCirculating    = errors.New("circulating supply must be positive")
	ErrConversionOverflow = errors.New("converted amount overflows uint64")
)

// Convert rescales sourceAmount by the ratio of circulating supplies between the chains:
//
//	floor(sourceAmount * destCirculating * 10^destDecimals / (sourceCirculating * 10^sourceDecimals))
//
// Circulating supplies are in whole tokens. Sub-unit remainders are dropped, never carried.
func Convert(sourceAmount uint64, sourceDecimals, destDecimals uint8, sourceCirculating, destCirculating uint64) (uint64, error) {
	if sourceCirculating == 0 || destCirculating == 0 {
		return 0, ErrZeroCirculating
	}

	num := new(big.Int).SetUint64(sourceAmount)
	num.Mul(num, new(big.Int).SetUint64(destCirculating))
	num.Mul(num, pow10(destDecimals))

	den := new(big.Int).SetUint64(sourceCirculating)
	den.Mul(den, pow10(sourceDecimals))

	// both operands are non-negative so Quo truncation is floor
	res := num.Quo(num, den)
	if !res.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrConversionOverflow, res.String())
	}
	return res.Uint64(), nil
}

// WholeTokens converts a smallest-unit quantity to whole tokens, dropping the fraction.
func WholeTokens(quantity uint64, decimals uint8) uint64 {
	q := new(big.Int).SetUint64(quantity)
	return q.Quo(q, pow10(decimals)).Uint64()
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
