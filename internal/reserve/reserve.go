// Package reserve derives the allowed reserve-price band for an Original
// from its purchase price. The derivation is a named, swappable policy so
// protocol governance can change the band without touching the registry.
//
// All monetary values use shopspring/decimal — never float64 for money.
package reserve

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidBand is returned by policies that would produce min > max.
var ErrInvalidBand = errors.New("reserve: min reserve price exceeds max")

// Policy maps a purchase price to the [min, max] reserve-price band within
// which Mono holders may propose. Implementations must keep min <= max for
// every non-negative purchase price.
type Policy func(purchasePrice decimal.Decimal) (min, max decimal.Decimal)

// defaultMaxMultiplier caps the band at 10x the purchase price.
var defaultMaxMultiplier = decimal.NewFromInt(10)

// DefaultPolicy floors the band at the purchase price itself and caps it at
// ten times the purchase price: holders cannot vote to sell below cost.
func DefaultPolicy(purchasePrice decimal.Decimal) (min, max decimal.Decimal) {
	return purchasePrice, purchasePrice.Mul(defaultMaxMultiplier)
}

// MultiplierPolicy returns a policy flooring the band at the purchase price
// and capping it at maxMultiplier times the purchase price.
func MultiplierPolicy(maxMultiplier int64) Policy {
	m := decimal.NewFromInt(maxMultiplier)
	return func(purchasePrice decimal.Decimal) (min, max decimal.Decimal) {
		return purchasePrice, purchasePrice.Mul(m)
	}
}

// Validate applies the policy and rejects inverted bands.
func Validate(p Policy, purchasePrice decimal.Decimal) (min, max decimal.Decimal, err error) {
	min, max = p(purchasePrice)
	if min.GreaterThan(max) {
		return decimal.Decimal{}, decimal.Decimal{}, ErrInvalidBand
	}
	return min, max, nil
}

// InBand reports whether price falls within [min, max].
func InBand(price, min, max decimal.Decimal) bool {
	return price.GreaterThanOrEqual(min) && price.LessThanOrEqual(max)
}
