package engine

import (
	"github.com/shopspring/decimal"

	dErrors "veil/pkg/domain-errors"
)

// margin absorbs rate drift between quote time and broadcast time. The
// computed amount is frozen once persisted, so the margin is applied exactly
// once per top-up.
var margin = decimal.RequireFromString("1.01")

// CryptoAmount converts a quoted EUR price into the crypto amount to
// broadcast, given a live crypto/EUR rate. A zero or negative rate is never
// acted on.
func CryptoAmount(priceEUR, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.Sign() <= 0 {
		return decimal.Decimal{}, dErrors.New(dErrors.CodeInvalidInput, "crypto rate must be positive")
	}
	if priceEUR.Sign() <= 0 {
		return decimal.Decimal{}, dErrors.New(dErrors.CodeInvalidInput, "order price must be positive")
	}
	return priceEUR.Div(rate).Mul(margin), nil
}
