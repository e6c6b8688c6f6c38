// Package pricing converts fiat course prices into native ledger units.
// All arithmetic is exact rational math; the only rounding is a single
// floor when the final wei amount is produced, so the same fiat amount and
// rate always convert to the same integer.
package pricing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/learnledger/backend/internal/errors"
)

// weiPerCoin is the number of wei in one native coin.
var weiPerCoin = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// maxFiatDigits bounds accepted fiat amounts to a sane magnitude.
const maxFiatDigits = 12

// ParseFiatAmount parses a positive decimal fiat amount such as "499" or
// "499.99" into an exact rational.
func ParseFiatAmount(s string) (*big.Rat, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, errors.Validation("price is required")
	}
	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") {
		return nil, errors.Validation("price must be a plain positive decimal")
	}
	if strings.ContainsAny(trimmed, "eE") {
		return nil, errors.Validation("price must not use exponent notation")
	}

	whole := trimmed
	if dot := strings.IndexByte(trimmed, '.'); dot >= 0 {
		whole = trimmed[:dot]
	}
	if len(whole) > maxFiatDigits {
		return nil, errors.Validation(fmt.Sprintf("price exceeds %d digits", maxFiatDigits))
	}

	amount, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, errors.Validation(fmt.Sprintf("invalid price %q", s))
	}
	if amount.Sign() <= 0 {
		return nil, errors.Validation("price must be positive")
	}
	return amount, nil
}

// RateFromCoinPrice converts a fiat-per-coin price into the wei-per-fiat
// rate used by ToWei.
func RateFromCoinPrice(price *big.Rat) (*big.Rat, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("coin price must be positive")
	}
	return new(big.Rat).Quo(new(big.Rat).SetInt(weiPerCoin), price), nil
}

// ToWei converts a fiat amount to wei at the given wei-per-fiat rate,
// flooring to an integer. Inputs are non-negative, so truncating division
// is an exact floor.
func ToWei(fiat, rate *big.Rat) *big.Int {
	product := new(big.Rat).Mul(fiat, rate)
	return new(big.Int).Quo(product.Num(), product.Denom())
}

// ParseCoinAmount parses a positive decimal native-coin amount such as
// "0.25" into wei, flooring anything finer than one wei.
func ParseCoinAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, errors.Validation("amount is required")
	}
	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") || strings.ContainsAny(trimmed, "eE") {
		return nil, errors.Validation("amount must be a plain positive decimal")
	}

	amount, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, errors.Validation(fmt.Sprintf("invalid amount %q", s))
	}
	if amount.Sign() <= 0 {
		return nil, errors.Validation("amount must be positive")
	}

	wei := new(big.Rat).Mul(amount, new(big.Rat).SetInt(weiPerCoin))
	return new(big.Int).Quo(wei.Num(), wei.Denom()), nil
}

// FormatCoin renders a wei amount as a decimal coin string with trailing
// zeros trimmed, e.g. 1500000000000000000 -> "1.5".
func FormatCoin(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, weiPerCoin)
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
