package coretypes

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative token quantity. Arbitrary-precision decimal
// storage is used in preference to a fixed-width integer because on-chain
// token amounts can exceed 2^63-1 and the reconciler's delta arithmetic
// must never wrap (amount and slot need at least 64 bits, the signed
// delta at least 65 bits).
type Amount struct {
	d decimal.Decimal
}

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{d: decimal.Zero}

// NewAmountFromUint64 builds an Amount from a raw u64 token quantity.
func NewAmountFromUint64(v uint64) Amount {
	return Amount{d: decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)}
}

// ParseAmount parses a plain base-10 digit string (no sign, no decimal
// point) as produced by the chain's token-amount encodings.
func ParseAmount(digits string) (Amount, error) {
	if digits == "" {
		return ZeroAmount, nil
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return Amount{}, fmt.Errorf("coretypes: parse amount %q: %w", digits, err)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("coretypes: amount %q is negative", digits)
	}
	return Amount{d: d}, nil
}

// ParseTypedAmount extracts the digit portion of the wire convention
// "<TYPE>:<digits>" (e.g. "BIGINT:500") used throughout the persisted
// transaction payload (postTokenBalance.amount, fee, computeUnitsConsumed),
// then parses it as a plain amount. A string with no colon is parsed
// as-is.
func ParseTypedAmount(typed string) (Amount, error) {
	_, digits, ok := strings.Cut(typed, ":")
	if !ok {
		digits = typed
	}
	return ParseAmount(digits)
}

// String renders the amount as a plain base-10 integer string.
func (a Amount) String() string { return a.d.String() }

// Decimal exposes the underlying decimal.Decimal for storage drivers.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// AmountFromDecimal wraps a decimal.Decimal read back from storage.
func AmountFromDecimal(d decimal.Decimal) Amount { return Amount{d: d} }

// Equal reports value equality.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// Sub returns the signed delta a-b. The result is a Delta, not an Amount,
// since it may be negative (a withdrawal).
func (a Amount) Sub(b Amount) Delta {
	return Delta{d: a.d.Sub(b.d)}
}

// Delta is a signed difference between two Amounts.
type Delta struct {
	d decimal.Decimal
}

// ZeroDelta is the additive identity.
var ZeroDelta = Delta{d: decimal.Zero}

// String renders the delta as a signed base-10 integer string.
func (d Delta) String() string { return d.d.String() }

// Decimal exposes the underlying decimal.Decimal for storage drivers.
func (d Delta) Decimal() decimal.Decimal { return d.d }

// DeltaFromDecimal wraps a decimal.Decimal read back from storage.
func DeltaFromDecimal(d decimal.Decimal) Delta { return Delta{d: d} }

// IsNegative reports whether this delta represents a balance decrease.
func (d Delta) IsNegative() bool { return d.d.IsNegative() }
