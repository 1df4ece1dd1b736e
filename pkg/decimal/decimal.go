package decimal

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every Amount carries.
const Scale int32 = 18

// maxBits bounds intermediate products in scaled arithmetic.
const maxBits = 256

var (
	ErrOverflow       = errors.New("scaled arithmetic overflow")
	ErrDivisionByZero = errors.New("division by zero")
	ErrTooPrecise     = errors.New("more fractional digits than the ledger scale")
)

var (
	one        = decimal.New(1, Scale)
	bpsDivisor = decimal.NewFromInt(10000)
)

// Amount is a signed quantity expressed as an integer count of base units,
// where one whole unit is 10^Scale base units.
type Amount struct {
	raw decimal.Decimal
}

// Zero returns the zero amount
func Zero() Amount {
	return Amount{raw: decimal.Zero}
}

// FromUnits creates an Amount of n whole units
func FromUnits(n int64) Amount {
	return Amount{raw: decimal.New(n, Scale)}
}

// FromRaw creates an Amount from a base-unit integer
func FromRaw(v *big.Int) Amount {
	return Amount{raw: decimal.NewFromBigInt(v, 0)}
}

// Parse parses a human-readable amount such as "0.002".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount: %w", err)
	}
	shifted := d.Shift(Scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, ErrTooPrecise)
	}
	return Amount{raw: decimal.NewFromBigInt(shifted.BigInt(), 0)}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseRaw parses an integer count of base units.
func ParseRaw(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid raw amount %q", s)
	}
	return FromRaw(v), nil
}

// Add adds two amounts
func (a Amount) Add(b Amount) Amount {
	return Amount{raw: a.raw.Add(b.raw)}
}

// Sub subtracts b from a
func (a Amount) Sub(b Amount) Amount {
	return Amount{raw: a.raw.Sub(b.raw)}
}

// Neg negates the amount
func (a Amount) Neg() Amount {
	return Amount{raw: a.raw.Neg()}
}

// MulScaled multiplies two scaled amounts and divides the product back down
// by the scale, truncating toward zero. Both operands must already be at
// Scale; the result is at Scale too.
func (a Amount) MulScaled(b Amount) (Amount, error) {
	p := a.raw.Mul(b.raw)
	if p.BigInt().BitLen() > maxBits {
		return Amount{}, ErrOverflow
	}
	q, _ := p.QuoRem(one, 0)
	return Amount{raw: q}, nil
}

// DivScaled divides a by b keeping the result at Scale, truncating toward zero.
func (a Amount) DivScaled(b Amount) (Amount, error) {
	if b.raw.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	n := a.raw.Mul(one)
	if n.BigInt().BitLen() > maxBits {
		return Amount{}, ErrOverflow
	}
	q, _ := n.QuoRem(b.raw, 0)
	return Amount{raw: q}, nil
}

// MulBps returns a * bps / 10000, truncated toward zero.
func (a Amount) MulBps(bps int64) Amount {
	q, _ := a.raw.Mul(decimal.NewFromInt(bps)).QuoRem(bpsDivisor, 0)
	return Amount{raw: q}
}

// Cmp compares two amounts
func (a Amount) Cmp(b Amount) int {
	return a.raw.Cmp(b.raw)
}

// Equal reports whether a == b
func (a Amount) Equal(b Amount) bool {
	return a.raw.Equal(b.raw)
}

// LessThan reports whether a < b
func (a Amount) LessThan(b Amount) bool {
	return a.raw.LessThan(b.raw)
}

// GreaterThan reports whether a > b
func (a Amount) GreaterThan(b Amount) bool {
	return a.raw.GreaterThan(b.raw)
}

// IsZero checks if amount is zero
func (a Amount) IsZero() bool {
	return a.raw.IsZero()
}

// IsNegative checks if amount is below zero
func (a Amount) IsNegative() bool {
	return a.raw.IsNegative()
}

// IsPositive checks if amount is above zero
func (a Amount) IsPositive() bool {
	return a.raw.IsPositive()
}

// Raw returns the base-unit integer.
func (a Amount) Raw() *big.Int {
	return a.raw.BigInt()
}

// RawString returns the base-unit integer as a decimal string
func (a Amount) RawString() string {
	return a.raw.BigInt().String()
}

// String returns the human-readable value, e.g. "0.002".
func (a Amount) String() string {
	return a.raw.Shift(-Scale).String()
}

// StringFixed returns the human-readable value with a fixed number of places
func (a Amount) StringFixed(places int32) string {
	return a.raw.Shift(-Scale).StringFixed(places)
}

// MarshalJSON encodes the human-readable value as a JSON string. Every
// amount has at most Scale fractional digits, so the encoding is exact.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes a human-readable amount, quoted or bare
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*a = Zero()
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Min returns the smaller of two amounts
func Min(a, b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}
