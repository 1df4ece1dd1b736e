package address

import (
	"fmt"
	"strings"
)

// Null is the zero identity. Units can never be sent to it.
const Null Address = "0x0000000000000000000000000000000000000000"

// Address identifies a holder, reporter, delegate or the owner
type Address string

// Parse normalizes an address string.
func Parse(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("empty address")
	}
	if strings.ContainsAny(s, " \t\n/") {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return Address(s), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsNull reports whether a is empty or the zero identity.
func (a Address) IsNull() bool {
	return a == "" || a == Null
}

func (a Address) String() string {
	return string(a)
}
