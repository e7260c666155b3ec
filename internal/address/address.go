// Package address derives and encodes the ledger addresses of budget records.
package address

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Size is the byte length of an address.
const Size = 32

// ErrInvalidAddress indicates a string that does not decode to a 32-byte address.
var ErrInvalidAddress = errors.New("address: invalid address")

// Address is a 32-byte ledger account address, printed in base58.
type Address [Size]byte

// Well-known programs the budget records interact with.
var (
	BudgetProgram          = MustParse("Hz5ZKTWQMRRcCGwMEjnqcQrLEkTp5E8qD2zZKPFxCmXf")
	TokenProgram           = MustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgram = MustParse("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	TokenMetadataProgram   = MustParse("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

// Parse decodes a base58 address.
func Parse(s string) (Address, error) {
	var a Address
	raw, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if len(raw) != Size {
		return a, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// MustParse is Parse for compile-time constants. It panics on bad input.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

// Short renders the first and last 8 characters, e.g. for table cells.
func (a Address) Short() string {
	s := a.String()
	if len(s) <= 19 {
		return s
	}
	return s[:8] + "..." + s[len(s)-8:]
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// IsOnCurve reports whether b is the encoding of a valid ed25519 point.
// Program-derived addresses must not be.
func IsOnCurve(b []byte) bool {
	if len(b) != Size {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
