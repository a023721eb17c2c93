package domain

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLen is the decoded length of a vault address in bytes.
const AddressLen = 32

// Address is a validated base58-encoded 32-byte account address.
// Construct only through ParseAddress.
type Address string

// Address parse errors.
var (
	ErrEmptyAddress   = errors.New("empty address")
	ErrInvalidAddress = errors.New("invalid address")
)

// ParseAddress validates s as a base58-encoded 32-byte edwards25519 point.
// Off-curve keys are rejected: the vault only pays out to addresses a
// wallet can actually sign for.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", ErrEmptyAddress
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidAddress, s, err)
	}
	if len(raw) != AddressLen {
		return "", fmt.Errorf("%w: %s: decoded length %d, want %d", ErrInvalidAddress, s, len(raw), AddressLen)
	}

	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return "", fmt.Errorf("%w: %s: not on curve", ErrInvalidAddress, s)
	}

	return Address(s), nil
}

// String returns the base58 form.
func (a Address) String() string {
	return string(a)
}
