// SPDX-License-Identifier: Apache-2.0

package wallet

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AddressLen is the length of an Address in byte.
const AddressLen = common.AddressLength

// Address is the on- and off-chain identity of a channel participant.
type Address common.Address

// AsEthAddress returns the address as go-ethereum address.
func (a Address) AsEthAddress() common.Address {
	return common.Address(a)
}

// MarshalBinary returns the 20 address bytes.
func (a Address) MarshalBinary() ([]byte, error) {
	return a[:], nil
}

// UnmarshalBinary sets the address from exactly 20 bytes.
func (a *Address) UnmarshalBinary(data []byte) error {
	if len(data) != AddressLen {
		return fmt.Errorf("invalid address length: %d/%d", len(data), AddressLen)
	}
	copy(a[:], data)
	return nil
}

// String returns the EIP-55 checksummed hex encoding.
func (a Address) String() string {
	return common.Address(a).Hex()
}

func (a Address) Equal(b Address) bool {
	return a == b
}

// Cmp compares the byte representation of two addresses. For `a.Cmp(b)`
// returns -1 if a < b, 0 if a == b, 1 if a > b.
func (a Address) Cmp(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// HexToAddress parses a hex encoded address. It does not validate the
// checksum.
func HexToAddress(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return Address{}, fmt.Errorf("invalid hex address: %q", s)
	}
	return Address(common.HexToAddress(s)), nil
}
