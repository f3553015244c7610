// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"math/big"
	"math/bits"
)

// MaxParticipants is the number of bits of a signers bitfield.
const MaxParticipants = 256

// EncodeSigners sets bit i for every index i. Indices must be smaller than
// MaxParticipants.
func EncodeSigners(indices ...uint) *big.Int {
	signedBy := new(big.Int)
	for _, i := range indices {
		if i >= MaxParticipants {
			panic("signer index out of range")
		}
		signedBy.SetBit(signedBy, int(i), 1)
	}
	return signedBy
}

// DecodeSigners returns the indices of all set bits in ascending order.
func DecodeSigners(signedBy *big.Int) []uint {
	var indices []uint
	if signedBy == nil {
		return indices
	}
	for i := 0; i < signedBy.BitLen(); i++ {
		if signedBy.Bit(i) == 1 {
			indices = append(indices, uint(i))
		}
	}
	return indices
}

// CountSigners returns the number of set bits.
func CountSigners(signedBy *big.Int) uint {
	if signedBy == nil {
		return 0
	}
	var n uint
	for _, w := range signedBy.Bits() {
		n += uint(bits.OnesCount(uint(w)))
	}
	return n
}

// IsSignedBy returns whether participant i signed.
func IsSignedBy(signedBy *big.Int, i uint) bool {
	return signedBy != nil && signedBy.Bit(int(i)) == 1
}

// IsSignedOnlyBy returns whether participant i is the only signer.
func IsSignedOnlyBy(signedBy *big.Int, i uint) bool {
	return IsSignedBy(signedBy, i) && CountSigners(signedBy) == 1
}

// IsUnanimous returns whether exactly the first n participants signed.
func IsUnanimous(signedBy *big.Int, n int) bool {
	if signedBy == nil || n <= 0 {
		return false
	}
	all := new(big.Int).Lsh(big.NewInt(1), uint(n))
	return signedBy.Cmp(all.Sub(all, big.NewInt(1))) == 0
}
