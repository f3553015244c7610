// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"math/big"

	"github.com/pkg/errors"
)

// TransferEffects is the result of paying out allocations of a channel.
type TransferEffects struct {
	// NewAllocations are the allocations with the paid amounts deducted.
	NewAllocations []Allocation
	// AllocatesOnlyZeros is true if nothing remains to be paid.
	AllocatesOnlyZeros bool
	// ExitAllocations holds one entry per paid index with the paid amount.
	ExitAllocations []Allocation
	// TotalPayouts is the sum of all paid amounts.
	TotalPayouts *big.Int
}

// ComputeTransferEffects pays the allocations at indices from holdings.
// Allocations are served in order and each one is capped by what is left
// after all allocations before it, paid or not. Empty indices select all
// allocations.
func ComputeTransferEffects(holdings *big.Int, allocations []Allocation, indices []uint) (TransferEffects, error) {
	if err := checkIndices(indices, len(allocations)); err != nil {
		return TransferEffects{}, err
	}
	if holdings.Sign() < 0 {
		return TransferEffects{}, errors.WithMessagef(ErrNegativeAmount, "holdings %v", holdings)
	}

	n := len(indices)
	if n == 0 {
		n = len(allocations)
	}
	effects := TransferEffects{
		NewAllocations:     make([]Allocation, len(allocations)),
		AllocatesOnlyZeros: true,
		ExitAllocations:    make([]Allocation, 0, n),
		TotalPayouts:       new(big.Int),
	}

	surplus := new(big.Int).Set(holdings)
	k := 0
	for i, alloc := range allocations {
		newAlloc := alloc.Clone()
		newAlloc.Amount = new(big.Int).Set(amountOf(alloc))
		if newAlloc.Amount.Sign() < 0 {
			return TransferEffects{}, errors.WithMessagef(ErrNegativeAmount, "allocation %d", i)
		}
		affords := minBig(newAlloc.Amount, surplus)

		if len(indices) == 0 || (k < len(indices) && indices[k] == uint(i)) {
			if alloc.AllocationType == GuaranteeAllocation {
				return TransferEffects{}, errors.WithMessagef(ErrGuaranteeNotTransferable, "index %d", i)
			}
			newAlloc.Amount.Sub(newAlloc.Amount, affords)
			exit := alloc.Clone()
			exit.Amount = new(big.Int).Set(affords)
			effects.ExitAllocations = append(effects.ExitAllocations, exit)
			effects.TotalPayouts.Add(effects.TotalPayouts, affords)
			k++
		}
		if newAlloc.Amount.Sign() != 0 {
			effects.AllocatesOnlyZeros = false
		}
		surplus.Sub(surplus, affords)
		effects.NewAllocations[i] = newAlloc
	}
	return effects, nil
}

// ComputeReclaimEffects removes the guarantee at index from source and credits
// the destinations it covers with what they are paid in target. The left
// destination is served first. Credits never exceed the guarantee amount in
// total and missing destinations are appended to source.
func ComputeReclaimEffects(source, target []Allocation, index uint) ([]Allocation, error) {
	if index >= uint(len(source)) {
		return nil, errors.WithMessagef(ErrIndexOutOfRange, "guarantee index %d of %d", index, len(source))
	}
	guarantee := source[index]
	if guarantee.AllocationType != GuaranteeAllocation {
		return nil, errors.WithMessagef(ErrNotAGuarantee, "index %d", index)
	}
	g, err := DecodeGuarantee(guarantee.Metadata)
	if err != nil {
		return nil, err
	}

	result := make([]Allocation, 0, len(source)+1)
	for i, alloc := range source {
		if uint(i) != index {
			result = append(result, alloc.Clone())
		}
	}

	capacity := new(big.Int).Set(amountOf(guarantee))
	for _, dest := range []Destination{g.Left, g.Right} {
		credit := minBig(paidTo(target, dest), capacity)
		if credit.Sign() == 0 {
			continue
		}
		capacity.Sub(capacity, credit)
		if j := findSimple(result, dest); j >= 0 {
			result[j].Amount = new(big.Int).Add(amountOf(result[j]), credit)
		} else {
			result = append(result, NewSimpleAllocation(dest, credit))
		}
	}
	return result, nil
}

// checkIndices requires strictly increasing indices below n.
func checkIndices(indices []uint, n int) error {
	for i, idx := range indices {
		if i > 0 && idx <= indices[i-1] {
			return errors.WithMessagef(ErrIndicesMustBeSorted, "%v", indices)
		}
		if idx >= uint(n) {
			return errors.WithMessagef(ErrIndexOutOfRange, "allocation index %d of %d", idx, n)
		}
	}
	return nil
}

// paidTo sums the simple allocations of dest.
func paidTo(allocs []Allocation, dest Destination) *big.Int {
	sum := new(big.Int)
	for _, a := range allocs {
		if a.Destination == dest && a.AllocationType == SimpleAllocation {
			sum.Add(sum, amountOf(a))
		}
	}
	return sum
}

func findSimple(allocs []Allocation, dest Destination) int {
	for i, a := range allocs {
		if a.Destination == dest && a.AllocationType == SimpleAllocation {
			return i
		}
	}
	return -1
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
