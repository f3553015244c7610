// SPDX-License-Identifier: Apache-2.0

package app

import (
	"math/big"

	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/channel"
)

// LedgerFinancing supports a loan of a principal from the lender (second
// participant) to the borrower (first participant) that accrues interest per
// block. A state that both signed is always supported. The lender alone may
// advance the unanimous state given as proof by moving interest from the
// borrower to itself, as long as the interest claimed per asset does not
// exceed principal * blocksElapsed / interestPerBlockDivisor. Claims below
// the earned interest are supported.
type LedgerFinancing struct{}

const (
	borrowerIndex = 0
	lenderIndex   = 1
)

// StateIsSupported implements channel.TransitionValidator.
func (LedgerFinancing) StateIsSupported(f channel.FixedPart, proof []channel.RecoveredVariablePart, candidate channel.RecoveredVariablePart) error {
	if n := f.NumParticipants(); n != 2 {
		return errors.WithMessagef(channel.ErrInvalidNumberOfProofStates, "%d participants, need borrower and lender", n)
	}
	if len(proof) == 0 {
		return requireUnanimous(f, candidate)
	}
	if len(proof) != 1 {
		return errors.WithMessagef(channel.ErrInvalidNumberOfProofStates, "%d proof states", len(proof))
	}

	agreed := proof[0]
	if err := requireUnanimous(f, agreed); err != nil {
		return err
	}
	if !channel.IsSignedOnlyBy(candidate.SignedBy, lenderIndex) {
		return errors.WithMessagef(channel.ErrInvalidSignedBy, "interest claim signed by %v",
			channel.DecodeSigners(candidate.SignedBy))
	}
	if candidate.TurnNum <= agreed.TurnNum {
		return errors.WithMessagef(channel.ErrWrongTurnNum, "turnNum %d follows %d", candidate.TurnNum, agreed.TurnNum)
	}

	prev, err := DecodeFinancingData(agreed.AppData)
	if err != nil {
		return err
	}
	next, err := DecodeFinancingData(candidate.AppData)
	if err != nil {
		return err
	}
	if err := requireSameTerms(prev, next); err != nil {
		return err
	}
	if next.BlockNumber.Cmp(prev.BlockNumber) < 0 {
		return errors.WithMessagef(channel.ErrAdjustmentMismatch, "block number decreased from %v to %v",
			prev.BlockNumber, next.BlockNumber)
	}
	blocks := new(big.Int).Sub(next.BlockNumber, prev.BlockNumber)

	borrower := channel.ToDestination(f.Participants[borrowerIndex].AsEthAddress())
	lender := channel.ToDestination(f.Participants[lenderIndex].AsEthAddress())
	if len(agreed.Outcome) != len(candidate.Outcome) {
		return errors.WithMessage(channel.ErrAdjustmentMismatch, "number of assets changed")
	}
	for i := range agreed.Outcome {
		claimed, err := interestClaimed(agreed.Outcome[i], candidate.Outcome[i], borrower, lender)
		if err != nil {
			return errors.WithMessagef(err, "asset %d", i)
		}
		if claimed.Sign() == 0 {
			continue
		}
		principal := principalOf(prev.Principal, agreed.Outcome[i].Asset)
		earned := new(big.Int).Mul(principal, blocks)
		earned.Quo(earned, prev.InterestPerBlockDivisor)
		if earned.Cmp(claimed) < 0 {
			return errors.WithMessagef(channel.ErrInterestExceedsEarned, "asset %v: earned %v, claimed %v",
				agreed.Outcome[i].Asset, earned, claimed)
		}
	}
	return nil
}

func requireSameTerms(prev, next FinancingData) error {
	if prev.InterestPerBlockDivisor.Sign() <= 0 {
		return errors.WithMessage(channel.ErrInvalidAppData, "interest divisor must be positive")
	}
	if prev.InterestPerBlockDivisor.Cmp(next.InterestPerBlockDivisor) != 0 {
		return errors.WithMessage(channel.ErrAdjustmentMismatch, "interest rate changed")
	}
	if len(prev.Principal.Assets) != len(next.Principal.Assets) {
		return errors.WithMessage(channel.ErrAdjustmentMismatch, "principal changed")
	}
	for i := range prev.Principal.Assets {
		if prev.Principal.Assets[i] != next.Principal.Assets[i] ||
			prev.Principal.Amounts[i].Cmp(next.Principal.Amounts[i]) != 0 {
			return errors.WithMessage(channel.ErrAdjustmentMismatch, "principal changed")
		}
	}
	return nil
}

// interestClaimed returns the amount the lender's allocation grew by. The
// borrower's allocation must shrink by the same amount and all other
// allocations must stay unchanged.
func interestClaimed(prev, next channel.SingleAssetExit, borrower, lender channel.Destination) (*big.Int, error) {
	if prev.Asset != next.Asset || len(prev.Allocations) != len(next.Allocations) {
		return nil, errors.WithMessage(channel.ErrAdjustmentMismatch, "allocations changed shape")
	}
	lenderDelta, borrowerDelta := new(big.Int), new(big.Int)
	for j := range prev.Allocations {
		before, after := prev.Allocations[j], next.Allocations[j]
		if before.Destination != after.Destination || before.AllocationType != after.AllocationType {
			return nil, errors.WithMessagef(channel.ErrAdjustmentMismatch, "allocation %d changed", j)
		}
		delta := new(big.Int).Sub(amountOf(after), amountOf(before))
		switch after.Destination {
		case lender:
			lenderDelta.Add(lenderDelta, delta)
		case borrower:
			borrowerDelta.Add(borrowerDelta, delta)
		default:
			if delta.Sign() != 0 {
				return nil, errors.WithMessagef(channel.ErrAdjustmentMismatch, "allocation %d of a third party changed", j)
			}
		}
	}
	if lenderDelta.Sign() < 0 || new(big.Int).Add(lenderDelta, borrowerDelta).Sign() != 0 {
		return nil, errors.WithMessagef(channel.ErrAdjustmentMismatch, "lender %+v, borrower %+v", lenderDelta, borrowerDelta)
	}
	return lenderDelta, nil
}

func principalOf(p Funds, asset channel.Asset) *big.Int {
	for i, a := range p.Assets {
		if a == asset {
			return p.Amounts[i]
		}
	}
	return new(big.Int)
}
