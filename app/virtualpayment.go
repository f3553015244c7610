// SPDX-License-Identifier: Apache-2.0

package app

import (
	"math/big"

	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/channel"
	"perun.network/perun-forcemove-backend/channel/connector"
)

// VirtualPayment supports micropayments from the first participant (payer)
// to the last participant (payee) of a channel.
//
// The setup states with turn numbers 0 and 1 and final states need
// unanimous signatures. A later state is supported by the unanimous state 1
// as proof if the payee alone signed it and it redeems a payer-signed voucher
// in its app data: the outcome must equal the proof's outcome with exactly
// the voucher amount moved from payer to payee.
type VirtualPayment struct{}

const (
	payerIndex = 0
	// postFundTurnNum is the turn number of the last setup state.
	postFundTurnNum = 1
)

// StateIsSupported implements channel.TransitionValidator.
func (VirtualPayment) StateIsSupported(f channel.FixedPart, proof []channel.RecoveredVariablePart, candidate channel.RecoveredVariablePart) error {
	n := f.NumParticipants()
	if n < 2 {
		return errors.WithMessagef(channel.ErrInvalidNumberOfProofStates, "%d participants", n)
	}

	switch len(proof) {
	case 0:
		if candidate.TurnNum > postFundTurnNum && !candidate.IsFinal {
			return errors.WithMessagef(channel.ErrInvalidNumberOfProofStates,
				"turnNum %d needs the post fund state as proof", candidate.TurnNum)
		}
		return requireUnanimous(f, candidate)
	case 1:
	default:
		return errors.WithMessagef(channel.ErrInvalidNumberOfProofStates, "%d proof states", len(proof))
	}

	postFund := proof[0]
	if postFund.TurnNum != postFundTurnNum {
		return errors.WithMessagef(channel.ErrWrongTurnNum, "proof turnNum %d", postFund.TurnNum)
	}
	if err := requireUnanimous(f, postFund); err != nil {
		return err
	}
	if candidate.TurnNum <= postFundTurnNum {
		return errors.WithMessagef(channel.ErrWrongTurnNum, "candidate turnNum %d", candidate.TurnNum)
	}
	if candidate.IsFinal {
		return requireUnanimous(f, candidate)
	}
	payee := uint(n - 1)
	if !channel.IsSignedOnlyBy(candidate.SignedBy, payee) {
		return errors.WithMessagef(channel.ErrInvalidSignedBy, "payment signed by %v, payee %d",
			channel.DecodeSigners(candidate.SignedBy), payee)
	}

	id, err := channel.CalcID(f)
	if err != nil {
		return err
	}
	voucher, err := DecodeVoucher(candidate.AppData)
	if err != nil {
		return err
	}
	if voucher.ChannelID != id {
		return errors.WithMessagef(channel.ErrInvalidVoucherChannel, "voucher for %v", voucher.ChannelID)
	}
	signer, err := voucher.Signer()
	if err != nil {
		return errors.WithMessage(channel.ErrInvalidVoucherSigner, err.Error())
	}
	if !signer.Equal(f.Participants[payerIndex]) {
		return errors.WithMessagef(channel.ErrInvalidVoucherSigner, "signed by %v", signer)
	}

	return requirePayment(postFund.Outcome, candidate.Outcome, voucher.Amount)
}

// requirePayment checks that next moves amount from the first to the second
// allocation of a single native asset exit.
func requirePayment(prev, next channel.Exit, amount *big.Int) error {
	if len(prev) != 1 || len(next) != 1 {
		return errors.WithMessage(channel.ErrAdjustmentMismatch, "outcome must have a single asset")
	}
	if prev[0].Asset != connector.NativeAsset || next[0].Asset != connector.NativeAsset {
		return errors.WithMessage(channel.ErrAdjustmentMismatch, "outcome must be in the native asset")
	}
	before, after := prev[0].Allocations, next[0].Allocations
	if len(before) != 2 || len(after) != 2 {
		return errors.WithMessage(channel.ErrAdjustmentMismatch, "outcome must have two allocations")
	}
	for i := range before {
		if before[i].Destination != after[i].Destination || after[i].AllocationType != channel.SimpleAllocation {
			return errors.WithMessagef(channel.ErrAdjustmentMismatch, "allocation %d changed destination or type", i)
		}
	}

	payer := new(big.Int).Sub(amountOf(before[0]), amount)
	payee := new(big.Int).Add(amountOf(before[1]), amount)
	if payer.Sign() < 0 || amountOf(after[0]).Cmp(payer) != 0 || amountOf(after[1]).Cmp(payee) != 0 {
		return errors.WithMessagef(channel.ErrAdjustmentMismatch, "payment of %v: payer %v -> %v, payee %v -> %v",
			amount, amountOf(before[0]), amountOf(after[0]), amountOf(before[1]), amountOf(after[1]))
	}
	return nil
}

func amountOf(a channel.Allocation) *big.Int {
	if a.Amount == nil {
		return new(big.Int)
	}
	return a.Amount
}
