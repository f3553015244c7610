// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"math/big"

	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/wallet"
)

// RecoverSupportProof binds signatures to the states they attest to. The
// i-th signature was made on parts[whoSignedWhat[i]]. Every signature is
// recovered and its signer is looked up in the participants, so a signer
// that signed twice is counted once.
func RecoverSupportProof(f FixedPart, parts []VariablePart, sigs []wallet.Sig, whoSignedWhat []uint) (SupportProof, error) {
	if len(parts) == 0 {
		return SupportProof{}, ErrEmptySupport
	}
	if len(whoSignedWhat) != len(sigs) {
		return SupportProof{}, errors.WithMessagef(ErrMalformedWhoSignedWhat,
			"%d signatures, %d mappings", len(sigs), len(whoSignedWhat))
	}
	id, err := CalcID(f)
	if err != nil {
		return SupportProof{}, err
	}

	hashes := make([]Hash, len(parts))
	for i, v := range parts {
		if hashes[i], err = hashStateWithID(id, v); err != nil {
			return SupportProof{}, err
		}
	}

	recovered := make([]RecoveredVariablePart, len(parts))
	for i := range parts {
		recovered[i] = RecoveredVariablePart{VariablePart: parts[i], SignedBy: new(big.Int)}
	}
	for i, sig := range sigs {
		target := whoSignedWhat[i]
		if target >= uint(len(parts)) {
			return SupportProof{}, errors.WithMessagef(ErrMalformedWhoSignedWhat,
				"signature %d maps to state %d of %d", i, target, len(parts))
		}
		idx, err := recoverParticipant(f, hashes[target], sig)
		if err != nil {
			return SupportProof{}, errors.WithMessagef(err, "signature %d", i)
		}
		signedBy := recovered[target].SignedBy
		signedBy.SetBit(signedBy, int(idx), 1)
	}
	return splitSupport(recovered), nil
}

// RecoverVariableParts recovers the signers of a proof and its candidate.
func RecoverVariableParts(f FixedPart, proof []SignedVariablePart, candidate SignedVariablePart) (SupportProof, error) {
	id, err := CalcID(f)
	if err != nil {
		return SupportProof{}, err
	}
	recovered := make([]RecoveredVariablePart, 0, len(proof)+1)
	for i, svp := range append(append([]SignedVariablePart{}, proof...), candidate) {
		rvp, err := recoverVariablePart(f, id, svp)
		if err != nil {
			return SupportProof{}, errors.WithMessagef(err, "state %d", i)
		}
		recovered = append(recovered, rvp)
	}
	return splitSupport(recovered), nil
}

// RecoverVariablePart recovers the signers of a single signed state.
func RecoverVariablePart(f FixedPart, svp SignedVariablePart) (RecoveredVariablePart, error) {
	id, err := CalcID(f)
	if err != nil {
		return RecoveredVariablePart{}, err
	}
	return recoverVariablePart(f, id, svp)
}

func recoverVariablePart(f FixedPart, id ID, svp SignedVariablePart) (RecoveredVariablePart, error) {
	h, err := hashStateWithID(id, svp.VariablePart)
	if err != nil {
		return RecoveredVariablePart{}, err
	}
	signedBy := new(big.Int)
	for _, sig := range svp.Sigs {
		idx, err := recoverParticipant(f, h, sig)
		if err != nil {
			return RecoveredVariablePart{}, err
		}
		signedBy.SetBit(signedBy, int(idx), 1)
	}
	return RecoveredVariablePart{VariablePart: svp.VariablePart, SignedBy: signedBy}, nil
}

func recoverParticipant(f FixedPart, h Hash, sig wallet.Sig) (uint, error) {
	signer, err := wallet.RecoverSigner(h, sig)
	if err != nil {
		return 0, errors.WithMessage(ErrSignatureMismatch, err.Error())
	}
	idx, ok := f.ParticipantIndex(signer)
	if !ok {
		return 0, errors.WithMessagef(ErrSignatureMismatch, "signer %v is no participant", signer)
	}
	return idx, nil
}

func splitSupport(parts []RecoveredVariablePart) SupportProof {
	last := len(parts) - 1
	return SupportProof{Proof: parts[:last], Candidate: parts[last]}
}

// SignVariablePart signs v with every account and attaches the signatures.
func SignVariablePart(f FixedPart, v VariablePart, accs ...*wallet.Account) (SignedVariablePart, error) {
	svp := SignedVariablePart{VariablePart: v, Sigs: make([]wallet.Sig, 0, len(accs))}
	for _, acc := range accs {
		sig, err := SignState(acc, f, v)
		if err != nil {
			return SignedVariablePart{}, err
		}
		svp.Sigs = append(svp.Sigs, sig)
	}
	return svp, nil
}
