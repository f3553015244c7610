// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/channel"
)

type (
	// Consensus supports a lone candidate that all participants signed.
	Consensus struct{}

	// Trivial supports every state.
	Trivial struct{}

	// Null supports no state.
	Null struct{}
)

// StateIsSupported implements channel.TransitionValidator.
func (Consensus) StateIsSupported(f channel.FixedPart, proof []channel.RecoveredVariablePart, candidate channel.RecoveredVariablePart) error {
	if len(proof) != 0 {
		return errors.WithMessagef(channel.ErrProofSupplied, "%d proof states", len(proof))
	}
	return requireUnanimous(f, candidate)
}

// StateIsSupported implements channel.TransitionValidator.
func (Trivial) StateIsSupported(channel.FixedPart, []channel.RecoveredVariablePart, channel.RecoveredVariablePart) error {
	return nil
}

// StateIsSupported implements channel.TransitionValidator.
func (Null) StateIsSupported(channel.FixedPart, []channel.RecoveredVariablePart, channel.RecoveredVariablePart) error {
	return channel.ErrUnsupported
}

func requireUnanimous(f channel.FixedPart, rvp channel.RecoveredVariablePart) error {
	if !channel.IsUnanimous(rvp.SignedBy, f.NumParticipants()) {
		return errors.WithMessagef(channel.ErrNotUnanimous, "turnNum %d signed by %v",
			rvp.TurnNum, channel.DecodeSigners(rvp.SignedBy))
	}
	return nil
}
