// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/channel"
)

// StrictTurnTaking supports a chain of one state per participant with
// consecutive turn numbers where every state is signed by its mover only. The
// mover of turn t is participant t mod n. With Shortcutting set, a candidate
// that all participants signed is supported on its own.
type StrictTurnTaking struct {
	Shortcutting bool
}

// StateIsSupported implements channel.TransitionValidator.
func (s StrictTurnTaking) StateIsSupported(f channel.FixedPart, proof []channel.RecoveredVariablePart, candidate channel.RecoveredVariablePart) error {
	n := f.NumParticipants()
	if s.Shortcutting && channel.IsUnanimous(candidate.SignedBy, n) {
		return nil
	}
	if n == 0 || len(proof)+1 != n {
		return errors.WithMessagef(channel.ErrInvalidNumberOfProofStates, "%d states for %d participants", len(proof)+1, n)
	}

	states := append(append(make([]channel.RecoveredVariablePart, 0, n), proof...), candidate)
	for i, st := range states {
		mover := uint(st.TurnNum % uint64(n))
		if !channel.IsSignedOnlyBy(st.SignedBy, mover) {
			return errors.WithMessagef(channel.ErrInvalidSignedBy, "turnNum %d signed by %v, mover %d",
				st.TurnNum, channel.DecodeSigners(st.SignedBy), mover)
		}
		if i > 0 && st.TurnNum != states[i-1].TurnNum+1 {
			return errors.WithMessagef(channel.ErrWrongTurnNum, "turnNum %d follows %d", st.TurnNum, states[i-1].TurnNum)
		}
	}
	return nil
}
