// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"perun.network/perun-forcemove-backend/wallet"
)

type (
	// TransitionValidator decides whether a candidate state is supported by
	// a proof. Implementations are pure functions of their input.
	TransitionValidator interface {
		// StateIsSupported returns nil if the candidate is supported and the
		// reason of the rejection otherwise.
		StateIsSupported(f FixedPart, proof []RecoveredVariablePart, candidate RecoveredVariablePart) error
	}

	// ValidatorLookup finds the validator of an app definition.
	ValidatorLookup interface {
		Validator(appDefinition wallet.Address) (TransitionValidator, error)
	}
)
