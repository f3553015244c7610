// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/wallet"
)

// challengeTag is appended to the state hash of a challenge message.
const challengeTag = "forceMove"

// CalcID calculates the channel ID of a fixed part.
func CalcID(f FixedPart) (ID, error) {
	enc, err := encodeFixedPart(f)
	if err != nil {
		return ID{}, errors.WithMessage(err, "encoding fixed part")
	}
	id := crypto.Keccak256Hash(enc)
	if IsExternalDestination(id) {
		return ID{}, errors.WithMessagef(ErrInvalidChannelID, "%v", id)
	}
	return id, nil
}

// HashState calculates the hash of the state composed of f and v.
func HashState(f FixedPart, v VariablePart) (Hash, error) {
	id, err := CalcID(f)
	if err != nil {
		return Hash{}, err
	}
	return hashStateWithID(id, v)
}

func hashStateWithID(id ID, v VariablePart) (Hash, error) {
	enc, err := encodeState(id, v)
	if err != nil {
		return Hash{}, errors.WithMessage(err, "encoding state")
	}
	return crypto.Keccak256Hash(enc), nil
}

// HashOutcome calculates the hash of an encoded outcome.
func HashOutcome(e Exit) (Hash, error) {
	enc, err := EncodeOutcome(e)
	if err != nil {
		return Hash{}, errors.WithMessage(err, "encoding outcome")
	}
	return crypto.Keccak256Hash(enc), nil
}

// ChallengeHash returns the digest a challenger signs to register a challenge
// with the state of stateHash.
func ChallengeHash(stateHash Hash) Hash {
	enc, err := challengeArgs.Pack([32]byte(stateHash), challengeTag)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

// IsExternalDestination returns whether dest is a zero-padded address.
func IsExternalDestination(dest Destination) bool {
	for _, b := range dest[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return false
		}
	}
	return true
}

// ToDestination pads an address to a destination.
func ToDestination(addr common.Address) Destination {
	return common.BytesToHash(addr[:])
}

// ToAddress returns the low 20 bytes of a destination.
func ToAddress(dest Destination) common.Address {
	return common.BytesToAddress(dest[:])
}

// SignState signs the state composed of f and v.
func SignState(acc *wallet.Account, f FixedPart, v VariablePart) (wallet.Sig, error) {
	h, err := HashState(f, v)
	if err != nil {
		return wallet.Sig{}, err
	}
	return acc.SignHash(h)
}

// SignChallenge signs the challenge message of a state hash.
func SignChallenge(acc *wallet.Account, stateHash Hash) (wallet.Sig, error) {
	return acc.SignHash(ChallengeHash(stateHash))
}
