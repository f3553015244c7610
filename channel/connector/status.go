// SPDX-License-Identifier: Apache-2.0
package connector

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Mode of a channel at a point in time.
type Mode uint8

const (
	// ModeOpen no challenge is running.
	ModeOpen Mode = iota
	// ModeChallenge a challenge is running and can still be cleared.
	ModeChallenge
	// ModeFinalized the registered outcome is final.
	ModeFinalized
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeOpen:
		return "open"
	case ModeChallenge:
		return "challenge"
	case ModeFinalized:
		return "finalized"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Status is the 32 byte commitment that is stored per channel:
// turnNumRecord (6 byte) | finalizesAt (6 byte) | fingerprint (20 byte).
// The fingerprint is the low 160 bits of keccak256(stateHash, outcomeHash).
// The zero Status belongs to a channel that was never touched.
type Status [StatusLen]byte

// Fingerprint of a registered state and outcome.
type Fingerprint [FingerprintLen]byte

// MakeFingerprint computes the fingerprint of a state and outcome hash. The
// preimage equals abi.encode(bytes32, bytes32).
func MakeFingerprint(stateHash, outcomeHash common.Hash) Fingerprint {
	var fp Fingerprint
	copy(fp[:], crypto.Keccak256(stateHash[:], outcomeHash[:])[common.HashLength-FingerprintLen:])
	return fp
}

// EncodeStatus packs the channel data into a Status.
func EncodeStatus(d ChannelData) (Status, error) {
	var s Status
	if d.TurnNumRecord > MaxUint48 {
		return s, errors.WithMessagef(ErrOverflow, "turnNumRecord %d", d.TurnNumRecord)
	}
	if d.FinalizesAt > MaxUint48 {
		return s, errors.WithMessagef(ErrOverflow, "finalizesAt %d", d.FinalizesAt)
	}
	putUint48(s[0:6], d.TurnNumRecord)
	putUint48(s[6:12], d.FinalizesAt)
	fp := MakeFingerprint(d.StateHash, d.OutcomeHash)
	copy(s[12:], fp[:])
	return s, nil
}

// Unpack splits the status into its three fields.
func (s Status) Unpack() (turnNumRecord TurnNum, finalizesAt Timestamp, fp Fingerprint) {
	turnNumRecord = uint48(s[0:6])
	finalizesAt = uint48(s[6:12])
	copy(fp[:], s[12:])
	return
}

// TurnNumRecord returns the registered turn number.
func (s Status) TurnNumRecord() TurnNum {
	return uint48(s[0:6])
}

// FinalizesAt returns the finalization time or zero if the channel is open.
func (s Status) FinalizesAt() Timestamp {
	return uint48(s[6:12])
}

// Mode returns the mode of the channel at time now.
func (s Status) Mode(now Timestamp) Mode {
	finalizesAt := s.FinalizesAt()
	switch {
	case finalizesAt == 0:
		return ModeOpen
	case finalizesAt <= now:
		return ModeFinalized
	default:
		return ModeChallenge
	}
}

// IsOpen returns whether no challenge is registered.
func (s Status) IsOpen() bool {
	return s.FinalizesAt() == 0
}

// IsChallenged returns whether a challenge is running at time now.
func (s Status) IsChallenged(now Timestamp) bool {
	return s.Mode(now) == ModeChallenge
}

// IsFinalized returns whether the outcome is final at time now.
func (s Status) IsFinalized(now Timestamp) bool {
	return s.Mode(now) == ModeFinalized
}

// MatchesFingerprint returns whether the status commits to the given hashes.
func (s Status) MatchesFingerprint(stateHash, outcomeHash common.Hash) bool {
	fp := MakeFingerprint(stateHash, outcomeHash)
	return bytes.Equal(s[12:], fp[:])
}

// IsZero returns whether the channel was never touched.
func (s Status) IsZero() bool {
	return s == Status{}
}

// String returns a short human readable form.
func (s Status) String() string {
	turnNum, finalizesAt, fp := s.Unpack()
	return fmt.Sprintf("{turnNumRecord: %d, finalizesAt: %d, fingerprint: %x}", turnNum, finalizesAt, fp[:4])
}

func putUint48(b []byte, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	copy(b, buf[2:])
}

func uint48(b []byte) uint64 {
	var buf [8]byte
	copy(buf[2:], b)
	return binary.BigEndian.Uint64(buf[:])
}
