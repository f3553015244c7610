// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/channel/connector"
)

// Structural errors: the input cannot be validated at all.
var (
	// ErrInvalidChannelID a channel ID fell into the external address space.
	ErrInvalidChannelID = errors.New("invalid channel id")
	// ErrMalformedWhoSignedWhat a signature was mapped to no state.
	ErrMalformedWhoSignedWhat = errors.New("malformed whoSignedWhat")
	// ErrInvalidNumberOfProofStates the support proof has the wrong length.
	ErrInvalidNumberOfProofStates = errors.New("invalid number of proof states")
	// ErrIndicesMustBeSorted allocation indices are not strictly increasing.
	ErrIndicesMustBeSorted = errors.New("indices must be sorted")
	// ErrIndexOutOfRange an asset or allocation index does not exist.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrEmptySupport neither proof nor candidate were supplied.
	ErrEmptySupport = errors.New("empty support")
	// ErrInvalidOutcome an outcome or its metadata could not be decoded.
	ErrInvalidOutcome = errors.New("invalid outcome")
	// ErrInvalidAppData the app data of a state could not be decoded.
	ErrInvalidAppData = errors.New("invalid app data")
	// ErrProofSupplied a validator that only accepts a lone candidate was
	// given proof states.
	ErrProofSupplied = errors.New("proof supplied")
)

// Authorization errors: signature or role checks failed.
var (
	// ErrSignatureMismatch a signer is not a participant.
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrChallengerNotParticipant the challenger is not a participant.
	ErrChallengerNotParticipant = errors.New("challenger not a participant")
	// ErrInvalidSignedBy a state was not signed by the expected participant.
	ErrInvalidSignedBy = errors.New("invalid signedBy")
	// ErrNotUnanimous a state lacks the signature of some participant.
	ErrNotUnanimous = errors.New("not unanimous")
	// ErrUnsupported the application rejects every state.
	ErrUnsupported = errors.New("state not supported")
	// ErrUnknownApp no validator is registered for the app definition.
	ErrUnknownApp = errors.New("unknown app definition")
	// ErrInvalidVoucherChannel a voucher belongs to another channel.
	ErrInvalidVoucherChannel = errors.New("invalid voucher channel")
	// ErrInvalidVoucherSigner a voucher was not signed by the payer.
	ErrInvalidVoucherSigner = errors.New("invalid voucher signer")
)

// Sequencing errors: the input is inconsistent with the recorded history.
var (
	// ErrTurnNumNotIncreased the candidate does not advance the turn number.
	ErrTurnNumNotIncreased = errors.New("turnNum not increased")
	// ErrChannelFinalized the channel outcome is already final.
	ErrChannelFinalized = errors.New("channel finalized")
	// ErrChannelNotFinalized the channel outcome is not yet final.
	ErrChannelNotFinalized = errors.New("channel not finalized")
	// ErrNonFinalState a conclusion was requested with a non-final state.
	ErrNonFinalState = errors.New("state not final")
	// ErrWrongTurnNum the turn numbers of a support proof are not contiguous.
	ErrWrongTurnNum = errors.New("wrong turnNum")
	// ErrAdjustmentMismatch an outcome changed differently than permitted.
	ErrAdjustmentMismatch = errors.New("adjustment mismatch")
	// ErrInterestExceedsEarned a lender claimed more interest than accrued.
	ErrInterestExceedsEarned = errors.New("claimed interest exceeds earned interest")
	// ErrNoChallenge the channel has no running or finished challenge.
	ErrNoChallenge = errors.New("no challenge registered")
)

// Ledger errors: the ledger is inconsistent with the request.
var (
	// ErrHoldingsBelowExpected the holdings are less than the depositor expected.
	ErrHoldingsBelowExpected = errors.New("holdings below expected")
	// ErrIncorrectFingerprint the supplied state or outcome is not on file.
	ErrIncorrectFingerprint = errors.New("incorrect fingerprint")
	// ErrGuaranteeNotTransferable a guarantee was requested for transfer.
	ErrGuaranteeNotTransferable = errors.New("cannot transfer a guarantee")
	// ErrNotAGuarantee a reclaim referenced a non-guarantee allocation.
	ErrNotAGuarantee = errors.New("not a guarantee")
	// ErrDepositToExternal a deposit named an external destination.
	ErrDepositToExternal = errors.New("deposit to external destination")
	// ErrAssetMismatch source and target of a reclaim hold different assets.
	ErrAssetMismatch = errors.New("asset mismatch")
	// ErrNegativeAmount an amount was negative.
	ErrNegativeAmount = errors.New("negative amount")
)

// Class groups errors by how a caller should react to them.
type Class int

const (
	// ClassUnknown is not a protocol error, e.g. a store failure.
	ClassUnknown Class = iota
	// ClassStructural the input cannot be validated.
	ClassStructural
	// ClassAuthorization a signature or role check failed.
	ClassAuthorization
	// ClassSequencing another party already moved the channel forward.
	ClassSequencing
	// ClassLedger the ledger does not match the request.
	ClassLedger
)

var errorClasses = map[error]Class{
	ErrInvalidChannelID:           ClassStructural,
	ErrMalformedWhoSignedWhat:     ClassStructural,
	ErrInvalidNumberOfProofStates: ClassStructural,
	ErrIndicesMustBeSorted:        ClassStructural,
	ErrIndexOutOfRange:            ClassStructural,
	ErrEmptySupport:               ClassStructural,
	ErrInvalidOutcome:             ClassStructural,
	ErrInvalidAppData:             ClassStructural,
	ErrProofSupplied:              ClassStructural,
	connector.ErrOverflow:         ClassStructural,

	ErrSignatureMismatch:        ClassAuthorization,
	ErrChallengerNotParticipant: ClassAuthorization,
	ErrInvalidSignedBy:          ClassAuthorization,
	ErrNotUnanimous:             ClassAuthorization,
	ErrUnsupported:              ClassAuthorization,
	ErrUnknownApp:               ClassAuthorization,
	ErrInvalidVoucherChannel:    ClassAuthorization,
	ErrInvalidVoucherSigner:     ClassAuthorization,

	ErrTurnNumNotIncreased:   ClassSequencing,
	ErrChannelFinalized:      ClassSequencing,
	ErrChannelNotFinalized:   ClassSequencing,
	ErrNonFinalState:         ClassSequencing,
	ErrWrongTurnNum:          ClassSequencing,
	ErrAdjustmentMismatch:    ClassSequencing,
	ErrInterestExceedsEarned: ClassSequencing,
	ErrNoChallenge:           ClassSequencing,

	ErrHoldingsBelowExpected:    ClassLedger,
	ErrIncorrectFingerprint:     ClassLedger,
	ErrGuaranteeNotTransferable: ClassLedger,
	ErrNotAGuarantee:            ClassLedger,
	ErrDepositToExternal:        ClassLedger,
	ErrAssetMismatch:            ClassLedger,
	ErrNegativeAmount:           ClassLedger,
}

// ErrorClass returns the class of the protocol error wrapped by err.
func ErrorClass(err error) Class {
	for cause, class := range errorClasses {
		if errors.Is(err, cause) {
			return class
		}
	}
	return ClassUnknown
}

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case ClassStructural:
		return "structural"
	case ClassAuthorization:
		return "authorization"
	case ClassSequencing:
		return "sequencing"
	case ClassLedger:
		return "ledger"
	}
	return "unknown"
}
