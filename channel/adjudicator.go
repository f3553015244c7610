// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"

	"github.com/pkg/errors"
	pchannel "perun.network/go-perun/channel"
	"perun.network/go-perun/log"

	"perun.network/perun-forcemove-backend/channel/connector"
	"perun.network/perun-forcemove-backend/wallet"
)

// Adjudicator runs the ForceMove dispute protocol. A channel is open,
// challenged or finalized. The mode is derived from the stored status and
// the current time on every call, so a challenge finalizes without a write
// once its timeout elapsed.
type Adjudicator struct {
	log.Embedding

	conn   *connector.Connector
	apps   ValidatorLookup
	holder *AssetHolder
}

// ErrClockNotSet the time source reports the Unix epoch.
var ErrClockNotSet = errors.New("clock reports zero time")

// NewAdjudicator returns a new Adjudicator that looks up the transition rules
// of a channel in apps.
func NewAdjudicator(conn *connector.Connector, apps ValidatorLookup) *Adjudicator {
	return &Adjudicator{
		Embedding: log.MakeEmbedding(log.Default()),
		conn:      conn,
		apps:      apps,
		holder:    NewAssetHolder(conn),
	}
}

// AssetHolder returns the asset holder that pays out concluded channels.
func (a *Adjudicator) AssetHolder() *AssetHolder {
	return a.holder
}

// Challenge registers candidate with a countdown of the channel's challenge
// duration. The candidate must be supported by proof and advance the turn
// number record strictly.
// challengerSig must be a participant's signature on ChallengeHash of the
// candidate.
func (a *Adjudicator) Challenge(ctx context.Context, f FixedPart, proof []SignedVariablePart, candidate SignedVariablePart, challengerSig wallet.Sig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, support, validator, err := a.prepare(f, proof, candidate)
	if err != nil {
		return err
	}
	stateHash, err := hashStateWithID(id, candidate.VariablePart)
	if err != nil {
		return err
	}
	outcomeHash, err := HashOutcome(candidate.Outcome)
	if err != nil {
		return err
	}
	challenger, challengerErr := wallet.RecoverSigner(ChallengeHash(stateHash), challengerSig)

	return a.conn.Update("challenge", func(txn *connector.Txn) error {
		status, now, err := a.load(txn, id)
		if err != nil {
			return err
		}
		mode := status.Mode(now)
		if mode == connector.ModeFinalized {
			return errors.WithMessagef(ErrChannelFinalized, "channel %v", id)
		}
		record := status.TurnNumRecord()
		if candidate.TurnNum <= record {
			return errors.WithMessagef(ErrTurnNumNotIncreased, "turnNum %d, record %d", candidate.TurnNum, record)
		}
		if err := validator.StateIsSupported(f, support.Proof, support.Candidate); err != nil {
			return err
		}
		if challengerErr != nil {
			return errors.WithMessage(ErrChallengerNotParticipant, challengerErr.Error())
		}
		if _, ok := f.ParticipantIndex(challenger); !ok {
			return errors.WithMessagef(ErrChallengerNotParticipant, "%v", challenger)
		}

		data := connector.ChannelData{
			TurnNumRecord: candidate.TurnNum,
			FinalizesAt:   now + f.ChallengeDuration,
			StateHash:     stateHash,
			OutcomeHash:   outcomeHash,
		}
		if err := a.store(txn, id, data); err != nil {
			return err
		}
		txn.Emit(&connector.ChallengeRegisteredEvent{
			EventBase:     connector.EventBase{IDV: id, TimeV: now},
			TurnNumRecord: data.TurnNumRecord,
			FinalizesAt:   data.FinalizesAt,
			StateHash:     stateHash,
			OutcomeHash:   outcomeHash,
			Challenger:    challenger.AsEthAddress(),
		})
		a.Log().WithField("channel", id).WithField("turnNum", candidate.TurnNum).
			Infof("challenge registered, finalizes at %d", data.FinalizesAt)
		return nil
	})
}

// Checkpoint records a supported candidate with a strictly greater turn
// number and clears a running challenge.
func (a *Adjudicator) Checkpoint(ctx context.Context, f FixedPart, proof []SignedVariablePart, candidate SignedVariablePart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, support, validator, err := a.prepare(f, proof, candidate)
	if err != nil {
		return err
	}

	return a.conn.Update("checkpoint", func(txn *connector.Txn) error {
		status, now, err := a.load(txn, id)
		if err != nil {
			return err
		}
		mode := status.Mode(now)
		if mode == connector.ModeFinalized {
			return errors.WithMessagef(ErrChannelFinalized, "channel %v", id)
		}
		if record := status.TurnNumRecord(); candidate.TurnNum <= record {
			return errors.WithMessagef(ErrTurnNumNotIncreased, "turnNum %d, record %d", candidate.TurnNum, record)
		}
		if err := validator.StateIsSupported(f, support.Proof, support.Candidate); err != nil {
			return err
		}

		if err := a.store(txn, id, connector.ChannelData{TurnNumRecord: candidate.TurnNum}); err != nil {
			return err
		}
		base := connector.EventBase{IDV: id, TimeV: now}
		if mode == connector.ModeChallenge {
			txn.Emit(&connector.ChallengeClearedEvent{EventBase: base, TurnNumRecord: candidate.TurnNum})
			a.Log().WithField("channel", id).WithField("turnNum", candidate.TurnNum).Info("challenge cleared")
		} else {
			txn.Emit(&connector.CheckpointedEvent{EventBase: base, TurnNumRecord: candidate.TurnNum})
		}
		return nil
	})
}

// Conclude finalizes the channel immediately with a final state that all
// participants signed.
func (a *Adjudicator) Conclude(ctx context.Context, f FixedPart, candidate SignedVariablePart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, outcomeHash, err := a.prepareConclude(f, candidate)
	if err != nil {
		return err
	}
	return a.conn.Update("conclude", func(txn *connector.Txn) error {
		_, err := a.conclude(txn, id, candidate, outcomeHash)
		return err
	})
}

// ConcludeAndTransferAllAssets concludes the channel and pays out all
// allocations of its outcome in one step.
func (a *Adjudicator) ConcludeAndTransferAllAssets(ctx context.Context, f FixedPart, candidate SignedVariablePart) (res TransferResult, err error) {
	if err := ctx.Err(); err != nil {
		return res, err
	}
	id, outcomeHash, err := a.prepareConclude(f, candidate)
	if err != nil {
		return res, err
	}
	err = a.conn.Update("concludeAndTransferAllAssets", func(txn *connector.Txn) error {
		status, err := a.conclude(txn, id, candidate, outcomeHash)
		if err != nil {
			return err
		}
		res, err = a.holder.transferAll(txn, id, status, Hash{}, candidate.Outcome.Clone())
		return err
	})
	return res, err
}

// Status returns the stored status of a channel.
func (a *Adjudicator) Status(id ID) (connector.Status, error) {
	return a.conn.Status(id)
}

// Mode returns the current mode of a channel.
func (a *Adjudicator) Mode(id ID) (connector.Mode, error) {
	status, err := a.conn.Status(id)
	if err != nil {
		return 0, err
	}
	return status.Mode(a.conn.Now()), nil
}

// Timeout returns a timeout that elapses when the registered challenge of a
// channel finalizes.
func (a *Adjudicator) Timeout(id ID) (pchannel.Timeout, error) {
	status, err := a.conn.Status(id)
	if err != nil {
		return nil, err
	}
	switch status.Mode(a.conn.Now()) {
	case connector.ModeFinalized:
		return connector.NewExpiredTimeout(), nil
	case connector.ModeChallenge:
		return connector.MakeTimeout(a.conn.Clock(), status.FinalizesAt()), nil
	default:
		return nil, errors.WithMessagef(ErrNoChallenge, "channel %v", id)
	}
}

// Subscribe returns a subscription on the events of a channel.
func (a *Adjudicator) Subscribe(id ID) *connector.EventSub {
	return a.conn.Subscribe(connector.ForChannel(id))
}

// prepare recovers the signers of a support proof and looks up the
// validator of the channel.
func (a *Adjudicator) prepare(f FixedPart, proof []SignedVariablePart, candidate SignedVariablePart) (ID, SupportProof, TransitionValidator, error) {
	id, err := CalcID(f)
	if err != nil {
		return ID{}, SupportProof{}, nil, err
	}
	if !hasSignatures(proof, candidate) {
		return ID{}, SupportProof{}, nil, ErrEmptySupport
	}
	support, err := RecoverVariableParts(f, proof, candidate)
	if err != nil {
		return ID{}, SupportProof{}, nil, err
	}
	validator, err := a.apps.Validator(f.AppDefinition)
	if err != nil {
		return ID{}, SupportProof{}, nil, err
	}
	return id, support, validator, nil
}

func (a *Adjudicator) prepareConclude(f FixedPart, candidate SignedVariablePart) (ID, Hash, error) {
	id, err := CalcID(f)
	if err != nil {
		return ID{}, Hash{}, err
	}
	if len(candidate.Sigs) == 0 {
		return ID{}, Hash{}, ErrEmptySupport
	}
	if !candidate.IsFinal {
		return ID{}, Hash{}, errors.WithMessagef(ErrNonFinalState, "turnNum %d", candidate.TurnNum)
	}
	rvp, err := recoverVariablePart(f, id, candidate)
	if err != nil {
		return ID{}, Hash{}, err
	}
	if !IsUnanimous(rvp.SignedBy, f.NumParticipants()) {
		return ID{}, Hash{}, errors.WithMessagef(ErrNotUnanimous, "signed by %v", DecodeSigners(rvp.SignedBy))
	}
	outcomeHash, err := HashOutcome(candidate.Outcome)
	return id, outcomeHash, err
}

// conclude finalizes the channel at the current time. The turn number
// record is kept if it exceeds the candidate's.
func (a *Adjudicator) conclude(txn *connector.Txn, id ID, candidate SignedVariablePart, outcomeHash Hash) (connector.Status, error) {
	status, now, err := a.load(txn, id)
	if err != nil {
		return status, err
	}
	if status.IsFinalized(now) {
		return status, errors.WithMessagef(ErrChannelFinalized, "channel %v", id)
	}
	record := status.TurnNumRecord()
	if candidate.TurnNum > record {
		record = candidate.TurnNum
	}
	data := connector.ChannelData{
		TurnNumRecord: record,
		FinalizesAt:   now,
		OutcomeHash:   outcomeHash,
	}
	if err := a.store(txn, id, data); err != nil {
		return status, err
	}
	txn.Emit(&connector.ConcludedEvent{
		EventBase:     connector.EventBase{IDV: id, TimeV: now},
		TurnNumRecord: record,
		OutcomeHash:   outcomeHash,
	})
	a.Log().WithField("channel", id).WithField("turnNum", candidate.TurnNum).Info("channel concluded")
	return txn.Status(id)
}

func (a *Adjudicator) load(txn *connector.Txn, id ID) (connector.Status, connector.Timestamp, error) {
	now := a.conn.Now()
	if now == 0 {
		return connector.Status{}, 0, ErrClockNotSet
	}
	status, err := txn.Status(id)
	return status, now, err
}

func (a *Adjudicator) store(txn *connector.Txn, id ID, data connector.ChannelData) error {
	status, err := connector.EncodeStatus(data)
	if err != nil {
		return err
	}
	return txn.SetStatus(id, status)
}

func hasSignatures(proof []SignedVariablePart, candidate SignedVariablePart) bool {
	if len(candidate.Sigs) > 0 {
		return true
	}
	for _, p := range proof {
		if len(p.Sigs) > 0 {
			return true
		}
	}
	return false
}
