// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"perun.network/go-perun/log"

	"perun.network/perun-forcemove-backend/channel/connector"
)

// AssetHolder pays out the finalized outcomes of channels. Payouts to
// external destinations leave the ledger, payouts to channels are credited
// to their holdings.
type AssetHolder struct {
	log.Embedding

	conn *connector.Connector
}

type (
	// AssetPayout reports the payout of one asset of an outcome.
	AssetPayout struct {
		AssetIndex      int
		Asset           Asset
		InitialHoldings *big.Int
		Effects         TransferEffects
	}

	// TransferResult is the result of a transfer or claim.
	TransferResult struct {
		// NewOutcome is the outcome that is on file after the operation.
		NewOutcome Exit
		Payouts    []AssetPayout
	}

	// ReclaimArgs references a guarantee in the finalized outcome of a
	// source channel. The guarantee's destination is the target channel.
	ReclaimArgs struct {
		SourceChannelID       ID
		SourceStateHash       Hash
		SourceOutcomeBytes    []byte
		SourceAssetIndex      int
		IndexOfTargetInSource uint
		TargetStateHash       Hash
		TargetOutcomeBytes    []byte
		TargetAssetIndex      int
	}
)

// NewAssetHolder returns a new AssetHolder.
func NewAssetHolder(conn *connector.Connector) *AssetHolder {
	return &AssetHolder{log.MakeEmbedding(log.Default()), conn}
}

// Transfer pays out the allocations at indices of the asset at assetIndex.
// The outcome and state hash must match the finalized channel's record.
func (h *AssetHolder) Transfer(ctx context.Context, assetIndex int, id ID, outcomeBytes []byte, stateHash Hash, indices []uint) (res TransferResult, err error) {
	if err := ctx.Err(); err != nil {
		return res, err
	}
	err = h.conn.Update("transfer", func(txn *connector.Txn) error {
		status, exit, err := h.finalizedOutcome(txn, id, outcomeBytes, stateHash)
		if err != nil {
			return err
		}
		if assetIndex < 0 || assetIndex >= len(exit) {
			return errors.WithMessagef(ErrIndexOutOfRange, "asset index %d of %d", assetIndex, len(exit))
		}
		p, err := h.payout(txn, id, exit, assetIndex, indices)
		if err != nil {
			return err
		}
		res = TransferResult{NewOutcome: exit, Payouts: []AssetPayout{p}}
		return h.storeOutcome(txn, id, status, stateHash, exit)
	})
	return res, err
}

// TransferAllAssets pays out all allocations of all assets.
func (h *AssetHolder) TransferAllAssets(ctx context.Context, id ID, outcomeBytes []byte, stateHash Hash) (res TransferResult, err error) {
	if err := ctx.Err(); err != nil {
		return res, err
	}
	err = h.conn.Update("transferAllAssets", func(txn *connector.Txn) error {
		status, exit, err := h.finalizedOutcome(txn, id, outcomeBytes, stateHash)
		if err != nil {
			return err
		}
		res, err = h.transferAll(txn, id, status, stateHash, exit)
		return err
	})
	return res, err
}

// Reclaim replaces the guarantee of a source channel by the payouts the
// target channel's finalized outcome grants to the covered destinations.
func (h *AssetHolder) Reclaim(ctx context.Context, args ReclaimArgs) (newOutcome Exit, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = h.conn.Update("reclaim", func(txn *connector.Txn) error {
		status, exit, _, err := h.reclaim(txn, args)
		if err != nil {
			return err
		}
		newOutcome = exit
		return h.storeOutcome(txn, args.SourceChannelID, status, args.SourceStateHash, exit)
	})
	return newOutcome, err
}

// Claim reclaims a guarantee and pays out the covered destinations of the
// source channel in the same step.
func (h *AssetHolder) Claim(ctx context.Context, args ReclaimArgs) (res TransferResult, err error) {
	if err := ctx.Err(); err != nil {
		return res, err
	}
	err = h.conn.Update("claim", func(txn *connector.Txn) error {
		status, exit, g, err := h.reclaim(txn, args)
		if err != nil {
			return err
		}
		res.NewOutcome = exit

		allocs := exit[args.SourceAssetIndex].Allocations
		var indices []uint
		for i, a := range allocs {
			if a.AllocationType == SimpleAllocation && (a.Destination == g.Left || a.Destination == g.Right) {
				indices = append(indices, uint(i))
			}
		}
		if len(indices) > 0 {
			p, err := h.payout(txn, args.SourceChannelID, exit, args.SourceAssetIndex, indices)
			if err != nil {
				return err
			}
			res.Payouts = []AssetPayout{p}
		}
		return h.storeOutcome(txn, args.SourceChannelID, status, args.SourceStateHash, exit)
	})
	return res, err
}

// Holdings returns the amount of asset held for a channel.
func (h *AssetHolder) Holdings(asset Asset, id ID) (*big.Int, error) {
	return h.conn.Holdings(asset, id)
}

// Withdrawn returns the total amount of asset that was paid out to dest.
func (h *AssetHolder) Withdrawn(asset Asset, dest Destination) (*big.Int, error) {
	return h.conn.Withdrawn(asset, ToAddress(dest))
}

func (h *AssetHolder) reclaim(txn *connector.Txn, args ReclaimArgs) (connector.Status, Exit, Guarantee, error) {
	status, source, err := h.finalizedOutcome(txn, args.SourceChannelID, args.SourceOutcomeBytes, args.SourceStateHash)
	if err != nil {
		return status, nil, Guarantee{}, errors.WithMessage(err, "source channel")
	}
	if args.SourceAssetIndex < 0 || args.SourceAssetIndex >= len(source) {
		return status, nil, Guarantee{}, errors.WithMessagef(ErrIndexOutOfRange, "source asset index %d", args.SourceAssetIndex)
	}
	sourceAllocs := source[args.SourceAssetIndex].Allocations
	if args.IndexOfTargetInSource >= uint(len(sourceAllocs)) {
		return status, nil, Guarantee{}, errors.WithMessagef(ErrIndexOutOfRange, "guarantee index %d", args.IndexOfTargetInSource)
	}
	guarantee := sourceAllocs[args.IndexOfTargetInSource]
	if guarantee.AllocationType != GuaranteeAllocation {
		return status, nil, Guarantee{}, errors.WithMessagef(ErrNotAGuarantee, "index %d", args.IndexOfTargetInSource)
	}
	g, err := DecodeGuarantee(guarantee.Metadata)
	if err != nil {
		return status, nil, Guarantee{}, err
	}

	targetID := guarantee.Destination
	_, target, err := h.finalizedOutcome(txn, targetID, args.TargetOutcomeBytes, args.TargetStateHash)
	if err != nil {
		return status, nil, Guarantee{}, errors.WithMessage(err, "target channel")
	}
	if args.TargetAssetIndex < 0 || args.TargetAssetIndex >= len(target) {
		return status, nil, Guarantee{}, errors.WithMessagef(ErrIndexOutOfRange, "target asset index %d", args.TargetAssetIndex)
	}
	if source[args.SourceAssetIndex].Asset != target[args.TargetAssetIndex].Asset {
		return status, nil, Guarantee{}, errors.WithMessagef(ErrAssetMismatch, "%v != %v",
			source[args.SourceAssetIndex].Asset, target[args.TargetAssetIndex].Asset)
	}

	newAllocs, err := ComputeReclaimEffects(sourceAllocs, target[args.TargetAssetIndex].Allocations, args.IndexOfTargetInSource)
	if err != nil {
		return status, nil, Guarantee{}, err
	}
	source[args.SourceAssetIndex].Allocations = newAllocs

	txn.Emit(&connector.ReclaimedEvent{
		EventBase:  connector.EventBase{IDV: args.SourceChannelID, TimeV: h.conn.Now()},
		AssetIndex: args.SourceAssetIndex,
		Index:      int(args.IndexOfTargetInSource),
	})
	h.Log().WithField("channel", args.SourceChannelID).WithField("target", targetID).Debug("guarantee reclaimed")
	return status, source, g, nil
}

// finalizedOutcome checks that id is finalized with the given state and
// outcome and decodes the outcome.
func (h *AssetHolder) finalizedOutcome(r connector.Reader, id ID, outcomeBytes []byte, stateHash Hash) (connector.Status, Exit, error) {
	status, err := r.Status(id)
	if err != nil {
		return status, nil, err
	}
	if !status.IsFinalized(h.conn.Now()) {
		return status, nil, errors.WithMessagef(ErrChannelNotFinalized, "channel %v", id)
	}
	exit, err := DecodeOutcome(outcomeBytes)
	if err != nil {
		return status, nil, err
	}
	outcomeHash, err := HashOutcome(exit)
	if err != nil {
		return status, nil, err
	}
	if !status.MatchesFingerprint(stateHash, outcomeHash) {
		return status, nil, errors.WithMessagef(ErrIncorrectFingerprint, "channel %v", id)
	}
	return status, exit, nil
}

func (h *AssetHolder) transferAll(txn *connector.Txn, id ID, status connector.Status, stateHash Hash, exit Exit) (TransferResult, error) {
	res := TransferResult{NewOutcome: exit, Payouts: make([]AssetPayout, 0, len(exit))}
	for i := range exit {
		p, err := h.payout(txn, id, exit, i, nil)
		if err != nil {
			return TransferResult{}, err
		}
		res.Payouts = append(res.Payouts, p)
	}
	return res, h.storeOutcome(txn, id, status, stateHash, exit)
}

// payout pays the allocations at indices of exit[assetIndex] and replaces
// them with the remaining allocations.
func (h *AssetHolder) payout(txn *connector.Txn, id ID, exit Exit, assetIndex int, indices []uint) (AssetPayout, error) {
	asset := exit[assetIndex].Asset
	held, err := txn.Holdings(asset, id)
	if err != nil {
		return AssetPayout{}, err
	}
	effects, err := ComputeTransferEffects(held, exit[assetIndex].Allocations, indices)
	if err != nil {
		return AssetPayout{}, err
	}

	final := new(big.Int).Sub(held, effects.TotalPayouts)
	if err := txn.SetHoldings(asset, id, final); err != nil {
		return AssetPayout{}, err
	}
	now := h.conn.Now()
	for _, paid := range effects.ExitAllocations {
		if paid.Amount.Sign() == 0 {
			continue
		}
		if IsExternalDestination(paid.Destination) {
			receiver := ToAddress(paid.Destination)
			if err := txn.AddWithdrawn(asset, receiver, paid.Amount); err != nil {
				return AssetPayout{}, err
			}
			txn.Emit(&connector.WithdrawnEvent{
				EventBase: connector.EventBase{IDV: id, TimeV: now},
				Asset:     asset,
				Receiver:  receiver,
				Amount:    paid.Amount,
			})
			continue
		}
		destHeld, err := txn.Holdings(asset, paid.Destination)
		if err != nil {
			return AssetPayout{}, err
		}
		if err := txn.SetHoldings(asset, paid.Destination, destHeld.Add(destHeld, paid.Amount)); err != nil {
			return AssetPayout{}, err
		}
	}
	exit[assetIndex].Allocations = effects.NewAllocations

	txn.Emit(&connector.AllocationUpdatedEvent{
		EventBase:       connector.EventBase{IDV: id, TimeV: now},
		AssetIndex:      assetIndex,
		Asset:           asset,
		InitialHoldings: held,
		FinalHoldings:   final,
	})
	h.Log().WithField("channel", id).WithField("asset", asset).
		Debugf("paid out %v of %v", effects.TotalPayouts, held)
	return AssetPayout{AssetIndex: assetIndex, Asset: asset, InitialHoldings: held, Effects: effects}, nil
}

// storeOutcome records a new outcome while keeping the rest of the status.
func (h *AssetHolder) storeOutcome(txn *connector.Txn, id ID, status connector.Status, stateHash Hash, exit Exit) error {
	outcomeHash, err := HashOutcome(exit)
	if err != nil {
		return err
	}
	turnNum, finalizesAt, _ := status.Unpack()
	newStatus, err := connector.EncodeStatus(connector.ChannelData{
		TurnNumRecord: turnNum,
		FinalizesAt:   finalizesAt,
		StateHash:     stateHash,
		OutcomeHash:   outcomeHash,
	})
	if err != nil {
		return err
	}
	return txn.SetStatus(id, newStatus)
}
