// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"math/big"

	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/channel"
	"perun.network/perun-forcemove-backend/channel/connector"
	"perun.network/perun-forcemove-backend/wallet"
)

// ErrRejected a proposed state does not satisfy the client's policy.
var ErrRejected = errors.New("state rejected")

// HandleProposal checks an incoming channel proposal and returns our view of
// the channel if we accept it. We must be the second of two participants and
// the channel must be funded in our currency.
func (c *PaymentClient) HandleProposal(p Proposal) (*PaymentChannel, error) {
	if n := p.Fixed.NumParticipants(); n != 2 {
		return nil, errors.WithMessagef(ErrRejected, "invalid number of participants: %d", n)
	}
	idx, ok := p.Fixed.ParticipantIndex(c.Address())
	if !ok || idx != 1 {
		return nil, errors.WithMessage(ErrRejected, "not the second participant")
	}
	if p.Initial.TurnNum != 0 || p.Initial.IsFinal {
		return nil, errors.WithMessagef(ErrRejected, "initial state has turnNum %d", p.Initial.TurnNum)
	}
	if len(p.Initial.Outcome) != 1 || p.Initial.Outcome[0].Asset != c.currency {
		return nil, errors.WithMessage(ErrRejected, "invalid assets")
	}
	allocs := p.Initial.Outcome[0].Allocations
	if len(allocs) != 2 {
		return nil, errors.WithMessagef(ErrRejected, "invalid number of allocations: %d", len(allocs))
	}
	for i, a := range allocs {
		dest := channel.ToDestination(p.Fixed.Participants[i].AsEthAddress())
		if a.Destination != dest || a.AllocationType != channel.SimpleAllocation || a.Amount == nil || a.Amount.Sign() < 0 {
			return nil, errors.WithMessagef(ErrRejected, "invalid allocation %d", i)
		}
	}

	ch, err := newPaymentChannel(c, p.Fixed, idx)
	if err != nil {
		return nil, err
	}
	ch.Log().Info("accepted channel proposal")
	return ch, nil
}

// Sign signs next if it follows the latest state. We accept every update
// that keeps the assets and participants, conserves the total of each asset
// and does not decrease our balance. States we proposed ourselves may
// decrease it.
func (c *PaymentChannel) Sign(next channel.VariablePart) (wallet.Sig, error) {
	if err := c.checkUpdate(next); err != nil {
		return wallet.Sig{}, err
	}
	return channel.SignState(c.client.account, c.fixed, next)
}

func (c *PaymentChannel) checkUpdate(next channel.VariablePart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkTurn(next); err != nil {
		return err
	}
	if c.latest == nil {
		return nil
	}
	cur := c.latest.VariablePart
	if cur.IsFinal {
		return errors.WithMessage(channel.ErrChannelFinalized, "latest state is final")
	}

	if len(cur.Outcome) != len(next.Outcome) {
		return errors.WithMessage(ErrRejected, "invalid number of assets")
	}
	for i := range cur.Outcome {
		if err := sameParticipants(cur.Outcome[i], next.Outcome[i]); err != nil {
			return errors.WithMessagef(err, "asset %d", i)
		}
	}

	h, err := channel.HashState(c.fixed, next)
	if err != nil {
		return err
	}
	own := c.dest(c.idx)
	if h != c.proposed && balanceOf(next.Outcome, own).Cmp(balanceOf(cur.Outcome, own)) < 0 {
		return errors.WithMessagef(ErrRejected, "balance decreased to %v", balanceOf(next.Outcome, own))
	}
	return nil
}

// sameParticipants requires next to pay the same destinations the same total.
func sameParticipants(cur, next channel.SingleAssetExit) error {
	if cur.Asset != next.Asset || len(cur.Allocations) != len(next.Allocations) {
		return errors.WithMessage(ErrRejected, "invalid assets")
	}
	curSum, nextSum := new(big.Int), new(big.Int)
	for i := range cur.Allocations {
		a, b := cur.Allocations[i], next.Allocations[i]
		if a.Destination != b.Destination || a.AllocationType != b.AllocationType {
			return errors.WithMessagef(ErrRejected, "allocation %d changed", i)
		}
		if b.Amount == nil || b.Amount.Sign() < 0 {
			return errors.WithMessagef(channel.ErrNegativeAmount, "allocation %d", i)
		}
		curSum.Add(curSum, a.Amount)
		nextSum.Add(nextSum, b.Amount)
	}
	if curSum.Cmp(nextSum) != 0 {
		return errors.WithMessagef(ErrRejected, "total changed from %v to %v", curSum, nextSum)
	}
	return nil
}

// StartWatching watches the adjudicator for disputes of the channel. A
// challenge with an outdated state is answered with a checkpoint of the
// latest state. The returned channel yields nil once the channel concludes
// or pays out after finalizing. It yields an error when ctx is done before.
func (c *PaymentChannel) StartWatching(ctx context.Context) <-chan error {
	sub := c.client.adj.Subscribe(c.id)
	done := make(chan error, 1)
	go func() {
		defer sub.Close()
		done <- c.watch(ctx, sub)
	}()
	return done
}

func (c *PaymentChannel) watch(ctx context.Context, sub *connector.EventSub) error {
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return connector.ErrConnectorClosed
			}
			done, err := c.handleEvent(ctx, ev)
			if err != nil || done {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *PaymentChannel) handleEvent(ctx context.Context, ev connector.Event) (bool, error) {
	switch e := ev.(type) {
	case *connector.ChallengeRegisteredEvent:
		c.Log().Infof("challenge with turnNum %d registered by %v", e.TurnNumRecord, e.Challenger)
		latest, proof, err := c.support()
		if err != nil {
			return false, nil
		}
		if e.TurnNumRecord >= latest.TurnNum {
			return false, nil
		}
		err = c.client.adj.Checkpoint(ctx, c.fixed, proof, latest)
		if channel.ErrorClass(err) == channel.ClassSequencing {
			c.Log().WithError(err).Info("challenge already answered")
			return false, nil
		} else if err != nil {
			c.Log().WithError(err).Warn("answering challenge")
			return false, err
		}
		c.Log().Infof("challenge answered with turnNum %d", latest.TurnNum)
	case *connector.ChallengeClearedEvent:
		c.Log().Infof("challenge cleared by turnNum %d", e.TurnNumRecord)
	case *connector.CheckpointedEvent:
		c.Log().Debugf("checkpointed turnNum %d", e.TurnNumRecord)
	case *connector.ConcludedEvent:
		c.Log().Info("channel concluded")
		return true, nil
	case *connector.AllocationUpdatedEvent:
		c.Log().Debugf("paid out %v of %v", new(big.Int).Sub(e.InitialHoldings, e.FinalHoldings), e.Asset)
		mode, err := c.client.adj.Mode(c.id)
		if err != nil {
			return false, err
		}
		return mode == connector.ModeFinalized, nil
	case *connector.DepositedEvent:
		c.Log().Debugf("deposited %v of %v, holdings %v", e.Credited, e.Asset, e.Holdings)
	default:
		c.Log().Debugf("event %T", ev)
	}
	return false, nil
}
