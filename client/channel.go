// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"perun.network/go-perun/log"
	pkgerrors "polycry.pt/poly-go/errors"

	"perun.network/perun-forcemove-backend/app"
	"perun.network/perun-forcemove-backend/channel"
	"perun.network/perun-forcemove-backend/wallet"
)

// postFundTurnNum is the turn number of the funded state.
const postFundTurnNum = 1

var (
	// ErrNoState the channel has no agreed state yet.
	ErrNoState = errors.New("no agreed state")
	// ErrNotPayee only the last participant can redeem vouchers.
	ErrNotPayee = errors.New("not the payee")
	// ErrVoucherAmount a voucher does not increase the redeemed amount.
	ErrVoucherAmount = errors.New("voucher amount not increased")
)

// PaymentChannel is one participant's view of a channel.
type PaymentChannel struct {
	log.Embedding

	client *PaymentClient
	fixed  channel.FixedPart
	id     channel.ID
	idx    uint

	mu       sync.Mutex
	latest   *channel.SignedVariablePart  // Latest state we can enforce.
	proof    []channel.SignedVariablePart // Proof of latest.
	postFund *channel.SignedVariablePart
	proposed channel.Hash // Hash of the state we proposed last.
	redeemed *big.Int     // Largest redeemed voucher amount.
}

func newPaymentChannel(c *PaymentClient, fixed channel.FixedPart, idx uint) (*PaymentChannel, error) {
	id, err := channel.CalcID(fixed)
	if err != nil {
		return nil, err
	}
	return &PaymentChannel{
		Embedding: log.MakeEmbedding(c.Log().WithField("channel", id).WithField("idx", idx)),
		client:    c,
		fixed:     fixed,
		id:        id,
		idx:       idx,
		redeemed:  new(big.Int),
	}, nil
}

// ID returns the channel id.
func (c *PaymentChannel) ID() channel.ID { return c.id }

// Idx returns our participant index.
func (c *PaymentChannel) Idx() uint { return c.idx }

// Fixed returns the fixed part of the channel.
func (c *PaymentChannel) Fixed() channel.FixedPart { return c.fixed }

// State returns a copy of the latest state.
func (c *PaymentChannel) State() (channel.VariablePart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return channel.VariablePart{}, ErrNoState
	}
	return c.latest.VariablePart.Clone(), nil
}

// Balance returns the amount the latest state allocates to participant idx.
func (c *PaymentChannel) Balance(idx uint) (*big.Int, error) {
	v, err := c.State()
	if err != nil {
		return nil, err
	}
	return balanceOf(v.Outcome, c.dest(idx)), nil
}

// Commit records next as the latest state once every participant signed it.
// sigs are ordered by participant index.
func (c *PaymentChannel) Commit(next channel.VariablePart, sigs []wallet.Sig) error {
	svp := channel.SignedVariablePart{VariablePart: next.Clone(), Sigs: append([]wallet.Sig{}, sigs...)}
	rvp, err := channel.RecoverVariablePart(c.fixed, svp)
	if err != nil {
		return err
	}
	if !channel.IsUnanimous(rvp.SignedBy, c.fixed.NumParticipants()) {
		return errors.WithMessagef(channel.ErrNotUnanimous, "signed by %v", channel.DecodeSigners(rvp.SignedBy))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkTurn(next); err != nil {
		return err
	}
	c.latest, c.proof = &svp, nil
	if next.TurnNum == postFundTurnNum {
		c.postFund = &svp
	}
	c.Log().WithField("turnNum", next.TurnNum).Debug("state committed")
	return nil
}

// ProposePayment returns the next state that moves amount from us to the
// other participant of a two-party channel.
func (c *PaymentChannel) ProposePayment(amount *big.Int) (channel.VariablePart, error) {
	if c.fixed.NumParticipants() != 2 {
		return channel.VariablePart{}, errors.Errorf("payments need two participants, have %d", c.fixed.NumParticipants())
	}
	if amount.Sign() <= 0 {
		return channel.VariablePart{}, errors.WithMessagef(channel.ErrNegativeAmount, "payment of %v", amount)
	}
	next, err := c.nextState()
	if err != nil {
		return next, err
	}
	if err := transfer(next.Outcome, c.dest(c.idx), c.dest(1-c.idx), amount); err != nil {
		return next, err
	}
	c.propose(next)
	return next, nil
}

// ProposeFinal returns the next state with the latest outcome marked final.
func (c *PaymentChannel) ProposeFinal() (channel.VariablePart, error) {
	next, err := c.nextState()
	if err != nil {
		return next, err
	}
	next.IsFinal = true
	c.propose(next)
	return next, nil
}

// Fund deposits our allocation of every asset of the latest state. The
// participants before us are expected to deposit first.
func (c *PaymentChannel) Fund(ctx context.Context) error {
	v, err := c.State()
	if err != nil {
		return err
	}
	for _, e := range v.Outcome {
		expected, own := new(big.Int), new(big.Int)
		for i := uint(0); i < c.idx; i++ {
			expected.Add(expected, balanceOf(channel.Exit{e}, c.dest(i)))
		}
		own.Set(balanceOf(channel.Exit{e}, c.dest(c.idx)))
		res, err := c.client.funder.Fund(ctx, e.Asset, c.id, expected, own)
		if err != nil {
			return errors.WithMessagef(err, "funding asset %v", e.Asset)
		}
		c.Log().Infof("funded %v of %v, holdings %v", res.Credited, e.Asset, res.Holdings)
	}
	return nil
}

// SignVoucher returns a voucher that pays the payee a total of amount. Only
// the payer, participant 0, signs vouchers.
func (c *PaymentChannel) SignVoucher(amount *big.Int) (app.Voucher, error) {
	if c.idx != 0 {
		return app.Voucher{}, errors.New("only the payer signs vouchers")
	}
	return app.SignVoucher(c.client.account, c.id, amount)
}

// RedeemVoucher turns a voucher into a state that only the payee signed on
// top of the funded state. Its turn number follows the latest state.
// Vouchers carry the total amount paid, so only increasing amounts are
// accepted.
func (c *PaymentChannel) RedeemVoucher(v app.Voucher) error {
	payee := uint(c.fixed.NumParticipants() - 1)
	if c.idx != payee {
		return ErrNotPayee
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.postFund == nil {
		return errors.WithMessage(ErrNoState, "channel not funded")
	}
	if v.Amount == nil || v.Amount.Cmp(c.redeemed) <= 0 {
		return errors.WithMessagef(ErrVoucherAmount, "redeemed %v, voucher %v", c.redeemed, v.Amount)
	}

	next := c.postFund.VariablePart.Clone()
	next.TurnNum = postFundTurnNum + 1
	if c.latest != nil && c.latest.TurnNum >= next.TurnNum {
		next.TurnNum = c.latest.TurnNum + 1
	}
	data, err := v.Encode()
	if err != nil {
		return err
	}
	next.AppData = data
	if err := transfer(next.Outcome, c.dest(0), c.dest(payee), v.Amount); err != nil {
		return err
	}
	svp, err := channel.SignVariablePart(c.fixed, next, c.client.account)
	if err != nil {
		return err
	}
	proof := []channel.SignedVariablePart{*c.postFund}
	if err := c.checkSupport(proof, svp); err != nil {
		return err
	}

	c.latest, c.proof = &svp, proof
	c.redeemed = new(big.Int).Set(v.Amount)
	c.Log().Infof("redeemed voucher of %v", v.Amount)
	return nil
}

// Dispute registers the latest state with the adjudicator.
func (c *PaymentChannel) Dispute(ctx context.Context) error {
	latest, proof, err := c.support()
	if err != nil {
		return err
	}
	stateHash, err := channel.HashState(c.fixed, latest.VariablePart)
	if err != nil {
		return err
	}
	sig, err := channel.SignChallenge(c.client.account, stateHash)
	if err != nil {
		return err
	}
	if err := c.client.adj.Challenge(ctx, c.fixed, proof, latest, sig); err != nil {
		return err
	}
	c.Log().WithField("turnNum", latest.TurnNum).Info("dispute registered")
	return nil
}

// Withdraw waits until a registered dispute finalizes and pays out the
// outcome of the latest state. It fails with ErrIncorrectFingerprint if
// another state was registered.
func (c *PaymentChannel) Withdraw(ctx context.Context) (channel.TransferResult, error) {
	latest, _, err := c.support()
	if err != nil {
		return channel.TransferResult{}, err
	}
	timeout, err := c.client.adj.Timeout(c.id)
	if err != nil {
		return channel.TransferResult{}, err
	}
	if err := timeout.Wait(ctx); err != nil {
		return channel.TransferResult{}, err
	}

	stateHash, err := channel.HashState(c.fixed, latest.VariablePart)
	if err != nil {
		return channel.TransferResult{}, err
	}
	outcome, err := channel.EncodeOutcome(latest.Outcome)
	if err != nil {
		return channel.TransferResult{}, err
	}
	return c.client.adj.AssetHolder().TransferAllAssets(ctx, c.id, outcome, stateHash)
}

// Settle concludes the channel with the latest state, which must be final,
// and pays out all assets. Settling a channel that a peer already settled
// succeeds without effect.
func (c *PaymentChannel) Settle(ctx context.Context) error {
	latest, _, err := c.support()
	if err != nil {
		return err
	}
	if !latest.IsFinal {
		return errors.WithMessage(channel.ErrNonFinalState, "settle needs a final state, dispute instead")
	}
	_, err = c.client.adj.ConcludeAndTransferAllAssets(ctx, c.fixed, latest)
	if errors.Is(err, channel.ErrChannelFinalized) {
		c.Log().Debug("channel already settled")
		return nil
	}
	if err == nil {
		c.Log().Info("channel settled")
	}
	return err
}

// Agree collects the signatures of all participants on next and commits it
// on every channel. chs must hold one channel per participant.
func Agree(next channel.VariablePart, chs ...*PaymentChannel) error {
	chs = append([]*PaymentChannel{}, chs...)
	sort.Slice(chs, func(i, j int) bool { return chs[i].idx < chs[j].idx })
	for i, ch := range chs {
		if ch.idx != uint(i) || ch.id != chs[0].id {
			return errors.Errorf("need one channel per participant of %v", chs[0].id)
		}
	}

	sigs := make([]wallet.Sig, len(chs))
	for i, ch := range chs {
		sig, err := ch.Sign(next)
		if err != nil {
			return errors.WithMessagef(err, "participant %d", i)
		}
		sigs[i] = sig
	}
	for _, ch := range chs {
		if err := ch.Commit(next, sigs); err != nil {
			return err
		}
	}
	return nil
}

// Open agrees on the proposed state, funds it and agrees on the funded
// state.
func Open(ctx context.Context, prop Proposal, chs ...*PaymentChannel) error {
	if err := Agree(prop.Initial, chs...); err != nil {
		return errors.WithMessage(err, "agreeing on initial state")
	}

	g := pkgerrors.NewGatherer()
	for _, ch := range chs {
		ch := ch
		g.Go(func() error { return ch.Fund(ctx) })
	}
	if !g.WaitDoneOrFailedCtx(ctx) {
		return ctx.Err()
	}
	if err := g.Err(); err != nil {
		return err
	}

	postFund := prop.Initial.Clone()
	postFund.TurnNum = postFundTurnNum
	for _, ch := range chs {
		ch.propose(postFund)
	}
	return errors.WithMessage(Agree(postFund, chs...), "agreeing on funded state")
}

// Pay moves amount from the participant of from to the other participant.
func Pay(from *PaymentChannel, amount *big.Int, chs ...*PaymentChannel) error {
	next, err := from.ProposePayment(amount)
	if err != nil {
		return err
	}
	return Agree(next, chs...)
}

// Finalize agrees on a final state with the latest outcome.
func Finalize(chs ...*PaymentChannel) error {
	if len(chs) == 0 {
		return nil
	}
	next, err := chs[0].ProposeFinal()
	if err != nil {
		return err
	}
	for _, ch := range chs[1:] {
		ch.propose(next)
	}
	return Agree(next, chs...)
}

func (c *PaymentChannel) support() (channel.SignedVariablePart, []channel.SignedVariablePart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return channel.SignedVariablePart{}, nil, ErrNoState
	}
	return *c.latest, append([]channel.SignedVariablePart{}, c.proof...), nil
}

func (c *PaymentChannel) nextState() (channel.VariablePart, error) {
	v, err := c.State()
	if err != nil {
		return v, err
	}
	if v.IsFinal {
		return v, errors.WithMessage(channel.ErrChannelFinalized, "latest state is final")
	}
	v.TurnNum++
	v.AppData = []byte{}
	return v, nil
}

func (c *PaymentChannel) propose(v channel.VariablePart) {
	h, err := channel.HashState(c.fixed, v)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.proposed = h
	c.mu.Unlock()
}

// checkTurn requires next to follow the latest state. Callers hold mu.
func (c *PaymentChannel) checkTurn(next channel.VariablePart) error {
	if c.latest == nil {
		if next.TurnNum != 0 {
			return errors.WithMessagef(channel.ErrWrongTurnNum, "first state has turnNum %d", next.TurnNum)
		}
		return nil
	}
	if next.TurnNum != c.latest.TurnNum+1 {
		return errors.WithMessagef(channel.ErrWrongTurnNum, "turnNum %d follows %d", next.TurnNum, c.latest.TurnNum)
	}
	return nil
}

// checkSupport runs the virtual payment rules on a support proof.
func (c *PaymentChannel) checkSupport(proof []channel.SignedVariablePart, candidate channel.SignedVariablePart) error {
	support, err := channel.RecoverVariableParts(c.fixed, proof, candidate)
	if err != nil {
		return err
	}
	return app.VirtualPayment{}.StateIsSupported(c.fixed, support.Proof, support.Candidate)
}

func (c *PaymentChannel) dest(idx uint) channel.Destination {
	return channel.ToDestination(c.fixed.Participants[idx].AsEthAddress())
}

// balanceOf sums the simple allocations of dest over all assets.
func balanceOf(e channel.Exit, dest channel.Destination) *big.Int {
	sum := new(big.Int)
	for _, a := range e {
		for _, alloc := range a.Allocations {
			if alloc.Destination == dest && alloc.AllocationType == channel.SimpleAllocation {
				sum.Add(sum, alloc.Amount)
			}
		}
	}
	return sum
}

// transfer moves amount of the first asset from one destination to another.
func transfer(e channel.Exit, from, to channel.Destination, amount *big.Int) error {
	if len(e) == 0 {
		return errors.New("empty outcome")
	}
	allocs := e[0].Allocations
	fromIdx, toIdx := -1, -1
	for i, a := range allocs {
		switch a.Destination {
		case from:
			fromIdx = i
		case to:
			toIdx = i
		}
	}
	if fromIdx < 0 || toIdx < 0 {
		return errors.New("outcome misses a participant")
	}
	if allocs[fromIdx].Amount.Cmp(amount) < 0 {
		return errors.Errorf("insufficient balance %v for payment of %v", allocs[fromIdx].Amount, amount)
	}
	allocs[fromIdx].Amount = new(big.Int).Sub(allocs[fromIdx].Amount, amount)
	allocs[toIdx].Amount = new(big.Int).Add(allocs[toIdx].Amount, amount)
	return nil
}
