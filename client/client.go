// SPDX-License-Identifier: Apache-2.0

// Package client is a participant SDK for ForceMove payment channels. It
// builds and signs states, redeems vouchers and drives the adjudicator.
package client

import (
	"crypto/rand"
	"math"
	"math/big"

	"github.com/pkg/errors"
	"perun.network/go-perun/log"

	"perun.network/perun-forcemove-backend/channel"
	"perun.network/perun-forcemove-backend/wallet"
)

// PaymentClient is a payment channel participant.
type PaymentClient struct {
	log.Embedding

	wallet   *wallet.FsWallet
	account  *wallet.Account // The account we sign states and vouchers with.
	currency channel.Asset   // The currency we expect to get paid in.
	chainID  *big.Int
	adj      *channel.Adjudicator
	funder   *channel.Funder
}

// Proposal is the initial state of a channel sent to its participants.
type Proposal struct {
	Fixed   channel.FixedPart
	Initial channel.VariablePart
}

// SetupPaymentClient creates a client with a fresh account of w.
func SetupPaymentClient(w *wallet.FsWallet, adj *channel.Adjudicator, funder *channel.Funder, chainID *big.Int) *PaymentClient {
	acc := w.NewAccount()
	w.IncrementUsage(acc.Address())

	c := &PaymentClient{
		Embedding: log.MakeEmbedding(log.Default()),
		wallet:    w,
		account:   acc,
		currency:  channel.NativeAsset,
		chainID:   new(big.Int).Set(chainID),
		adj:       adj,
		funder:    funder,
	}
	c.Log().WithField("address", acc.Address()).Info("payment client ready")
	return c
}

// Address returns the address the client signs with.
func (c *PaymentClient) Address() wallet.Address {
	return c.account.Address()
}

// Destination returns the external destination of the client's payouts.
func (c *PaymentClient) Destination() channel.Destination {
	return channel.ToDestination(c.account.Address().AsEthAddress())
}

// OwnBalance returns the total amount paid out to the client.
func (c *PaymentClient) OwnBalance() (*big.Int, error) {
	return c.adj.AssetHolder().Withdrawn(c.currency, c.Destination())
}

// ChannelBalance returns the holdings of a channel.
func (c *PaymentClient) ChannelBalance(id channel.ID) (*big.Int, error) {
	return c.funder.Holdings(c.currency, id)
}

// ProposeChannel creates a two-party channel with peer that follows the rules
// of appDef. The client is participant 0. The initial state allocates
// balances[0] to the client and balances[1] to peer.
func (c *PaymentClient) ProposeChannel(peer wallet.Address, appDef wallet.Address, balances [2]*big.Int, challengeDuration uint64) (*PaymentChannel, Proposal, error) {
	nonce, err := rand.Int(rand.Reader, new(big.Int).SetUint64(math.MaxUint64))
	if err != nil {
		return nil, Proposal{}, errors.WithMessage(err, "drawing channel nonce")
	}
	fixed := channel.FixedPart{
		ChainID:           new(big.Int).Set(c.chainID),
		Participants:      []wallet.Address{c.Address(), peer},
		ChannelNonce:      nonce.Uint64(),
		AppDefinition:     appDef,
		ChallengeDuration: challengeDuration,
	}
	dests := []channel.Destination{c.Destination(), channel.ToDestination(peer.AsEthAddress())}
	allocs := make([]channel.Allocation, len(dests))
	for i, d := range dests {
		if balances[i] == nil || balances[i].Sign() < 0 {
			return nil, Proposal{}, errors.WithMessagef(channel.ErrNegativeAmount, "balance %d", i)
		}
		allocs[i] = channel.NewSimpleAllocation(d, balances[i])
	}
	prop := Proposal{
		Fixed:   fixed,
		Initial: channel.VariablePart{Outcome: channel.NewNativeExit(allocs...), AppData: []byte{}},
	}

	ch, err := newPaymentChannel(c, fixed, 0)
	if err != nil {
		return nil, Proposal{}, err
	}
	ch.propose(prop.Initial)
	return ch, prop, nil
}

// Shutdown releases the client's account.
func (c *PaymentClient) Shutdown() {
	c.wallet.DecrementUsage(c.account.Address())
}
