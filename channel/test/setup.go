// Copyright 2023 - See NOTICE file for copyright holders.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-forcemove-backend/channel"
	ctest "perun.network/perun-forcemove-backend/channel/connector/test"
	"perun.network/perun-forcemove-backend/wallet"
	wtest "perun.network/perun-forcemove-backend/wallet/test"
)

// Setup is a channel of random participants on an in-memory ledger.
type Setup struct {
	*ctest.Setup
	T   *testing.T
	Rng *rand.Rand

	Accs  []*wallet.Account
	Fixed channel.FixedPart
	ID    channel.ID

	Adj    *channel.Adjudicator
	Funder *channel.Funder
	Holder *channel.AssetHolder
}

// NewSetup creates a channel of n participants whose transition rules are
// looked up in apps.
func NewSetup(t *testing.T, n int, apps channel.ValidatorLookup) *Setup {
	t.Helper()
	rng := pkgtest.Prng(t)
	s := &Setup{Setup: ctest.NewSetup(t), T: t, Rng: rng}

	s.Accs = wtest.NewRandomizer(rng).NewRandomAccounts(n)
	parts := make([]wallet.Address, n)
	for i, acc := range s.Accs {
		parts[i] = acc.Address()
	}
	s.Fixed = NewRandomFixedPart(rng, parts, wtest.NewRandomAddress(rng))

	var err error
	s.ID, err = channel.CalcID(s.Fixed)
	require.NoError(t, err)

	s.Adj = channel.NewAdjudicator(s.Conn, apps)
	s.Funder = channel.NewFunder(s.Conn)
	s.Holder = s.Adj.AssetHolder()
	return s
}

// Dest returns the external destination of participant i.
func (s *Setup) Dest(i int) channel.Destination {
	return channel.ToDestination(s.Accs[i].Address().AsEthAddress())
}

// Dests returns the external destinations of all participants.
func (s *Setup) Dests() []channel.Destination {
	dests := make([]channel.Destination, len(s.Accs))
	for i := range s.Accs {
		dests[i] = s.Dest(i)
	}
	return dests
}

// Sign signs v with the accounts of the given participant indices.
func (s *Setup) Sign(v channel.VariablePart, signers ...int) channel.SignedVariablePart {
	s.T.Helper()
	return SignWith(s.T, s.Fixed, v, s.accounts(signers)...)
}

// SignAll signs v with all participants.
func (s *Setup) SignAll(v channel.VariablePart) channel.SignedVariablePart {
	s.T.Helper()
	return SignWith(s.T, s.Fixed, v, s.Accs...)
}

// ChallengerSig returns participant i's challenge signature on v.
func (s *Setup) ChallengerSig(v channel.VariablePart, i int) wallet.Sig {
	s.T.Helper()
	h, err := channel.HashState(s.Fixed, v)
	require.NoError(s.T, err)
	sig, err := channel.SignChallenge(s.Accs[i], h)
	require.NoError(s.T, err)
	return sig
}

// Recovered returns v as recovered variable part signed by signers.
func (s *Setup) Recovered(v channel.VariablePart, signers ...uint) channel.RecoveredVariablePart {
	return channel.RecoveredVariablePart{VariablePart: v, SignedBy: channel.EncodeSigners(signers...)}
}

// ElapseChallenge moves the clock by the challenge duration.
func (s *Setup) ElapseChallenge() {
	s.Advance(s.Fixed.ChallengeDuration)
}

func (s *Setup) accounts(indices []int) []*wallet.Account {
	accs := make([]*wallet.Account, len(indices))
	for i, idx := range indices {
		accs[i] = s.Accs[idx]
	}
	return accs
}

// SignWith signs v with every account.
func SignWith(t require.TestingT, f channel.FixedPart, v channel.VariablePart, accs ...*wallet.Account) channel.SignedVariablePart {
	svp, err := channel.SignVariablePart(f, v, accs...)
	require.NoError(t, err)
	return svp
}
