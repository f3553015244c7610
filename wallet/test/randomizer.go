// SPDX-License-Identifier: Apache-2.0

// Package test provides random accounts and addresses for tests.
package test

import (
	"math/rand"

	"perun.network/perun-forcemove-backend/wallet"
)

// Randomizer creates random accounts from a RAM wallet.
type Randomizer struct {
	wallet *wallet.FsWallet
}

// NewRandomizer returns a new Randomizer whose wallet is seeded from rng.
func NewRandomizer(rng *rand.Rand) *Randomizer {
	w, err := wallet.NewRAMWallet(rng)
	if err != nil {
		panic("NewRandomizer: failed to create wallet: " + err.Error())
	}
	return &Randomizer{w}
}

// Wallet returns the wallet holding all accounts created by r.
func (r *Randomizer) Wallet() *wallet.FsWallet {
	return r.wallet
}

// NewRandomAccount creates a new account in the randomizer's wallet.
func (r *Randomizer) NewRandomAccount() *wallet.Account {
	return r.wallet.NewAccount()
}

// NewRandomAccounts creates n new accounts.
func (r *Randomizer) NewRandomAccounts(n int) []*wallet.Account {
	accs := make([]*wallet.Account, n)
	for i := range accs {
		accs[i] = r.NewRandomAccount()
	}
	return accs
}

// NewRandomAddress returns a random address that has no known key.
func NewRandomAddress(rng *rand.Rand) wallet.Address {
	var addr wallet.Address
	rng.Read(addr[:])
	return addr
}
