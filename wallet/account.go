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

package wallet

import (
	"crypto/ecdsa"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Account is a secp256k1 signing key. It signs state hashes, challenge
// messages and vouchers for a ForceMove participant.
type Account struct {
	addr Address
	sk   *ecdsa.PrivateKey
}

// NewAccountFromKey wraps an existing private key.
func NewAccountFromKey(sk *ecdsa.PrivateKey) *Account {
	return &Account{addr: Address(crypto.PubkeyToAddress(sk.PublicKey)), sk: sk}
}

// NewRandomAccount generates a fresh account from the given randomness.
func NewRandomAccount(rng io.Reader) (*Account, error) {
	sk, err := ecdsa.GenerateKey(crypto.S256(), rng)
	if err != nil {
		return nil, errors.WithMessage(err, "generating key")
	}
	return NewAccountFromKey(sk), nil
}

// Address returns the address of the account. It stays available after the
// key was cleared.
func (a *Account) Address() Address {
	return a.addr
}

// SignHash signs the Ethereum-prefixed version of digest. This is the form
// in which an on-chain verifier recovers signers.
func (a *Account) SignHash(digest common.Hash) (Sig, error) {
	if a.sk == nil {
		return Sig{}, ErrAccountLocked
	}
	raw, err := crypto.Sign(PrefixedHash(digest).Bytes(), a.sk)
	if err != nil {
		return Sig{}, errors.WithMessage(err, "signing digest")
	}
	var sig Sig
	copy(sig[:], raw)
	sig[SigLen-1] += sigVOffset
	return sig, nil
}

// SignData signs the keccak256 hash of data.
func (a *Account) SignData(data []byte) (Sig, error) {
	return a.SignHash(crypto.Keccak256Hash(data))
}

func (a *Account) clear() {
	if a.sk != nil {
		a.sk.D.SetInt64(0)
		a.sk = nil
	}
}
