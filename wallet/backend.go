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
	"io"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// SigLen is the length of a Sig in byte: R || S || V.
const SigLen = crypto.SignatureLength

// sigVOffset maps the recovery id {0,1} to the on-chain V value {27,28}.
const sigVOffset = 27

var (
	// ErrInvalidSignature a signature could not be recovered.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrAccountLocked the account key was cleared.
	ErrAccountLocked = errors.New("account locked")
)

// Sig is a recoverable secp256k1 signature.
type Sig [SigLen]byte

// V returns the recovery byte in on-chain form.
func (s Sig) V() uint8 { return s[SigLen-1] }

// R returns the first 32 signature bytes.
func (s Sig) R() common.Hash { return common.BytesToHash(s[:32]) }

// S returns the second 32 signature bytes.
func (s Sig) S() common.Hash { return common.BytesToHash(s[32:64]) }

// PrefixedHash returns keccak256("\x19Ethereum Signed Message:\n32" || digest).
func PrefixedHash(digest common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(digest[:]))
}

// RecoverSigner returns the address whose key produced sig over the
// Ethereum-prefixed digest.
func RecoverSigner(digest common.Hash, sig Sig) (Address, error) {
	v := sig.V()
	if v >= sigVOffset {
		v -= sigVOffset
	}
	if v > 1 {
		return Address{}, errors.WithMessagef(ErrInvalidSignature, "recovery byte %d", sig.V())
	}
	raw := make([]byte, SigLen)
	copy(raw, sig[:])
	raw[SigLen-1] = v

	pub, err := crypto.SigToPub(PrefixedHash(digest).Bytes(), raw)
	if err != nil {
		return Address{}, errors.WithMessage(ErrInvalidSignature, err.Error())
	}
	return Address(crypto.PubkeyToAddress(*pub)), nil
}

// VerifySignature reports whether sig over digest was produced by addr.
func VerifySignature(digest common.Hash, sig Sig, addr Address) (bool, error) {
	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		return false, err
	}
	return signer.Equal(addr), nil
}

// DecodeSig reads a signature from r.
func DecodeSig(r io.Reader) (Sig, error) {
	var sig Sig
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return Sig{}, err
	}
	return sig, nil
}
