// SPDX-License-Identifier: Apache-2.0

// Package wallet contains the off-chain identity and signature handling of
// the ForceMove backend. It uses secp256k1 keys as identities and recoverable
// ECDSA signatures over Ethereum-prefixed digests, so that the signer of a
// state can be recovered from the signature alone.
package wallet // import "perun.network/perun-forcemove-backend/wallet"
