// SPDX-License-Identifier: Apache-2.0

package app

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/channel"
	"perun.network/perun-forcemove-backend/wallet"
)

type (
	// Voucher moves Amount from the payer to the payee of a virtual payment
	// channel. It is signed by the payer.
	Voucher struct {
		ChannelID channel.ID
		Amount    *big.Int
		Signature wallet.Sig
	}

	// Funds lists amounts per asset.
	Funds struct {
		Assets  []channel.Asset
		Amounts []*big.Int
	}

	// FinancingData is the app data of a ledger financing channel.
	FinancingData struct {
		InterestPerBlockDivisor *big.Int
		Principal               Funds
		BlockNumber             *big.Int
	}
)

type (
	abiSignature struct {
		V uint8
		R [32]byte
		S [32]byte
	}

	abiVoucher struct {
		ChannelId [32]byte //nolint:revive // must match the abi component name
		Amount    *big.Int
		Signature abiSignature
	}

	abiFunds struct {
		Asset  []common.Address
		Amount []*big.Int
	}

	abiFinancingData struct {
		InterestPerBlockDivisor *big.Int
		Principal               abiFunds
		BlockNumber             *big.Int
	}
)

var (
	voucherArgs       abi.Arguments
	voucherDigestArgs abi.Arguments
	financingArgs     abi.Arguments
)

func init() {
	voucherArgs = abi.Arguments{{Type: mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "channelId", Type: "bytes32"},
		{Name: "amount", Type: "uint256"},
		{Name: "signature", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "v", Type: "uint8"},
			{Name: "r", Type: "bytes32"},
			{Name: "s", Type: "bytes32"},
		}},
	})}}
	voucherDigestArgs = abi.Arguments{{Type: mustType("bytes32", nil)}, {Type: mustType("uint256", nil)}}
	financingArgs = abi.Arguments{{Type: mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "interestPerBlockDivisor", Type: "uint256"},
		{Name: "principal", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "asset", Type: "address[]"},
			{Name: "amount", Type: "uint256[]"},
		}},
		{Name: "blockNumber", Type: "uint256"},
	})}}
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

// Digest returns the hash the payer signs.
func (v Voucher) Digest() (channel.Hash, error) {
	if v.Amount == nil || v.Amount.Sign() < 0 {
		return channel.Hash{}, errors.WithMessage(channel.ErrInvalidAppData, "voucher amount")
	}
	enc, err := voucherDigestArgs.Pack([32]byte(v.ChannelID), v.Amount)
	if err != nil {
		return channel.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// SignVoucher creates a voucher for amount signed by payer.
func SignVoucher(payer *wallet.Account, id channel.ID, amount *big.Int) (Voucher, error) {
	v := Voucher{ChannelID: id, Amount: new(big.Int).Set(amount)}
	digest, err := v.Digest()
	if err != nil {
		return Voucher{}, err
	}
	if v.Signature, err = payer.SignHash(digest); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

// Signer recovers the address that signed the voucher.
func (v Voucher) Signer() (wallet.Address, error) {
	digest, err := v.Digest()
	if err != nil {
		return wallet.Address{}, err
	}
	return wallet.RecoverSigner(digest, v.Signature)
}

// Encode returns the voucher as app data.
func (v Voucher) Encode() ([]byte, error) {
	if v.Amount == nil {
		return nil, errors.WithMessage(channel.ErrInvalidAppData, "voucher amount")
	}
	sig := v.Signature
	return voucherArgs.Pack(abiVoucher{
		ChannelId: v.ChannelID,
		Amount:    v.Amount,
		Signature: abiSignature{V: sig.V(), R: sig.R(), S: sig.S()},
	})
}

// DecodeVoucher decodes the app data of a virtual payment state.
func DecodeVoucher(data []byte) (v Voucher, err error) {
	var decoded abiVoucher
	if err := unpack(voucherArgs, data, &decoded); err != nil {
		return Voucher{}, err
	}
	v = Voucher{ChannelID: decoded.ChannelId, Amount: decoded.Amount}
	copy(v.Signature[:32], decoded.Signature.R[:])
	copy(v.Signature[32:64], decoded.Signature.S[:])
	v.Signature[wallet.SigLen-1] = decoded.Signature.V
	return v, nil
}

// Encode returns the financing data as app data.
func (d FinancingData) Encode() ([]byte, error) {
	if d.InterestPerBlockDivisor == nil || d.BlockNumber == nil {
		return nil, errors.WithMessage(channel.ErrInvalidAppData, "missing financing parameters")
	}
	if len(d.Principal.Assets) != len(d.Principal.Amounts) {
		return nil, errors.WithMessage(channel.ErrInvalidAppData, "principal assets and amounts differ in length")
	}
	return financingArgs.Pack(abiFinancingData{
		InterestPerBlockDivisor: d.InterestPerBlockDivisor,
		Principal:               abiFunds{Asset: d.Principal.Assets, Amount: d.Principal.Amounts},
		BlockNumber:             d.BlockNumber,
	})
}

// DecodeFinancingData decodes the app data of a ledger financing state.
func DecodeFinancingData(data []byte) (FinancingData, error) {
	var decoded abiFinancingData
	if err := unpack(financingArgs, data, &decoded); err != nil {
		return FinancingData{}, err
	}
	if len(decoded.Principal.Asset) != len(decoded.Principal.Amount) {
		return FinancingData{}, errors.WithMessage(channel.ErrInvalidAppData, "principal assets and amounts differ in length")
	}
	return FinancingData{
		InterestPerBlockDivisor: decoded.InterestPerBlockDivisor,
		Principal:               Funds{Assets: decoded.Principal.Asset, Amounts: decoded.Principal.Amount},
		BlockNumber:             decoded.BlockNumber,
	}, nil
}

// unpack decodes a single tuple argument into out.
func unpack(args abi.Arguments, data []byte, out interface{}) (err error) {
	values, err := args.Unpack(data)
	if err != nil {
		return errors.WithMessage(channel.ErrInvalidAppData, err.Error())
	}
	defer func() {
		// abi.ConvertType panics on a shape mismatch.
		if r := recover(); r != nil {
			err = errors.WithMessagef(channel.ErrInvalidAppData, "%v", r)
		}
	}()
	abi.ConvertType(values[0], out)
	return nil
}
