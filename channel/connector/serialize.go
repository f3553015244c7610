// SPDX-License-Identifier: Apache-2.0
package connector

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Key prefixes of the store.
const (
	statusPrefix    byte = 'S'
	holdingsPrefix  byte = 'H'
	withdrawnPrefix byte = 'W'
)

// statusKey is S | channelID.
func statusKey(id ChannelID) []byte {
	key := make([]byte, 0, 1+IDLen)
	key = append(key, statusPrefix)
	return append(key, id[:]...)
}

// holdingsKey is H | asset | channelID.
func holdingsKey(asset Asset, id ChannelID) []byte {
	key := make([]byte, 0, 1+common.AddressLength+IDLen)
	key = append(key, holdingsPrefix)
	key = append(key, asset[:]...)
	return append(key, id[:]...)
}

// withdrawnKey is W | asset | receiver.
func withdrawnKey(asset Asset, receiver common.Address) []byte {
	key := make([]byte, 0, 1+2*common.AddressLength)
	key = append(key, withdrawnPrefix)
	key = append(key, asset[:]...)
	return append(key, receiver[:]...)
}

func decodeStatus(data []byte) (Status, error) {
	var s Status
	if len(data) != StatusLen {
		return s, errors.WithMessagef(ErrCorruptValue, "status length %d", len(data))
	}
	copy(s[:], data)
	return s, nil
}

// encodeAmount stores non-negative amounts as minimal big-endian bytes.
func encodeAmount(v *big.Int) ([]byte, error) {
	if v.Sign() < 0 {
		return nil, errors.Errorf("negative amount %v", v)
	}
	return v.Bytes(), nil
}

func decodeAmount(data []byte) *big.Int {
	return new(big.Int).SetBytes(data)
}
