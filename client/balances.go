// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"perun.network/perun-forcemove-backend/channel"
)

// weiPerEther is the number of base units of the native asset per ether.
var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// FormatBalance renders an amount of the native asset in ether.
func FormatBalance(bal *big.Int) string {
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(bal), weiPerEther).Float64()
	return strconv.FormatFloat(eth, 'f', 6, 64) + " ETH"
}

// FormatState renders the turn number and balances of a state.
func FormatState(v channel.VariablePart) string {
	var b strings.Builder
	fmt.Fprintf(&b, "turn %d", v.TurnNum)
	if v.IsFinal {
		b.WriteString(" (final)")
	}
	for _, e := range v.Outcome {
		for i, a := range e.Allocations {
			fmt.Fprintf(&b, ", [%d] %s", i, FormatBalance(a.Amount))
		}
	}
	return b.String()
}
