// SPDX-License-Identifier: Apache-2.0

package test

import (
	"context"
	"math/big"

	pkgerrors "polycry.pt/poly-go/errors"

	"perun.network/perun-forcemove-backend/channel"
)

// DepositAll lets every participant deposit its share of amounts into id
// concurrently. Participant i expects the shares of all participants before
// it to be held.
func DepositAll(ctx context.Context, funder *channel.Funder, asset channel.Asset, id channel.ID, amounts []*big.Int) error {
	g := pkgerrors.NewGatherer()
	expected := new(big.Int)
	for i := range amounts {
		expectedHeld, amount := new(big.Int).Set(expected), amounts[i]
		expected.Add(expected, amount)
		g.Go(func() error {
			_, err := funder.Fund(ctx, asset, id, expectedHeld, amount)
			return err
		})
	}

	if !g.WaitDoneOrFailedCtx(ctx) {
		return ctx.Err()
	}
	return g.Err()
}
