// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"perun.network/go-perun/log"

	"perun.network/perun-forcemove-backend/channel/connector"
)

// Funder credits deposits to channel holdings.
type Funder struct {
	log.Embedding

	conn *connector.Connector
}

// DepositResult reports the effect of a deposit. Credited is zero if the
// holdings already covered expectedHeld plus amount.
type DepositResult struct {
	Credited *big.Int
	Holdings *big.Int
}

// NewFunder returns a new Funder.
func NewFunder(conn *connector.Connector) *Funder {
	return &Funder{log.MakeEmbedding(log.Default()), conn}
}

// Deposit credits up to amount of asset to a channel. The depositor states
// the holdings expectedHeld it saw before depositing. The deposit fails if
// the holdings are lower and credits only the part of amount that is still
// missing to reach expectedHeld+amount if they are higher. This lets
// participants that deposit concurrently all succeed with a correct total.
func (f *Funder) Deposit(ctx context.Context, asset Asset, id ID, expectedHeld, amount *big.Int) (res DepositResult, err error) {
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if IsExternalDestination(id) {
		return res, errors.WithMessagef(ErrDepositToExternal, "%v", id)
	}
	if expectedHeld.Sign() < 0 || amount.Sign() < 0 {
		return res, errors.WithMessagef(ErrNegativeAmount, "expectedHeld %v, amount %v", expectedHeld, amount)
	}

	err = f.conn.Update("deposit", func(txn *connector.Txn) error {
		held, err := txn.Holdings(asset, id)
		if err != nil {
			return err
		}
		if held.Cmp(expectedHeld) < 0 {
			return errors.WithMessagef(ErrHoldingsBelowExpected, "held %v, expected %v", held, expectedHeld)
		}

		target := new(big.Int).Add(expectedHeld, amount)
		credited := new(big.Int)
		if held.Cmp(target) < 0 {
			credited.Sub(target, held)
		}
		holdings := new(big.Int).Add(held, credited)
		if err := txn.SetHoldings(asset, id, holdings); err != nil {
			return err
		}

		txn.Emit(&connector.DepositedEvent{
			EventBase: connector.EventBase{IDV: id, TimeV: f.conn.Now()},
			Asset:     asset,
			Credited:  credited,
			Holdings:  holdings,
		})
		res = DepositResult{Credited: credited, Holdings: holdings}
		return nil
	})
	if err == nil {
		f.Log().WithField("channel", id).WithField("asset", asset).
			Debugf("deposit credited %v, holdings %v", res.Credited, res.Holdings)
	}
	return res, err
}

// Fund deposits like Deposit but waits for the holdings to reach
// expectedHeld instead of failing when they are lower. It returns when the
// deposit succeeded, failed otherwise or ctx is done.
func (f *Funder) Fund(ctx context.Context, asset Asset, id ID, expectedHeld, amount *big.Int) (DepositResult, error) {
	sub := f.conn.Subscribe(connector.ForChannel(id))
	defer sub.Close()

	for {
		res, err := f.Deposit(ctx, asset, id, expectedHeld, amount)
		if !errors.Is(err, ErrHoldingsBelowExpected) {
			return res, err
		}
		f.Log().WithField("channel", id).Debugf("waiting for holdings of %v", expectedHeld)

		select {
		case _, ok := <-sub.Events():
			if !ok {
				return res, connector.ErrConnectorClosed
			}
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// Holdings returns the amount of asset held for a channel.
func (f *Funder) Holdings(asset Asset, id ID) (*big.Int, error) {
	return f.conn.Holdings(asset, id)
}
