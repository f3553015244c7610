// SPDX-License-Identifier: Apache-2.0

package app

import (
	"sync"

	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/channel"
	"perun.network/perun-forcemove-backend/wallet"
)

// Kind names a built-in rule set.
type Kind string

const (
	KindConsensus       Kind = "consensus"
	KindTurnTaking      Kind = "turntaking"
	KindShortcutting    Kind = "shortcutting"
	KindVirtualPayment  Kind = "virtualpayment"
	KindLedgerFinancing Kind = "ledgerfinancing"
	KindTrivial         Kind = "trivial"
	KindNull            Kind = "null"
)

// ErrUnknownKind a rule set name is not known.
var ErrUnknownKind = errors.New("unknown app kind")

// Kinds lists all built-in rule sets.
var Kinds = []Kind{
	KindConsensus, KindTurnTaking, KindShortcutting, KindVirtualPayment,
	KindLedgerFinancing, KindTrivial, KindNull,
}

// NewValidator returns the built-in rule set of a kind.
func NewValidator(kind Kind) (channel.TransitionValidator, error) {
	switch kind {
	case KindConsensus:
		return Consensus{}, nil
	case KindTurnTaking:
		return StrictTurnTaking{}, nil
	case KindShortcutting:
		return StrictTurnTaking{Shortcutting: true}, nil
	case KindVirtualPayment:
		return VirtualPayment{}, nil
	case KindLedgerFinancing:
		return LedgerFinancing{}, nil
	case KindTrivial:
		return Trivial{}, nil
	case KindNull:
		return Null{}, nil
	}
	return nil, errors.WithMessagef(ErrUnknownKind, "%q", kind)
}

// Registry maps app definitions to their validators.
type Registry struct {
	mu   sync.RWMutex
	apps map[wallet.Address]channel.TransitionValidator
}

var _ channel.ValidatorLookup = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{apps: make(map[wallet.Address]channel.TransitionValidator)}
}

// Register sets the validator of an app definition.
func (r *Registry) Register(appDef wallet.Address, v channel.TransitionValidator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[appDef] = v
}

// RegisterKind sets the built-in rule set kind for an app definition.
func (r *Registry) RegisterKind(appDef wallet.Address, kind Kind) error {
	v, err := NewValidator(kind)
	if err != nil {
		return err
	}
	r.Register(appDef, v)
	return nil
}

// Validator returns the validator of an app definition.
func (r *Registry) Validator(appDef wallet.Address) (channel.TransitionValidator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.apps[appDef]
	if !ok {
		return nil, errors.WithMessagef(channel.ErrUnknownApp, "%v", appDef)
	}
	return v, nil
}
