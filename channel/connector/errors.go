// SPDX-License-Identifier: Apache-2.0
package connector

import (
	"github.com/pkg/errors"
)

var (
	// ErrOverflow a turn number or timestamp does not fit into 48 bits.
	ErrOverflow = errors.New("value exceeds 48 bits")
	// ErrCorruptValue a stored value could not be decoded.
	ErrCorruptValue = errors.New("corrupt stored value")
	// ErrConnectorClosed the connector was used after Close.
	ErrConnectorClosed = errors.New("connector closed")
)
