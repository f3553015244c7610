// SPDX-License-Identifier: Apache-2.0

// Package app contains the transition rules of the supported channel
// applications. Every rule set implements channel.TransitionValidator and is
// registered under the app definition address that channels name in their
// fixed part.
package app
