// Package corekind holds the sentinel error kinds shared across the
// connector core, checked with errors.Is/errors.As rather than string
// matching.
package corekind

import "errors"

var (
	// ErrProtocol marks a malformed sub-protocol message or a handler invoked
	// from the wrong account state.
	ErrProtocol = errors.New("corekind: protocol error")

	// ErrValidation marks a payment channel that fails the connector's
	// adoption rules, or a channel already bound to a different account.
	ErrValidation = errors.New("corekind: validation error")

	// ErrSignature marks a claim or channel_signature that fails ed25519 verification.
	ErrSignature = errors.New("corekind: signature error")

	// ErrCapacity marks a claim or signing attempt that would exceed a channel's escrow.
	ErrCapacity = errors.New("corekind: capacity error")

	// ErrLiquidity marks an admission-control rejection for insufficient bandwidth or escrow (T04).
	ErrLiquidity = errors.New("corekind: liquidity error")

	// ErrUnreachable marks an account with no channel, or a blocked account (F02).
	ErrUnreachable = errors.New("corekind: unreachable error")

	// ErrTooLarge marks a PREPARE above the configured maxPacketAmount (F08).
	ErrTooLarge = errors.New("corekind: amount too large")

	// ErrTransient marks a recoverable ledger timeout; callers should retry.
	ErrTransient = errors.New("corekind: transient error")

	// ErrTerminal marks a ledger entryNotFound; the owning account must be blocked.
	ErrTerminal = errors.New("corekind: terminal error")
)
