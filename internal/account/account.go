// Package account implements the per-peer lifecycle and claim state machine:
// a persisted balance/claim record plus an in-memory readiness state
// machine, serialized behind a per-account mutex.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
	"github.com/warrant1/chain-xrpl-ilp/internal/store"
)

// Claim is the largest validly signed claim seen for a channel, or produced
// for a channel the server signs.
type Claim struct {
	Amount    uint64 `json:"amount"`
	Signature string `json:"signature"`
}

// Account is a single peer's persisted balances and claim state, guarded by mu.
// Exactly one handler runs against an Account at a time.
type Account struct {
	mu sync.Mutex

	// opMu serializes whole multi-step operations (Connect, channel adoption,
	// fund_channel, ilp) so at most one handler runs per account at a time.
	// It is distinct from mu, which only guards field access.
	opMu sync.Mutex

	AccountID string

	store  *store.Wrapper
	ledger ledger.Client
	logger *slog.Logger

	state State

	IncomingChannel  string
	IncomingPaychan  *ledger.PaymentChannel
	ClientChannel    string
	ClientPaychan    *ledger.PaymentChannel
	IncomingClaim    Claim
	LastClaimedAmount uint64
	Prepared         uint64
	OutgoingBalance  uint64
	OutgoingClaim    Claim
	OwedBalance      uint64

	Blocked     bool
	BlockReason string

	funding bool

	cancelAutoClaim context.CancelFunc
}

// New constructs an Account in its INITIAL state.
func New(accountID string, st *store.Wrapper, lg ledger.Client, logger *slog.Logger) *Account {
	return &Account{
		AccountID: accountID,
		store:     st,
		ledger:    lg,
		logger:    logger.With("component", "account", "accountId", accountID),
		state:     StateInitial,
	}
}

// State returns the account's current readiness state.
func (a *Account) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// StateString is State().String(), convenient for logging and the operational RPC.
func (a *Account) StateString() string {
	return a.State().String()
}

// IsReady reports whether the account currently accepts PREPAREs and settlements.
func (a *Account) IsReady() bool {
	return a.State() == StateReady
}

// assertState fails the operation with a descriptive error unless the account
// is currently in one of want.
func (a *Account) assertState(op string, want ...State) error {
	for _, s := range want {
		if a.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: account %s in state %s, want one of %v", corekind.ErrProtocol, op, a.AccountID, a.state, want)
}

func (a *Account) keyBalance() string        { return a.AccountID }
func (a *Account) keyClaim() string          { return a.AccountID + ":claim" }
func (a *Account) keyChannel() string        { return a.AccountID + ":channel" }
func (a *Account) keyClientChannel() string  { return a.AccountID + ":client_channel" }
func (a *Account) keyOutgoingBalance() string { return a.AccountID + ":outgoing_balance" }
func (a *Account) keyOutgoingClaim() string  { return a.AccountID + ":outgoing_claim" }
func (a *Account) keyLastClaimed() string    { return a.AccountID + ":last_claimed" }
func (a *Account) keyBlock() string          { return a.AccountID + ":block" }
func (a *Account) keyBlockReason() string    { return a.AccountID + ":block_reason" }

// persistedBalances is the JSON shape stored under keyBalance for the
// book-keeping fields that are not already broken into their own keys.
type persistedBalances struct {
	Prepared uint64 `json:"prepared"`
}

// getIncomingClaim returns the largest validly signed claim received so far.
func (a *Account) getIncomingClaim() Claim {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.IncomingClaim
}

// getBalance returns the current in-flight prepared total.
func (a *Account) getBalance() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Prepared
}

// getOutgoingBalance returns the cumulative amount promised via signed outgoing claims.
func (a *Account) getOutgoingBalance() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.OutgoingBalance
}

// GetIncomingClaim returns the largest validly signed claim received so far.
func (a *Account) GetIncomingClaim() Claim {
	return a.getIncomingClaim()
}

// GetOutgoingClaim returns the most recently signed claim for the client
// (reverse) channel, the one a peer's own last_claim request asks us for.
func (a *Account) GetOutgoingClaim() Claim {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.OutgoingClaim
}

// GetLastClaimed returns the balance last reflected by an on-ledger claim submission.
func (a *Account) GetLastClaimed() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.LastClaimedAmount
}

// SetLastClaimed updates lastClaimedAmount after an observed claim submission
// and persists it. Auto-claim skips submitting again if this would regress.
func (a *Account) SetLastClaimed(amount uint64) {
	a.mu.Lock()
	a.LastClaimedAmount = amount
	a.mu.Unlock()
	a.store.Set(a.keyLastClaimed(), fmt.Sprintf("%d", amount))
}

// ChannelIDs returns the bound incoming and client channel ids, if any.
func (a *Account) ChannelIDs() (incoming, client string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.IncomingChannel, a.ClientChannel
}

// IncomingPaychanSnapshot returns a copy of the last-known incoming channel state, or nil.
func (a *Account) IncomingPaychanSnapshot() *ledger.PaymentChannel {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.IncomingPaychan == nil {
		return nil
	}
	cp := *a.IncomingPaychan
	return &cp
}

// Snapshot is a read-only view of account state for the operational RPC.
type Snapshot struct {
	AccountID         string
	State             string
	IncomingClaim     uint64
	OutgoingBalance   uint64
	OwedBalance       uint64
	Blocked           bool
	BlockReason       string
}

// Snapshot returns a consistent point-in-time view of the account's public fields.
func (a *Account) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		AccountID:       a.AccountID,
		State:           a.state.String(),
		IncomingClaim:   a.IncomingClaim.Amount,
		OutgoingBalance: a.OutgoingBalance,
		OwedBalance:     a.OwedBalance,
		Blocked:         a.Blocked,
		BlockReason:     a.BlockReason,
	}
}

// block terminally disables the account, persisting the flag and reason.
func (a *Account) block(reason string) {
	a.mu.Lock()
	a.Blocked = true
	a.BlockReason = reason
	a.state = StateBlocked
	a.mu.Unlock()

	a.store.Set(a.keyBlock(), "true")
	a.store.Set(a.keyBlockReason(), reason)
	a.logger.Warn("account blocked", "reason", reason)

	if a.cancelAutoClaim != nil {
		a.cancelAutoClaim()
	}
}

// SetAutoClaimCancel stores the cancel func for this account's auto-claim
// timer, invoked automatically when the account is blocked.
func (a *Account) SetAutoClaimCancel(cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelAutoClaim = cancel
}

// Lock serializes a whole handler operation against this account. Callers
// must call Unlock when done; this is independent of the internal field mutex.
func (a *Account) Lock() { a.opMu.Lock() }

// Unlock releases the lock acquired by Lock.
func (a *Account) Unlock() { a.opMu.Unlock() }

// Block is the exported form of block, used by the watcher and orchestrator
// when a channel closes or a terminal ledger error is observed.
func (a *Account) Block(reason string) {
	a.block(reason)
}
