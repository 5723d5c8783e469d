// Package paychan implements the sub-protocol dispatcher and the claim &
// admission engine: it owns the account
// registry, the channel→account reverse index, and wires the per-account
// state machine to the peer transport, the ledger, the TxSubmitter, and the
// channel watcher.
package paychan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/warrant1/chain-xrpl-ilp/internal/account"
	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
	"github.com/warrant1/chain-xrpl-ilp/internal/store"
	"github.com/warrant1/chain-xrpl-ilp/internal/txsubmitter"
	"github.com/warrant1/chain-xrpl-ilp/internal/watcher"
)

// Orchestrator owns every Account, the channelId→accountId reverse index, and
// coordinates the ledger, store, submitter, and watcher on their behalf.
type Orchestrator struct {
	settings Settings
	store    *store.Wrapper
	ledger   ledger.Client
	submit   *txsubmitter.Submitter
	watch    *watcher.Watcher
	logger   *slog.Logger
	data     DataHandler

	mu       sync.Mutex
	accounts map[string]*account.Account
	channels map[string]string // channelId -> accountId
}

// New builds an Orchestrator. The watcher's close callback is wired to
// onChannelClose automatically.
func New(settings Settings, st *store.Wrapper, lg ledger.Client, submitter *txsubmitter.Submitter, logger *slog.Logger, data DataHandler) *Orchestrator {
	o := &Orchestrator{
		settings: settings,
		store:    st,
		ledger:   lg,
		submit:   submitter,
		logger:   logger.With("component", "orchestrator"),
		data:     data,
		accounts: make(map[string]*account.Account),
		channels: make(map[string]string),
	}
	o.watch = watcher.New(lg, logger, settings.WatchInterval, o.onChannelClose)
	return o
}

func (o *Orchestrator) validationParams() account.ValidationParams {
	return account.ValidationParams{MinSettleDelay: o.settings.MinSettleDelay, ServerAddress: o.settings.ServerAddress}
}

func (o *Orchestrator) admissionParams() account.AdmissionParams {
	maxPacket := o.settings.MaxPacketAmount
	if maxPacket == 0 {
		maxPacket = ^uint64(0)
	}
	return account.AdmissionParams{MaxPacketAmount: maxPacket, Bandwidth: o.settings.Bandwidth}
}

// GetOrCreateAccount returns the account for accountID, connecting it from
// persisted state on first appearance.
func (o *Orchestrator) GetOrCreateAccount(ctx context.Context, accountID string) (*account.Account, error) {
	o.mu.Lock()
	acct, exists := o.accounts[accountID]
	if exists {
		o.mu.Unlock()
		return acct, nil
	}
	acct = account.New(accountID, o.store, o.ledger, o.logger)
	o.accounts[accountID] = acct
	o.mu.Unlock()

	if err := acct.Connect(ctx, o.validationParams()); err != nil {
		return nil, fmt.Errorf("paychan: connect account %s: %w", accountID, err)
	}

	if incoming, _ := acct.ChannelIDs(); incoming != "" {
		o.bindChannel(incoming, accountID)
		o.watch.Watch(ctx, incoming)
	}
	if acct.IsReady() {
		o.startAutoClaim(acct)
	}
	return acct, nil
}

// Snapshot returns a point-in-time view of accountID's state, for the
// operational API. It does not create the account if unseen.
func (o *Orchestrator) Snapshot(accountID string) (account.Snapshot, bool) {
	o.mu.Lock()
	acct, ok := o.accounts[accountID]
	o.mu.Unlock()
	if !ok {
		return account.Snapshot{}, false
	}
	return acct.Snapshot(), true
}

// bindChannel records the channelId→accountId reverse index, persisting it so
// a restart can reject a channel re-bound to a different account.
func (o *Orchestrator) bindChannel(channelID, accountID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.channels[channelID]; ok && existing != accountID {
		return fmt.Errorf("%w: channel %s already bound to account %s", corekind.ErrValidation, channelID, existing)
	}
	if err := o.store.Load(context.Background(), "channel:"+channelID); err != nil {
		return fmt.Errorf("paychan: load channel binding %s: %w", channelID, err)
	}
	if existing, ok := o.store.Get("channel:" + channelID); ok && existing != accountID {
		return fmt.Errorf("%w: channel %s already bound to account %s", corekind.ErrValidation, channelID, existing)
	}
	o.channels[channelID] = accountID
	o.store.Set("channel:"+channelID, accountID)
	return nil
}

// accountForChannel looks up the account owning channelID.
func (o *Orchestrator) accountForChannel(channelID string) (*account.Account, bool) {
	o.mu.Lock()
	accountID, ok := o.channels[channelID]
	if !ok {
		o.mu.Unlock()
		return nil, false
	}
	acct, ok := o.accounts[accountID]
	o.mu.Unlock()
	return acct, ok
}

// onChannelClose is the watcher's CloseHandler: it blocks the owning account
// and submits a final closing claim, racing the peer's own closure attempt.
func (o *Orchestrator) onChannelClose(ctx context.Context, channelID string) {
	acct, ok := o.accountForChannel(channelID)
	if !ok {
		o.logger.Warn("channel close for unknown account", "channel", channelID)
		return
	}
	acct.Block("incoming channel entering settle-delay window")
	o.submitFinalClaim(ctx, acct, channelID)
}

// submitFinalClaim submits the best-known incoming claim with the close flag set.
func (o *Orchestrator) submitFinalClaim(ctx context.Context, acct *account.Account, channelID string) {
	claim := acct.GetIncomingClaim()
	if claim.Amount == 0 {
		return
	}
	pc := acct.IncomingPaychanSnapshot()
	if pc == nil {
		return
	}
	if _, err := o.submit.SubmitPaymentChannelClaim(ctx, channelID, claim.Amount, claim.Signature, pc.PublicKey, true); err != nil {
		o.logger.Warn("final claim submission failed", "channel", channelID, "error", err)
	}
}

// Stop tears down the watcher; called on shutdown.
func (o *Orchestrator) Stop() {
	o.watch.Stop()
}
