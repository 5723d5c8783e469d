package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
)

// loadRetries bounds how many times loadChannel attempts a ledger fetch that
// fails transiently. After the last failure Connect returns an ErrTransient
// error and the account stays in LOADING_CHANNEL; Connect is valid only from
// INITIAL, so it does not retry the load.
const loadRetries = 3

// Connect is valid only from INITIAL. It loads all persisted fields, honors a
// persisted blocked flag, then proceeds to LOADING_CHANNEL.
func (a *Account) Connect(ctx context.Context, params ValidationParams) error {
	a.mu.Lock()
	if err := a.assertState("Connect", StateInitial); err != nil {
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()

	if err := a.loadPersisted(ctx); err != nil {
		return fmt.Errorf("account: connect: %w", err)
	}

	a.mu.Lock()
	blocked := a.Blocked
	a.mu.Unlock()
	if blocked {
		a.mu.Lock()
		a.state = StateBlocked
		a.mu.Unlock()
		return nil
	}

	a.mu.Lock()
	a.state = StateLoadingChannel
	channelID := a.IncomingChannel
	a.mu.Unlock()

	if channelID == "" {
		a.mu.Lock()
		a.state = StateEstablishingChannel
		a.mu.Unlock()
		return nil
	}

	return a.loadChannel(ctx, channelID, params)
}

// loadPersisted populates the account's fields from the store, using Load
// (cache-filling, writer-wins) followed by synchronous Get reads.
func (a *Account) loadPersisted(ctx context.Context) error {
	keys := []string{
		a.keyBalance(), a.keyClaim(), a.keyChannel(), a.keyClientChannel(),
		a.keyOutgoingBalance(), a.keyOutgoingClaim(), a.keyLastClaimed(), a.keyBlock(), a.keyBlockReason(),
	}
	for _, k := range keys {
		if err := a.store.Load(ctx, k); err != nil {
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var bal persistedBalances
	if raw, ok := a.store.Get(a.keyBalance()); ok {
		if err := json.Unmarshal([]byte(raw), &bal); err == nil {
			a.Prepared = bal.Prepared
		}
	}
	if raw, ok := a.store.Get(a.keyClaim()); ok {
		var c Claim
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			a.IncomingClaim = c
		}
	}
	if v, ok := a.store.Get(a.keyChannel()); ok {
		a.IncomingChannel = v
	}
	if v, ok := a.store.Get(a.keyClientChannel()); ok {
		a.ClientChannel = v
	}
	if v, ok := a.store.Get(a.keyOutgoingBalance()); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			a.OutgoingBalance = n
		}
	}
	if raw, ok := a.store.Get(a.keyOutgoingClaim()); ok {
		var c Claim
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			a.OutgoingClaim = c
		}
	}
	if v, ok := a.store.Get(a.keyLastClaimed()); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			a.LastClaimedAmount = n
		}
	}
	if v, ok := a.store.Get(a.keyBlock()); ok && v == "true" {
		a.Blocked = true
	}
	if v, ok := a.store.Get(a.keyBlockReason()); ok {
		a.BlockReason = v
	}
	return nil
}

// loadChannel fetches channelID's ledger state and validates it, retrying
// transient timeouts and blocking the account on a terminal entryNotFound.
func (a *Account) loadChannel(ctx context.Context, channelID string, params ValidationParams) error {
	var pc *ledger.PaymentChannel
	var err error

	for attempt := 0; attempt < loadRetries; attempt++ {
		pc, err = a.ledger.GetPaymentChannel(ctx, channelID)
		if err == nil {
			break
		}
		if errors.Is(err, ledger.ErrEntryNotFound) {
			a.deleteChannel()
			a.block(fmt.Sprintf("incoming channel %s no longer exists on ledger", channelID))
			return nil
		}
		a.logger.Warn("transient error loading channel, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return fmt.Errorf("%w: load channel %s: %v", corekind.ErrTransient, channelID, err)
	}

	if verr := ValidateChannel(pc, params); verr != nil {
		a.block(verr.Error())
		return nil
	}

	a.mu.Lock()
	a.IncomingPaychan = pc
	a.state = StateLoadingClientChannel
	clientChannelID := a.ClientChannel
	a.mu.Unlock()

	if clientChannelID == "" {
		a.mu.Lock()
		a.state = StateEstablishingClientChannel
		a.mu.Unlock()
		return nil
	}

	clientPC, err := a.ledger.GetPaymentChannel(ctx, clientChannelID)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			a.mu.Lock()
			a.ClientChannel = ""
			a.ClientPaychan = nil
			a.state = StateEstablishingClientChannel
			a.mu.Unlock()
			a.store.Delete(a.keyClientChannel())
			return nil
		}
		return fmt.Errorf("%w: load client channel %s: %v", corekind.ErrTransient, clientChannelID, err)
	}

	a.mu.Lock()
	a.ClientPaychan = clientPC
	a.state = StateReady
	a.mu.Unlock()
	return nil
}

// deleteChannel is invoked only when the incoming channel no longer exists on
// the ledger. It returns the escrowed-but-unsecured liability to zero and
// clears the channel fields.
func (a *Account) deleteChannel() {
	a.mu.Lock()
	if a.Prepared >= a.LastClaimedAmount {
		a.Prepared -= a.LastClaimedAmount
	} else {
		a.Prepared = 0
	}
	a.IncomingChannel = ""
	a.IncomingPaychan = nil
	a.mu.Unlock()

	a.store.Delete(a.keyChannel())
	_ = a.store.SetObject(a.keyBalance(), persistedBalances{Prepared: a.getBalance()})
}

// PrepareChannel locks into PREPARING_CHANNEL before any ledger/store I/O for
// adopting a new incoming channel. Call ResetChannel on failure.
func (a *Account) PrepareChannel() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.assertState("PrepareChannel", StateEstablishingChannel); err != nil {
		return err
	}
	a.state = StatePreparingChannel
	return nil
}

// ResetChannel returns to ESTABLISHING_CHANNEL after a failed channel adoption.
func (a *Account) ResetChannel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateEstablishingChannel
}

// CommitChannel adopts pc as the incoming channel and advances past
// PREPARING_CHANNEL to LOADING_CLIENT_CHANNEL (or ESTABLISHING_CLIENT_CHANNEL
// if no client channel is yet known).
func (a *Account) CommitChannel(channelID string, pc *ledger.PaymentChannel) {
	a.mu.Lock()
	a.IncomingChannel = channelID
	a.IncomingPaychan = pc
	if a.ClientChannel == "" {
		a.state = StateEstablishingClientChannel
	} else {
		a.state = StateLoadingClientChannel
	}
	a.mu.Unlock()

	a.store.Set(a.keyChannel(), channelID)
}

// RefreshChannel updates the incoming channel's cached ledger state without
// touching the state machine. Valid only while already READY, for a peer that
// re-sends the channel sub-protocol to announce additional on-ledger escrow.
func (a *Account) RefreshChannel(channelID string, pc *ledger.PaymentChannel) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.assertState("RefreshChannel", StateReady); err != nil {
		return err
	}
	if a.IncomingChannel != channelID {
		return fmt.Errorf("%w: channel %s does not match bound channel %s", corekind.ErrValidation, channelID, a.IncomingChannel)
	}
	a.IncomingPaychan = pc
	return nil
}

// PrepareClientChannel locks into PREPARING_CLIENT_CHANNEL before funding a
// reverse channel. Call ResetClientChannel on failure.
func (a *Account) PrepareClientChannel() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.assertState("PrepareClientChannel", StateEstablishingClientChannel); err != nil {
		return err
	}
	a.state = StatePreparingClientChannel
	return nil
}

// ResetClientChannel returns to ESTABLISHING_CLIENT_CHANNEL after a failed client-channel setup.
func (a *Account) ResetClientChannel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateEstablishingClientChannel
}

// CommitClientChannel adopts pc as the client (reverse) channel and advances to READY.
func (a *Account) CommitClientChannel(channelID string, pc *ledger.PaymentChannel) {
	a.mu.Lock()
	a.ClientChannel = channelID
	a.ClientPaychan = pc
	a.state = StateReady
	a.mu.Unlock()

	a.store.Set(a.keyClientChannel(), channelID)
}
