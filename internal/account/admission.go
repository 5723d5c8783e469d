package account

import (
	"fmt"

	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
)

// AdmissionParams carries the policy an incoming PREPARE is checked against.
type AdmissionParams struct {
	MaxPacketAmount uint64
	Bandwidth       uint64
}

// CheckAdmission applies the connector's admission-control checks for an
// incoming PREPARE of amount (drops) and, on success, commits and persists
// the new prepared total. The first failing check wins.
func (a *Account) CheckAdmission(amount uint64, params AdmissionParams) error {
	a.mu.Lock()

	if a.state != StateReady {
		a.mu.Unlock()
		return fmt.Errorf("%w: account %s not ready (state %s)", corekind.ErrUnreachable, a.AccountID, a.state)
	}
	if amount > params.MaxPacketAmount {
		a.mu.Unlock()
		return fmt.Errorf("%w: receivedAmount=%d maximumAmount=%d", corekind.ErrTooLarge, amount, params.MaxPacketAmount)
	}

	newPrepared := a.Prepared + amount
	lastValue := a.IncomingClaim.Amount
	unsecured := uint64(0)
	if newPrepared > lastValue {
		unsecured = newPrepared - lastValue
	}
	if unsecured > params.Bandwidth {
		a.mu.Unlock()
		return fmt.Errorf("%w: unsecured liability %d exceeds bandwidth %d", corekind.ErrLiquidity, unsecured, params.Bandwidth)
	}

	var channelAmount uint64
	if a.IncomingPaychan != nil {
		channelAmount = a.IncomingPaychan.Amount
	}
	if newPrepared > channelAmount {
		a.mu.Unlock()
		return fmt.Errorf("%w: prepared total %d exceeds channel escrow %d", corekind.ErrLiquidity, newPrepared, channelAmount)
	}

	a.Prepared = newPrepared
	a.mu.Unlock()

	a.persistPrepared()
	return nil
}

// RollbackPrepare reverses a prior CheckAdmission commit after a REJECT.
func (a *Account) RollbackPrepare(amount uint64) {
	a.mu.Lock()
	if amount > a.Prepared {
		a.Prepared = 0
	} else {
		a.Prepared -= amount
	}
	a.mu.Unlock()

	a.persistPrepared()
}

// persistPrepared writes the current prepared total to the store.
func (a *Account) persistPrepared() {
	_ = a.store.SetObject(a.keyBalance(), persistedBalances{Prepared: a.getBalance()})
}
