package account

import (
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warrant1/chain-xrpl-ilp/internal/claimcodec"
	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
)

// baseUnitsToDropsRoundUp converts an amount in the account's negotiated base
// unit to drops, rounding up so repeated signings never accumulate sub-drop
// drift in the peer's favor. assetScale is the base-unit exponent (drops have
// scale 6 against whole XRP).
func baseUnitsToDropsRoundUp(amountBaseUnits uint64, assetScale uint8) uint64 {
	if assetScale == 6 {
		return amountBaseUnits
	}
	amt := decimal.NewFromInt(int64(amountBaseUnits))
	scaleDiff := int32(assetScale) - 6
	scaled := amt.Shift(-scaleDiff)
	rounded := scaled.Ceil()
	if rounded.IsNegative() {
		return 0
	}
	return uint64(rounded.IntPart())
}

// SignOutgoingClaim implements the claim-signer half of settlement
// (sign-and-persist steps 1-4 and 6). amountBaseUnits is owedBalance plus
// the current packet's amount, in the account's base unit. It returns the
// produced claim, and whether the caller should now start a non-reentrant
// funding transaction (step 5) before delivering the claim.
func (a *Account) SignOutgoingClaim(secret string, amountBaseUnits uint64, assetScale uint8, fundingThresholdDrops uint64) (Claim, bool, error) {
	a.mu.Lock()

	if a.state != StateReady {
		a.mu.Unlock()
		return Claim{}, false, fmt.Errorf("%w: account %s not ready for settlement (state %s)", corekind.ErrUnreachable, a.AccountID, a.state)
	}
	if a.ClientChannel == "" || a.ClientPaychan == nil {
		a.mu.Unlock()
		return Claim{}, false, fmt.Errorf("%w: account %s has no client channel", corekind.ErrUnreachable, a.AccountID)
	}

	amountDrops := baseUnitsToDropsRoundUp(amountBaseUnits, assetScale)
	newOutgoing := a.OutgoingBalance + amountDrops

	if newOutgoing > a.ClientPaychan.Amount {
		a.mu.Unlock()
		return Claim{}, false, fmt.Errorf("%w: signing %d drops would exceed client channel capacity %d", corekind.ErrCapacity, newOutgoing, a.ClientPaychan.Amount)
	}

	needsFunding := false
	if a.ClientPaychan.Amount >= fundingThresholdDrops/2 {
		if newOutgoing > a.ClientPaychan.Amount-fundingThresholdDrops/2 && !a.funding {
			needsFunding = true
		}
	}

	_, priv := claimcodec.DeriveChannelKeypair(secret, a.AccountID)
	chanBytes, err := channelIDBytes(a.ClientChannel)
	if err != nil {
		a.mu.Unlock()
		return Claim{}, false, err
	}
	sig := claimcodec.Sign(priv, chanBytes, newOutgoing)

	a.OutgoingBalance = newOutgoing
	claim := Claim{Amount: newOutgoing, Signature: hex.EncodeToString(sig)}
	a.OutgoingClaim = claim
	a.mu.Unlock()

	a.store.Set(a.keyOutgoingBalance(), fmt.Sprintf("%d", newOutgoing))
	_ = a.store.SetObject(a.keyOutgoingClaim(), claim)

	return claim, needsFunding, nil
}

// BeginFunding sets the non-reentrant funding flag. Returns false if a
// funding transaction is already in flight.
func (a *Account) BeginFunding() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.funding {
		return false
	}
	a.funding = true
	return true
}

// EndFunding clears the funding flag and, on success, adopts the refreshed
// client channel state.
func (a *Account) EndFunding(refreshed *ledger.PaymentChannel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.funding = false
	if refreshed != nil {
		a.ClientPaychan = refreshed
	}
}

// AddOwed adds amount to the owed balance after a settlement attempt fails to
// produce a valid claim.
func (a *Account) AddOwed(amount uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.OwedBalance += amount
}

// TakeOwed returns the current owed balance and resets it to zero, for use
// when a successful settlement absorbs the previously owed portion.
func (a *Account) TakeOwed() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	owed := a.OwedBalance
	a.OwedBalance = 0
	return owed
}
