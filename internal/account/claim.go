package account

import (
	"encoding/hex"
	"fmt"

	"github.com/warrant1/chain-xrpl-ilp/internal/claimcodec"
	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
)

// channelIDBytes decodes a hex-encoded 32-byte channel id for claim encoding.
func channelIDBytes(channelID string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(channelID)
	if err != nil {
		return out, fmt.Errorf("account: decode channel id %q: %w", channelID, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("account: channel id %q is %d bytes, want 32", channelID, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// HandleClaim verifies an incoming claim's signature and, if it strictly
// improves on the previously stored claim, persists it as the new
// incomingClaim. Lower or equal claims are a no-op. claim.Amount arrives in
// the account's negotiated base unit (assetScale) and is converted to drops,
// the same way settlement.go converts an outgoing claim's base-unit amount
// before it is signed, compared against channel capacity, or persisted.
func (a *Account) HandleClaim(claim Claim, assetScale uint8) error {
	if claim.Signature == "" {
		return fmt.Errorf("%w: claim missing signature", corekind.ErrProtocol)
	}

	a.mu.Lock()
	channel := a.IncomingChannel
	paychan := a.IncomingPaychan
	current := a.IncomingClaim
	a.mu.Unlock()

	if paychan == nil {
		return fmt.Errorf("%w: no incoming channel bound", corekind.ErrUnreachable)
	}

	chanBytes, err := channelIDBytes(channel)
	if err != nil {
		return err
	}

	sig, err := hex.DecodeString(claim.Signature)
	if err != nil {
		return fmt.Errorf("%w: decode signature: %v", corekind.ErrSignature, err)
	}

	amountDrops := baseUnitsToDropsRoundUp(claim.Amount, assetScale)

	if err := claimcodec.Verify(paychan.PublicKey, chanBytes, amountDrops, sig); err != nil {
		return fmt.Errorf("%w: Invalid claim: invalid signature: %v", corekind.ErrSignature, err)
	}

	if amountDrops > paychan.Amount {
		return fmt.Errorf("%w: Invalid claim: claim amount %d exceeds channel balance %d", corekind.ErrCapacity, amountDrops, paychan.Amount)
	}

	if amountDrops <= current.Amount {
		return nil
	}

	dropsClaim := Claim{Amount: amountDrops, Signature: claim.Signature}
	a.mu.Lock()
	a.IncomingClaim = dropsClaim
	a.mu.Unlock()
	a.store.Set(a.keyClaim(), claimJSON(dropsClaim))
	return nil
}

func claimJSON(c Claim) string {
	return fmt.Sprintf(`{"amount":%d,"signature":%q}`, c.Amount, c.Signature)
}
