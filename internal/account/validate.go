package account

import (
	"fmt"

	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
)

// ValidationParams carries the platform policy a channel is checked against.
type ValidationParams struct {
	MinSettleDelay  uint32
	ServerAddress   string
}

// ValidateChannel applies the adoption rules every incoming or refreshed
// channel must satisfy before being bound to an account.
func ValidateChannel(pc *ledger.PaymentChannel, p ValidationParams) error {
	if pc.SettleDelay < p.MinSettleDelay {
		return fmt.Errorf("%w: settle delay %d below minimum %d", corekind.ErrValidation, pc.SettleDelay, p.MinSettleDelay)
	}
	if pc.CancelAfter != nil {
		return fmt.Errorf("%w: channel has a cancelAfter", corekind.ErrValidation)
	}
	if pc.Expiration != nil {
		return fmt.Errorf("%w: channel closing", corekind.ErrValidation)
	}
	if pc.Destination != p.ServerAddress {
		return fmt.Errorf("%w: wrong destination %s, want %s", corekind.ErrValidation, pc.Destination, p.ServerAddress)
	}
	return nil
}
