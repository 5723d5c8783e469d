package paychan

import (
	"context"

	"github.com/warrant1/chain-xrpl-ilp/internal/ilppacket"
)

// DataHandler delivers a PREPARE to the rest of the Interledger network and
// returns its outcome. This connector does not route multi-hop traffic
// itself; it delegates to whatever sits behind this interface.
type DataHandler interface {
	Handle(ctx context.Context, accountID string, prepare ilppacket.Prepare) (ilppacket.Fulfill, error)
}

// DataHandlerFunc adapts a function to a DataHandler.
type DataHandlerFunc func(ctx context.Context, accountID string, prepare ilppacket.Prepare) (ilppacket.Fulfill, error)

func (f DataHandlerFunc) Handle(ctx context.Context, accountID string, prepare ilppacket.Prepare) (ilppacket.Fulfill, error) {
	return f(ctx, accountID, prepare)
}
