package ledgertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
)

func TestFake_GetPaymentChannel_NotFound(t *testing.T) {
	f := New("rServer")
	_, err := f.GetPaymentChannel(context.Background(), "DEADBEEF")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
	assert.Equal(t, 1, f.Calls["GetPaymentChannel"])
}

func TestFake_GetPaymentChannel_Found(t *testing.T) {
	f := New("rServer")
	f.Channels["DEADBEEF"] = &ledger.PaymentChannel{
		ChannelID:   "DEADBEEF",
		Account:     "rClient",
		Amount:      1_000_000,
		Destination: "rServer",
		SettleDelay: 3600,
	}

	pc, err := f.GetPaymentChannel(context.Background(), "DEADBEEF")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), pc.Amount)
}
