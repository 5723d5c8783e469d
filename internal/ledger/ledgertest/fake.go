// Package ledgertest provides a hand-written fake of ledger.Client for use in
// other packages' tests: a call-count-tracking, settable-response stand-in
// for the real XRPL RPC client.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
)

// Fake is an in-memory ledger.Client double.
type Fake struct {
	mu sync.Mutex

	address string

	Channels map[string]*ledger.PaymentChannel
	FeeDrops uint64

	// CreateChannelID is the ledger index SubmitPaymentChannelCreate reports
	// as the newly created PayChannel object's ChannelID. Deliberately
	// distinct from the transaction hash it also returns (Hash), mirroring
	// how a real PaymentChannelCreate's submit-response hash and its created
	// object's ledger index are different 32-byte values.
	CreateChannelID string

	GetPaymentChannelErr error
	SubmitErr            error

	Calls map[string]int
}

// New returns a Fake reporting address as the connector's own XRP account.
func New(address string) *Fake {
	return &Fake{
		address:         address,
		Channels:        make(map[string]*ledger.PaymentChannel),
		FeeDrops:        10,
		CreateChannelID: "FAKECHANNELID",
		Calls:           make(map[string]int),
	}
}

func (f *Fake) count(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[method]++
}

func (f *Fake) Address() string { return f.address }

func (f *Fake) GetPaymentChannel(_ context.Context, channelID string) (*ledger.PaymentChannel, error) {
	f.count("GetPaymentChannel")
	if f.GetPaymentChannelErr != nil {
		return nil, f.GetPaymentChannelErr
	}
	pc, ok := f.Channels[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: channel %s", ledger.ErrEntryNotFound, channelID)
	}
	return pc, nil
}

func (f *Fake) GetFeeDrops(_ context.Context) (uint64, error) {
	f.count("GetFeeDrops")
	return f.FeeDrops, nil
}

func (f *Fake) SubmitPaymentChannelCreate(_ context.Context, _ string, _ uint64, _ uint32, _ string) (*ledger.TxResult, error) {
	f.count("SubmitPaymentChannelCreate")
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	return &ledger.TxResult{Hash: "FAKECREATE", ChannelID: f.CreateChannelID, Validated: true}, nil
}

func (f *Fake) SubmitPaymentChannelClaim(_ context.Context, _ string, _ uint64, _, _ string, _ bool) (*ledger.TxResult, error) {
	f.count("SubmitPaymentChannelClaim")
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	return &ledger.TxResult{Hash: "FAKECLAIM", Validated: true}, nil
}

func (f *Fake) SubmitPaymentChannelFund(_ context.Context, _ string, _ uint64) (*ledger.TxResult, error) {
	f.count("SubmitPaymentChannelFund")
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	return &ledger.TxResult{Hash: "FAKEFUND", Validated: true}, nil
}
