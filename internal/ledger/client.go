// Package ledger wraps github.com/Peersyst/xrpl-go's rpc.Client and wallet.Wallet
// to give the connector the narrow surface it needs: fetching a
// payment channel's current ledger state, reading the network fee, and
// submitting the three paychan transaction types used by this connector.
//
// The wrapping idiom (a mutex-guarded struct around *rpc.Client and
// *wallet.Wallet, one method per XRPL operation, errors wrapped with
// fmt.Errorf("...: %w", err)) matches the rest of this connector's API
// wrapper packages.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ledgerentry "github.com/Peersyst/xrpl-go/xrpl/ledger-entry-types"
	"github.com/Peersyst/xrpl-go/xrpl/queries/common"
	server "github.com/Peersyst/xrpl-go/xrpl/queries/server"
	"github.com/Peersyst/xrpl-go/xrpl/rpc"
	rpctypes "github.com/Peersyst/xrpl-go/xrpl/rpc/types"
	transactions "github.com/Peersyst/xrpl-go/xrpl/transaction"
	txtypes "github.com/Peersyst/xrpl-go/xrpl/transaction/types"
	"github.com/Peersyst/xrpl-go/xrpl/wallet"

	"github.com/warrant1/chain-xrpl-ilp/internal/config"
	"github.com/warrant1/chain-xrpl-ilp/internal/crypto"
)

// dropsPerXRP is the number of drops in one XRP.
const dropsPerXRP = 1_000_000

// Client is the ledger surface the rest of the connector consumes.
type Client interface {
	GetPaymentChannel(ctx context.Context, channelID string) (*PaymentChannel, error)
	GetFeeDrops(ctx context.Context) (uint64, error)
	SubmitPaymentChannelCreate(ctx context.Context, destination string, amountDrops uint64, settleDelay uint32, publicKeyHex string) (*TxResult, error)
	SubmitPaymentChannelClaim(ctx context.Context, channelID string, balanceDrops uint64, signatureHex, publicKeyHex string, closeFlag bool) (*TxResult, error)
	SubmitPaymentChannelFund(ctx context.Context, channelID string, amountDrops uint64) (*TxResult, error)
	Address() string
}

// XRPLClient is the ledger.Client implementation backed by the real XRPL RPC.
type XRPLClient struct {
	mu     sync.Mutex
	rpc    *rpc.Client
	wallet *wallet.Wallet
}

// NewXRPLClient builds an XRPLClient from the connector's ledger config, deriving
// the connector's own operating wallet from its configured secret.
func NewXRPLClient(cfg config.LedgerConfig) (*XRPLClient, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	rpcCfg, err := rpc.NewClientConfig(cfg.XRPServer, rpc.WithTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("ledger: build rpc config: %w", err)
	}

	secret, err := cfg.EffectiveSecret()
	if err != nil {
		return nil, fmt.Errorf("ledger: resolve secret: %w", err)
	}
	w, err := wallet.FromSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("ledger: derive wallet from secret: %w", err)
	}
	if _, err := crypto.NewWallet(w.ClassicAddress, w.PublicKey, w.PrivateKey); err != nil {
		return nil, fmt.Errorf("ledger: secret-derived wallet: %w", err)
	}
	if cfg.Address != "" && string(w.ClassicAddress) != cfg.Address {
		return nil, fmt.Errorf("ledger: configured address %s does not match secret-derived address %s", cfg.Address, w.ClassicAddress)
	}

	return &XRPLClient{
		rpc:    rpc.NewClient(rpcCfg),
		wallet: &w,
	}, nil
}

// Address returns the connector's own XRP classic address.
func (c *XRPLClient) Address() string {
	return string(c.wallet.ClassicAddress)
}

// ledgerEntryRequest fetches a single ledger object by its channel index. It is
// a small hand-written XRPLRequest, the same pattern the library itself uses
// for every other query type (embed common.BaseRequest, implement Method and
// Validate) — "ledger_entry" with a "channel" selector has no dedicated
// wrapper in the vendored client.
type ledgerEntryRequest struct {
	common.BaseRequest
	Channel string `json:"channel"`
}

func (*ledgerEntryRequest) Method() string { return "ledger_entry" }

func (r *ledgerEntryRequest) Validate() error {
	if r.Channel == "" {
		return errors.New("ledger_entry: channel is required")
	}
	return nil
}

type ledgerEntryResult struct {
	Index string                `mapstructure:"index"`
	Node  ledgerentry.PayChannel `mapstructure:"node"`
}

// GetPaymentChannel fetches a channel's current ledger state by its hex channel id.
func (c *XRPLClient) GetPaymentChannel(ctx context.Context, channelID string) (*PaymentChannel, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.rpc.Request(&ledgerEntryRequest{Channel: strings.ToUpper(channelID)})
	if err != nil {
		if isEntryNotFound(err) {
			return nil, fmt.Errorf("%w: channel %s: %v", ErrEntryNotFound, channelID, err)
		}
		return nil, fmt.Errorf("ledger: ledger_entry: %w", err)
	}

	var result ledgerEntryResult
	if err := resp.GetResult(&result); err != nil {
		return nil, fmt.Errorf("ledger: decode ledger_entry result: %w", err)
	}

	pc := &PaymentChannel{
		ChannelID:      strings.ToUpper(channelID),
		Account:        string(result.Node.Account),
		Amount:         uint64(result.Node.Amount),
		Balance:        uint64(result.Node.Balance),
		PublicKey:      result.Node.PublicKey,
		Destination:    string(result.Node.Destination),
		SettleDelay:    result.Node.SettleDelay,
		PreviousTxnID:  string(result.Node.PreviousTxnID),
		PreviousTxnSeq: result.Node.PreviousTxnLgrSeq,
	}
	if result.Node.CancelAfter != 0 {
		v := result.Node.CancelAfter
		pc.CancelAfter = &v
	}
	if result.Node.Expiration != 0 {
		v := result.Node.Expiration
		pc.Expiration = &v
	}
	if result.Node.SourceTag != 0 {
		v := result.Node.SourceTag
		pc.SourceTag = &v
	}
	if result.Node.DestinationTag != 0 {
		v := result.Node.DestinationTag
		pc.DestinationTag = &v
	}
	return pc, nil
}

// isEntryNotFound recognizes rippled's "entryNotFound" error for ledger_entry.
func isEntryNotFound(err error) bool {
	return strings.Contains(err.Error(), "entryNotFound")
}

// GetFeeDrops returns the current open-ledger base fee, in drops.
func (c *XRPLClient) GetFeeDrops(ctx context.Context) (uint64, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.rpc.GetFee(&server.FeeRequest{})
	if err != nil {
		return 0, fmt.Errorf("ledger: fee: %w", err)
	}
	return uint64(resp.Drops.BaseFee), nil
}

func (c *XRPLClient) submitOpts() *rpctypes.SubmitOptions {
	return &rpctypes.SubmitOptions{
		Autofill: true,
		Wallet:   c.wallet,
	}
}

// SubmitPaymentChannelCreate opens a new channel from the connector to destination.
func (c *XRPLClient) SubmitPaymentChannelCreate(ctx context.Context, destination string, amountDrops uint64, settleDelay uint32, publicKeyHex string) (*TxResult, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &transactions.PaymentChannelCreate{
		BaseTx: transactions.BaseTx{
			Account: txtypes.Address(c.wallet.ClassicAddress),
		},
		Amount:      txtypes.XRPCurrencyAmount(amountDrops),
		Destination: txtypes.Address(destination),
		SettleDelay: settleDelay,
		PublicKey:   publicKeyHex,
	}
	resp, err := c.rpc.SubmitTxAndWait(tx.Flatten(), c.submitOpts())
	if err != nil {
		return nil, fmt.Errorf("ledger: submit PaymentChannelCreate: %w", err)
	}
	return convertTxResponse(resp), nil
}

// SubmitPaymentChannelClaim submits a claim against channelID, optionally closing it.
func (c *XRPLClient) SubmitPaymentChannelClaim(ctx context.Context, channelID string, balanceDrops uint64, signatureHex, publicKeyHex string, closeFlag bool) (*TxResult, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &transactions.PaymentChannelClaim{
		BaseTx: transactions.BaseTx{
			Account: txtypes.Address(c.wallet.ClassicAddress),
		},
		Channel:   txtypes.Hash256(strings.ToUpper(channelID)),
		Balance:   txtypes.XRPCurrencyAmount(balanceDrops),
		Signature: strings.ToUpper(signatureHex),
		PublicKey: publicKeyHex,
	}
	if closeFlag {
		tx.SetCloseFlag()
	}
	resp, err := c.rpc.SubmitTxAndWait(tx.Flatten(), c.submitOpts())
	if err != nil {
		return nil, fmt.Errorf("ledger: submit PaymentChannelClaim: %w", err)
	}
	return convertTxResponse(resp), nil
}

// SubmitPaymentChannelFund tops up channelID's escrow by amountDrops.
func (c *XRPLClient) SubmitPaymentChannelFund(ctx context.Context, channelID string, amountDrops uint64) (*TxResult, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &transactions.PaymentChannelFund{
		BaseTx: transactions.BaseTx{
			Account: txtypes.Address(c.wallet.ClassicAddress),
		},
		Channel: txtypes.Hash256(strings.ToUpper(channelID)),
		Amount:  txtypes.XRPCurrencyAmount(amountDrops),
	}
	resp, err := c.rpc.SubmitTxAndWait(tx.Flatten(), c.submitOpts())
	if err != nil {
		return nil, fmt.Errorf("ledger: submit PaymentChannelFund: %w", err)
	}
	return convertTxResponse(resp), nil
}

// XRPToDrops converts a whole/fractional XRP amount into drops.
func XRPToDrops(xrp float64) uint64 {
	return uint64(xrp * dropsPerXRP)
}
