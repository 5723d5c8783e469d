package paychan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warrant1/chain-xrpl-ilp/internal/account"
	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
	"github.com/warrant1/chain-xrpl-ilp/internal/ilppacket"
	"github.com/warrant1/chain-xrpl-ilp/internal/ilppacket/ildcp"
	"github.com/warrant1/chain-xrpl-ilp/internal/peer"
)

// defaultPrepareDeadline bounds how long a PREPARE with no ExpiresAt is given
// to produce a FULFILL or REJECT before this connector manufactures an R00
// timeout rejection of its own.
const defaultPrepareDeadline = 30 * time.Second

// handleILP is the ilp sub-protocol handler: it
// admission-checks the PREPARE, races the data handler (or the ildcp
// short-circuit for peer.config) against a deadline, and on FULFILL signs an
// outgoing claim via settle. The reply carries only the FULFILL; the signed
// claim is stored on the account and is not sent to the peer.
func (o *Orchestrator) handleILP(ctx context.Context, acct *account.Account, ilpProto peer.SubProtocol) (peer.SubProtocol, error) {
	if !acct.IsReady() {
		return peer.SubProtocol{}, fmt.Errorf("%w: account %s not ready for ilp", corekind.ErrUnreachable, acct.AccountID)
	}

	typ, body, err := ilppacket.DecodeType(ilpProto.Data)
	if err != nil {
		return peer.SubProtocol{}, fmt.Errorf("%w: %v", corekind.ErrProtocol, err)
	}
	if typ != ilppacket.TypePrepare {
		return peer.SubProtocol{}, fmt.Errorf("%w: ilp sub-protocol expects a PREPARE, got type %d", corekind.ErrProtocol, typ)
	}
	prepare, err := ilppacket.DecodePrepare(body)
	if err != nil {
		return peer.SubProtocol{}, fmt.Errorf("%w: %v", corekind.ErrProtocol, err)
	}

	if prepare.Destination == ildcp.PeerConfigDestination {
		return o.replyILDCP(acct)
	}

	if err := acct.CheckAdmission(prepare.Amount, o.admissionParams()); err != nil {
		return rejectReply(rejectFor(err)), nil
	}

	fulfill, err := o.fulfillWithDeadline(ctx, acct, prepare)
	if err != nil {
		acct.RollbackPrepare(prepare.Amount)
		return rejectReply(rejectFor(err)), nil
	}

	o.settle(acct, prepare.Amount)
	return peer.SubProtocol{Name: peer.ProtocolILP, Data: ilppacket.EncodeFulfill(fulfill)}, nil
}

// fulfillWithDeadline races the configured DataHandler against the packet's
// own expiry (or defaultPrepareDeadline, whichever governs).
func (o *Orchestrator) fulfillWithDeadline(ctx context.Context, acct *account.Account, prepare ilppacket.Prepare) (ilppacket.Fulfill, error) {
	deadline := defaultPrepareDeadline
	if !prepare.ExpiresAt.IsZero() {
		if until := time.Until(prepare.ExpiresAt); until > 0 {
			deadline = until
		} else {
			return ilppacket.Fulfill{}, fmt.Errorf("%w: packet already expired", corekind.ErrProtocol)
		}
	}

	dctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type result struct {
		fulfill ilppacket.Fulfill
		err     error
	}
	done := make(chan result, 1)
	go func() {
		f, err := o.data.Handle(dctx, acct.AccountID, prepare)
		done <- result{f, err}
	}()

	select {
	case <-dctx.Done():
		return ilppacket.Fulfill{}, fmt.Errorf("%w: data handler deadline exceeded", corekind.ErrProtocol)
	case r := <-done:
		return r.fulfill, r.err
	}
}

// replyILDCP answers a peer.config PREPARE with the connector's configuration
// FULFILL, without touching admission control or settlement.
func (o *Orchestrator) replyILDCP(acct *account.Account) (peer.SubProtocol, error) {
	data, err := ildcp.Encode(ildcp.Response{
		ClientAddress: o.settings.ServerAddress + "." + acct.AccountID,
		AssetCode:     "XRP",
		AssetScale:    o.settings.AssetScale,
	})
	if err != nil {
		return peer.SubProtocol{}, fmt.Errorf("paychan: encode ildcp response: %w", err)
	}
	var fulfillment [32]byte
	packet := ilppacket.EncodeFulfill(ilppacket.Fulfill{Fulfillment: fulfillment, Data: data})
	return peer.SubProtocol{Name: peer.ProtocolILP, Data: packet}, nil
}

// settle runs sendMoneyToAccount for a fulfilled packet:
// sign an outgoing claim for the owed balance plus this packet's amount, and
// kick off a funding top-up if the signed amount crossed the threshold. A
// signing failure is not fatal to the already-fulfilled packet; the amount is
// carried forward as owed balance and retried on the next settlement.
func (o *Orchestrator) settle(acct *account.Account, packetAmount uint64) {
	owed := acct.TakeOwed()
	_, needsFunding, err := acct.SignOutgoingClaim(o.settings.Secret, owed+packetAmount, o.settings.AssetScale, o.fundingThresholdDrops())
	if err != nil {
		acct.AddOwed(owed + packetAmount)
		o.logger.Warn("settlement failed, carrying owed balance forward", "accountId", acct.AccountID, "error", err)
		return
	}

	if needsFunding && acct.BeginFunding() {
		go o.fundClientChannel(acct)
	}
}

// fundingThresholdDrops is the outgoing-channel headroom that triggers a fresh
// PaymentChannelFund, expressed in drops. SignOutgoingClaim itself halves
// this into the actual headroom margin, so the unhalved default is passed
// through here.
func (o *Orchestrator) fundingThresholdDrops() uint64 {
	return o.settings.OutgoingChannelDefaultDrops
}

// fundClientChannel tops up the outgoing channel once its remaining headroom
// crosses the funding threshold.
func (o *Orchestrator) fundClientChannel(acct *account.Account) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, clientChannel := acct.ChannelIDs()
	if clientChannel == "" {
		acct.EndFunding(nil)
		return
	}

	result, err := o.submit.SubmitPaymentChannelFund(ctx, clientChannel, o.settings.OutgoingChannelDefaultDrops)
	if err != nil || !result.Validated {
		o.logger.Warn("fund_channel top-up failed", "accountId", acct.AccountID, "error", err)
		acct.EndFunding(nil)
		return
	}
	refreshed, err := o.ledger.GetPaymentChannel(ctx, clientChannel)
	if err != nil {
		acct.EndFunding(nil)
		return
	}
	acct.EndFunding(refreshed)
}

// rejectFor classifies err into the ILP REJECT code taxonomy.
func rejectFor(err error) ilppacket.Reject {
	switch {
	case errors.Is(err, corekind.ErrTooLarge):
		return ilppacket.Reject{Code: ilppacket.CodeAmountTooLarge, Message: err.Error()}
	case errors.Is(err, corekind.ErrLiquidity):
		return ilppacket.Reject{Code: ilppacket.CodeInsufficientLiquidity, Message: err.Error()}
	case errors.Is(err, corekind.ErrUnreachable):
		return ilppacket.Reject{Code: ilppacket.CodeUnreachable, Message: err.Error()}
	default:
		return ilppacket.Reject{Code: ilppacket.CodeTimeout, Message: err.Error()}
	}
}

func rejectReply(rej ilppacket.Reject) peer.SubProtocol {
	return peer.SubProtocol{Name: peer.ProtocolILP, Data: ilppacket.EncodeReject(rej)}
}
