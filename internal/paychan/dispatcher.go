package paychan

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/warrant1/chain-xrpl-ilp/internal/account"
	"github.com/warrant1/chain-xrpl-ilp/internal/claimcodec"
	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
	"github.com/warrant1/chain-xrpl-ilp/internal/peer"
)

// HandleMessage is the sub-protocol dispatcher. Each
// recognized sub-protocol in msg is examined independently; their replies are
// collected into a single response message.
func (o *Orchestrator) HandleMessage(ctx context.Context, accountID string, msg peer.Message) (peer.Message, bool, error) {
	acct, err := o.GetOrCreateAccount(ctx, accountID)
	if err != nil {
		return peer.Message{}, false, err
	}

	acct.Lock()
	defer acct.Unlock()

	var reply peer.Message

	if _, ok := msg.Get(peer.ProtocolLastClaim); ok {
		claim := acct.GetOutgoingClaim()
		reply.Protocols = append(reply.Protocols, peer.SubProtocol{
			Name: peer.ProtocolLastClaim,
			Data: []byte(fmt.Sprintf(`{"amount":%d,"signature":%q}`, claim.Amount, claim.Signature)),
		})
	}

	if _, ok := msg.Get(peer.ProtocolInfo); ok {
		reply.Protocols = append(reply.Protocols, o.handleInfo(acct))
	}

	if channelProto, ok := msg.Get(peer.ProtocolChannel); ok {
		sigProto, hasSig := msg.Get(peer.ProtocolChannelSignature)
		if !hasSig {
			return peer.Message{}, false, fmt.Errorf("%w: channel sub-protocol requires channel_signature", corekind.ErrProtocol)
		}
		if err := o.handleChannel(ctx, acct, channelProto, sigProto); err != nil {
			return peer.Message{}, false, err
		}
	}

	if fundProto, ok := msg.Get(peer.ProtocolFundChannel); ok {
		clientChannelReply, err := o.handleFundChannel(ctx, acct, fundProto)
		if err != nil {
			return peer.Message{}, false, err
		}
		reply.Protocols = append(reply.Protocols, clientChannelReply)
	}

	if claimProto, ok := msg.Get(peer.ProtocolClaim); ok {
		if err := o.handleIncomingClaimProtocol(acct, claimProto); err != nil {
			o.logger.Warn("incoming claim rejected", "accountId", accountID, "error", err)
		}
	}

	if ilpProto, ok := msg.Get(peer.ProtocolILP); ok {
		replyProto, err := o.handleILP(ctx, acct, ilpProto)
		if err != nil {
			return peer.Message{}, false, err
		}
		reply.Protocols = append(reply.Protocols, replyProto)
	}

	return reply, len(reply.Protocols) > 0, nil
}

// handleInfo builds the {address, account, currencyScale, channel?, clientChannel?} record.
func (o *Orchestrator) handleInfo(acct *account.Account) peer.SubProtocol {
	state := acct.State()
	incoming, client := acct.ChannelIDs()

	body := fmt.Sprintf(`{"address":%q,"account":%q,"currencyScale":%d`, o.settings.ServerAddress, acct.AccountID, o.settings.AssetScale)
	if state > account.StatePreparingChannel && incoming != "" {
		body += fmt.Sprintf(`,"channel":%q`, incoming)
	}
	if state == account.StateReady && client != "" {
		body += fmt.Sprintf(`,"clientChannel":%q`, client)
	}
	body += "}"
	return peer.SubProtocol{Name: peer.ProtocolInfo, Data: []byte(body)}
}

// handleChannel adopts or refreshes the incoming channel, only valid from
// READY or ESTABLISHING_CHANNEL.
func (o *Orchestrator) handleChannel(ctx context.Context, acct *account.Account, channelProto, sigProto peer.SubProtocol) error {
	state := acct.State()
	if state != account.StateReady && state != account.StateEstablishingChannel {
		return fmt.Errorf("%w: channel sub-protocol not valid in state %s", corekind.ErrProtocol, state)
	}

	if state == account.StateEstablishingChannel {
		if err := acct.PrepareChannel(); err != nil {
			return err
		}
	}
	fail := func(err error) error {
		if state == account.StateEstablishingChannel {
			acct.ResetChannel()
		}
		return err
	}

	channelID := string(channelProto.Data)
	pc, err := o.ledger.GetPaymentChannel(ctx, channelID)
	if err != nil {
		return fail(fmt.Errorf("paychan: fetch channel %s: %w", channelID, err))
	}
	if err := account.ValidateChannel(pc, o.validationParams()); err != nil {
		return fail(err)
	}
	if err := verifyChannelSignature(pc.PublicKey, channelID, acct.AccountID, sigProto.Data); err != nil {
		return fail(err)
	}
	if err := o.bindChannel(channelID, acct.AccountID); err != nil {
		return fail(err)
	}

	if state == account.StateEstablishingChannel {
		acct.CommitChannel(channelID, pc)
		o.startAutoClaim(acct)
	} else {
		if err := acct.RefreshChannel(channelID, pc); err != nil {
			return err
		}
	}
	o.watch.Watch(ctx, channelID)
	return nil
}

// verifyChannelSignature checks the peer's channel_signature, an ed25519
// signature over (channel-id || account-address), against the channel's
// declared public key (XRPL-encoded, 0xED-prefixed hex).
func verifyChannelSignature(publicKeyHex, channelID, accountAddress string, signature []byte) error {
	pubKeyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pubKeyBytes) != 1+ed25519.PublicKeySize {
		return fmt.Errorf("%w: invalid channel public key", corekind.ErrSignature)
	}
	pub := ed25519.PublicKey(pubKeyBytes[1:])
	msg := []byte(channelID + accountAddress)
	if !ed25519.Verify(pub, msg, signature) {
		return fmt.Errorf("%w: invalid channel_signature", corekind.ErrSignature)
	}
	return nil
}

// handleFundChannel opens a reverse channel to the peer's XRP address, only
// valid in ESTABLISHING_CLIENT_CHANNEL.
func (o *Orchestrator) handleFundChannel(ctx context.Context, acct *account.Account, fundProto peer.SubProtocol) (peer.SubProtocol, error) {
	if acct.State() != account.StateEstablishingClientChannel {
		return peer.SubProtocol{}, fmt.Errorf("%w: fund_channel not valid in state %s", corekind.ErrProtocol, acct.State())
	}
	incoming := acct.IncomingPaychanSnapshot()
	if incoming == nil || incoming.Amount < o.settings.MinIncomingChannelDrops {
		return peer.SubProtocol{}, fmt.Errorf("%w: incoming channel escrow below minimum %d drops", corekind.ErrValidation, o.settings.MinIncomingChannelDrops)
	}

	peerAddress := string(fundProto.Data)
	pub, _ := claimcodec.DeriveChannelKeypair(o.settings.Secret, acct.AccountID)
	pubKeyHex := claimcodec.EncodePublicKeyHex(pub)

	if err := acct.PrepareClientChannel(); err != nil {
		return peer.SubProtocol{}, err
	}

	result, err := o.submit.SubmitPaymentChannelCreate(ctx, peerAddress, o.settings.OutgoingChannelDefaultDrops, o.settings.MinSettleDelay, pubKeyHex)
	if err != nil {
		acct.ResetClientChannel()
		return peer.SubProtocol{}, fmt.Errorf("paychan: open client channel: %w", err)
	}
	if result.ChannelID == "" {
		acct.ResetClientChannel()
		return peer.SubProtocol{}, fmt.Errorf("paychan: PaymentChannelCreate %s did not report a created PayChannel object", result.Hash)
	}

	clientPC, err := o.ledger.GetPaymentChannel(ctx, result.ChannelID)
	if err != nil {
		acct.ResetClientChannel()
		return peer.SubProtocol{}, fmt.Errorf("paychan: load new client channel: %w", err)
	}

	acct.CommitClientChannel(result.ChannelID, clientPC)
	return peer.SubProtocol{Name: peer.ProtocolFundChannel, Data: []byte(result.ChannelID)}, nil
}

// handleIncomingClaimProtocol parses and verifies a claim sub-protocol payload.
func (o *Orchestrator) handleIncomingClaimProtocol(acct *account.Account, claimProto peer.SubProtocol) error {
	var parsed struct {
		Amount    uint64 `json:"amount"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(claimProto.Data, &parsed); err != nil {
		return fmt.Errorf("%w: malformed claim payload: %v", corekind.ErrProtocol, err)
	}
	return acct.HandleClaim(account.Claim{Amount: parsed.Amount, Signature: parsed.Signature}, o.settings.AssetScale)
}
