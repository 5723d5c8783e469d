package paychan

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrant1/chain-xrpl-ilp/internal/claimcodec"
	"github.com/warrant1/chain-xrpl-ilp/internal/ilppacket"
	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
	"github.com/warrant1/chain-xrpl-ilp/internal/ledger/ledgertest"
	"github.com/warrant1/chain-xrpl-ilp/internal/peer"
	"github.com/warrant1/chain-xrpl-ilp/internal/store"
	"github.com/warrant1/chain-xrpl-ilp/internal/txsubmitter"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// channelHex builds a distinct 32-byte hex channel id, the convention used
// throughout these tests for anything that round-trips through claimcodec.
func channelHex(lastByte byte) string {
	var buf [32]byte
	buf[31] = lastByte
	return hex.EncodeToString(buf[:])
}

func newTestOrchestrator(t *testing.T, fake *ledgertest.Fake, settings Settings, data DataHandler) *Orchestrator {
	t.Helper()
	wrapper := store.NewWrapper(store.NewMemoryStore(), testLogger())
	t.Cleanup(wrapper.Close)
	submitter := txsubmitter.New(fake, testLogger(), txsubmitter.DefaultConfig())
	o := New(settings, wrapper, fake, submitter, testLogger(), data)
	t.Cleanup(o.Stop)
	return o
}

func baseSettings() Settings {
	return Settings{
		ServerAddress:               "rServer",
		Secret:                      "sServerSecret",
		AssetScale:                  6,
		Bandwidth:                   1_000_000,
		MaxPacketAmount:             100_000,
		MaxFeePercent:               0.05,
		ClaimInterval:               time.Hour,
		MinSettleDelay:              3600,
		MinIncomingChannelDrops:     100_000,
		OutgoingChannelDefaultDrops: 1_000_000,
		WatchInterval:               time.Hour,
	}
}

// readyFake builds a fake ledger with an incoming channel (id incomingID) and
// a client channel (id clientID), both owned by the opposite side of the pair.
func readyFake(incomingID, clientID string, incomingAmount, clientAmount uint64) *ledgertest.Fake {
	fake := ledgertest.New("rServer")
	fake.Channels[incomingID] = &ledger.PaymentChannel{
		ChannelID: incomingID, Account: "rClient", Amount: incomingAmount,
		Destination: "rServer", SettleDelay: 3600,
	}
	fake.Channels[clientID] = &ledger.PaymentChannel{
		ChannelID: clientID, Account: "rServer", Amount: clientAmount,
		Destination: "rClient", SettleDelay: 3600,
	}
	return fake
}

func bootstrapReadyAccount(t *testing.T, o *Orchestrator, accountID, incomingID, clientID string) {
	t.Helper()
	o.store.Set(accountID+":channel", incomingID)
	o.store.Set(accountID+":client_channel", clientID)
	_, err := o.GetOrCreateAccount(context.Background(), accountID)
	require.NoError(t, err)
	o.bindChannel(incomingID, accountID)
}

func noopData() DataHandler {
	return DataHandlerFunc(func(context.Context, string, ilppacket.Prepare) (ilppacket.Fulfill, error) {
		return ilppacket.Fulfill{}, nil
	})
}

func TestHandleMessage_InfoReportsChannelsOnlyWhenReady(t *testing.T) {
	incoming, client := channelHex(1), channelHex(2)
	fake := readyFake(incoming, client, 1_000_000, 500_000)
	o := newTestOrchestrator(t, fake, baseSettings(), noopData())
	bootstrapReadyAccount(t, o, "alice", incoming, client)

	reply, ok, err := o.HandleMessage(context.Background(), "alice", peer.Message{
		Protocols: []peer.SubProtocol{{Name: peer.ProtocolInfo}},
	})
	require.NoError(t, err)
	require.True(t, ok)

	info, found := reply.Get(peer.ProtocolInfo)
	require.True(t, found)
	assert.Contains(t, string(info.Data), `"channel":"`+incoming+`"`)
	assert.Contains(t, string(info.Data), `"clientChannel":"`+client+`"`)
}

func TestHandleMessage_LastClaimReturnsOutgoingClaim(t *testing.T) {
	incoming, client := channelHex(3), channelHex(4)
	fake := readyFake(incoming, client, 1_000_000, 500_000)
	o := newTestOrchestrator(t, fake, baseSettings(), noopData())
	bootstrapReadyAccount(t, o, "alice", incoming, client)

	acct, err := o.GetOrCreateAccount(context.Background(), "alice")
	require.NoError(t, err)
	_, _, err = acct.SignOutgoingClaim(o.settings.Secret, 42, 6, o.fundingThresholdDrops())
	require.NoError(t, err)

	reply, ok, err := o.HandleMessage(context.Background(), "alice", peer.Message{
		Protocols: []peer.SubProtocol{{Name: peer.ProtocolLastClaim}},
	})
	require.NoError(t, err)
	require.True(t, ok)

	claimProto, found := reply.Get(peer.ProtocolLastClaim)
	require.True(t, found)
	assert.Contains(t, string(claimProto.Data), `"amount":42`)
}

func TestHandleMessage_ChannelSignatureRequired(t *testing.T) {
	incoming := channelHex(5)
	fake := ledgertest.New("rServer")
	o := newTestOrchestrator(t, fake, baseSettings(), noopData())

	_, _, err := o.HandleMessage(context.Background(), "bob", peer.Message{
		Protocols: []peer.SubProtocol{{Name: peer.ProtocolChannel, Data: []byte(incoming)}},
	})
	require.Error(t, err)
}

func TestHandleMessage_ChannelAdoptionAdvancesToReady(t *testing.T) {
	incoming := channelHex(6)
	fake := ledgertest.New("rServer")
	pub, priv := ed25519.GenerateKey(nil)
	pubKeyHex := hex.EncodeToString(append([]byte{0xED}, pub...))
	fake.Channels[incoming] = &ledger.PaymentChannel{
		ChannelID: incoming, Account: "rClient", Amount: 1_000_000,
		Destination: "rServer", SettleDelay: 3600, PublicKey: pubKeyHex,
	}

	o := newTestOrchestrator(t, fake, baseSettings(), noopData())

	acct, err := o.GetOrCreateAccount(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, "ESTABLISHING_CHANNEL", acct.StateString())

	sig := ed25519.Sign(priv, []byte(incoming+"bob"))
	_, ok, err := o.HandleMessage(context.Background(), "bob", peer.Message{
		Protocols: []peer.SubProtocol{
			{Name: peer.ProtocolChannel, Data: []byte(incoming)},
			{Name: peer.ProtocolChannelSignature, Data: sig},
		},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "ESTABLISHING_CLIENT_CHANNEL", acct.StateString())
}

func TestHandleMessage_FundChannelRequiresEstablishingClientChannelState(t *testing.T) {
	incoming, client := channelHex(7), channelHex(8)
	fake := readyFake(incoming, client, 1_000_000, 500_000)
	o := newTestOrchestrator(t, fake, baseSettings(), noopData())
	bootstrapReadyAccount(t, o, "alice", incoming, client)

	_, _, err := o.HandleMessage(context.Background(), "alice", peer.Message{
		Protocols: []peer.SubProtocol{{Name: peer.ProtocolFundChannel, Data: []byte("rClient")}},
	})
	require.Error(t, err)
}

func TestHandleMessage_FundChannelUsesCreatedChannelIDNotTxHash(t *testing.T) {
	incoming := channelHex(17)
	pub, priv := ed25519.GenerateKey(nil)
	pubKeyHex := hex.EncodeToString(append([]byte{0xED}, pub...))

	fake := ledgertest.New("rServer")
	fake.Channels[incoming] = &ledger.PaymentChannel{
		ChannelID: incoming, Account: "rClient", Amount: 1_000_000,
		Destination: "rServer", SettleDelay: 3600, PublicKey: pubKeyHex,
	}
	fake.CreateChannelID = channelHex(18)
	fake.Channels[fake.CreateChannelID] = &ledger.PaymentChannel{
		ChannelID: fake.CreateChannelID, Account: "rServer", Amount: 1_000_000,
		Destination: "rClient", SettleDelay: 3600,
	}
	settings := baseSettings()
	settings.MinIncomingChannelDrops = 100_000
	o := newTestOrchestrator(t, fake, settings, noopData())

	acct, err := o.GetOrCreateAccount(context.Background(), "bob")
	require.NoError(t, err)

	sig := ed25519.Sign(priv, []byte(incoming+"bob"))
	_, ok, err := o.HandleMessage(context.Background(), "bob", peer.Message{
		Protocols: []peer.SubProtocol{
			{Name: peer.ProtocolChannel, Data: []byte(incoming)},
			{Name: peer.ProtocolChannelSignature, Data: sig},
		},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	require.Equal(t, "ESTABLISHING_CLIENT_CHANNEL", acct.StateString())

	reply, ok, err := o.HandleMessage(context.Background(), "bob", peer.Message{
		Protocols: []peer.SubProtocol{{Name: peer.ProtocolFundChannel, Data: []byte("rClient")}},
	})
	require.NoError(t, err)
	require.True(t, ok)

	fundReply, found := reply.Get(peer.ProtocolFundChannel)
	require.True(t, found)
	assert.Equal(t, fake.CreateChannelID, string(fundReply.Data))
	assert.NotEqual(t, "FAKECREATE", string(fundReply.Data))

	_, client := acct.ChannelIDs()
	assert.Equal(t, fake.CreateChannelID, client)
	assert.Equal(t, "READY", acct.StateString())
}

func TestHandleMessage_ILPAdmitsAndFulfillsPrepare(t *testing.T) {
	incoming, client := channelHex(9), channelHex(10)
	fake := readyFake(incoming, client, 1_000_000, 500_000)
	o := newTestOrchestrator(t, fake, baseSettings(), DataHandlerFunc(func(ctx context.Context, accountID string, prepare ilppacket.Prepare) (ilppacket.Fulfill, error) {
		return ilppacket.Fulfill{Data: []byte("ok")}, nil
	}))
	bootstrapReadyAccount(t, o, "alice", incoming, client)

	prepare := ilppacket.Prepare{
		Amount:      1_000,
		ExpiresAt:   time.Now().Add(time.Minute),
		Destination: "g.connector.alice",
	}
	packet := ilppacket.EncodePrepare(prepare)

	reply, ok, err := o.HandleMessage(context.Background(), "alice", peer.Message{
		Protocols: []peer.SubProtocol{{Name: peer.ProtocolILP, Data: packet}},
	})
	require.NoError(t, err)
	require.True(t, ok)

	ilpReply, found := reply.Get(peer.ProtocolILP)
	require.True(t, found)
	typ, body, err := ilppacket.DecodeType(ilpReply.Data)
	require.NoError(t, err)
	require.Equal(t, ilppacket.TypeFulfill, typ)
	fulfill, err := ilppacket.DecodeFulfill(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), fulfill.Data)

	acct, err := o.GetOrCreateAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), acct.GetOutgoingClaim().Amount)
}

func TestHandleMessage_ILPRejectsOverBandwidth(t *testing.T) {
	incoming, client := channelHex(11), channelHex(12)
	fake := readyFake(incoming, client, 1_000_000, 500_000)
	settings := baseSettings()
	settings.Bandwidth = 500
	o := newTestOrchestrator(t, fake, settings, noopData())
	bootstrapReadyAccount(t, o, "alice", incoming, client)

	prepare := ilppacket.Prepare{
		Amount:      1_000,
		ExpiresAt:   time.Now().Add(time.Minute),
		Destination: "g.connector.alice",
	}
	packet := ilppacket.EncodePrepare(prepare)

	reply, ok, err := o.HandleMessage(context.Background(), "alice", peer.Message{
		Protocols: []peer.SubProtocol{{Name: peer.ProtocolILP, Data: packet}},
	})
	require.NoError(t, err)
	require.True(t, ok)

	ilpReply, found := reply.Get(peer.ProtocolILP)
	require.True(t, found)
	typ, body, err := ilppacket.DecodeType(ilpReply.Data)
	require.NoError(t, err)
	require.Equal(t, ilppacket.TypeReject, typ)
	rej, err := ilppacket.DecodeReject(body)
	require.NoError(t, err)
	assert.Equal(t, ilppacket.CodeInsufficientLiquidity, rej.Code)
}

func TestHandleMessage_ILPShortCircuitsPeerConfig(t *testing.T) {
	incoming, client := channelHex(13), channelHex(14)
	fake := readyFake(incoming, client, 1_000_000, 500_000)
	o := newTestOrchestrator(t, fake, baseSettings(), DataHandlerFunc(func(context.Context, string, ilppacket.Prepare) (ilppacket.Fulfill, error) {
		t.Fatal("data handler should not be invoked for peer.config")
		return ilppacket.Fulfill{}, nil
	}))
	bootstrapReadyAccount(t, o, "alice", incoming, client)

	prepare := ilppacket.Prepare{Amount: 0, Destination: "peer.config"}
	packet := ilppacket.EncodePrepare(prepare)

	reply, ok, err := o.HandleMessage(context.Background(), "alice", peer.Message{
		Protocols: []peer.SubProtocol{{Name: peer.ProtocolILP, Data: packet}},
	})
	require.NoError(t, err)
	require.True(t, ok)

	ilpReply, found := reply.Get(peer.ProtocolILP)
	require.True(t, found)
	typ, _, err := ilppacket.DecodeType(ilpReply.Data)
	require.NoError(t, err)
	assert.Equal(t, ilppacket.TypeFulfill, typ)
}

func TestHandleMessage_ClaimSubProtocolAdvancesIncomingClaim(t *testing.T) {
	incoming, client := channelHex(15), channelHex(16)
	fake := ledgertest.New("rServer")
	pub, priv := ed25519.GenerateKey(nil)
	pubKeyHex := hex.EncodeToString(append([]byte{0xED}, pub...))
	fake.Channels[incoming] = &ledger.PaymentChannel{
		ChannelID: incoming, Account: "rClient", Amount: 1_000_000,
		Destination: "rServer", SettleDelay: 3600, PublicKey: pubKeyHex,
	}
	fake.Channels[client] = &ledger.PaymentChannel{
		ChannelID: client, Account: "rServer", Amount: 500_000,
		Destination: "rClient", SettleDelay: 3600,
	}

	o := newTestOrchestrator(t, fake, baseSettings(), noopData())
	bootstrapReadyAccount(t, o, "alice", incoming, client)

	var chanBytes [32]byte
	raw, err := hex.DecodeString(incoming)
	require.NoError(t, err)
	copy(chanBytes[:], raw)
	sig := claimcodec.Sign(priv, chanBytes, 100)

	_, ok, err := o.HandleMessage(context.Background(), "alice", peer.Message{
		Protocols: []peer.SubProtocol{{
			Name: peer.ProtocolClaim,
			Data: []byte(`{"amount":100,"signature":"` + hex.EncodeToString(sig) + `"}`),
		}},
	})
	require.NoError(t, err)
	assert.False(t, ok)

	acct, err := o.GetOrCreateAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), acct.GetIncomingClaim().Amount)
}
