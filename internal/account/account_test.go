package account

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrant1/chain-xrpl-ilp/internal/claimcodec"
	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
	"github.com/warrant1/chain-xrpl-ilp/internal/ledger/ledgertest"
	"github.com/warrant1/chain-xrpl-ilp/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAccount(t *testing.T, fake *ledgertest.Fake) *Account {
	t.Helper()
	wrapper := store.NewWrapper(store.NewMemoryStore(), testLogger())
	t.Cleanup(wrapper.Close)
	return New("alice", wrapper, fake, testLogger())
}

func TestConnect_NoPersistedChannelGoesToEstablishing(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)

	err := a.Connect(context.Background(), ValidationParams{MinSettleDelay: 3600, ServerAddress: "rServer"})
	require.NoError(t, err)
	assert.Equal(t, StateEstablishingChannel, a.State())
}

func TestConnect_HonorsPersistedBlockedFlag(t *testing.T) {
	wrapper := store.NewWrapper(store.NewMemoryStore(), testLogger())
	defer wrapper.Close()
	wrapper.Set("alice:block", "true")
	wrapper.Set("alice:block_reason", "manually disabled")

	fake := ledgertest.New("rServer")
	a := New("alice", wrapper, fake, testLogger())

	err := a.Connect(context.Background(), ValidationParams{MinSettleDelay: 3600, ServerAddress: "rServer"})
	require.NoError(t, err)
	assert.Equal(t, StateBlocked, a.State())
	assert.True(t, a.Blocked)
}

func TestConnect_LoadsValidPersistedChannelThroughToReady(t *testing.T) {
	wrapper := store.NewWrapper(store.NewMemoryStore(), testLogger())
	defer wrapper.Close()
	wrapper.Set("alice:channel", "DEADBEEF")
	wrapper.Set("alice:client_channel", "FEEDFACE")

	fake := ledgertest.New("rServer")
	fake.Channels["DEADBEEF"] = &ledger.PaymentChannel{
		ChannelID: "DEADBEEF", Account: "rClient", Amount: 1_000_000,
		Destination: "rServer", SettleDelay: 3600,
	}
	fake.Channels["FEEDFACE"] = &ledger.PaymentChannel{
		ChannelID: "FEEDFACE", Account: "rServer", Amount: 500_000,
		Destination: "rClient", SettleDelay: 3600,
	}

	a := New("alice", wrapper, fake, testLogger())
	err := a.Connect(context.Background(), ValidationParams{MinSettleDelay: 3600, ServerAddress: "rServer"})
	require.NoError(t, err)
	assert.Equal(t, StateReady, a.State())
	assert.True(t, a.IsReady())
}

func TestConnect_EntryNotFoundBlocksAndDeletesChannel(t *testing.T) {
	wrapper := store.NewWrapper(store.NewMemoryStore(), testLogger())
	defer wrapper.Close()
	wrapper.Set("alice:channel", "DEADBEEF")

	fake := ledgertest.New("rServer")
	a := New("alice", wrapper, fake, testLogger())

	err := a.Connect(context.Background(), ValidationParams{MinSettleDelay: 3600, ServerAddress: "rServer"})
	require.NoError(t, err)
	assert.Equal(t, StateBlocked, a.State())
	assert.True(t, a.Blocked)
}

func TestConnect_InvalidDestinationBlocks(t *testing.T) {
	wrapper := store.NewWrapper(store.NewMemoryStore(), testLogger())
	defer wrapper.Close()
	wrapper.Set("alice:channel", "DEADBEEF")

	fake := ledgertest.New("rServer")
	fake.Channels["DEADBEEF"] = &ledger.PaymentChannel{
		ChannelID: "DEADBEEF", Account: "rClient", Amount: 1_000_000,
		Destination: "rSomeoneElse", SettleDelay: 3600,
	}
	a := New("alice", wrapper, fake, testLogger())

	err := a.Connect(context.Background(), ValidationParams{MinSettleDelay: 3600, ServerAddress: "rServer"})
	require.NoError(t, err)
	assert.Equal(t, StateBlocked, a.State())
}

func TestConnect_NotFromInitialFails(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)
	require.NoError(t, a.Connect(context.Background(), ValidationParams{MinSettleDelay: 3600, ServerAddress: "rServer"}))

	err := a.Connect(context.Background(), ValidationParams{MinSettleDelay: 3600, ServerAddress: "rServer"})
	require.Error(t, err)
}

func TestChannelPrepareCommitReset(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)
	require.NoError(t, a.Connect(context.Background(), ValidationParams{MinSettleDelay: 3600, ServerAddress: "rServer"}))
	require.Equal(t, StateEstablishingChannel, a.State())

	require.NoError(t, a.PrepareChannel())
	assert.Equal(t, StatePreparingChannel, a.State())

	a.ResetChannel()
	assert.Equal(t, StateEstablishingChannel, a.State())

	require.NoError(t, a.PrepareChannel())
	pc := &ledger.PaymentChannel{ChannelID: "AA11", Account: "rClient", Amount: 1000, Destination: "rServer", SettleDelay: 3600}
	a.CommitChannel("AA11", pc)
	assert.Equal(t, StateEstablishingClientChannel, a.State())
}

func TestCheckAdmission_SucceedsAndAccumulates(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)
	a.mu.Lock()
	a.state = StateReady
	a.IncomingPaychan = &ledger.PaymentChannel{Amount: 10_000}
	a.mu.Unlock()

	err := a.CheckAdmission(1000, AdmissionParams{MaxPacketAmount: 5000, Bandwidth: 5000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), a.getBalance())
}

func TestCheckAdmission_RejectsTooLarge(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)
	a.mu.Lock()
	a.state = StateReady
	a.IncomingPaychan = &ledger.PaymentChannel{Amount: 10_000}
	a.mu.Unlock()

	err := a.CheckAdmission(6000, AdmissionParams{MaxPacketAmount: 5000, Bandwidth: 5000})
	require.Error(t, err)
	assert.Equal(t, uint64(0), a.getBalance())
}

func TestCheckAdmission_RejectsInsufficientBandwidth(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)
	a.mu.Lock()
	a.state = StateReady
	a.IncomingPaychan = &ledger.PaymentChannel{Amount: 10_000}
	a.mu.Unlock()

	err := a.CheckAdmission(4000, AdmissionParams{MaxPacketAmount: 5000, Bandwidth: 1000})
	require.Error(t, err)
}

func TestRollbackPrepare(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)
	a.mu.Lock()
	a.state = StateReady
	a.IncomingPaychan = &ledger.PaymentChannel{Amount: 10_000}
	a.mu.Unlock()

	require.NoError(t, a.CheckAdmission(1000, AdmissionParams{MaxPacketAmount: 5000, Bandwidth: 5000}))
	a.RollbackPrepare(1000)
	assert.Equal(t, uint64(0), a.getBalance())
}

func TestHandleClaim_VerifiesAndAdvancesMonotonically(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)

	pub, priv := ed25519.GenerateKey(nil)
	var chanBytes [32]byte
	chanBytes[31] = 1
	channelHex := hex.EncodeToString(chanBytes[:])

	a.mu.Lock()
	a.IncomingChannel = channelHex
	a.IncomingPaychan = &ledger.PaymentChannel{Amount: 1_000_000, PublicKey: claimcodec.EncodePublicKeyHex(pub)}
	a.mu.Unlock()

	sig := claimcodec.Sign(priv, chanBytes, 500)
	claim := Claim{Amount: 500, Signature: hex.EncodeToString(sig)}

	require.NoError(t, a.HandleClaim(claim, 6))
	assert.Equal(t, uint64(500), a.getIncomingClaim().Amount)

	lowerSig := claimcodec.Sign(priv, chanBytes, 100)
	require.NoError(t, a.HandleClaim(Claim{Amount: 100, Signature: hex.EncodeToString(lowerSig)}, 6))
	assert.Equal(t, uint64(500), a.getIncomingClaim().Amount, "lower claim must not regress incomingClaim")
}

func TestHandleClaim_ConvertsBaseUnitsToDropsBeforeComparing(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)

	pub, priv := ed25519.GenerateKey(nil)
	var chanBytes [32]byte
	chanBytes[31] = 9
	channelHex := hex.EncodeToString(chanBytes[:])

	a.mu.Lock()
	a.IncomingChannel = channelHex
	a.IncomingPaychan = &ledger.PaymentChannel{Amount: 1_000_000, PublicKey: claimcodec.EncodePublicKeyHex(pub)}
	a.mu.Unlock()

	// assetScale 9 means the wire claim amount is in thousandths of a drop;
	// 500_000 base units converts to 500 drops.
	sig := claimcodec.Sign(priv, chanBytes, 500)
	claim := Claim{Amount: 500_000, Signature: hex.EncodeToString(sig)}

	require.NoError(t, a.HandleClaim(claim, 9))
	assert.Equal(t, uint64(500), a.getIncomingClaim().Amount)
}

func TestHandleClaim_RejectsBadSignature(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)

	pub, _ := ed25519.GenerateKey(nil)
	var chanBytes [32]byte
	chanBytes[31] = 2
	channelHex := hex.EncodeToString(chanBytes[:])

	a.mu.Lock()
	a.IncomingChannel = channelHex
	a.IncomingPaychan = &ledger.PaymentChannel{Amount: 1_000_000, PublicKey: claimcodec.EncodePublicKeyHex(pub)}
	a.mu.Unlock()

	badSig := make([]byte, ed25519.SignatureSize)
	err := a.HandleClaim(Claim{Amount: 500, Signature: hex.EncodeToString(badSig)}, 6)
	require.Error(t, err)
}

func TestSignOutgoingClaim_RefusesWhenNotReady(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)

	_, _, err := a.SignOutgoingClaim("secret", 100, 6, 1_000_000)
	require.Error(t, err)
}

func TestSignOutgoingClaim_SignsAndTracksOutgoingBalance(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)

	var chanBytes [32]byte
	chanBytes[31] = 3
	channelHex := hex.EncodeToString(chanBytes[:])

	a.mu.Lock()
	a.state = StateReady
	a.ClientChannel = channelHex
	a.ClientPaychan = &ledger.PaymentChannel{Amount: 1_000_000}
	a.mu.Unlock()

	claim, needsFunding, err := a.SignOutgoingClaim("secret", 100, 6, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), claim.Amount)
	assert.False(t, needsFunding)
	assert.Equal(t, uint64(100), a.getOutgoingBalance())
}

func TestSignOutgoingClaim_RefusesCapacityBreach(t *testing.T) {
	fake := ledgertest.New("rServer")
	a := newTestAccount(t, fake)

	var chanBytes [32]byte
	chanBytes[31] = 4
	channelHex := hex.EncodeToString(chanBytes[:])

	a.mu.Lock()
	a.state = StateReady
	a.ClientChannel = channelHex
	a.ClientPaychan = &ledger.PaymentChannel{Amount: 100}
	a.mu.Unlock()

	_, _, err := a.SignOutgoingClaim("secret", 500, 6, 1_000_000)
	require.Error(t, err)
}
