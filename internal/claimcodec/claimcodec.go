// Package claimcodec implements the canonical encoding of a payment-channel claim
// and the ed25519 signing/verification over that encoding, plus the HMAC derivation
// of a per-account channel signing seed.
//
// The wire format mirrors the XRPL ledger's own claim-authorization preimage so a
// signature produced here verifies identically to the "channel_verify" RPC: a
// four-byte hash prefix ('CLM\0'), the 32-byte channel id, and the 8-byte
// big-endian drop amount.
package claimcodec

import (
	"bytes"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// hashPrefix is the 'CLM\0' preimage prefix XRPL uses when signing channel claims.
var hashPrefix = [4]byte{'C', 'L', 'M', 0}

// channelKeysLabel is the HMAC label mixed with the account id to derive a
// per-account signing seed, isolating channel keys from the connector's own
// operating wallet.
const channelKeysLabel = "CHANNEL_KEYS"

// edPrefix marks an ed25519 public key in XRPL's public-key encoding.
const edPrefix = 0xED

// Encode builds the canonical claim preimage for (channelID, amountDrops).
// channelID must be exactly 32 bytes.
func Encode(channelID [32]byte, amountDrops uint64) []byte {
	buf := make([]byte, 0, 4+32+8)
	buf = append(buf, hashPrefix[:]...)
	buf = append(buf, channelID[:]...)
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], amountDrops)
	buf = append(buf, amt[:]...)
	return buf
}

// Sign signs (channelID, amountDrops) with the ed25519 private key derived by
// DeriveChannelKeypair and returns the raw 64-byte signature.
func Sign(priv ed25519.PrivateKey, channelID [32]byte, amountDrops uint64) []byte {
	return ed25519.Sign(priv, Encode(channelID, amountDrops))
}

// Verify checks a claim signature against an XRPL-encoded public key (hex, with the
// leading 0xED prefix byte for ed25519 keys). Returns an error describing why
// verification failed rather than a bare bool so callers can classify it as a
// Signature-kind error per the connector's error taxonomy.
func Verify(publicKeyHex string, channelID [32]byte, amountDrops uint64, signature []byte) error {
	pubKeyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("claimcodec: decode public key: %w", err)
	}
	if len(pubKeyBytes) == 0 {
		return fmt.Errorf("claimcodec: empty public key")
	}
	if pubKeyBytes[0] != edPrefix {
		return fmt.Errorf("claimcodec: unsupported public key algorithm (only ed25519 channel keys are verified)")
	}
	pub := ed25519.PublicKey(pubKeyBytes[1:])
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("claimcodec: invalid ed25519 public key length %d", len(pub))
	}
	msg := Encode(channelID, amountDrops)
	if !ed25519.Verify(pub, msg, signature) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// DeriveChannelSeed derives the 64-byte HMAC seed used to generate an account's
// channel keypair: HMAC-SHA512(secret, "CHANNEL_KEYS" || accountID).
func DeriveChannelSeed(secret, accountID string) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	var buf bytes.Buffer
	buf.WriteString(channelKeysLabel)
	buf.WriteString(accountID)
	mac.Write(buf.Bytes())
	return mac.Sum(nil)
}

// DeriveChannelKeypair derives a deterministic ed25519 keypair for an account's
// outgoing-claim signing key from the connector's secret and the account id.
// The same (secret, accountID) pair always yields the same keypair, which is
// required so a restarted connector can keep signing claims on an existing
// reverse channel without persisting the private key.
func DeriveChannelKeypair(secret, accountID string) (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := DeriveChannelSeed(secret, accountID)
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	pub := priv.Public().(ed25519.PublicKey)
	return pub, priv
}

// EncodePublicKeyHex renders an ed25519 public key with XRPL's 0xED prefix byte, hex-encoded.
func EncodePublicKeyHex(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, 1+len(pub))
	buf = append(buf, edPrefix)
	buf = append(buf, pub...)
	return hex.EncodeToString(buf)
}
