// Package crypto derives the connector's own operating wallet from a BIP-44
// seed, for operators who configure a mnemonic/HD path rather than a raw XRPL
// family seed in ledger.Secret. This is independent of the per-account claim
// key derivation in internal/claimcodec, which is HMAC-based and keyed off
// this wallet's own secret.
package crypto

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	addresscodec "github.com/Peersyst/xrpl-go/address-codec"
	"github.com/Peersyst/xrpl-go/keypairs"
	pkgcrypto "github.com/Peersyst/xrpl-go/pkg/crypto"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// GetExtendedKeyFromHexSeedWithPath creates an extended key from a hexadecimal
// seed string and derives it along the given BIP-44 path.
func GetExtendedKeyFromHexSeedWithPath(hexSeed string, path string) (*hdkeychain.ExtendedKey, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex seed: %w", err)
	}
	return GetExtendedKeyFromSeedWithPath(seed, path)
}

// GetExtendedKeyFromSeedWithPath derives an extended key from raw seed bytes
// along the given BIP-44 path (e.g. "m/44'/144'/0'/0/0", coin type 144 = XRP).
func GetExtendedKeyFromSeedWithPath(seed []byte, path string) (*hdkeychain.ExtendedKey, error) {
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	derivationPath, err := parseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse derivation path: %w", err)
	}

	currentKey := masterKey
	for i, childIndex := range derivationPath {
		currentKey, err = currentKey.Derive(childIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key at level %d (index %d): %w", i, childIndex, err)
		}
	}

	return currentKey, nil
}

// parseDerivationPath parses a BIP-44 path string into its component indices,
// offsetting hardened components (trailing ') by hdkeychain.HardenedKeyStart.
func parseDerivationPath(path string) ([]uint32, error) {
	if path == "" {
		return nil, fmt.Errorf("path is empty")
	}

	if len(path) >= 2 && path[:2] == "m/" {
		path = path[2:]
	}

	parts := strings.Split(path, "/")
	if len(parts) == 0 {
		return nil, fmt.Errorf("invalid path format")
	}

	derivationPath := make([]uint32, len(parts))
	for i, part := range parts {
		hardened := false
		if strings.HasSuffix(part, "'") {
			hardened = true
			part = part[:len(part)-1]
		}

		index, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path component %s: %w", part, err)
		}

		if hardened {
			derivationPath[i] = hdkeychain.HardenedKeyStart + uint32(index)
		} else {
			derivationPath[i] = uint32(index)
		}
	}

	return derivationPath, nil
}

// GetXRPLWallet derives an XRPL family seed and secp256k1 keypair from an
// extended key, the standard XRPL wallet-from-seed algorithm (not a raw
// reinterpretation of the BIP-32 private key).
func GetXRPLWallet(key *hdkeychain.ExtendedKey) (address string, public string, private string, err error) {
	seed, err := FamilySeedFromExtendedKey(key)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode family seed: %w", err)
	}

	priv, pub, err := keypairs.DeriveKeypair(seed, false)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to derive keypair: %w", err)
	}

	addr, err := keypairs.DeriveClassicAddress(pub)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to derive classic address: %w", err)
	}

	return addr, pub, priv, nil
}

// FamilySeedFromExtendedKey encodes the first FamilySeedLength bytes of the
// extended key's private key as a secp256k1 XRPL family seed, suitable for
// wallet.FromSecret.
func FamilySeedFromExtendedKey(key *hdkeychain.ExtendedKey) (string, error) {
	privKey, err := key.ECPrivKey()
	if err != nil {
		return "", fmt.Errorf("failed to get private key: %w", err)
	}

	entropy := privKey.Serialize()[:addresscodec.FamilySeedLength]
	return addresscodec.EncodeSeed(entropy, pkgcrypto.SECP256K1())
}
