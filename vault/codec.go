// ABOUTME: Stateless BIP-39/BIP-44 key material derivation for EVM chains.
// ABOUTME: Generates and validates mnemonics and derives the fixed-path signing key.
package vault

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// derivationPath is m/44'/60'/0'/0/0, used verbatim for every supported
// EVM chain. Ethereum, BSC and Polygon share the curve and coin type, so
// one wallet maps to one address across all of them.
var derivationPath = []uint32{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 60,
	hdkeychain.HardenedKeyStart + 0,
	0,
	0,
}

// DerivationPathString is the human form of the fixed path, for display.
const DerivationPathString = "m/44'/60'/0'/0/0"

// GenerateMnemonic produces a new 12-word BIP-39 phrase from 128 bits of
// CSPRNG entropy. An entropy failure is fatal and never retried silently.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128) // 128 bits = 12 words
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks word-list membership and the BIP-39 checksum.
// Surrounding whitespace is ignored.
func ValidateMnemonic(phrase string) bool {
	return bip39.IsMnemonicValid(strings.TrimSpace(phrase))
}

// DeriveAddress returns the EIP-55 checksummed address for the phrase at
// the fixed path. Deterministic: the same phrase always yields the same
// address.
func DeriveAddress(phrase string) (common.Address, error) {
	key, err := deriveSigningKey(phrase)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	zeroPrivateKey(key)
	return addr, nil
}

// deriveSigningKey walks the fixed BIP-44 path over the BIP-39 seed and
// returns the private scalar. Callers zero the key when done; it must never
// be logged or handed to the UI.
func deriveSigningKey(phrase string) (*ecdsa.PrivateKey, error) {
	phrase = strings.TrimSpace(phrase)
	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalidMnemonic
	}

	// Empty passphrase: recovery needs the 12 words alone.
	seed := bip39.NewSeed(phrase, "")
	defer zeroBytes(seed)

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	for _, index := range derivationPath {
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("derive path index %d: %w", index, err)
		}
	}
	ecPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}
	key.Zero()
	return ecPriv.ToECDSA(), nil
}

// ParsePrivateKey validates a hex-encoded private key (0x-prefixed or bare,
// 64 hex chars) and returns the scalar with its address. Out-of-range
// scalars are rejected.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, common.Address, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(hexKey, "0x")
	if len(hexKey) != 64 {
		return nil, common.Address{}, ErrInvalidPrivateKey
	}
	if _, err := hex.DecodeString(hexKey); err != nil {
		return nil, common.Address{}, ErrInvalidPrivateKey
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, common.Address{}, ErrInvalidPrivateKey
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

// signingKeyFor resolves the per-chain signing key for either secret kind.
func signingKeyFor(secret RootSecret) (*ecdsa.PrivateKey, common.Address, error) {
	switch secret.Kind() {
	case SecretMnemonic:
		key, err := deriveSigningKey(secret.Mnemonic())
		if err != nil {
			return nil, common.Address{}, err
		}
		return key, crypto.PubkeyToAddress(key.PublicKey), nil
	case SecretPrivateKey:
		return ParsePrivateKey(hex.EncodeToString(secret.PrivateKeyBytes()))
	default:
		return nil, common.Address{}, ErrAuthenticationFailed
	}
}

// zeroPrivateKey clears the scalar's big.Int limbs.
func zeroPrivateKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	key.D.SetInt64(0)
}
