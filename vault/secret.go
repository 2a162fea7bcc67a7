// ABOUTME: RootSecret models the wallet's secret material as a tagged variant.
// ABOUTME: Exactly one of mnemonic or raw private key is set; bytes are zeroable.
package vault

import (
	"bytes"
	"strings"
)

// SecretKind discriminates the two secret representations.
type SecretKind byte

const (
	SecretMnemonic   SecretKind = 'm'
	SecretPrivateKey SecretKind = 'k'
)

// RootSecret holds the wallet's root secret. The vault owns instances
// exclusively while they are in memory and zeroes them when done; callers
// must not retain references past the operation that produced them.
type RootSecret struct {
	kind SecretKind
	data []byte
}

func newMnemonicSecret(phrase string) RootSecret {
	return RootSecret{kind: SecretMnemonic, data: []byte(phrase)}
}

func newPrivateKeySecret(scalar []byte) RootSecret {
	d := make([]byte, len(scalar))
	copy(d, scalar)
	return RootSecret{kind: SecretPrivateKey, data: d}
}

// MnemonicSecret builds a RootSecret from a BIP-39 phrase after validating
// it. The phrase is trimmed before validation.
func MnemonicSecret(phrase string) (RootSecret, error) {
	phrase = strings.TrimSpace(phrase)
	if !ValidateMnemonic(phrase) {
		return RootSecret{}, ErrInvalidMnemonic
	}
	return newMnemonicSecret(phrase), nil
}

// PrivateKeySecret builds a RootSecret from a hex private key after
// validating format and scalar range.
func PrivateKeySecret(hexKey string) (RootSecret, error) {
	key, _, err := ParsePrivateKey(hexKey)
	if err != nil {
		return RootSecret{}, err
	}
	scalar := key.D.FillBytes(make([]byte, 32))
	zeroPrivateKey(key)
	secret := newPrivateKeySecret(scalar)
	zeroBytes(scalar)
	return secret, nil
}

// Kind reports which representation is active.
func (s RootSecret) Kind() SecretKind { return s.kind }

// Mnemonic returns the phrase. Empty unless Kind is SecretMnemonic.
func (s RootSecret) Mnemonic() string {
	if s.kind != SecretMnemonic {
		return ""
	}
	return string(s.data)
}

// PrivateKeyBytes returns the raw 32-byte scalar. Nil unless Kind is
// SecretPrivateKey. The slice aliases the secret's backing memory.
func (s RootSecret) PrivateKeyBytes() []byte {
	if s.kind != SecretPrivateKey {
		return nil
	}
	return s.data
}

// Zero wipes the backing bytes. The secret is unusable afterwards.
func (s *RootSecret) Zero() {
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = nil
	s.kind = 0
}

// encode serializes the secret for encryption: a one-byte tag then the raw
// payload. The tag forces every decoder to handle both representations.
func (s RootSecret) encode() []byte {
	out := make([]byte, 1+len(s.data))
	out[0] = byte(s.kind)
	copy(out[1:], s.data)
	return out
}

// decodeSecret reverses encode. A payload that decrypted cleanly but does
// not parse as either representation is treated as authentication failure:
// silent corruption must never reach signing.
func decodeSecret(plain []byte) (RootSecret, error) {
	if len(plain) < 2 {
		return RootSecret{}, ErrAuthenticationFailed
	}
	kind := SecretKind(plain[0])
	payload := plain[1:]
	switch kind {
	case SecretMnemonic:
		phrase := string(payload)
		if strings.TrimSpace(phrase) == "" {
			return RootSecret{}, ErrAuthenticationFailed
		}
		return newMnemonicSecret(phrase), nil
	case SecretPrivateKey:
		if len(payload) != 32 || bytes.Equal(payload, make([]byte, 32)) {
			return RootSecret{}, ErrAuthenticationFailed
		}
		return newPrivateKeySecret(payload), nil
	default:
		return RootSecret{}, ErrAuthenticationFailed
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
