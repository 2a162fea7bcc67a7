// ABOUTME: PIN-keyed authenticated encryption for the root secret.
// ABOUTME: Argon2id stretches the PIN, XChaCha20-Poly1305 seals the payload.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// BlobVersion identifies the current blob layout. Bumped when the KDF or
// cipher parameters change shape, so stale blobs are detectable on load.
const BlobVersion = 1

const saltLen = 16

// EncryptedBlob is the persisted ciphertext plus everything needed to
// re-derive the key from a PIN: salt, nonce and KDF parameters.
type EncryptedBlob struct {
	Version  int       `json:"version"`
	SaltB64  string    `json:"salt_b64"`
	NonceB64 string    `json:"nonce_b64"`
	CTB64    string    `json:"ct_b64"`
	KDF      KDFParams `json:"kdf"`
}

// Salt decodes the per-wallet KDF salt.
func (b EncryptedBlob) Salt() ([]byte, error) {
	return base64.StdEncoding.DecodeString(b.SaltB64)
}

// NewSalt produces a fresh random KDF salt. The salt is per wallet because
// the KDF input is a 6-digit PIN: a shared salt would let one precomputed
// table cover every installation.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return salt, nil
}

// DeriveKey stretches a PIN through Argon2id and expands the result with
// HKDF into the encryption subkey. Deliberately slow: the KDF cost is the
// only offline defense for the 10^6 PIN space.
func DeriveKey(pin string, salt []byte, params KDFParams) ([32]byte, error) {
	var out [32]byte
	mk := argon2.IDKey(
		[]byte(pin),
		salt,
		params.Time,
		params.MemoryMB*1024,
		params.Threads,
		params.KeyLen,
	)

	enc := hkdf.New(sha256.New, mk, nil, []byte("cryptovault:v1:enc"))
	if _, err := io.ReadFull(enc, out[:]); err != nil {
		return [32]byte{}, err
	}

	zeroBytes(mk)
	return out, nil
}

// Encrypt seals plaintext under key with XChaCha20-Poly1305 and a fresh
// random nonce, binding aad into the authentication tag.
func Encrypt(key [32]byte, plaintext, aad []byte, salt []byte, params KDFParams) (EncryptedBlob, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return EncryptedBlob{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedBlob{}, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	ct := aead.Seal(nil, nonce, plaintext, aad)
	return EncryptedBlob{
		Version:  BlobVersion,
		SaltB64:  base64.StdEncoding.EncodeToString(salt),
		NonceB64: base64.StdEncoding.EncodeToString(nonce),
		CTB64:    base64.StdEncoding.EncodeToString(ct),
		KDF:      params,
	}, nil
}

// Decrypt reverses Encrypt. Every failure mode — wrong key, tampered
// ciphertext, malformed encoding — is normalized to ErrAuthenticationFailed
// so callers never interpret low-level cipher errors.
func Decrypt(key [32]byte, blob EncryptedBlob, aad []byte) ([]byte, error) {
	if blob.Version != BlobVersion {
		return nil, fmt.Errorf("unsupported blob version %d", blob.Version)
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	nonce, err := base64.StdEncoding.DecodeString(blob.NonceB64)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrAuthenticationFailed
	}
	ct, err := base64.StdEncoding.DecodeString(blob.CTB64)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plain, nil
}

// blobAAD binds the blob to its format version and owning wallet so a blob
// copied between installs fails authentication instead of decrypting.
func blobAAD(walletID string) []byte {
	return []byte(fmt.Sprintf("cryptovault:v%d:%s", BlobVersion, walletID))
}
