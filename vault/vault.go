// ABOUTME: Vault is the facade enforcing the non-custodial contract:
// ABOUTME: create, import, encrypt, persist, unlock, derive signers, wipe.
package vault

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var pinPattern = regexp.MustCompile(`^[0-9]{6}$`)

// Vault owns the wallet's secret material end to end. Secrets live in
// memory only for the duration of the operation that needs them and are
// zeroed before return.
type Vault struct {
	store    SecretStore
	registry ChainRegistry
	kdf      KDFParams
	timeout  time.Duration
	log      *zap.Logger

	// single-admission guard: a second concurrent Unlock is rejected,
	// never run against intermediate state.
	unlocking atomic.Bool
}

// Option configures a Vault.
type Option func(*Vault)

// WithKDFParams overrides the Argon2id parameters for new blobs.
func WithKDFParams(p KDFParams) Option {
	return func(v *Vault) { v.kdf = p }
}

// WithLogger attaches a structured logger. Lifecycle events only; no
// secret material is ever logged.
func WithLogger(log *zap.Logger) Option {
	return func(v *Vault) { v.log = log }
}

// WithUnlockTimeout bounds one KDF+decrypt pass. A pass that exceeds the
// budget is abandoned and reported as a generic failure. Non-positive
// values keep the default.
func WithUnlockTimeout(d time.Duration) Option {
	return func(v *Vault) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// New constructs a Vault over a store and a chain registry.
func New(store SecretStore, registry ChainRegistry, opts ...Option) *Vault {
	v := &Vault{
		store:    store,
		registry: registry,
		kdf:      DefaultKDFParams(),
		timeout:  DefaultUnlockPolicy().AttemptTimeout,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Created is the result of generating a new wallet: the phrase for the
// mandatory one-time backup display, and the derived address.
type Created struct {
	Mnemonic string
	Address  common.Address
}

// Create generates a fresh 12-word wallet. Nothing is persisted until
// SetupComplete is called with the phrase and a PIN.
func (v *Vault) Create() (Created, error) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		return Created{}, err
	}
	addr, err := DeriveAddress(mnemonic)
	if err != nil {
		return Created{}, err
	}
	v.log.Debug("wallet generated", zap.String("address", addr.Hex()))
	return Created{Mnemonic: mnemonic, Address: addr}, nil
}

// ImportFromMnemonic validates a recovery phrase and returns its address.
// Nothing is persisted.
func (v *Vault) ImportFromMnemonic(phrase string) (common.Address, error) {
	return DeriveAddress(phrase)
}

// ImportFromPrivateKey validates a hex private key and returns its address.
// Nothing is persisted.
func (v *Vault) ImportFromPrivateKey(hexKey string) (common.Address, error) {
	key, addr, err := ParsePrivateKey(hexKey)
	if err != nil {
		return common.Address{}, err
	}
	zeroPrivateKey(key)
	return addr, nil
}

// SetupComplete encrypts the secret under a PIN-derived key and persists
// blob and metadata. The two writes are transactional in intent: if the
// meta write fails the blob is removed again and the caller must treat the
// wallet as not set up.
func (v *Vault) SetupComplete(ctx context.Context, secret RootSecret, pin string) error {
	defer secret.Zero()

	if err := validatePIN(pin); err != nil {
		return err
	}
	derived, addr, err := signingKeyFor(secret)
	if err != nil {
		return err
	}
	zeroPrivateKey(derived)

	walletID := ulid.Make().String()
	salt, err := NewSalt()
	if err != nil {
		return err
	}
	key, err := DeriveKey(pin, salt, v.kdf)
	if err != nil {
		return err
	}
	defer zeroBytes(key[:])

	plain := secret.encode()
	blob, err := Encrypt(key, plain, blobAAD(walletID), salt, v.kdf)
	zeroBytes(plain)
	if err != nil {
		return err
	}

	if err := v.store.SaveBlob(ctx, blob); err != nil {
		return err
	}
	meta := WalletMeta{
		WalletID:  walletID,
		Address:   addr.Hex(),
		CreatedAt: time.Now().UTC(),
	}
	if err := v.store.SaveMeta(ctx, meta); err != nil {
		// Roll the blob back so the meta/blob pairing invariant holds.
		_ = v.store.DeleteBlob(ctx)
		return err
	}
	_ = v.store.ClearAttempts(ctx)

	v.log.Info("wallet persisted",
		zap.String("wallet_id", walletID),
		zap.String("address", meta.Address),
	)
	return nil
}

// HasWallet reports whether a wallet is set up, for boot routing only.
// The unlock path never exposes this distinction.
func (v *Vault) HasWallet(ctx context.Context) (bool, error) {
	_, err := v.store.LoadMeta(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Meta returns the non-sensitive wallet record. No PIN required.
func (v *Vault) Meta(ctx context.Context) (WalletMeta, error) {
	return v.store.LoadMeta(ctx)
}

// MarkBackupVerified flips the backup-verified flag after the user has
// confirmed the phrase. The only mutation WalletMeta ever sees.
func (v *Vault) MarkBackupVerified(ctx context.Context) error {
	meta, err := v.store.LoadMeta(ctx)
	if err != nil {
		return err
	}
	meta.BackupVerified = true
	return v.store.SaveMeta(ctx, meta)
}

// Unlock loads the blob, derives the key from the stored salt and the
// supplied PIN, and decrypts. On success it returns a short-lived
// SigningContext; the caller must Close it. Wrong PIN, tampered blob and
// missing wallet all fail; a missing wallet is reported as ErrNotFound for
// internal routing, but its message must never reach the unlock UI.
func (v *Vault) Unlock(ctx context.Context, pin string) (*SigningContext, error) {
	if !v.unlocking.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer v.unlocking.Store(false)

	sc, err := runBounded(ctx, v.timeout, func(ctx context.Context) (*SigningContext, error) {
		return v.unlock(ctx, pin)
	}, func(late *SigningContext) { late.Close() })
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// A stalled or superseded attempt surfaces as a plain failure.
			return nil, ErrAuthenticationFailed
		}
		return nil, err
	}
	return sc, nil
}

func (v *Vault) unlock(ctx context.Context, pin string) (*SigningContext, error) {
	blob, err := v.store.LoadBlob(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := v.store.LoadMeta(ctx)
	if err != nil {
		return nil, err
	}

	salt, err := blob.Salt()
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	key, err := DeriveKey(pin, salt, blob.KDF)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key[:])

	plain, err := Decrypt(key, blob, blobAAD(meta.WalletID))
	if err != nil {
		return nil, err
	}
	secret, err := decodeSecret(plain)
	zeroBytes(plain)
	if err != nil {
		return nil, err
	}

	skey, addr, err := signingKeyFor(secret)
	if err != nil {
		secret.Zero()
		return nil, ErrAuthenticationFailed
	}
	zeroPrivateKey(skey)
	if meta.Address != "" && meta.Address != addr.Hex() {
		// Decrypted material does not match the persisted address:
		// corrupt state, never hand it to signing.
		secret.Zero()
		return nil, ErrAuthenticationFailed
	}

	v.log.Info("vault unlocked", zap.String("address", addr.Hex()))
	return &SigningContext{vault: v, secret: secret, address: addr}, nil
}

// ChangePIN re-encrypts the blob under a key derived from newPIN, with a
// fresh salt and nonce. Proof of the old PIN is the open signing context:
// callers go through Unlocker.ChangePIN, so wrong old-PIN guesses spend the
// same attempt budget as Unlock and are refused during a lockout.
func (v *Vault) ChangePIN(ctx context.Context, sc *SigningContext, newPIN string) error {
	if err := validatePIN(newPIN); err != nil {
		return err
	}
	if sc == nil || sc.closed.Load() {
		return errors.New("signing context closed")
	}

	meta, err := v.store.LoadMeta(ctx)
	if err != nil {
		return err
	}
	salt, err := NewSalt()
	if err != nil {
		return err
	}
	key, err := DeriveKey(newPIN, salt, v.kdf)
	if err != nil {
		return err
	}
	defer zeroBytes(key[:])

	plain := sc.secret.encode()
	blob, err := Encrypt(key, plain, blobAAD(meta.WalletID), salt, v.kdf)
	zeroBytes(plain)
	if err != nil {
		return err
	}
	if err := v.store.SaveBlob(ctx, blob); err != nil {
		return err
	}
	_ = v.store.ClearAttempts(ctx)

	v.log.Info("pin changed", zap.String("wallet_id", meta.WalletID))
	return nil
}

// Wipe deletes blob, metadata and attempt state. No residual copy of the
// secret remains in memory after return.
func (v *Vault) Wipe(ctx context.Context) error {
	if err := v.store.DeleteBlob(ctx); err != nil {
		return err
	}
	if err := v.store.DeleteMeta(ctx); err != nil {
		return err
	}
	if err := v.store.ClearAttempts(ctx); err != nil {
		return err
	}
	v.log.Info("wallet wiped")
	return nil
}

// SigningContext is the short-lived product of a successful unlock. It owns
// the decrypted secret; Close zeroes it. Signers are re-derived per call
// and never cached past the context's lifetime.
type SigningContext struct {
	vault   *Vault
	secret  RootSecret
	address common.Address
	closed  atomic.Bool
}

// Address returns the wallet's checksummed address.
func (sc *SigningContext) Address() common.Address { return sc.address }

// DeriveSigner re-derives the signing key and binds it to the chain's
// network parameters from the injected registry.
func (sc *SigningContext) DeriveSigner(chainKey string) (*Signer, error) {
	if sc.closed.Load() {
		return nil, errors.New("signing context closed")
	}
	params, err := sc.vault.registry.Lookup(chainKey)
	if err != nil {
		return nil, fmt.Errorf("chain lookup %q: %w", chainKey, err)
	}
	key, addr, err := signingKeyFor(sc.secret)
	if err != nil {
		return nil, err
	}
	return newSigner(key, addr, params), nil
}

// Close zeroes the decrypted secret and relocks the context.
func (sc *SigningContext) Close() {
	if sc.closed.CompareAndSwap(false, true) {
		sc.secret.Zero()
		sc.vault.log.Debug("signing context closed")
	}
}

func validatePIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return errors.New("pin must be exactly 6 digits")
	}
	return nil
}
