package vault

import (
	"context"
	"time"
)

// Fixed, versioned entry keys. Versioning the key lets a future layout
// change be detected and migrated on load instead of failing decryption.
const (
	entryBlob     = "secret.blob.v1"
	entryMeta     = "wallet.meta.v1"
	entryAttempts = "unlock.attempts.v1"
)

// WalletMeta is the non-sensitive wallet record. Readable without a PIN.
type WalletMeta struct {
	WalletID       string    `json:"wallet_id"` // ULID assigned at creation
	Address        string    `json:"address"`   // EIP-55 checksummed
	CreatedAt      time.Time `json:"created_at"`
	BackupVerified bool      `json:"backup_verified"`
}

// AttemptState is the persisted unlock failure counter. Surviving process
// restarts keeps the lockout meaningful against restart-based bypass.
type AttemptState struct {
	Failures    int       `json:"failures"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
}

// SecretStore persists the encrypted blob and wallet metadata. The blob
// channel models OS-backed secure storage gated by device policy; the meta
// channel is plain encrypted-at-rest storage, no PIN required to read.
//
// Load methods return ErrNotFound when no entry exists; every other failure
// wraps ErrStorageUnavailable.
type SecretStore interface {
	SaveBlob(ctx context.Context, blob EncryptedBlob) error
	LoadBlob(ctx context.Context) (EncryptedBlob, error)
	DeleteBlob(ctx context.Context) error

	SaveMeta(ctx context.Context, meta WalletMeta) error
	LoadMeta(ctx context.Context) (WalletMeta, error)
	DeleteMeta(ctx context.Context) error

	SaveAttempts(ctx context.Context, state AttemptState) error
	LoadAttempts(ctx context.Context) (AttemptState, error)
	ClearAttempts(ctx context.Context) error
}
