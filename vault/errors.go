// ABOUTME: Typed errors for vault and unlock operations.
// ABOUTME: Enables programmatic error handling with errors.Is() and errors.As().
package vault

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for programmatic handling.
var (
	ErrInvalidMnemonic      = errors.New("invalid mnemonic phrase")
	ErrInvalidPrivateKey    = errors.New("invalid private key")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotFound             = errors.New("wallet not found")
	ErrStorageUnavailable   = errors.New("secure storage unavailable")
	ErrEntropyUnavailable   = errors.New("entropy source unavailable")
	ErrLockedOut            = errors.New("too many failed attempts")
	ErrBusy                 = errors.New("unlock already in progress")
)

// UnlockError wraps unlock failures with attempt context.
// The user-visible message never distinguishes a wrong PIN from a missing
// wallet; callers that need routing information check HasWallet before
// presenting the unlock screen.
type UnlockError struct {
	Attempts    int       // consecutive failures so far
	LockedUntil time.Time // zero unless locked out
	Err         error     // underlying sentinel
}

func (e *UnlockError) Error() string {
	if !e.LockedUntil.IsZero() {
		return fmt.Sprintf("locked out until %s", e.LockedUntil.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("authentication failed (%d consecutive failures)", e.Attempts)
}

func (e *UnlockError) Unwrap() error {
	return e.Err
}

// StorageError carries the entry key that failed so store problems are
// diagnosable without the detail reaching user-facing messages.
type StorageError struct {
	Op    string // "save", "load", "delete"
	Entry string // entry key, e.g. "secret.blob.v1"
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("secure storage %s failed for %s: %v", e.Op, e.Entry, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}
