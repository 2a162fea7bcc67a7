package vault

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "vault.db"), "unlocked+biometric-or-passcode")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("close store: %v", cerr)
		}
	})
	return store
}

func TestStoreBlobLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.LoadBlob(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store: got %v, want ErrNotFound", err)
	}

	blob := EncryptedBlob{
		Version:  BlobVersion,
		SaltB64:  "c2FsdA==",
		NonceB64: "bm9uY2U=",
		CTB64:    "Y2lwaGVy",
		KDF:      DefaultKDFParams(),
	}
	if err := store.SaveBlob(ctx, blob); err != nil {
		t.Fatalf("save blob: %v", err)
	}

	loaded, err := store.LoadBlob(ctx)
	if err != nil {
		t.Fatalf("load blob: %v", err)
	}
	if loaded != blob {
		t.Fatalf("loaded blob mismatch: %+v", loaded)
	}

	if err := store.DeleteBlob(ctx); err != nil {
		t.Fatalf("delete blob: %v", err)
	}
	if _, err := store.LoadBlob(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: got %v, want ErrNotFound", err)
	}
}

func TestStoreMetaLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.LoadMeta(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store: got %v, want ErrNotFound", err)
	}

	meta := WalletMeta{
		WalletID:  "01J0000000000000000000TEST",
		Address:   vectorAddress,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SaveMeta(ctx, meta); err != nil {
		t.Fatalf("save meta: %v", err)
	}

	loaded, err := store.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if loaded.Address != meta.Address || loaded.WalletID != meta.WalletID {
		t.Fatalf("loaded meta mismatch: %+v", loaded)
	}
	if loaded.BackupVerified {
		t.Fatal("backup flag should start false")
	}

	loaded.BackupVerified = true
	if err := store.SaveMeta(ctx, loaded); err != nil {
		t.Fatalf("update meta: %v", err)
	}
	again, err := store.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("reload meta: %v", err)
	}
	if !again.BackupVerified {
		t.Fatal("backup flag not persisted")
	}

	if err := store.DeleteMeta(ctx); err != nil {
		t.Fatalf("delete meta: %v", err)
	}
	if _, err := store.LoadMeta(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: got %v, want ErrNotFound", err)
	}
}

func TestStoreAttemptsLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	state, err := store.LoadAttempts(ctx)
	if err != nil {
		t.Fatalf("load attempts: %v", err)
	}
	if state.Failures != 0 || !state.LockedUntil.IsZero() {
		t.Fatalf("missing entry should read as zero state: %+v", state)
	}

	until := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)
	if err := store.SaveAttempts(ctx, AttemptState{Failures: 3, LockedUntil: until}); err != nil {
		t.Fatalf("save attempts: %v", err)
	}
	state, err = store.LoadAttempts(ctx)
	if err != nil {
		t.Fatalf("reload attempts: %v", err)
	}
	if state.Failures != 3 || !state.LockedUntil.Equal(until) {
		t.Fatalf("attempt state mismatch: %+v", state)
	}

	if err := store.ClearAttempts(ctx); err != nil {
		t.Fatalf("clear attempts: %v", err)
	}
	state, err = store.LoadAttempts(ctx)
	if err != nil {
		t.Fatalf("load after clear: %v", err)
	}
	if state.Failures != 0 {
		t.Fatalf("attempts not cleared: %+v", state)
	}
}

func TestStoreAccessPolicyPassthrough(t *testing.T) {
	store := openTestStore(t)
	if store.AccessPolicy() != "unlocked+biometric-or-passcode" {
		t.Fatalf("policy = %q", store.AccessPolicy())
	}
}
