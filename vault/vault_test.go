// ABOUTME: End-to-end tests for the vault facade secrecy lifecycle.
// ABOUTME: Covers create/import/setup/unlock/wipe against a real SQLite store.
package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"
)

type staticRegistry map[string]ChainParams

func (r staticRegistry) Lookup(chainKey string) (ChainParams, error) {
	params, ok := r[chainKey]
	if !ok {
		return ChainParams{}, fmt.Errorf("unknown chain %q", chainKey)
	}
	return params, nil
}

func testRegistry() ChainRegistry {
	return staticRegistry{
		"ethereum": {ChainKey: "ethereum", ChainID: big.NewInt(1), RPCURL: "https://eth.example", Decimals: 18},
		"bsc":      {ChainKey: "bsc", ChainID: big.NewInt(56), RPCURL: "https://bsc.example", Decimals: 18},
		"polygon":  {ChainKey: "polygon", ChainID: big.NewInt(137), RPCURL: "https://polygon.example", Decimals: 18},
	}
}

func newTestVault(t *testing.T) (*Vault, *SQLiteStore) {
	t.Helper()
	store := openTestStore(t)
	v := New(store, testRegistry(),
		WithKDFParams(testKDFParams()),
		WithUnlockTimeout(30*time.Second),
	)
	return v, store
}

func TestCreateDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	created, err := v.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !ValidateMnemonic(created.Mnemonic) {
		t.Fatal("created mnemonic invalid")
	}

	has, err := v.HasWallet(ctx)
	if err != nil {
		t.Fatalf("HasWallet: %v", err)
	}
	if has {
		t.Fatal("Create must not persist anything before SetupComplete")
	}
}

func TestSetupUnlockAcrossRestart(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVault(t)

	created, err := v.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	secret, err := MnemonicSecret(created.Mnemonic)
	if err != nil {
		t.Fatalf("MnemonicSecret: %v", err)
	}
	if err := v.SetupComplete(ctx, secret, "111111"); err != nil {
		t.Fatalf("SetupComplete: %v", err)
	}

	// Restart: a fresh vault over the same store.
	restarted := New(store, testRegistry(), WithKDFParams(testKDFParams()))
	sc, err := restarted.Unlock(ctx, "111111")
	if err != nil {
		t.Fatalf("Unlock after restart: %v", err)
	}
	defer sc.Close()

	if sc.Address() != created.Address {
		t.Fatalf("unlocked address %s, want %s", sc.Address().Hex(), created.Address.Hex())
	}
}

func TestUnlockWrongPIN(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	created, _ := v.Create()
	secret, _ := MnemonicSecret(created.Mnemonic)
	if err := v.SetupComplete(ctx, secret, "123456"); err != nil {
		t.Fatalf("SetupComplete: %v", err)
	}

	if _, err := v.Unlock(ctx, "000000"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("wrong PIN: got %v, want ErrAuthenticationFailed", err)
	}
	sc, err := v.Unlock(ctx, "123456")
	if err != nil {
		t.Fatalf("correct PIN after failure: %v", err)
	}
	sc.Close()
}

func TestUnlockWithoutWallet(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	if _, err := v.Unlock(ctx, "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestImportFromMnemonic(t *testing.T) {
	v, _ := newTestVault(t)

	addr, err := v.ImportFromMnemonic(vectorMnemonic)
	if err != nil {
		t.Fatalf("ImportFromMnemonic: %v", err)
	}
	if addr.Hex() != vectorAddress {
		t.Fatalf("imported address %s, want %s", addr.Hex(), vectorAddress)
	}

	if _, err := v.ImportFromMnemonic("bad phrase"); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("got %v, want ErrInvalidMnemonic", err)
	}
}

func TestImportFromPrivateKeyInvalidPersistsNothing(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	if _, err := v.ImportFromPrivateKey("0xINVALIDHEX"); !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("got %v, want ErrInvalidPrivateKey", err)
	}
	has, err := v.HasWallet(ctx)
	if err != nil {
		t.Fatalf("HasWallet: %v", err)
	}
	if has {
		t.Fatal("failed import must leave no state behind")
	}
}

func TestPrivateKeyWalletLifecycle(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	const hexKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	addr, err := v.ImportFromPrivateKey(hexKey)
	if err != nil {
		t.Fatalf("ImportFromPrivateKey: %v", err)
	}
	secret, err := PrivateKeySecret(hexKey)
	if err != nil {
		t.Fatalf("PrivateKeySecret: %v", err)
	}
	if err := v.SetupComplete(ctx, secret, "222222"); err != nil {
		t.Fatalf("SetupComplete: %v", err)
	}

	sc, err := v.Unlock(ctx, "222222")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	defer sc.Close()
	if sc.Address() != addr {
		t.Fatalf("unlocked address %s, want %s", sc.Address().Hex(), addr.Hex())
	}
}

func TestSetupCompleteRejectsBadPIN(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	created, _ := v.Create()
	for _, pin := range []string{"", "12345", "1234567", "abcdef", "12 456"} {
		secret, err := MnemonicSecret(created.Mnemonic)
		if err != nil {
			t.Fatalf("MnemonicSecret: %v", err)
		}
		if err := v.SetupComplete(ctx, secret, pin); err == nil {
			t.Errorf("PIN %q accepted", pin)
		}
	}
}

func TestWipe(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVault(t)

	created, _ := v.Create()
	secret, _ := MnemonicSecret(created.Mnemonic)
	if err := v.SetupComplete(ctx, secret, "123456"); err != nil {
		t.Fatalf("SetupComplete: %v", err)
	}
	if err := v.Wipe(ctx); err != nil {
		t.Fatalf("Wipe: %v", err)
	}

	if _, err := store.LoadMeta(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("meta after wipe: got %v, want ErrNotFound", err)
	}
	if _, err := v.Unlock(ctx, "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unlock after wipe: got %v, want ErrNotFound", err)
	}
}

func TestMetaPairedWithBlob(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVault(t)

	created, _ := v.Create()
	secret, _ := MnemonicSecret(created.Mnemonic)
	if err := v.SetupComplete(ctx, secret, "123456"); err != nil {
		t.Fatalf("SetupComplete: %v", err)
	}

	if _, err := store.LoadBlob(ctx); err != nil {
		t.Fatalf("blob missing after setup: %v", err)
	}
	if _, err := store.LoadMeta(ctx); err != nil {
		t.Fatalf("meta missing after setup: %v", err)
	}
}

func TestMarkBackupVerified(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	created, _ := v.Create()
	secret, _ := MnemonicSecret(created.Mnemonic)
	if err := v.SetupComplete(ctx, secret, "123456"); err != nil {
		t.Fatalf("SetupComplete: %v", err)
	}
	if err := v.MarkBackupVerified(ctx); err != nil {
		t.Fatalf("MarkBackupVerified: %v", err)
	}
	meta, err := v.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if !meta.BackupVerified {
		t.Fatal("backup flag not set")
	}
}

func TestChangePIN(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	created, _ := v.Create()
	secret, _ := MnemonicSecret(created.Mnemonic)
	if err := v.SetupComplete(ctx, secret, "123456"); err != nil {
		t.Fatalf("SetupComplete: %v", err)
	}

	sc, err := v.Unlock(ctx, "123456")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := v.ChangePIN(ctx, sc, "654321"); err != nil {
		t.Fatalf("ChangePIN: %v", err)
	}
	sc.Close()

	// A closed context no longer proves the old PIN.
	if err := v.ChangePIN(ctx, sc, "111111"); err == nil {
		t.Fatal("closed context accepted for PIN change")
	}

	if _, err := v.Unlock(ctx, "123456"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("old PIN still works after change: %v", err)
	}
	reopened, err := v.Unlock(ctx, "654321")
	if err != nil {
		t.Fatalf("new PIN: %v", err)
	}
	reopened.Close()
	if reopened.Address() != created.Address {
		t.Fatal("address changed across PIN change")
	}
}

func TestWithUnlockTimeoutKeepsDefaultWhenUnset(t *testing.T) {
	store := openTestStore(t)
	v := New(store, testRegistry(), WithUnlockTimeout(0))
	if v.timeout != DefaultUnlockPolicy().AttemptTimeout {
		t.Fatalf("timeout = %v, want default", v.timeout)
	}
}

func TestSigningContextClose(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	created, _ := v.Create()
	secret, _ := MnemonicSecret(created.Mnemonic)
	if err := v.SetupComplete(ctx, secret, "123456"); err != nil {
		t.Fatalf("SetupComplete: %v", err)
	}
	sc, err := v.Unlock(ctx, "123456")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	sc.Close()
	if _, err := sc.DeriveSigner("ethereum"); err == nil {
		t.Fatal("closed context must not derive signers")
	}
}
