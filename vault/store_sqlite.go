package vault

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SecretStore backed by a local SQLite database. It stands
// in for the platform keychain on targets without one; the access policy
// string is persisted with the blob entry and passed through unmodified so
// a platform binding can enforce it.
type SQLiteStore struct {
	db     *sql.DB
	policy string
}

// OpenStore opens/creates the store database and runs migrations.
// policy is the secure-storage access policy the blob entry requires,
// e.g. "unlocked+biometric-or-passcode".
func OpenStore(path, policy string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Entry: path, Cause: err}
	}
	s := &SQLiteStore{db: db, policy: policy}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "migrate", Entry: path, Cause: err}
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// AccessPolicy returns the policy string the blob entry is stored under.
func (s *SQLiteStore) AccessPolicy() string { return s.policy }

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS entries (
  k TEXT PRIMARY KEY,
  v TEXT NOT NULL,
  policy TEXT NOT NULL DEFAULT ''
);
`)
	return err
}

func (s *SQLiteStore) put(ctx context.Context, key string, value any, policy string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &StorageError{Op: "save", Entry: key, Cause: err}
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO entries(k,v,policy) VALUES(?,?,?)
ON CONFLICT(k) DO UPDATE SET v=excluded.v, policy=excluded.policy`, key, string(raw), policy)
	if err != nil {
		return &StorageError{Op: "save", Entry: key, Cause: err}
	}
	return nil
}

func (s *SQLiteStore) get(ctx context.Context, key string, out any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM entries WHERE k = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return &StorageError{Op: "load", Entry: key, Cause: err}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &StorageError{Op: "load", Entry: key, Cause: fmt.Errorf("corrupt entry: %w", err)}
	}
	return nil
}

func (s *SQLiteStore) del(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE k = ?`, key); err != nil {
		return &StorageError{Op: "delete", Entry: key, Cause: err}
	}
	return nil
}

// SaveBlob persists the encrypted secret under the device access policy.
func (s *SQLiteStore) SaveBlob(ctx context.Context, blob EncryptedBlob) error {
	return s.put(ctx, entryBlob, blob, s.policy)
}

// LoadBlob fetches the encrypted secret, ErrNotFound if none exists.
func (s *SQLiteStore) LoadBlob(ctx context.Context) (EncryptedBlob, error) {
	var blob EncryptedBlob
	if err := s.get(ctx, entryBlob, &blob); err != nil {
		return EncryptedBlob{}, err
	}
	return blob, nil
}

// DeleteBlob removes the encrypted secret.
func (s *SQLiteStore) DeleteBlob(ctx context.Context) error {
	return s.del(ctx, entryBlob)
}

// SaveMeta persists the non-sensitive wallet record.
func (s *SQLiteStore) SaveMeta(ctx context.Context, meta WalletMeta) error {
	return s.put(ctx, entryMeta, meta, "")
}

// LoadMeta fetches the wallet record, ErrNotFound if none exists.
func (s *SQLiteStore) LoadMeta(ctx context.Context) (WalletMeta, error) {
	var meta WalletMeta
	if err := s.get(ctx, entryMeta, &meta); err != nil {
		return WalletMeta{}, err
	}
	return meta, nil
}

// DeleteMeta removes the wallet record.
func (s *SQLiteStore) DeleteMeta(ctx context.Context) error {
	return s.del(ctx, entryMeta)
}

// SaveAttempts persists the unlock failure counter.
func (s *SQLiteStore) SaveAttempts(ctx context.Context, state AttemptState) error {
	return s.put(ctx, entryAttempts, state, "")
}

// LoadAttempts fetches the failure counter; a missing entry is the zero state.
func (s *SQLiteStore) LoadAttempts(ctx context.Context) (AttemptState, error) {
	var state AttemptState
	err := s.get(ctx, entryAttempts, &state)
	if err == ErrNotFound {
		return AttemptState{}, nil
	}
	if err != nil {
		return AttemptState{}, err
	}
	return state, nil
}

// ClearAttempts resets the failure counter.
func (s *SQLiteStore) ClearAttempts(ctx context.Context) error {
	return s.del(ctx, entryAttempts)
}
