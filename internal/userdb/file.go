package userdb

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
)

// fileDocument is the on-disk shape: a JSON object with credentials (username -> password)
// and profiles (username -> {fullName}).
type fileDocument struct {
	Credentials map[string]string         `json:"credentials"`
	Profiles    map[string]fileProfileDoc `json:"profiles"`
}

type fileProfileDoc struct {
	FullName string `json:"fullName"`
}

// FileStore is the default userdb backend: a JSON file re-read on every Reload.
type FileStore struct {
	path     string
	snapshot atomic.Pointer[Snapshot]
}

// NewFileStore constructs a FileStore for the document at path and performs an initial
// load so Load never returns nil before the first explicit Reload.
func NewFileStore(ctx context.Context, path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	if _, err := fs.Reload(ctx); err != nil {
		return nil, err
	}
	return fs, nil
}

// Load returns the most recently loaded snapshot.
func (fs *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	return fs.snapshot.Load(), nil
}

// Reload re-reads the JSON document from disk and atomically swaps the snapshot.
func (fs *FileStore) Reload(ctx context.Context) (*Snapshot, error) {
	raw, err := os.ReadFile(fs.path)
	if err != nil {
		return nil, fmt.Errorf("read user database %s: %w", fs.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode user database %s: %w", fs.path, err)
	}

	snap := &Snapshot{
		Credentials: doc.Credentials,
		Profiles:    make(map[string]Profile, len(doc.Profiles)),
	}
	for username, p := range doc.Profiles {
		snap.Profiles[username] = Profile{FullName: p.FullName}
	}

	fs.snapshot.Store(snap)
	return snap, nil
}

// VerifyPassword compares stored and candidate byte-exact, in constant time, the
// plaintext on-disk format's equivalent of a password check.
func (fs *FileStore) VerifyPassword(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}
