// Package userdb defines the pluggable backing store PresenceService consults for
// credential validation and profile lookup, with the concrete backend chosen at boot.
// Two implementations are provided: a JSON-file backend (file.go, the default) and an
// optional Postgres-backed one (postgres.go) for deployments that centralize the
// directory.
package userdb

import "context"

// Profile is the directory's view of one user's display identity.
type Profile struct {
	FullName string
}

// Snapshot is an immutable point-in-time view of the directory: username -> password hash
// (or plaintext, for the file backend's historical format) and username -> profile. It is
// swapped atomically by Store.Reload; callers never mutate a Snapshot in place.
type Snapshot struct {
	Credentials map[string]string
	Profiles    map[string]Profile
}

// Store is the narrow capability PresenceService needs from a directory backend.
type Store interface {
	// Load returns the current snapshot without touching the backing source.
	Load(ctx context.Context) (*Snapshot, error)
	// Reload re-reads the backing source and returns the fresh snapshot. On error the
	// caller is expected to keep using the previous snapshot.
	Reload(ctx context.Context) (*Snapshot, error)
	// VerifyPassword reports whether candidate matches the stored secret for a given
	// username, using whichever comparison the backend's storage format requires (plain
	// byte-exact compare for the JSON-file backend, argon2id for the Postgres backend).
	VerifyPassword(stored, candidate string) bool
}
