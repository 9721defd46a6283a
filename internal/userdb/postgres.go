package userdb

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the optional centrally-managed userdb backend, storing argon2id
// password hashes instead of the file backend's plaintext format.
type PostgresStore struct {
	pool     *pgxpool.Pool
	snapshot atomic.Pointer[Snapshot]
}

// NewPostgresStore constructs a PostgresStore over pool and performs an initial load.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	ps := &PostgresStore{pool: pool}
	if _, err := ps.Reload(ctx); err != nil {
		return nil, err
	}
	return ps, nil
}

// Load returns the most recently loaded snapshot.
func (ps *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	return ps.snapshot.Load(), nil
}

// Reload re-queries the users table and atomically swaps the snapshot.
func (ps *PostgresStore) Reload(ctx context.Context) (*Snapshot, error) {
	rows, err := ps.pool.Query(ctx, `SELECT username, password_hash, full_name FROM users`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	snap := &Snapshot{
		Credentials: make(map[string]string),
		Profiles:    make(map[string]Profile),
	}
	for rows.Next() {
		var username, hash, fullName string
		if err := rows.Scan(&username, &hash, &fullName); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		snap.Credentials[username] = hash
		snap.Profiles[username] = Profile{FullName: fullName}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	ps.snapshot.Store(snap)
	return snap, nil
}

// VerifyPassword checks candidate against an argon2id hash stored in the users table.
func (ps *PostgresStore) VerifyPassword(stored, candidate string) bool {
	match, err := argon2id.ComparePasswordAndHash(candidate, stored)
	if err != nil {
		return false
	}
	return match
}
