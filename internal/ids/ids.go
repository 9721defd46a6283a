// Package ids defines the opaque 128-bit identifiers used throughout the core: connection,
// session, and auth-token identifiers are all UUIDs minted once and never reused. Room
// identifiers are short human-readable strings instead, since they form the application's
// room namespace rather than an opaque handle.
package ids

import "github.com/google/uuid"

// ConnectionID identifies one WebSocket connection for its lifetime. Never reused.
type ConnectionID uuid.UUID

// NewConnectionID mints a fresh connection identifier.
func NewConnectionID() ConnectionID { return ConnectionID(uuid.New()) }

// String implements fmt.Stringer.
func (c ConnectionID) String() string { return uuid.UUID(c).String() }

// SessionID identifies one authenticated Session. Never reused.
type SessionID uuid.UUID

// NewSessionID mints a fresh session identifier.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// String implements fmt.Stringer.
func (s SessionID) String() string { return uuid.UUID(s).String() }

// IsNil reports whether s is the zero SessionID.
func (s SessionID) IsNil() bool { return uuid.UUID(s) == uuid.Nil }

// AuthToken is an opaque credential minted by the PresenceService on successful
// authentication. Its validity window is tracked alongside it, not encoded in the token
// itself.
type AuthToken uuid.UUID

// NewAuthToken mints a fresh auth token value.
func NewAuthToken() AuthToken { return AuthToken(uuid.New()) }

// String implements fmt.Stringer.
func (t AuthToken) String() string { return uuid.UUID(t).String() }

// IsNil reports whether t is the zero AuthToken.
func (t AuthToken) IsNil() bool { return uuid.UUID(t) == uuid.Nil }

// RoomID is a short human-readable room name. Equality is byte-exact; trimming whitespace
// is the caller's responsibility.
type RoomID string
