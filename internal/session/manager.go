package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/actorref"
	"github.com/signalmesh/server/internal/ids"
	"github.com/signalmesh/server/internal/presence"
	"github.com/signalmesh/server/internal/room"
)

// gcInterval is how often the SessionManager drops directory entries whose Session has
// stopped.
const gcInterval = 5 * time.Second

// UsernamePasswordCredentials, AdHocCredentials, and AuthResponse are aliased from presence
// rather than redeclared, since Authenticator's method set must match *presence.Service's
// exactly for the structural interface below to be satisfied.
type (
	UsernamePasswordCredentials = presence.UsernamePasswordCredentials
	AdHocCredentials            = presence.AdHocCredentials
	AuthResponse                = presence.AuthResponse
)

// Authenticator is the capability the SessionManager needs from PresenceService.
// *presence.Service satisfies it directly.
type Authenticator interface {
	AuthenticateUsernamePassword(ctx context.Context, creds UsernamePasswordCredentials, sessionID ids.SessionID) (*AuthResponse, bool)
	AuthenticateAdHoc(creds AdHocCredentials, sessionID ids.SessionID) *AuthResponse
}

// Manager is the SessionManager singleton: owns the set of live Sessions, creates one on
// successful authentication, binds it to its Connection, and reaps stopped Sessions.
type Manager struct {
	log         zerolog.Logger
	auth        Authenticator
	roomManager *room.Manager

	debugCommandsEnabled bool

	mu        sync.Mutex
	directory map[ids.SessionID]*Session

	done chan struct{}
	once sync.Once
}

// NewManager constructs a SessionManager and starts its reaper goroutine.
func NewManager(auth Authenticator, roomManager *room.Manager, debugCommandsEnabled bool, log zerolog.Logger) *Manager {
	m := &Manager{
		log:                  log.With().Str("component", "session_manager").Logger(),
		auth:                 auth,
		roomManager:          roomManager,
		debugCommandsEnabled: debugCommandsEnabled,
		directory:            make(map[ids.SessionID]*Session),
		done:                 make(chan struct{}),
	}
	go m.runGC()
	return m
}

// Stop halts the reaper goroutine. Live Sessions are unaffected; they keep running until
// their own lifecycle ends.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.done) })
}

// AssociateConnection validates credentials and, on success, starts a new Session bound
// to connRef, registers it in the directory, and returns it so the caller (the
// Connection) can build its own weak reference and transition state. On failure it
// returns (nil, false) and does nothing further; it is up to the Connection's own
// Authenticate handler to time out if it never gets a successful response.
func (m *Manager) AssociateConnection(ctx context.Context, connRef actorref.Ref[ConnectionHandle], creds any) (*Session, bool) {
	sessionID := ids.NewSessionID()

	var resp *AuthResponse
	switch c := creds.(type) {
	case UsernamePasswordCredentials:
		var ok bool
		resp, ok = m.auth.AuthenticateUsernamePassword(ctx, c, sessionID)
		if !ok {
			return nil, false
		}
	case AdHocCredentials:
		resp = m.auth.AuthenticateAdHoc(c, sessionID)
	default:
		return nil, false
	}

	sess := newSession(m, sessionID, resp.Token, resp.Profile, connRef, m.debugCommandsEnabled, m.log)

	m.mu.Lock()
	m.directory[sess.id] = sess
	m.mu.Unlock()

	return sess, true
}

// forget removes id from the directory. Called by a Session on its own stop path.
func (m *Manager) forget(id ids.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.directory, id)
}

func (m *Manager) runGC() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.gc()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) gc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.directory {
		if !sess.liveness.IsLive() {
			delete(m.directory, id)
		}
	}
}
