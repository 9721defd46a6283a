// Package presence implements the PresenceService singleton: credential validation against
// a pluggable userdb.Store, opaque AuthToken issuance with a TTL, validity queries, and
// periodic user-database reload. The backing store swaps its snapshot atomically on reload
// so readers never block on or observe a half-updated snapshot; the service's own table of
// issued tokens is guarded by a mutex.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/ids"
	"github.com/signalmesh/server/internal/userdb"
)

// defaultAuthTTL is the default validity window of an AuthToken.
const defaultAuthTTL = 120 * time.Second

// reloadInterval is how often the user database is re-read from its backing store.
const reloadInterval = 30 * time.Second

// sweepInterval is how often expired SessionState entries are swept.
const sweepInterval = 5 * time.Second

// AuthResponse is returned to a successful AuthenticationRequest.
type AuthResponse struct {
	Token   ids.AuthToken
	Profile userdb.Profile
}

// sessionState tracks one issued AuthToken.
type sessionState struct {
	created   time.Time
	sessionID ids.SessionID
}

// Service is the PresenceService singleton.
type Service struct {
	log     zerolog.Logger
	store   userdb.Store
	authTTL time.Duration

	mu        sync.Mutex
	sessions  map[ids.AuthToken]sessionState
	lastSwept time.Time

	done chan struct{}
	once sync.Once
}

// NewService constructs a PresenceService over store and starts its background reload
// and sweep goroutine. authTTL of zero selects the default of 120 s.
func NewService(store userdb.Store, authTTL time.Duration, log zerolog.Logger) *Service {
	if authTTL <= 0 {
		authTTL = defaultAuthTTL
	}
	s := &Service{
		log:      log.With().Str("component", "presence").Logger(),
		store:    store,
		authTTL:  authTTL,
		sessions: make(map[ids.AuthToken]sessionState),
		done:     make(chan struct{}),
	}
	go s.runBackground()
	return s
}

// Stop halts the background reload/sweep goroutine.
func (s *Service) Stop() {
	s.once.Do(func() { close(s.done) })
}

// UsernamePasswordCredentials is compared byte-exact (or by the backend's own verifier)
// against the user database.
type UsernamePasswordCredentials struct {
	Username string
	Password string
}

// AdHocCredentials always succeed, synthesizing a profile from the username.
type AdHocCredentials struct {
	Username string
}

// AuthenticateUsernamePassword validates creds against the current snapshot. On match it
// mints a fresh AuthToken, records a sessionState, and returns the response.
func (s *Service) AuthenticateUsernamePassword(ctx context.Context, creds UsernamePasswordCredentials, sessionID ids.SessionID) (*AuthResponse, bool) {
	snap, err := s.store.Load(ctx)
	if err != nil || snap == nil {
		s.log.Warn().Err(err).Msg("user database unavailable during authentication")
		return nil, false
	}

	stored, ok := snap.Credentials[creds.Username]
	if !ok || !s.store.VerifyPassword(stored, creds.Password) {
		return nil, false
	}
	profile, ok := snap.Profiles[creds.Username]
	if !ok {
		return nil, false
	}

	return s.issueToken(profile, sessionID), true
}

// AuthenticateAdHoc always succeeds, synthesizing "<username> (adhoc)" as the full name.
func (s *Service) AuthenticateAdHoc(creds AdHocCredentials, sessionID ids.SessionID) *AuthResponse {
	profile := userdb.Profile{FullName: fmt.Sprintf("%s (adhoc)", creds.Username)}
	return s.issueToken(profile, sessionID)
}

func (s *Service) issueToken(profile userdb.Profile, sessionID ids.SessionID) *AuthResponse {
	token := ids.NewAuthToken()

	s.mu.Lock()
	s.sessions[token] = sessionState{created: time.Now(), sessionID: sessionID}
	s.mu.Unlock()

	return &AuthResponse{Token: token, Profile: profile}
}

// ValidateRequest reports whether token is present and unexpired. Never mutates state.
func (s *Service) ValidateRequest(ctx context.Context, token ids.AuthToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[token]
	if !ok {
		return false
	}
	return time.Since(state.created) < s.authTTL
}

// Refresh resets a present token's created instant to now, extending its validity window.
// Reports false if the token is not present.
func (s *Service) Refresh(ctx context.Context, token ids.AuthToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[token]
	if !ok {
		return false
	}
	state.created = time.Now()
	s.sessions[token] = state
	return true
}

// Logout removes token, reporting whether it was present.
func (s *Service) Logout(token ids.AuthToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[token]
	delete(s.sessions, token)
	return ok
}

func (s *Service) runBackground() {
	reloadTicker := time.NewTicker(reloadInterval)
	sweepTicker := time.NewTicker(sweepInterval)
	defer reloadTicker.Stop()
	defer sweepTicker.Stop()

	for {
		select {
		case <-reloadTicker.C:
			s.reload()
		case <-sweepTicker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *Service) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.store.Reload(ctx); err != nil {
		s.log.Error().Err(err).Msg("user database reload failed, retaining prior snapshot")
	}
}

func (s *Service) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for token, state := range s.sessions {
		if now.Sub(state.created) >= s.authTTL {
			delete(s.sessions, token)
		}
	}
	s.lastSwept = now
}
