// Package auth implements the parallel REST login surface: short-lived JWT access tokens
// plus rotating opaque refresh tokens backed by Valkey, authenticated against the same
// userdb.Store the WebSocket gateway's presence service consults.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/userdb"
)

// Service implements the login/refresh business logic, keeping HTTP handlers thin and focused
// on request parsing and response formatting.
type Service struct {
	store      userdb.Store
	redis      *redis.Client
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	log        zerolog.Logger
}

// NewService creates a new authentication service backed by store for credential lookups and
// rdb for refresh token storage.
func NewService(store userdb.Store, rdb *redis.Client, jwtSecret string, accessTTL, refreshTTL time.Duration, issuer string, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		redis:      rdb,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     issuer,
		log:        logger,
	}
}

// LoginRequest carries the username/password pair submitted to POST /api/v1/auth/login.
type LoginRequest struct {
	Username string
	Password string
}

// TokenPair is an access/refresh token pair returned to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned on successful login: the authenticated profile plus a fresh token
// pair.
type AuthResult struct {
	Username string
	FullName string
	Tokens   TokenPair
}

// Login verifies username/password against the userdb snapshot and, on success, issues a new
// access/refresh token pair. Returns ErrInvalidCredentials for any lookup or verification
// failure, never distinguishing "unknown user" from "wrong password" to the caller.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load userdb snapshot: %w", err)
	}

	stored, ok := snap.Credentials[req.Username]
	if !ok || !s.store.VerifyPassword(stored, req.Password) {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Username: req.Username,
		FullName: snap.Profiles[req.Username].FullName,
		Tokens:   *tokens,
	}, nil
}

// Refresh rotates a refresh token, returning a new token pair. If oldToken has already been
// consumed, returns ErrRefreshTokenReused: the caller should treat this as a signal of
// possible token theft.
func (s *Service) Refresh(ctx context.Context, oldToken string) (*TokenPair, error) {
	newRefresh, subject, err := RotateRefreshToken(ctx, s.redis, oldToken, s.refreshTTL)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenReused) {
			return nil, err
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	accessToken, err := NewAccessToken(subject, s.jwtSecret, s.accessTTL, s.issuer)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: newRefresh}, nil
}

// issueTokens mints a fresh access/refresh token pair for subject (the userdb username).
func (s *Service) issueTokens(ctx context.Context, subject string) (*TokenPair, error) {
	accessToken, err := NewAccessToken(subject, s.jwtSecret, s.accessTTL, s.issuer)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := CreateRefreshToken(ctx, s.redis, subject, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
