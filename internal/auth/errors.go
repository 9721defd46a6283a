package auth

import "errors"

// Sentinel errors for the auth package.
var (
	// ErrRefreshTokenReused is returned when a consumed refresh token is presented again, indicating potential token
	// theft.
	ErrRefreshTokenReused   = errors.New("refresh token reused")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)
