package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/signalmesh/server/internal/auth"
	"github.com/signalmesh/server/internal/httputil"
)

// AuthHandler serves the REST login/refresh endpoints that sit alongside the WebSocket
// gateway's own ad-hoc/username-password authentication.
type AuthHandler struct {
	Auth *auth.Service
}

// loginRequest is the JSON body for POST /api/v1/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// refreshRequest is the JSON body for POST /api/v1/auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// authResultResponse builds the JSON payload for a successful login.
func authResultResponse(result *auth.AuthResult) fiber.Map {
	return fiber.Map{
		"username":      result.Username,
		"full_name":     result.FullName,
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
	}
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body loginRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.InvalidBody, "Invalid request body")
	}
	if body.Username == "" || body.Password == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.InvalidBody, "username and password are required")
	}

	result, err := h.Auth.Login(c.Context(), auth.LoginRequest{
		Username: body.Username,
		Password: body.Password,
	})
	if err != nil {
		return mapAuthError(c, err)
	}

	return httputil.Success(c, authResultResponse(result))
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var body refreshRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.InvalidBody, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.InvalidBody, "refresh_token is required")
	}

	tokens, err := h.Auth.Refresh(c.Context(), body.RefreshToken)
	if err != nil {
		return mapAuthError(c, err)
	}

	return httputil.Success(c, fiber.Map{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

// mapAuthError converts auth-layer errors to appropriate HTTP responses.
func mapAuthError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.Unauthorised, err.Error())
	case errors.Is(err, auth.ErrRefreshTokenReused):
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.Unauthorised, "refresh token has already been used")
	case errors.Is(err, auth.ErrRefreshTokenNotFound):
		return httputil.Fail(c, fiber.StatusUnauthorized, httputil.Unauthorised, "refresh token not found")
	default:
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.InternalError, "an internal error occurred")
	}
}
