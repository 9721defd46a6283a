package wire

import "errors"

// Custom WebSocket close codes used by this protocol. Standard codes (1000, 1001) are
// defined by RFC 6455; the 4000 range is reserved for application use.
const (
	CloseUnknownError         = 4000
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthFailed           = 4004
	CloseAlreadyAuthenticated = 4005
	ClosePeerGone             = 4006
	CloseSessionTimedOut      = 4009
)

// Sentinel errors for connection/session failure modes. Each maps to a close code above,
// except ErrParseError which is logged and does not close the socket (it has no code).
var (
	ErrNotAuthenticated     = errors.New("connection is not authenticated")
	ErrAlreadyAuthenticated = errors.New("connection is already authenticated")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrSessionTimedOut      = errors.New("session timed out")
	ErrPeerGone             = errors.New("referenced peer is no longer live")
	ErrParseError           = errors.New("malformed or unrecognized command")
)
