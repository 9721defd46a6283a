// Package connection implements the Connection actor: terminates one WebSocket, owns its
// sink, and dispatches inbound frames to one of two handlers depending on whether a
// Session has been bound yet. A readPump/writePump goroutine pair drives the socket, with
// a done channel and sync.Once guarding shutdown and a buffered send channel decoupling
// writers from the outbound goroutine.
package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/actorref"
	"github.com/signalmesh/server/internal/ids"
	"github.com/signalmesh/server/internal/session"
	"github.com/signalmesh/server/internal/wire"
)

// authTimeout bounds how long an Authenticate command may take to resolve.
const authTimeout = 2 * time.Second

const (
	// maxMessageSize is the maximum size in bytes of a single inbound WebSocket message.
	maxMessageSize = 8192

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pingInterval is the keep-alive ping cadence.
	pingInterval = 5 * time.Second

	// pongWait must exceed pingInterval so a single missed pong doesn't immediately sever
	// the connection.
	pongWait = pingInterval * 3
)

// Authenticator is the capability a Connection needs to hand off an Authenticate command:
// validate credentials and, on success, return a bound Session. *session.Manager satisfies
// this directly; session never imports connection, so this package is free to depend on
// session's concrete types without an import cycle.
type Authenticator interface {
	AssociateConnection(ctx context.Context, connRef actorref.Ref[session.ConnectionHandle], creds any) (*session.Session, bool)
}

// state is the Connection's two-state machine.
type state int32

const (
	stateUnauthenticated state = iota
	stateAuthenticated
)

// Connection terminates one WebSocket connection. All mutable fields below are touched
// only by readPump except where noted; sessRef uses atomic access: it is stored when the
// Session is bound and loaded by the authenticated frame handler and by stop().
type Connection struct {
	id   ids.ConnectionID
	conn *websocket.Conn
	log  zerolog.Logger
	auth Authenticator

	send chan []byte
	done chan struct{}
	once sync.Once

	liveness *actorref.Liveness

	state   atomic.Int32
	sessRef atomic.Pointer[actorref.Ref[*session.Session]]
}

// New constructs a Connection over an already-upgraded WebSocket and starts its read and
// write pumps.
func New(conn *websocket.Conn, auth Authenticator, log zerolog.Logger) *Connection {
	id := ids.NewConnectionID()
	c := &Connection{
		id:       id,
		conn:     conn,
		auth:     auth,
		log:      log.With().Str("connection", id.String()).Logger(),
		send:     make(chan []byte, 64),
		done:     make(chan struct{}),
		liveness: actorref.NewLiveness(),
	}
	c.state.Store(int32(stateUnauthenticated))

	go c.writePump()
	go c.readPump()

	c.deliver(wire.NewWelcomeFrame(id.String()))
	return c
}

// Ref returns a weak, non-owning handle to this Connection.
func (c *Connection) Ref() actorref.Ref[*Connection] { return actorref.New(c, c.liveness) }

// FromSession accepts an already-encoded frame and writes it to the sink. Failures log
// and continue; the connection is torn down by its own write loop, not by the caller.
func (c *Connection) FromSession(raw []byte) { c.deliver(raw) }

func (c *Connection) deliver(raw []byte) {
	select {
	case c.send <- raw:
	case <-c.done:
	default:
		c.log.Warn().Msg("outbound buffer full, dropping frame")
	}
}

func (c *Connection) stop() {
	c.once.Do(func() {
		c.liveness.Stop()
		close(c.done)
		if ref := c.sessRef.Load(); ref != nil {
			if sess, ok := ref.Upgrade(); ok {
				sess.Stop()
			}
		}
		_ = c.conn.Close()
	})
}

func (c *Connection) readPump() {
	defer c.stop()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		c.handleFrame(raw)
	}
}

func (c *Connection) handleFrame(raw []byte) {
	switch state(c.state.Load()) {
	case stateUnauthenticated:
		c.handleUnauthenticatedFrame(raw)
	case stateAuthenticated:
		c.handleAuthenticatedFrame(raw)
	}
}

func (c *Connection) handleUnauthenticatedFrame(raw []byte) {
	cmd, err := wire.ParseConnectionCommand(raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("parse error on unauthenticated connection")
		return
	}

	creds, err := toSessionCredentials(cmd.Credentials)
	if err != nil {
		c.log.Debug().Err(err).Msg("unrecognized credential type")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	connRef := actorref.New[session.ConnectionHandle](c, c.liveness)
	sess, ok := c.auth.AssociateConnection(ctx, connRef, creds)
	if !ok {
		c.log.Debug().Msg("authentication failed")
		return
	}

	ref := sess.Ref()
	c.sessRef.Store(&ref)
	c.state.Store(int32(stateAuthenticated))
	c.deliver(wire.NewAuthenticatedFrame())
}

func toSessionCredentials(c wire.Credentials) (any, error) {
	switch c.Type {
	case wire.CredentialUsernamePassword:
		return session.UsernamePasswordCredentials{Username: c.Username, Password: c.Password}, nil
	case wire.CredentialAdHoc:
		return session.AdHocCredentials{Username: c.Username}, nil
	default:
		return nil, wire.ErrParseError
	}
}

func (c *Connection) handleAuthenticatedFrame(raw []byte) {
	ref := c.sessRef.Load()
	if ref == nil {
		return
	}
	sess, ok := ref.Upgrade()
	if !ok {
		c.log.Debug().Msg("bound session no longer live")
		return
	}

	cmd, err := wire.ParseSessionCommand(raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("parse error on authenticated connection")
		c.deliver(wire.NewErrorFrame("could not parse command"))
		return
	}
	sess.HandleCommand(*cmd)
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.log.Debug().Err(err).Msg("websocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
