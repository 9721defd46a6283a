// Package session implements the Session actor and the SessionManager singleton: the
// identity tier between a Connection and the Rooms it has joined. A Session is its own
// goroutine behind a buffered mailbox with done-channel shutdown, reachable from a
// Connection or a Room only through a weak reference, never a strong pointer, so the
// Session<->Room and Session<->Connection cycles never keep a stopped actor alive.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/actorref"
	"github.com/signalmesh/server/internal/ids"
	"github.com/signalmesh/server/internal/room"
	"github.com/signalmesh/server/internal/userdb"
	"github.com/signalmesh/server/internal/wire"
)

// connectionCheckInterval is how often a Session probes its Connection weak reference.
const connectionCheckInterval = 5 * time.Second

// orphanTTL is how long a Session tolerates an unreachable Connection before stopping
// itself.
const orphanTTL = 10 * time.Second

// ConnectionHandle is the capability a Session needs from its bound Connection: push a
// fully-encoded outbound frame. Defined here so session never imports connection;
// *connection.Connection satisfies it structurally.
type ConnectionHandle interface {
	FromSession(raw []byte)
}

// SessionRef is a weak, non-owning handle to a Session.
type SessionRef = actorref.Ref[*Session]

type command struct {
	fromClient *wire.SessionCommand
	fromRoom   *room.Event
}

// Session represents one authenticated identity bound to one Connection. All state below
// is private to the goroutine started by newSession; nothing else touches it directly.
type Session struct {
	id      ids.SessionID
	log     zerolog.Logger
	manager *Manager

	authToken ids.AuthToken
	profile   userdb.Profile

	connRef           actorref.Ref[ConnectionHandle]
	lastSeenConnected time.Time
	joinedRooms       map[ids.RoomID]room.RoomRef

	mailbox chan command
	done    chan struct{}
	once    sync.Once

	liveness *actorref.Liveness

	debugCommandsEnabled bool
}

func newSession(manager *Manager, id ids.SessionID, token ids.AuthToken, profile userdb.Profile, connRef actorref.Ref[ConnectionHandle], debugCommandsEnabled bool, log zerolog.Logger) *Session {
	s := &Session{
		id:                   id,
		log:                  log.With().Str("session", id.String()).Logger(),
		manager:              manager,
		authToken:            token,
		profile:              profile,
		connRef:              connRef,
		lastSeenConnected:    time.Now(),
		joinedRooms:          make(map[ids.RoomID]room.RoomRef),
		mailbox:              make(chan command, 256),
		done:                 make(chan struct{}),
		liveness:             actorref.NewLiveness(),
		debugCommandsEnabled: debugCommandsEnabled,
	}
	go s.run()
	return s
}

// Ref returns a weak, non-owning handle to this Session.
func (s *Session) Ref() SessionRef { return actorref.New(s, s.liveness) }

// ID returns the session's identifier.
func (s *Session) ID() ids.SessionID { return s.id }

func (s *Session) stop() {
	s.once.Do(func() {
		s.liveness.Stop()
		close(s.done)
		if s.manager != nil {
			s.manager.forget(s.id)
		}
	})
}

func (s *Session) send(cmd command) {
	select {
	case s.mailbox <- cmd:
	case <-s.done:
	}
}

// HandleCommand forwards a decoded SessionCommand from the bound Connection, for
// processing on the Session's own goroutine.
func (s *Session) HandleCommand(cmd wire.SessionCommand) { s.send(command{fromClient: &cmd}) }

// DeliverRoomEvent implements room.Participant: Room events arrive here fire-and-forget.
func (s *Session) DeliverRoomEvent(ev room.Event) { s.send(command{fromRoom: &ev}) }

// Stop requests the Session terminate. Idempotent.
func (s *Session) Stop() { s.stop() }

func (s *Session) run() {
	ticker := time.NewTicker(connectionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-s.mailbox:
			s.handle(cmd)
		case <-ticker.C:
			s.checkConnection()
		case <-s.done:
			return
		}
	}
}

func (s *Session) handle(cmd command) {
	switch {
	case cmd.fromClient != nil:
		s.handleClientCommand(*cmd.fromClient)
	case cmd.fromRoom != nil:
		s.handleRoomEvent(*cmd.fromRoom)
	}
}

func (s *Session) handleClientCommand(cmd wire.SessionCommand) {
	switch cmd.Type {
	case wire.JoinCommand:
		s.handleJoin(cmd.Room)
	case wire.ChatRoomCommand:
		s.handleChatRoom(cmd.Room, cmd.Command)
	case wire.ListRoomsCommand:
		s.handleListRooms()
	case wire.ListMyRoomsCommand:
		s.emitMyRoomList()
	case wire.ShutDownCommand:
		s.handleShutDown()
	default:
		s.log.Debug().Str("type", string(cmd.Type)).Msg("unrecognized session command")
	}
}

func (s *Session) handleJoin(roomID string) {
	if roomID == "" {
		s.deliver(wire.NewErrorFrame(fmt.Sprintf("unable to join room %s", roomID)))
		return
	}
	participant := room.RosterParticipant{
		SessionID: s.id,
		Peer:      actorref.New[room.Participant](s, s.liveness),
		Profile:   room.UserProfile{FullName: s.profile.FullName},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.manager.roomManager.JoinRoom(ctx, ids.RoomID(roomID), participant, s.authToken)
}

func (s *Session) handleChatRoom(roomID string, sub wire.RoomSubCommand) {
	ref, ok := s.joinedRooms[ids.RoomID(roomID)]
	if !ok {
		return
	}
	r, ok := ref.Upgrade()
	if !ok {
		delete(s.joinedRooms, ids.RoomID(roomID))
		return
	}

	switch sub.Type {
	case wire.LeaveRoomCommand:
		r.RemoveParticipant(s.id)
	case wire.MessageRoomCommand:
		r.Forward(s.id, sub.Content)
	case wire.ListParticipantsRoomCommand:
		r.GetParticipants(s.id)
	}
}

func (s *Session) handleListRooms() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rooms := s.manager.roomManager.ListRooms(ctx)
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, string(r))
	}
	s.deliver(wire.NewRoomListFrame(out))
}

// handleShutDown stops this Session when debug commands are enabled. Only the Session is
// stopped; the server process keeps running.
func (s *Session) handleShutDown() {
	if !s.debugCommandsEnabled {
		s.log.Debug().Msg("shutDown command rejected, debug commands disabled")
		return
	}
	s.log.Warn().Msg("shutDown command received, stopping session")
	s.stop()
}

func (s *Session) handleRoomEvent(ev room.Event) {
	switch {
	case ev.Joined != nil:
		s.joinedRooms[ev.Joined.Room] = ev.Joined.Ref
		s.emitMyRoomList()
	case ev.ChatMessage != nil:
		m := ev.ChatMessage.Message
		s.deliver(wire.NewMessageFrame(string(ev.ChatMessage.Room), wire.WireChatMessage{
			Content: m.Content,
			Sender:  m.Sender.String(),
			Sent:    m.SentTime(),
			UUID:    m.UUID,
		}))
	case ev.RoomState != nil:
		s.deliver(wire.NewRoomParticipantsFrame(string(ev.RoomState.Room), toWireParticipants(ev.RoomState.Roster)))
	case ev.RoomEvent != nil:
		s.deliverRoomEvent(ev.RoomEvent.Room, ev.RoomEvent.Kind)
	case ev.History != nil:
		for _, m := range ev.History.Messages {
			s.deliver(wire.NewMessageFrame(string(ev.History.Room), wire.WireChatMessage{
				Content: m.Content,
				Sender:  m.Sender.String(),
				Sent:    m.SentTime(),
				UUID:    m.UUID,
			}))
		}
	case ev.Left != nil:
		delete(s.joinedRooms, ev.Left.Room)
		s.emitMyRoomList()
	case ev.JoinDeclined != nil:
		s.deliver(wire.NewJoinDeclinedErrorFrame(string(ev.JoinDeclined.Room)))
	}
}

func (s *Session) deliverRoomEvent(roomID ids.RoomID, kind room.RoomEventKind) {
	switch {
	case kind.ParticipantJoined != nil:
		s.deliver(wire.NewParticipantJoinedFrame(string(roomID), *kind.ParticipantJoined))
	case kind.ParticipantLeft != nil:
		s.deliver(wire.NewParticipantLeftFrame(string(roomID), *kind.ParticipantLeft))
	}
}

func (s *Session) emitMyRoomList() {
	rooms := make([]string, 0, len(s.joinedRooms))
	for id := range s.joinedRooms {
		rooms = append(rooms, string(id))
	}
	s.deliver(wire.NewMyRoomListFrame(rooms))
}

func (s *Session) deliver(raw []byte) {
	conn, ok := s.connRef.Upgrade()
	if !ok {
		s.log.Debug().Msg("connection reference dead, dropping outbound frame")
		return
	}
	conn.FromSession(raw)
}

func toWireParticipants(roster []room.RosterEntry) []wire.WireParticipant {
	out := make([]wire.WireParticipant, 0, len(roster))
	for _, r := range roster {
		out = append(out, wire.WireParticipant{FullName: r.Profile.FullName, SessionID: r.SessionID.String()})
	}
	return out
}

// checkConnection probes the Connection weak reference; if live, refreshes
// lastSeenConnected, otherwise stops self once the gap exceeds orphanTTL.
func (s *Session) checkConnection() {
	if _, ok := s.connRef.Upgrade(); ok {
		s.lastSeenConnected = time.Now()
		return
	}
	if time.Since(s.lastSeenConnected) > orphanTTL {
		s.log.Debug().Msg("connection unreachable past orphan TTL, stopping session")
		s.stop()
	}
}
