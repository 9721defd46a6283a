package room

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/ids"
)

// defaultRoomID is the one permanent room, created at boot and never destroyed by the
// core.
const defaultRoomID ids.RoomID = "default"

// TokenValidator is the capability RoomManager needs from PresenceService: validate an
// AuthToken without mutating state. Defined here (rather than imported from the presence
// package) so room never imports presence; *presence.Service satisfies it structurally.
type TokenValidator interface {
	ValidateRequest(ctx context.Context, token ids.AuthToken) bool
}

type joinRoomCmd struct {
	room        ids.RoomID
	participant RosterParticipant
	token       ids.AuthToken
}

type managerCommand struct {
	join      *joinRoomCmd
	listRooms *listRoomsCmd
	closeRoom *closeRoomCmd
}

type listRoomsCmd struct {
	reply chan<- []ids.RoomID
}

type closeRoomCmd struct {
	room  ids.RoomID
	reply chan<- bool
}

// Manager is the RoomManager singleton: the single source of truth for the
// RoomId -> Room mapping, lazy room creation, and join authorization.
type Manager struct {
	log       zerolog.Logger
	validator TokenValidator

	directory map[ids.RoomID]*Room
	mailbox   chan managerCommand
	done      chan struct{}
	once      sync.Once
}

// NewManager constructs a RoomManager, unconditionally creates the permanent "default"
// room, and starts the manager's own goroutine.
func NewManager(validator TokenValidator, log zerolog.Logger) *Manager {
	m := &Manager{
		log:       log.With().Str("component", "room_manager").Logger(),
		validator: validator,
		directory: make(map[ids.RoomID]*Room),
		mailbox:   make(chan managerCommand, 256),
		done:      make(chan struct{}),
	}
	m.directory[defaultRoomID] = newRoom(defaultRoomID, false, m.log, m.onRoomEmpty)
	go m.run()
	return m
}

// Stop halts the manager's background goroutine. Rooms it created keep running until
// their own lifecycle ends; this only affects the directory actor itself.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.done) })
}

// JoinRoom validates token, finds-or-creates the named room, and forwards AddParticipant.
// On an invalid token the participant receives JoinDeclined instead. Room names are used
// verbatim; trimming is the caller's responsibility.
func (m *Manager) JoinRoom(ctx context.Context, roomID ids.RoomID, participant RosterParticipant, token ids.AuthToken) {
	select {
	case m.mailbox <- managerCommand{join: &joinRoomCmd{room: roomID, participant: participant, token: token}}:
	case <-m.done:
	case <-ctx.Done():
	}
}

// ListRooms returns the current room keyset.
func (m *Manager) ListRooms(ctx context.Context) []ids.RoomID {
	reply := make(chan []ids.RoomID, 1)
	select {
	case m.mailbox <- managerCommand{listRooms: &listRoomsCmd{reply: reply}}:
	case <-m.done:
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case rooms := <-reply:
		return rooms
	case <-ctx.Done():
		return nil
	}
}

// CloseRoom removes room from the directory and reports whether removal happened.
func (m *Manager) CloseRoom(ctx context.Context, roomID ids.RoomID) bool {
	reply := make(chan bool, 1)
	select {
	case m.mailbox <- managerCommand{closeRoom: &closeRoomCmd{room: roomID, reply: reply}}:
	case <-m.done:
		return false
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// onRoomEmpty is passed into every room created by this manager as its closure callback.
// It runs on the Room's own goroutine, so it must not block; it simply posts a fire-and-
// forget close request to the manager's mailbox.
func (m *Manager) onRoomEmpty(roomID ids.RoomID) {
	select {
	case m.mailbox <- managerCommand{closeRoom: &closeRoomCmd{room: roomID}}:
	case <-m.done:
	default:
	}
}

func (m *Manager) run() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-m.mailbox:
			m.handle(cmd)
		case <-ticker.C:
			m.gc()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handle(cmd managerCommand) {
	switch {
	case cmd.join != nil:
		m.handleJoin(*cmd.join)
	case cmd.listRooms != nil:
		cmd.listRooms.reply <- m.roomKeys()
	case cmd.closeRoom != nil:
		m.handleClose(*cmd.closeRoom)
	}
}

func (m *Manager) handleJoin(cmd joinRoomCmd) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if !m.validator.ValidateRequest(ctx, cmd.token) {
		m.declineJoin(cmd)
		return
	}

	r, ok := m.directory[cmd.room]
	if !ok {
		r = newRoom(cmd.room, true, m.log, m.onRoomEmpty)
		m.directory[cmd.room] = r
	}
	if !r.liveness.IsLive() {
		m.log.Warn().Str("room", string(cmd.room)).Msg("room stopped immediately after creation")
		m.declineJoin(cmd)
		return
	}
	r.AddParticipant(cmd.participant)
}

func (m *Manager) declineJoin(cmd joinRoomCmd) {
	if peer, ok := cmd.participant.Peer.Upgrade(); ok {
		peer.DeliverRoomEvent(Event{JoinDeclined: &JoinDeclinedEvent{Room: cmd.room}})
	}
}

func (m *Manager) handleClose(cmd closeRoomCmd) {
	_, existed := m.directory[cmd.room]
	if existed {
		delete(m.directory, cmd.room)
	}
	if cmd.reply != nil {
		cmd.reply <- existed
	}
}

func (m *Manager) roomKeys() []ids.RoomID {
	out := make([]ids.RoomID, 0, len(m.directory))
	for id := range m.directory {
		out = append(out, id)
	}
	return out
}

// gc removes directory entries whose Room has stopped.
func (m *Manager) gc() {
	for id, r := range m.directory {
		if id == defaultRoomID {
			continue
		}
		if !r.liveness.IsLive() {
			delete(m.directory, id)
		}
	}
}
