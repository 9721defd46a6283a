// Package room implements the Room and RoomManager actors: the roster/history mesh that
// fans out chat traffic and join/leave notifications to the Sessions participating in a
// named room. Each Room is a single goroutine behind a buffered command mailbox with
// done-channel shutdown; RoomManager is a directory of lazily created Rooms rather than
// one global hub.
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/actorref"
	"github.com/signalmesh/server/internal/ids"
)

// gcInterval is how often a Room prunes roster entries whose weak Session reference no
// longer upgrades.
const gcInterval = 5 * time.Second

// RoomRef is a weak, non-owning handle to a Room.
type RoomRef = actorref.Ref[*Room]

// RosterParticipant is one seat in a Room's roster: created on join, removed on leave or
// GC, never duplicated per SessionId.
type RosterParticipant struct {
	SessionID ids.SessionID
	Peer      actorref.Ref[Participant]
	Profile   UserProfile
}

var sanitizer = bluemonday.StrictPolicy()

// command is the sum type of everything sent to a Room's mailbox.
type command struct {
	addParticipant    *RosterParticipant
	updateProfile     *updateProfileCmd
	removeParticipant *ids.SessionID
	forward           *forwardCmd
	getParticipants   *ids.SessionID
	forceGC           chan<- struct{}
}

type updateProfileCmd struct {
	sessionID ids.SessionID
	profile   UserProfile
}

type forwardCmd struct {
	content string
	sender  ids.SessionID
}

// Room holds one named room's roster and bounded chat history. All state below is
// private to the single goroutine run by start(); no field is read or written from any
// other goroutine.
type Room struct {
	id        ids.RoomID
	ephemeral bool
	log       zerolog.Logger

	history *history
	roster  map[ids.SessionID]RosterParticipant

	mailbox chan command
	done    chan struct{}
	once    sync.Once

	liveness *actorref.Liveness
	onEmpty  func(ids.RoomID)
}

// newRoom constructs a Room and starts its actor goroutine. onEmpty is invoked (from the
// Room's own goroutine) when an ephemeral room's roster becomes empty, so the RoomManager
// can drop its directory entry; it must not block.
func newRoom(id ids.RoomID, ephemeral bool, log zerolog.Logger, onEmpty func(ids.RoomID)) *Room {
	r := &Room{
		id:        id,
		ephemeral: ephemeral,
		log:       log.With().Str("room", string(id)).Logger(),
		history:   newHistory(),
		roster:    make(map[ids.SessionID]RosterParticipant),
		mailbox:   make(chan command, 256),
		done:      make(chan struct{}),
		liveness:  actorref.NewLiveness(),
		onEmpty:   onEmpty,
	}
	go r.run()
	return r
}

// Ref returns a weak, non-owning handle to this Room.
func (r *Room) Ref() RoomRef { return actorref.New(r, r.liveness) }

// ID returns the room's identifier.
func (r *Room) ID() ids.RoomID { return r.id }

// Ephemeral reports whether this room self-destructs when its roster empties.
func (r *Room) Ephemeral() bool { return r.ephemeral }

func (r *Room) stop() {
	r.once.Do(func() {
		r.liveness.Stop()
		close(r.done)
	})
}

// send enqueues cmd, dropping it silently if the Room has already stopped. A stopped
// target is never an error a caller needs to react to, only something worth a debug log.
func (r *Room) send(cmd command) {
	select {
	case r.mailbox <- cmd:
	case <-r.done:
		r.log.Debug().Msg("dropped command on stopped room")
	}
}

// AddParticipant inserts p into the roster, replacing any stale entry for the same
// SessionId, then sends Joined and History to the newcomer and broadcasts RoomState.
func (r *Room) AddParticipant(p RosterParticipant) { r.send(command{addParticipant: &p}) }

// UpdateParticipant updates the roster entry's profile and re-broadcasts RoomState.
func (r *Room) UpdateParticipant(sessionID ids.SessionID, profile UserProfile) {
	r.send(command{updateProfile: &updateProfileCmd{sessionID: sessionID, profile: profile}})
}

// RemoveParticipant removes sessionID from the roster.
func (r *Room) RemoveParticipant(sessionID ids.SessionID) {
	r.send(command{removeParticipant: &sessionID})
}

// Forward appends content to history (sanitized, evicting the oldest entry at capacity)
// and broadcasts it to every live participant including the sender.
func (r *Room) Forward(sender ids.SessionID, content string) {
	r.send(command{forward: &forwardCmd{content: content, sender: sender}})
}

// GetParticipants sends a RoomState snapshot only to the requesting participant.
func (r *Room) GetParticipants(sessionID ids.SessionID) {
	r.send(command{getParticipants: &sessionID})
}

func (r *Room) run() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-r.mailbox:
			r.handle(cmd)
		case <-ticker.C:
			r.gc()
		case <-r.done:
			return
		}
	}
}

func (r *Room) handle(cmd command) {
	switch {
	case cmd.addParticipant != nil:
		r.handleAddParticipant(*cmd.addParticipant)
	case cmd.updateProfile != nil:
		r.handleUpdateProfile(*cmd.updateProfile)
	case cmd.removeParticipant != nil:
		r.handleRemoveParticipant(*cmd.removeParticipant)
	case cmd.forward != nil:
		r.handleForward(*cmd.forward)
	case cmd.getParticipants != nil:
		r.handleGetParticipants(*cmd.getParticipants)
	case cmd.forceGC != nil:
		r.gc()
		close(cmd.forceGC)
	}
}

// triggerGC runs a GC pass on the Room's own goroutine and blocks until it completes.
// Test-only: production code relies on the periodic ticker in run().
func (r *Room) triggerGC() {
	done := make(chan struct{})
	r.send(command{forceGC: done})
	<-done
}

func (r *Room) handleAddParticipant(p RosterParticipant) {
	r.roster[p.SessionID] = p

	if peer, ok := p.Peer.Upgrade(); ok {
		peer.DeliverRoomEvent(Event{Joined: &JoinedEvent{Room: r.id, Ref: r.Ref()}})
		peer.DeliverRoomEvent(Event{History: &HistoryEvent{Room: r.id, Messages: r.history.snapshot()}})
	}
	r.broadcastRoomEvent(p.SessionID, RoomEventKind{ParticipantJoined: &p.Profile.FullName})
	r.broadcastState()
}

func (r *Room) handleUpdateProfile(cmd updateProfileCmd) {
	entry, ok := r.roster[cmd.sessionID]
	if !ok {
		return
	}
	entry.Profile = cmd.profile
	r.roster[cmd.sessionID] = entry
	r.broadcastState()
}

func (r *Room) handleRemoveParticipant(sessionID ids.SessionID) {
	entry, ok := r.roster[sessionID]
	if !ok {
		return
	}
	delete(r.roster, sessionID)

	if peer, ok := entry.Peer.Upgrade(); ok {
		peer.DeliverRoomEvent(Event{Left: &LeftEvent{Room: r.id}})
	}

	if len(r.roster) == 0 && r.ephemeral {
		r.stop()
		if r.onEmpty != nil {
			r.onEmpty(r.id)
		}
		return
	}
	r.broadcastRoomEvent(sessionID, RoomEventKind{ParticipantLeft: &entry.Profile.FullName})
	r.broadcastState()
}

// broadcastRoomEvent notifies every roster entry other than excludeSessionID of a
// join/leave event.
func (r *Room) broadcastRoomEvent(excludeSessionID ids.SessionID, kind RoomEventKind) {
	for sessionID, entry := range r.roster {
		if sessionID == excludeSessionID {
			continue
		}
		peer, ok := entry.Peer.Upgrade()
		if !ok {
			continue
		}
		peer.DeliverRoomEvent(Event{RoomEvent: &RoomEventEvent{Room: r.id, Kind: kind}})
	}
}

func (r *Room) handleForward(cmd forwardCmd) {
	msg := ChatMessage{
		Content: sanitizer.Sanitize(cmd.content),
		Sender:  cmd.sender,
		Sent:    time.Now().UnixNano(),
		UUID:    newMessageUUID(),
	}
	r.history.push(msg)

	for _, entry := range r.roster {
		peer, ok := entry.Peer.Upgrade()
		if !ok {
			continue
		}
		peer.DeliverRoomEvent(Event{ChatMessage: &ChatMessageEvent{Room: r.id, Message: msg}})
	}
}

func (r *Room) handleGetParticipants(sessionID ids.SessionID) {
	entry, ok := r.roster[sessionID]
	if !ok {
		return
	}
	peer, ok := entry.Peer.Upgrade()
	if !ok {
		return
	}
	peer.DeliverRoomEvent(Event{RoomState: &RoomStateEvent{Room: r.id, Roster: r.snapshotRoster()}})
}

func (r *Room) broadcastState() {
	snapshot := r.snapshotRoster()
	for _, entry := range r.roster {
		peer, ok := entry.Peer.Upgrade()
		if !ok {
			continue
		}
		peer.DeliverRoomEvent(Event{RoomState: &RoomStateEvent{Room: r.id, Roster: snapshot}})
	}
}

func (r *Room) snapshotRoster() []RosterEntry {
	out := make([]RosterEntry, 0, len(r.roster))
	for _, entry := range r.roster {
		out = append(out, RosterEntry{SessionID: entry.SessionID, Profile: entry.Profile})
	}
	return out
}

// gc prunes roster entries whose weak Session reference no longer upgrades. If the prune
// removed anyone, RoomState is rebroadcast; if the roster is now empty and the room is
// ephemeral, the room stops itself.
func (r *Room) gc() {
	pruned := false
	for sessionID, entry := range r.roster {
		if _, ok := entry.Peer.Upgrade(); !ok {
			delete(r.roster, sessionID)
			pruned = true
		}
	}

	if len(r.roster) == 0 && r.ephemeral {
		r.stop()
		if r.onEmpty != nil {
			r.onEmpty(r.id)
		}
		return
	}
	if pruned {
		r.broadcastState()
	}
}

// newMessageUUID is overridden in tests for deterministic output.
var newMessageUUID = func() string {
	return uuid.NewString()
}
