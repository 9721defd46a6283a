package room

import (
	"time"

	"github.com/signalmesh/server/internal/ids"
)

// UserProfile mirrors the identity information a Session carries; cloned freely, never
// mutated in place.
type UserProfile struct {
	FullName string
}

// Participant is the contract a Room needs from whatever holds a roster seat: deliver an
// Event, fire-and-forget. Implemented by session.Session; defined here so this package
// never imports session, avoiding an import cycle (session imports room, not vice versa).
type Participant interface {
	DeliverRoomEvent(Event)
}

// Event is the sum type of everything a Room sends to a Participant. Exactly one field is
// populated per Event.
type Event struct {
	Joined       *JoinedEvent
	ChatMessage  *ChatMessageEvent
	RoomState    *RoomStateEvent
	RoomEvent    *RoomEventEvent
	History      *HistoryEvent
	Left         *LeftEvent
	JoinDeclined *JoinDeclinedEvent
}

// JoinedEvent notifies a participant it has been added to a room's roster.
type JoinedEvent struct {
	Room ids.RoomID
	Ref  RoomRef
}

// ChatMessageEvent carries one forwarded message to a single participant.
type ChatMessageEvent struct {
	Room    ids.RoomID
	Message ChatMessage
}

// RoomStateEvent carries a full roster snapshot.
type RoomStateEvent struct {
	Room   ids.RoomID
	Roster []RosterEntry
}

// RosterEntry is the roster shape exposed to Session/wire layers; it omits the weak
// reference that is private to the Room's internal roster map.
type RosterEntry struct {
	SessionID ids.SessionID
	Profile   UserProfile
}

// RoomEventKind discriminates what happened; exactly one field is set.
type RoomEventKind struct {
	ParticipantJoined *string
	ParticipantLeft   *string
}

// RoomEventEvent carries a join/leave notification for a room.
type RoomEventEvent struct {
	Room ids.RoomID
	Kind RoomEventKind
}

// HistoryEvent carries the backlog pushed to a participant immediately after it joins.
type HistoryEvent struct {
	Room     ids.RoomID
	Messages []ChatMessage
}

// LeftEvent notifies a participant it has been removed from a room's roster.
type LeftEvent struct {
	Room ids.RoomID
}

// JoinDeclinedEvent notifies a participant that a join attempt was rejected.
type JoinDeclinedEvent struct {
	Room ids.RoomID
}

// SentTime returns a ChatMessage's timestamp as an RFC3339-capable time.Time for wire encoding.
func (m ChatMessage) SentTime() time.Time { return time.Unix(0, m.Sent) }
