// Package wire defines the JSON wire protocol exchanged over the /ws endpoint: tagged
// unions in both directions, discriminated by a "type" field with camelCase names,
// adapted from an opcode+seq envelope style to this protocol's flatter
// "type"-discriminated envelope.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// envelope is the shape every inbound and outbound frame shares: a discriminant plus the
// rest of the payload's fields, re-decoded into a concrete type once the discriminant is
// known.
type envelope struct {
	Type string `json:"type"`
}

// ---- Inbound: ConnectionCommand (pre-auth) ----

// ConnectionCommandType enumerates the discriminants accepted before Session binding.
type ConnectionCommandType string

const AuthenticateType ConnectionCommandType = "authenticate"

// Credentials is the tagged union carried by an Authenticate command.
type Credentials struct {
	Type     string `json:"type"` // "usernamePassword" | "adHoc"
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
}

const (
	CredentialUsernamePassword = "usernamePassword"
	CredentialAdHoc            = "adHoc"
)

// AuthenticateCommand is the sole recognized ConnectionCommand.
type AuthenticateCommand struct {
	Credentials Credentials `json:"credentials"`
}

// ParseConnectionCommand decodes a raw frame into an AuthenticateCommand. Any other
// discriminant, or malformed JSON, is a parse error: the caller logs and continues
// without disconnecting.
func ParseConnectionCommand(raw []byte) (*AuthenticateCommand, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type != string(AuthenticateType) {
		return nil, fmt.Errorf("unrecognized connection command %q", env.Type)
	}
	var cmd AuthenticateCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, fmt.Errorf("decode authenticate command: %w", err)
	}
	return &cmd, nil
}

// ---- Inbound: SessionCommand (post-auth) ----

// SessionCommandType enumerates the discriminants accepted once a Session is bound.
type SessionCommandType string

const (
	JoinCommand        SessionCommandType = "join"
	ChatRoomCommand    SessionCommandType = "chatRoom"
	ListRoomsCommand   SessionCommandType = "listRooms"
	ListMyRoomsCommand SessionCommandType = "listMyRooms"
	ShutDownCommand    SessionCommandType = "shutDown"
)

// RoomCommandType enumerates the discriminants nested under a "chatRoom" command.
type RoomCommandType string

const (
	LeaveRoomCommand            RoomCommandType = "leave"
	MessageRoomCommand          RoomCommandType = "message"
	ListParticipantsRoomCommand RoomCommandType = "listParticipants"
)

// RoomSubCommand is the payload nested under a ChatRoom command's "command" field.
type RoomSubCommand struct {
	Type    RoomCommandType `json:"type"`
	Content string          `json:"content,omitempty"`
}

// SessionCommand is the decoded form of any post-auth inbound frame. Only the fields
// relevant to Type are populated.
type SessionCommand struct {
	Type    SessionCommandType `json:"type"`
	Room    ids_RoomID         `json:"room,omitempty"`
	Command RoomSubCommand     `json:"command,omitempty"`
}

// ids_RoomID keeps field names aligned with the rest of the core without importing
// internal/ids; it is a plain string alias used only at the wire boundary.
type ids_RoomID = string

// ParseSessionCommand decodes a raw frame into a SessionCommand. An unknown discriminant
// is a parse error: log and continue.
func ParseSessionCommand(raw []byte) (*SessionCommand, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch SessionCommandType(env.Type) {
	case JoinCommand, ChatRoomCommand, ListRoomsCommand, ListMyRoomsCommand, ShutDownCommand:
	default:
		return nil, fmt.Errorf("unrecognized session command %q", env.Type)
	}
	var cmd SessionCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, fmt.Errorf("decode session command: %w", err)
	}
	return &cmd, nil
}

// ---- Outbound: SessionMessage ----

// WireProfile is the JSON shape of a UserProfile on the wire.
type WireProfile struct {
	FullName string `json:"fullName"`
}

// WireParticipant is the JSON shape of one roster entry on the wire.
type WireParticipant struct {
	FullName  string `json:"fullName"`
	SessionID string `json:"sessionId"`
}

// WireChatMessage is the JSON shape of one ChatMessage on the wire.
type WireChatMessage struct {
	Content string    `json:"content"`
	Sender  string    `json:"sender"`
	Sent    time.Time `json:"sent"`
	UUID    string    `json:"uuid"`
}

// RoomEventKind discriminates the payload nested in a "roomEvent" message.
type RoomEventKind struct {
	ParticipantJoined *NamedEvent `json:"participantJoined,omitempty"`
	ParticipantLeft   *NamedEvent `json:"participantLeft,omitempty"`
}

// NamedEvent carries the display name of the participant a RoomEvent concerns.
type NamedEvent struct {
	Name string `json:"name"`
}

// Outbound frame constructors. Each returns the JSON encoding of a struct keyed by "type";
// the Go field tags spell out the camelCase wire names.

type welcomeFrame struct {
	Type    string `json:"type"`
	Session struct {
		SessionID string `json:"sessionId"`
	} `json:"session"`
}

// NewWelcomeFrame builds the frame sent immediately on accept, before authentication.
func NewWelcomeFrame(sessionID ids_RoomID) []byte {
	f := welcomeFrame{Type: "welcome"}
	f.Session.SessionID = sessionID
	b, _ := json.Marshal(f)
	return b
}

type simpleFrame struct {
	Type string `json:"type"`
}

// NewAuthenticatedFrame builds the frame sent once Session binding completes.
func NewAuthenticatedFrame() []byte {
	b, _ := json.Marshal(simpleFrame{Type: "authenticated"})
	return b
}

type profileFrame struct {
	Type    string      `json:"type"`
	Profile WireProfile `json:"profile"`
}

// NewProfileFrame builds an optional profile-push frame.
func NewProfileFrame(p WireProfile) []byte {
	b, _ := json.Marshal(profileFrame{Type: "profile", Profile: p})
	return b
}

type roomListFrame struct {
	Type  string   `json:"type"`
	Rooms []string `json:"rooms"`
}

// NewRoomListFrame builds the reply to ListRooms.
func NewRoomListFrame(rooms []string) []byte {
	b, _ := json.Marshal(roomListFrame{Type: "roomList", Rooms: rooms})
	return b
}

// NewMyRoomListFrame builds the reply to ListMyRooms, and the push sent on join/leave.
func NewMyRoomListFrame(rooms []string) []byte {
	b, _ := json.Marshal(roomListFrame{Type: "myRoomList", Rooms: rooms})
	return b
}

type roomParticipantsFrame struct {
	Type         string            `json:"type"`
	Room         string            `json:"room"`
	Participants []WireParticipant `json:"participants"`
}

// NewRoomParticipantsFrame builds a roster snapshot frame.
func NewRoomParticipantsFrame(room string, participants []WireParticipant) []byte {
	b, _ := json.Marshal(roomParticipantsFrame{Type: "roomParticipants", Room: room, Participants: participants})
	return b
}

type roomEventFrame struct {
	Type  string        `json:"type"`
	Room  string        `json:"room"`
	Event RoomEventKind `json:"event"`
}

// NewParticipantJoinedFrame builds a roomEvent frame announcing a join.
func NewParticipantJoinedFrame(room, name string) []byte {
	b, _ := json.Marshal(roomEventFrame{Type: "roomEvent", Room: room, Event: RoomEventKind{ParticipantJoined: &NamedEvent{Name: name}}})
	return b
}

// NewParticipantLeftFrame builds a roomEvent frame announcing a departure.
func NewParticipantLeftFrame(room, name string) []byte {
	b, _ := json.Marshal(roomEventFrame{Type: "roomEvent", Room: room, Event: RoomEventKind{ParticipantLeft: &NamedEvent{Name: name}}})
	return b
}

type messageFrame struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	Message WireChatMessage `json:"message"`
}

// NewMessageFrame builds a single chat-message delivery frame.
func NewMessageFrame(room string, msg WireChatMessage) []byte {
	b, _ := json.Marshal(messageFrame{Type: "message", Room: room, Message: msg})
	return b
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorFrame builds a client-visible error frame.
func NewErrorFrame(message string) []byte {
	b, _ := json.Marshal(errorFrame{Type: "error", Message: message})
	return b
}

// NewJoinDeclinedErrorFrame builds the error frame sent when a join is declined.
func NewJoinDeclinedErrorFrame(room string) []byte {
	return NewErrorFrame(fmt.Sprintf("unable to join room %s", room))
}

// NewUUID returns a fresh random UUID string, used for ChatMessage.uuid.
func NewUUID() string { return uuid.NewString() }
