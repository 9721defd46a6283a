package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/actorref"
	"github.com/signalmesh/server/internal/room"
	"github.com/signalmesh/server/internal/userdb"
	"github.com/signalmesh/server/internal/wire"
)

func newBoundSession(t *testing.T, debugCommandsEnabled bool) (*Session, *fakeConn, *room.Manager) {
	t.Helper()
	rm := room.NewManager(alwaysValid{}, zerolog.Nop())
	t.Cleanup(rm.Stop)
	sm := NewManager(&fakeAuth{succeed: true, profile: userdb.Profile{FullName: "Alice"}}, rm, debugCommandsEnabled, zerolog.Nop())
	t.Cleanup(sm.Stop)

	conn := newFakeConn()
	life := actorref.NewLiveness()
	connRef := actorref.New[ConnectionHandle](conn, life)

	sess, ok := sm.AssociateConnection(context.Background(), connRef, AdHocCredentials{Username: "alice"})
	if !ok {
		t.Fatal("expected association to succeed")
	}
	return sess, conn, rm
}

func frameType(t *testing.T, raw []byte) string {
	t.Helper()
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return env.Type
}

func TestSessionJoinEmitsMyRoomListAndParticipants(t *testing.T) {
	t.Parallel()
	sess, conn, _ := newBoundSession(t, false)

	sess.HandleCommand(wire.SessionCommand{Type: wire.JoinCommand, Room: "lobby"})

	first := conn.expect(t, time.Second)
	if frameType(t, first) != "myRoomList" {
		t.Fatalf("want myRoomList, got %s", frameType(t, first))
	}
	second := conn.expect(t, time.Second)
	if frameType(t, second) != "roomParticipants" {
		t.Fatalf("want roomParticipants, got %s", frameType(t, second))
	}
}

func TestSessionChatRoomMessageEchoesToSelf(t *testing.T) {
	t.Parallel()
	sess, conn, _ := newBoundSession(t, false)

	sess.HandleCommand(wire.SessionCommand{Type: wire.JoinCommand, Room: "lobby"})
	conn.expect(t, time.Second)
	conn.expect(t, time.Second)

	sess.HandleCommand(wire.SessionCommand{
		Type: wire.ChatRoomCommand,
		Room: "lobby",
		Command: wire.RoomSubCommand{Type: wire.MessageRoomCommand, Content: "hi there"},
	})

	raw := conn.expect(t, time.Second)
	if frameType(t, raw) != "message" {
		t.Fatalf("want message, got %s", frameType(t, raw))
	}
}

func TestSessionLeaveEmitsMyRoomListWithoutRoom(t *testing.T) {
	t.Parallel()
	sess, conn, _ := newBoundSession(t, false)

	sess.HandleCommand(wire.SessionCommand{Type: wire.JoinCommand, Room: "lobby"})
	conn.expect(t, time.Second)
	conn.expect(t, time.Second)

	sess.HandleCommand(wire.SessionCommand{
		Type:    wire.ChatRoomCommand,
		Room:    "lobby",
		Command: wire.RoomSubCommand{Type: wire.LeaveRoomCommand},
	})

	raw := conn.expect(t, time.Second)
	if frameType(t, raw) != "myRoomList" {
		t.Fatalf("want myRoomList after leave, got %s", frameType(t, raw))
	}
}

func TestSessionListRoomsIncludesDefault(t *testing.T) {
	t.Parallel()
	sess, conn, _ := newBoundSession(t, false)

	sess.HandleCommand(wire.SessionCommand{Type: wire.ListRoomsCommand})
	raw := conn.expect(t, time.Second)
	if frameType(t, raw) != "roomList" {
		t.Fatalf("want roomList, got %s", frameType(t, raw))
	}
	var frame struct {
		Rooms []string `json:"rooms"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode roomList: %v", err)
	}
	found := false
	for _, r := range frame.Rooms {
		if r == "default" {
			found = true
		}
	}
	if !found {
		t.Fatalf("want default in roomList, got %v", frame.Rooms)
	}
}

func TestSessionShutDownDisabledIsRejected(t *testing.T) {
	t.Parallel()
	sess, conn, _ := newBoundSession(t, false)

	sess.HandleCommand(wire.SessionCommand{Type: wire.ShutDownCommand})

	select {
	case raw := <-conn.frames:
		t.Fatalf("expected no frame, got %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
	if !sess.liveness.IsLive() {
		t.Fatal("expected session to remain live when debug commands disabled")
	}
}

func TestSessionShutDownEnabledStopsSession(t *testing.T) {
	t.Parallel()
	sess, _, _ := newBoundSession(t, true)

	sess.HandleCommand(wire.SessionCommand{Type: wire.ShutDownCommand})
	time.Sleep(50 * time.Millisecond)

	if sess.liveness.IsLive() {
		t.Fatal("expected session to stop when debug commands enabled")
	}
}
