package room

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/actorref"
	"github.com/signalmesh/server/internal/ids"
)

// fakePeer is a minimal Participant used to observe events delivered by a Room in tests.
type fakePeer struct {
	events chan Event
}

func newFakePeer() *fakePeer { return &fakePeer{events: make(chan Event, 32)} }

func (f *fakePeer) DeliverRoomEvent(ev Event) { f.events <- ev }

func (f *fakePeer) expect(t *testing.T, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func testRoom(t *testing.T) *Room {
	t.Helper()
	return newRoom("r1", true, zerolog.Nop(), func(ids.RoomID) {})
}

func participantFor(peer *fakePeer) (ids.SessionID, RosterParticipant) {
	sid := ids.NewSessionID()
	life := actorref.NewLiveness()
	ref := actorref.New[Participant](peer, life)
	return sid, RosterParticipant{SessionID: sid, Peer: ref, Profile: UserProfile{FullName: "alice"}}
}

func TestRoomAddParticipantSendsJoinedThenHistoryThenState(t *testing.T) {
	t.Parallel()

	r := testRoom(t)
	peer := newFakePeer()
	_, p := participantFor(peer)
	r.AddParticipant(p)

	ev1 := peer.expect(t, time.Second)
	if ev1.Joined == nil {
		t.Fatalf("want Joined first, got %+v", ev1)
	}
	ev2 := peer.expect(t, time.Second)
	if ev2.History == nil {
		t.Fatalf("want History second, got %+v", ev2)
	}
	ev3 := peer.expect(t, time.Second)
	if ev3.RoomState == nil {
		t.Fatalf("want RoomState third, got %+v", ev3)
	}
}

func TestRoomDuplicateJoinReplacesNotDuplicates(t *testing.T) {
	t.Parallel()

	r := testRoom(t)
	peer := newFakePeer()
	sid, p := participantFor(peer)
	p.SessionID = sid
	r.AddParticipant(p)
	peer.expect(t, time.Second) // Joined
	peer.expect(t, time.Second) // History
	peer.expect(t, time.Second) // RoomState

	r.AddParticipant(p)
	peer.expect(t, time.Second) // Joined
	peer.expect(t, time.Second) // History
	ev := peer.expect(t, time.Second)
	if ev.RoomState == nil || len(ev.RoomState.Roster) != 1 {
		t.Fatalf("want single roster entry after duplicate join, got %+v", ev.RoomState)
	}
}

func TestRoomForwardBroadcastsToAllIncludingSender(t *testing.T) {
	t.Parallel()

	r := testRoom(t)
	peerA, peerB := newFakePeer(), newFakePeer()
	sidA, pA := participantFor(peerA)
	_, pB := participantFor(peerB)

	r.AddParticipant(pA)
	peerA.expect(t, time.Second)
	peerA.expect(t, time.Second)
	peerA.expect(t, time.Second)

	r.AddParticipant(pB)
	peerB.expect(t, time.Second)
	peerB.expect(t, time.Second)
	peerB.expect(t, time.Second)
	peerA.expect(t, time.Second) // RoomEvent: B joined
	peerA.expect(t, time.Second) // A's RoomState rebroadcast on B joining

	r.Forward(sidA, "hello")

	evA := peerA.expect(t, time.Second)
	if evA.ChatMessage == nil || evA.ChatMessage.Message.Content != "hello" {
		t.Fatalf("sender did not receive echo: %+v", evA)
	}
	evB := peerB.expect(t, time.Second)
	if evB.ChatMessage == nil || evB.ChatMessage.Message.Content != "hello" {
		t.Fatalf("other participant did not receive message: %+v", evB)
	}
}

func TestRoomRemoveParticipantShrinksRoster(t *testing.T) {
	t.Parallel()

	r := testRoom(t)
	peerA, peerB := newFakePeer(), newFakePeer()
	sidA, pA := participantFor(peerA)
	_, pB := participantFor(peerB)

	r.AddParticipant(pA)
	peerA.expect(t, time.Second)
	peerA.expect(t, time.Second)
	peerA.expect(t, time.Second)

	r.AddParticipant(pB)
	peerB.expect(t, time.Second)
	peerB.expect(t, time.Second)
	peerB.expect(t, time.Second)
	peerA.expect(t, time.Second) // RoomEvent: B joined
	peerA.expect(t, time.Second) // RoomState rebroadcast

	r.RemoveParticipant(sidA)
	left := peerA.expect(t, time.Second)
	if left.Left == nil {
		t.Fatalf("want Left event, got %+v", left)
	}
	roomEvent := peerB.expect(t, time.Second)
	if roomEvent.RoomEvent == nil || roomEvent.RoomEvent.Kind.ParticipantLeft == nil {
		t.Fatalf("want RoomEvent ParticipantLeft, got %+v", roomEvent)
	}
	state := peerB.expect(t, time.Second)
	if state.RoomState == nil || len(state.RoomState.Roster) != 1 {
		t.Fatalf("want single remaining participant, got %+v", state.RoomState)
	}
}

func TestRoomEphemeralStopsWhenEmpty(t *testing.T) {
	t.Parallel()

	closed := make(chan ids.RoomID, 1)
	r := newRoom("r1", true, zerolog.Nop(), func(id ids.RoomID) { closed <- id })
	peer := newFakePeer()
	sid, p := participantFor(peer)
	r.AddParticipant(p)
	peer.expect(t, time.Second)
	peer.expect(t, time.Second)
	peer.expect(t, time.Second)

	r.RemoveParticipant(sid)

	select {
	case id := <-closed:
		if id != "r1" {
			t.Fatalf("want r1, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("room did not report empty")
	}
	if r.liveness.IsLive() {
		t.Fatal("expected room to have stopped")
	}
}

func TestRoomGCPrunesDeadPeers(t *testing.T) {
	t.Parallel()

	r := testRoom(t)
	life := actorref.NewLiveness()
	peer := newFakePeer()
	sid := ids.NewSessionID()
	r.AddParticipant(RosterParticipant{SessionID: sid, Peer: actorref.New[Participant](peer, life), Profile: UserProfile{FullName: "bob"}})
	peer.expect(t, time.Second)
	peer.expect(t, time.Second)
	peer.expect(t, time.Second)

	life.Stop()
	r.triggerGC()

	if len(r.roster) != 0 {
		t.Fatalf("expected dead peer to be pruned, roster=%+v", r.roster)
	}
}
