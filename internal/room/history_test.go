package room

import (
	"testing"

	"github.com/signalmesh/server/internal/ids"
)

func TestHistoryFIFOEviction(t *testing.T) {
	t.Parallel()

	h := newHistory()
	for i := 0; i < historyCapacity+1; i++ {
		h.push(ChatMessage{Content: "msg", Sender: ids.NewSessionID(), Sent: int64(i)})
	}

	if h.len() != historyCapacity {
		t.Fatalf("want len %d, got %d", historyCapacity, h.len())
	}
	snap := h.snapshot()
	if snap[0].Sent != 1 {
		t.Fatalf("want oldest surviving Sent=1, got %d", snap[0].Sent)
	}
	if snap[len(snap)-1].Sent != int64(historyCapacity) {
		t.Fatalf("want newest Sent=%d, got %d", historyCapacity, snap[len(snap)-1].Sent)
	}
}

func TestHistorySnapshotOrder(t *testing.T) {
	t.Parallel()

	h := newHistory()
	for i := 0; i < 5; i++ {
		h.push(ChatMessage{Sent: int64(i)})
	}
	snap := h.snapshot()
	if len(snap) != 5 {
		t.Fatalf("want 5 entries, got %d", len(snap))
	}
	for i, m := range snap {
		if m.Sent != int64(i) {
			t.Fatalf("index %d: want Sent=%d, got %d", i, i, m.Sent)
		}
	}
}
