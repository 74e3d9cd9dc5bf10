package ws

import "testing"

func TestHubAddAndRemoveConversationClient(t *testing.T) {
	hub := NewHub(nil)

	size := hub.AddConversationClient("c1", nil, ConnInfo{ConnID: "k1", UserID: "u1"})
	if size != 1 {
		t.Fatalf("expected room size 1, got %d", size)
	}
	if len(hub.conversationRooms) != 1 {
		t.Fatalf("expected conversation room to be created")
	}

	size = hub.RemoveConversationClient("c1", nil)
	if size != 0 {
		t.Fatalf("expected room size 0, got %d", size)
	}
	if len(hub.conversationRooms) != 0 {
		t.Fatalf("expected conversation room to be removed")
	}
}

func TestHubAddAndRemoveListClient(t *testing.T) {
	hub := NewHub(nil)

	size := hub.AddListClient("u1", nil, ConnInfo{ConnID: "k1", UserID: "u1"})
	if size != 1 {
		t.Fatalf("expected room size 1, got %d", size)
	}

	size = hub.RemoveListClient("u1", nil)
	if size != 0 {
		t.Fatalf("expected room size 0, got %d", size)
	}
	if len(hub.listRooms) != 0 {
		t.Fatalf("expected list room to be removed")
	}
}

func TestHubRemoveUnknownRoom(t *testing.T) {
	hub := NewHub(nil)
	if size := hub.RemoveConversationClient("missing", nil); size != 0 {
		t.Fatalf("expected size 0 for unknown room, got %d", size)
	}
}

func TestNewConnIDUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := newConnID()
		if id == "" {
			t.Fatal("expected non-empty conn id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate conn id %s", id)
		}
		seen[id] = struct{}{}
	}
}
