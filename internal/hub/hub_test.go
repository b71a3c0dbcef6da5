package hub

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/cs-chat-backend/internal/engine"
	"github.com/DoyleJ11/cs-chat-backend/internal/room"
	"github.com/DoyleJ11/cs-chat-backend/internal/store"
)

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, room.Options{})
	reply := make(chan *room.Room, 1)

	h.Inbox() <- EnsureRoom{ID: "ZED123", Name: "General", State: engine.NewState("ZED123"), Reply: reply}
	r1 := <-reply

	h.Inbox() <- GetRoom{ID: "ZED123", Reply: reply}
	r2 := <-reply

	if r1 == nil || r2 == nil || r1 != r2 {
		t.Fatalf("expected same room pointer")
	}
	if r1.Name() != "General" {
		t.Fatalf("want name General, got %q", r1.Name())
	}

	// A second ensure keeps the running room and its name
	h.Inbox() <- EnsureRoom{ID: "ZED123", Name: "Other", Reply: reply}
	if r3 := <-reply; r3 != r1 || r3.Name() != "General" {
		t.Fatalf("ensure replaced an existing room")
	}
}

func TestHub_GetUnknown_IsNil(t *testing.T) {
	h := NewHub(context.Background(), room.Options{})
	if r := h.Get("NOPE"); r != nil {
		t.Fatalf("expected nil for unknown room")
	}
}

func TestHub_RemoveRoom_ShutsItDown(t *testing.T) {
	h := NewHub(context.Background(), room.Options{})
	reply := make(chan *room.Room, 1)
	h.Inbox() <- EnsureRoom{ID: "A", Name: "a", Reply: reply}
	r := <-reply

	if !h.Remove("A") {
		t.Fatalf("Remove reported unknown room")
	}
	select {
	case <-r.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("removed room did not stop")
	}
	if h.Get("A") != nil {
		t.Fatalf("room still registered")
	}
	if h.Remove("A") {
		t.Fatalf("second Remove should report unknown room")
	}
}

func TestHub_RemoveRoom_FullInboxDoesNotBlock(t *testing.T) {
	h := NewHub(context.Background(), room.Options{})
	reply := make(chan *room.Room, 1)
	h.Inbox() <- EnsureRoom{ID: "A", Name: "a", Reply: reply}
	r := <-reply

	// A stopped room no longer drains its inbox
	r.Stop()
	<-r.Done()
	for filled := false; !filled; {
		select {
		case r.Inbox() <- room.GetState{Reply: make(chan room.View, 1)}:
		default:
			filled = true
		}
	}

	done := make(chan bool, 1)
	go func() { done <- h.Remove("A") }()
	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("Remove reported unknown room")
		}
	case <-time.After(time.Second):
		t.Fatalf("hub blocked on a full room inbox")
	}
	if h.Get("A") != nil {
		t.Fatalf("room still registered")
	}
}

func TestLoadRooms_ResumesSequence(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	for _, r := range []store.Room{{ID: "B", Name: "beta"}, {ID: "A", Name: "alpha"}} {
		if err := s.CreateRoom(ctx, r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := s.SaveMessage(ctx, store.Message{ID: "m1", RoomID: "A", Seq: 7}); err != nil {
		t.Fatalf("save: %v", err)
	}

	h := NewHub(ctx, room.Options{})
	n, err := LoadRooms(ctx, h, s)
	if err != nil || n != 2 {
		t.Fatalf("LoadRooms: n=%d err=%v", n, err)
	}

	rooms := h.List()
	if len(rooms) != 2 || rooms[0].ID() != "A" || rooms[1].ID() != "B" {
		t.Fatalf("unexpected rooms %+v", rooms)
	}

	reply := make(chan room.View, 1)
	rooms[0].Inbox() <- room.GetState{Reply: reply}
	if v := <-reply; v.Seq != 7 || v.Name != "alpha" {
		t.Fatalf("want seq 7 for alpha, got %+v", v)
	}
}
