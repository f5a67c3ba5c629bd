package history

import (
	"context"
	"testing"
)

func TestInMemoryStoreSaveAndList(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	turns := []Turn{
		{RoomName: "voice_room_a", Role: "user", Content: "hello"},
		{RoomName: "voice_room_a", Role: "assistant", Content: "hi there"},
		{RoomName: "voice_room_b", Role: "user", Content: "other room"},
	}
	for _, turn := range turns {
		if err := s.SaveTurn(ctx, turn); err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}

	got, err := s.RoomHistory(ctx, "voice_room_a", 0)
	if err != nil {
		t.Fatalf("RoomHistory() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Content != "hello" || got[1].Content != "hi there" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("missing defaults: %+v", got[0])
	}
}

func TestInMemoryStoreLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.SaveTurn(ctx, Turn{RoomName: "r", Role: "user", Content: "x"}); err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}
	got, err := s.RoomHistory(ctx, "r", 2)
	if err != nil {
		t.Fatalf("RoomHistory() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestFactoryDefaultsToInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore(\"\") = %T, want *InMemoryStore", s)
	}
}
