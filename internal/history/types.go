package history

import (
	"context"
	"time"
)

// Turn stores a single user or assistant conversational turn.
type Turn struct {
	ID        string    `json:"id"`
	RoomName  string    `json:"room_name"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves conversation history per room.
type Store interface {
	SaveTurn(ctx context.Context, turn Turn) error
	RoomHistory(ctx context.Context, roomName string, limit int) ([]Turn, error)
	Close() error
}
