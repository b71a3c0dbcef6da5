package store

import (
	"context"
	"errors"
	"time"
)

var ErrRoomExists = errors.New("room already exists")
var ErrRoomNotFound = errors.New("room not found")

type Room struct {
	ID        string `gorm:"primaryKey;size:16"`
	Name      string `gorm:"size:128;not null"`
	CreatedAt time.Time
}

type Message struct {
	ID       string `gorm:"primaryKey;size:36"`
	RoomID   string `gorm:"index:idx_room_seq,priority:1;size:16;not null"`
	Seq      int    `gorm:"index:idx_room_seq,priority:2"`
	ClientID string `gorm:"size:36"`
	Nick     string `gorm:"size:64"`
	Text     string
	SentAt   time.Time
}

type RoomStore interface {
	CreateRoom(ctx context.Context, r Room) error
	ListRooms(ctx context.Context) ([]Room, error)
	// DeleteRoom removes a room and its messages.
	DeleteRoom(ctx context.Context, id string) error
}

type MessageStore interface {
	SaveMessage(ctx context.Context, m Message) error
	// History returns at most limit messages of a room, oldest first.
	History(ctx context.Context, roomID string, limit int) ([]Message, error)
}

type Store interface {
	RoomStore
	MessageStore
	Close() error
}
