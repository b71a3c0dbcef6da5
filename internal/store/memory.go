package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process; used when no DATABASE_URL is set.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]Room
	messages map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]Room),
		messages: make(map[string][]Message),
	}
}

func (m *MemoryStore) CreateRoom(_ context.Context, r Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.ID]; ok {
		return ErrRoomExists
	}
	m.rooms[r.ID] = r
	return nil
}

func (m *MemoryStore) ListRooms(_ context.Context) ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (m *MemoryStore) DeleteRoom(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	delete(m.rooms, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) SaveMessage(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[msg.RoomID]; !ok {
		return ErrRoomNotFound
	}
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], msg)
	return nil
}

func (m *MemoryStore) History(_ context.Context, roomID string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[roomID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Message, len(all))
	copy(out, all)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
