package hub

import (
	"context"
	"fmt"
	"sort"

	"github.com/DoyleJ11/cs-chat-backend/internal/engine"
	"github.com/DoyleJ11/cs-chat-backend/internal/room"
	"github.com/DoyleJ11/cs-chat-backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

type EnsureRoom struct {
	ID    string
	Name  string
	State engine.State // only used if creation happens
	Reply chan *room.Room
}

type ListRooms struct {
	Reply chan []*room.Room
}

// RemoveRoom stops a room and forgets it. Reply reports whether it was known.
type RemoveRoom struct {
	ID    string
	Reply chan bool
}

type ShutdownHub struct{}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	opts   room.Options
	ctx    context.Context
	cancel context.CancelFunc
}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// NewHub starts the registry loop. opts are handed to every room it creates.
func NewHub(parent context.Context, opts room.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Get is a blocking convenience around GetRoom. Returns nil when unknown.
func (h *Hub) Get(id string) *room.Room {
	reply := make(chan *room.Room, 1)
	select {
	case h.inbox <- GetRoom{ID: id, Reply: reply}:
	case <-h.ctx.Done():
		return nil
	}
	select {
	case r := <-reply:
		return r
	case <-h.ctx.Done():
		return nil
	}
}

// List is a blocking convenience around ListRooms, sorted by id.
func (h *Hub) List() []*room.Room {
	reply := make(chan []*room.Room, 1)
	select {
	case h.inbox <- ListRooms{Reply: reply}:
	case <-h.ctx.Done():
		return nil
	}
	select {
	case rooms := <-reply:
		return rooms
	case <-h.ctx.Done():
		return nil
	}
}

// Remove is a blocking convenience around RemoveRoom.
func (h *Hub) Remove(id string) bool {
	reply := make(chan bool, 1)
	select {
	case h.inbox <- RemoveRoom{ID: id, Reply: reply}:
	case <-h.ctx.Done():
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // May be nil

			case EnsureRoom:
				if r := h.rooms[msg.ID]; r != nil {
					msg.Reply <- r
					break
				}
				msg.Reply <- h.create(msg.ID, msg.Name, msg.State)

			case ListRooms:
				rooms := make([]*room.Room, 0, len(h.rooms))
				for _, r := range h.rooms {
					rooms = append(rooms, r)
				}
				sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID() < rooms[j].ID() })
				msg.Reply <- rooms

			case RemoveRoom:
				r := h.rooms[msg.ID]
				if r != nil {
					// Never block the registry on a room's inbox
					r.Stop()
					delete(h.rooms, msg.ID)
				}
				if msg.Reply != nil {
					msg.Reply <- r != nil
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(id, name string, state engine.State) *room.Room {
	if state.Members == nil {
		state = engine.NewState(id)
	}
	r := room.NewRoom(h.ctx, id, name, state, h.opts)
	h.rooms[id] = r
	return r
}

func (h *Hub) shutdown() {
	for _, r := range h.rooms {
		select {
		case r.Inbox() <- room.Shutdown{}:
		default:
			// Its context is cancelled below anyway
		}
	}
	clear(h.rooms)
	h.cancel()
}

// LoadRooms registers every stored room with the hub, resuming each room's
// message sequence from its last stored message.
func LoadRooms(ctx context.Context, h *Hub, s store.Store) (int, error) {
	rooms, err := s.ListRooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("load rooms: %w", err)
	}
	for _, r := range rooms {
		state := engine.NewState(r.ID)
		last, err := s.History(ctx, r.ID, 1)
		if err != nil {
			return 0, fmt.Errorf("load rooms: %w", err)
		}
		if len(last) == 1 {
			state.Seq = last[0].Seq
		}
		reply := make(chan *room.Room, 1)
		h.Inbox() <- EnsureRoom{ID: r.ID, Name: r.Name, State: state, Reply: reply}
		<-reply
	}
	return len(rooms), nil
}
