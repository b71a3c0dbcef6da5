package room

import (
	"context"
	"time"

	"github.com/DoyleJ11/cs-chat-backend/internal/engine"
	"github.com/DoyleJ11/cs-chat-backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	ClientID string
	Nick     string
	Outbox   chan Update // where this client wants to receive room updates
	Reply    chan error  // optional
}

func (Join) isRoomMsg() {}

type Leave struct {
	ClientID string
	Reply    chan error // optional
}

func (Leave) isRoomMsg() {}

type FromClient struct {
	ClientID string
	Cmd      engine.Command
	Reply    chan error // optional; command errors go only to the issuer
}

func (FromClient) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type csTimerFired struct {
	gen    int
	holder string
}

func (csTimerFired) isRoomMsg() {}

type Update struct {
	Room  string
	Event engine.Event
}

type View struct {
	ID         string
	Name       string
	Seq        int
	NumClients int
	CSHolder   string
	Members    map[string]string
}

type Options struct {
	CSTimeout time.Duration // 0 disables automatic release
	Messages  store.MessageStore
	Log       *zap.Logger
}

type Room struct {
	id       string
	name     string
	inbox    chan Msg
	state    engine.State
	clients  map[string]chan Update
	opts     Options
	log      *zap.Logger
	csTimer  *time.Timer
	timerGen int
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewRoom(parent context.Context, id, name string, initial engine.State, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if initial.Members == nil {
		initial.Members = map[string]string{}
	}
	initial.Room = id

	r := &Room{
		id:      id,
		name:    name,
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan Update),
		opts:    opts,
		log:     opts.Log.With(zap.String("room", id)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go r.loop()
	return r
}

func (r *Room) ID() string   { return r.id }
func (r *Room) Name() string { return r.name }

// Expose the inbox so the hub, tests and the WS layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room stopped processing messages.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Stop ends the room without going through its inbox. Safe to call from any
// goroutine and more than once.
func (r *Room) Stop() { r.cancel() }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				err := r.apply(engine.Command{Type: engine.CmdJoin, ClientID: msg.ClientID, Nick: msg.Nick}, func() {
					// Register before broadcasting so the joiner sees its own join
					r.clients[msg.ClientID] = msg.Outbox
				})
				reply(msg.Reply, err)

			case Leave:
				err := r.apply(engine.Command{Type: engine.CmdLeave, ClientID: msg.ClientID}, nil)
				if ch, ok := r.clients[msg.ClientID]; ok {
					close(ch)
					delete(r.clients, msg.ClientID)
				}
				reply(msg.Reply, err)

			case FromClient:
				cmd := msg.Cmd
				cmd.ClientID = msg.ClientID
				err := r.apply(cmd, nil)
				if err != nil {
					r.log.Debug("command rejected",
						zap.String("client", msg.ClientID),
						zap.String("cmd", string(cmd.Type)),
						zap.Error(err))
				}
				reply(msg.Reply, err)

			case csTimerFired:
				if msg.gen != r.timerGen {
					break // stale
				}
				r.log.Info("critical section expired", zap.String("client", msg.holder))
				_ = r.apply(engine.Command{Type: engine.CmdCSTimeout, ClientID: msg.holder}, nil)

			case GetState:
				// reflect internal state without data races
				members := make(map[string]string, len(r.state.Members))
				for k, v := range r.state.Members {
					members[k] = v
				}
				msg.Reply <- View{
					ID:         r.id,
					Name:       r.name,
					Seq:        r.state.Seq,
					NumClients: len(r.clients),
					CSHolder:   r.state.CSHolder,
					Members:    members,
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

// apply runs cmd through the engine and, on success, commits the new state,
// runs onCommit, then fans the events out.
func (r *Room) apply(cmd engine.Command, onCommit func()) error {
	if cmd.At.IsZero() {
		cmd.At = time.Now().UTC()
	}
	events, newState, err := engine.Apply(r.state, cmd)
	if err != nil {
		return err
	}
	r.state = newState
	if onCommit != nil {
		onCommit()
	}
	r.handleEvents(events)
	return nil
}

func (r *Room) handleEvents(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtCSEntered:
			r.armTimer(ev.ClientID)
		case engine.EvtCSExited:
			r.stopTimer()
		case engine.EvtMessagePosted:
			r.persist(ev)
		}
		r.broadcast(Update{Room: r.id, Event: ev})
	}
}

func (r *Room) persist(ev engine.Event) {
	if r.opts.Messages == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()
	err := r.opts.Messages.SaveMessage(ctx, store.Message{
		ID:       uuid.NewString(),
		RoomID:   r.id,
		Seq:      ev.Seq,
		ClientID: ev.ClientID,
		Nick:     ev.Nick,
		Text:     ev.Text,
		SentAt:   ev.At,
	})
	if err != nil {
		// Delivery goes on; history just misses this one
		r.log.Warn("persist message failed", zap.Int("seq", ev.Seq), zap.Error(err))
	}
}

func (r *Room) armTimer(holder string) {
	r.stopTimer()
	if r.opts.CSTimeout <= 0 {
		return
	}
	gen := r.timerGen
	r.csTimer = time.AfterFunc(r.opts.CSTimeout, func() {
		select {
		case r.inbox <- csTimerFired{gen: gen, holder: holder}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) stopTimer() {
	r.timerGen++
	if r.csTimer != nil {
		r.csTimer.Stop()
		r.csTimer = nil
	}
}

func (r *Room) shutdown() {
	r.stopTimer()
	// Done must be closed before any outbox so forwarders see why they ended
	r.cancel()
	for id, ch := range r.clients {
		close(ch) // Tell client no more updates
		delete(r.clients, id)
	}
}

func (r *Room) broadcast(u Update) {
	var dropped []string
	for id, ch := range r.clients {
		select {
		case ch <- u:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(r.clients, id)
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		r.log.Warn("dropping slow client", zap.String("client", id))
		_ = r.apply(engine.Command{Type: engine.CmdLeave, ClientID: id}, nil)
	}
}

func reply(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}
