package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/cs-chat-backend/internal/engine"
	"github.com/DoyleJ11/cs-chat-backend/internal/hub"
	"github.com/DoyleJ11/cs-chat-backend/internal/room"
	"github.com/DoyleJ11/cs-chat-backend/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errNotInRoom = errors.New("not in a room")
var errRoomNotFound = errors.New("room not found")
var errRoomClosed = errors.New("room closed")
var errTooSlow = errors.New("removed from room: client too slow")
var errRenameInRoom = errors.New("leave the room before renaming")

const (
	readTimeout  = 5 * time.Minute
	writeTimeout = 3 * time.Second
	replyTimeout = 2 * time.Second
)

type Options struct {
	Log     *zap.Logger
	BufSize int      // per-client outbox size
	Origins []string // accepted origin patterns; empty means same-origin only
}

// conn is one websocket client and the single room it currently sits in.
type conn struct {
	id   string
	nick string
	hub  *hub.Hub
	log  *zap.Logger
	buf  int

	ctx  context.Context
	send chan types.ServerMessage

	cur     *room.Room
	leaving chan struct{} // closed by leave before cur lets go of the outbox
	fwdDone chan struct{} // closed when cur's forwarder exits

	// Rooms that closed this client's outbox on their own. Read by dispatch.
	dropped chan *room.Room
}

func newConn(ctx context.Context, h *hub.Hub, nick string, opts Options) *conn {
	c := &conn{
		id:      uuid.NewString(),
		nick:    nick,
		hub:     h,
		log:     opts.Log,
		buf:     opts.BufSize,
		ctx:     ctx,
		send:    make(chan types.ServerMessage, opts.BufSize),
		dropped: make(chan *room.Room, 1),
	}
	if c.nick == "" {
		c.nick = "anon-" + c.id[:4]
	}
	c.log = c.log.With(zap.String("client", c.id))
	return c
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.BufSize <= 0 {
		opts.BufSize = 16
	}

	return func(w http.ResponseWriter, r *http.Request) {
		nick := r.URL.Query().Get("nick")

		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.Origins,
		})
		if err != nil {
			opts.Log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := newConn(ctx, h, nick, opts)
		c.log.Info("client connected", zap.String("nick", c.nick))
		defer c.leave()

		// Writer goroutine
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-c.send:
					payload, err := json.Marshal(msg)
					if err != nil {
						c.log.Warn("encode failed", zap.String("type", msg.Type), zap.Error(err))
						continue
					}
					wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
					err = ws.Write(wctx, websocket.MessageText, payload)
					wcancel()
					if err != nil {
						c.log.Debug("write failed", zap.Error(err))
						cancel()
						return
					}
				}
			}
		}()

		c.push(types.ServerMessage{Type: types.TypeWelcome, ClientID: c.id, Nick: c.nick})

		// Reader loop
		for {
			rctx, rcancel := context.WithTimeout(ctx, readTimeout)
			_, data, err := ws.Read(rctx)
			rcancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					c.log.Info("client disconnected")
				default:
					c.log.Debug("read failed", zap.Error(err))
				}
				// Room leave happens in defer
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				c.pushError("", "bad json")
				continue
			}
			c.dispatch(cm)
		}
	}
}

func (c *conn) dispatch(cm types.ClientMessage) {
	c.syncDropped()

	switch cm.Type {
	case types.TypeHello:
		// Room members are keyed by the nick they joined with
		if c.cur != nil {
			c.pushError(c.cur.ID(), errRenameInRoom.Error())
			return
		}
		if cm.Nick != "" {
			c.nick = cm.Nick
		}
		c.push(types.ServerMessage{Type: types.TypeWelcome, ClientID: c.id, Nick: c.nick})

	case types.TypeJoinRoom:
		c.join(cm.Room)

	case types.TypeLeaveRoom:
		if c.cur == nil || (cm.Room != "" && cm.Room != c.cur.ID()) {
			c.pushError(cm.Room, errNotInRoom.Error())
			return
		}
		c.leave()

	case types.TypeEnterCS:
		c.command(engine.Command{Type: engine.CmdEnterCS})

	case types.TypeExitCS:
		c.command(engine.Command{Type: engine.CmdExitCS})

	case types.TypeNewMessage:
		c.command(engine.Command{Type: engine.CmdPost, Text: cm.Text})

	default:
		c.pushError(cm.Room, "unknown type")
	}
}

// join moves the client into roomID, leaving its current room first.
func (c *conn) join(roomID string) {
	c.leave()

	r := c.hub.Get(roomID)
	if r == nil {
		c.pushError(roomID, errRoomNotFound.Error())
		return
	}

	out := make(chan room.Update, c.buf)
	reply := make(chan error, 1)
	if err := c.await(r, room.Join{ClientID: c.id, Nick: c.nick, Outbox: out, Reply: reply}, reply); err != nil {
		c.pushError(roomID, err.Error())
		return
	}
	c.cur = r
	c.leaving = make(chan struct{})
	c.fwdDone = make(chan struct{})
	go c.forward(r, c.nick, out, c.leaving, c.fwdDone)
}

// syncDropped forgets the current room if it already let go of this client.
func (c *conn) syncDropped() {
	select {
	case r := <-c.dropped:
		if c.cur == r {
			c.cur = nil
		}
	default:
	}
}

func (c *conn) leave() {
	if c.cur == nil {
		return
	}
	r := c.cur
	c.cur = nil
	close(c.leaving)
	reply := make(chan error, 1)
	if err := c.await(r, room.Leave{ClientID: c.id, Reply: reply}, reply); err != nil && !errors.Is(err, errRoomClosed) {
		c.log.Debug("leave failed", zap.String("room", r.ID()), zap.Error(err))
	}
	// Drain the old room before anything from a new one goes out
	select {
	case <-c.fwdDone:
	case <-c.ctx.Done():
	case <-time.After(replyTimeout):
	}
}

func (c *conn) command(cmd engine.Command) {
	if c.cur == nil {
		c.pushError("", errNotInRoom.Error())
		return
	}
	reply := make(chan error, 1)
	if err := c.await(c.cur, room.FromClient{ClientID: c.id, Cmd: cmd, Reply: reply}, reply); err != nil {
		c.pushError(c.cur.ID(), err.Error())
	}
}

// await sends msg to r and waits for its reply without outliving the room.
func (c *conn) await(r *room.Room, msg room.Msg, reply <-chan error) error {
	select {
	case r.Inbox() <- msg:
	case <-r.Done():
		return errRoomClosed
	}
	select {
	case err := <-reply:
		return err
	case <-r.Done():
		return errRoomClosed
	case <-time.After(replyTimeout):
		return errors.New("room did not reply")
	}
}

// forward copies one room membership's updates to the socket until the
// room closes the outbox. If that happens without the client leaving, the
// client gets a Left carrying the reason.
func (c *conn) forward(r *room.Room, nick string, out <-chan room.Update, leaving <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for u := range out {
		msg, ok := toServerMessage(u)
		if !ok {
			continue
		}
		select {
		case c.send <- msg:
		case <-c.ctx.Done():
			return
		}
	}

	select {
	case <-leaving:
		return
	case <-c.ctx.Done():
		return
	default:
	}

	// Signal before notifying so the next dispatch already sees it
	select {
	case c.dropped <- r:
	default:
	}
	reason := errTooSlow
	select {
	case <-r.Done():
		reason = errRoomClosed
	default:
	}
	c.log.Info("removed from room", zap.String("room", r.ID()), zap.Error(reason))
	c.push(types.ServerMessage{Type: types.TypeLeft, Room: r.ID(), ClientID: c.id, Nick: nick, Error: reason.Error()})
}

func (c *conn) push(msg types.ServerMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

func (c *conn) pushError(roomID, text string) {
	c.push(types.ServerMessage{Type: types.TypeError, Room: roomID, Error: text})
}

func toServerMessage(u room.Update) (types.ServerMessage, bool) {
	ev := u.Event
	msg := types.ServerMessage{
		Room:     u.Room,
		ClientID: ev.ClientID,
		Nick:     ev.Nick,
		At:       ev.At.UnixMilli(),
	}
	switch ev.Type {
	case engine.EvtMemberJoined:
		msg.Type = types.TypeJoined
	case engine.EvtMemberLeft:
		msg.Type = types.TypeLeft
	case engine.EvtMessagePosted:
		msg.Type = types.TypeMessage
		msg.Text = ev.Text
		msg.Seq = ev.Seq
	case engine.EvtCSEntered:
		msg.Type = types.TypeCSEntered
	case engine.EvtCSExited:
		msg.Type = types.TypeCSExited
	default:
		// CSExpired is always followed by CSExited
		return types.ServerMessage{}, false
	}
	return msg, true
}
