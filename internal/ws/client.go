package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/DoyleJ11/cs-chat-backend/internal/chat"
	"github.com/DoyleJ11/cs-chat-backend/pkg/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Client speaks the chat protocol to a server. It implements chat.Transport.
type Client struct {
	conn *websocket.Conn
	log  *zap.Logger
	ctx  context.Context
}

var _ chat.Transport = (*Client)(nil)

// Dial connects to base (http(s):// or ws(s)://, without the /ws path).
func Dial(ctx context.Context, base, nick string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("nick", nick)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &Client{conn: conn, log: log, ctx: ctx}, nil
}

func (c *Client) SendJoinRoom(room chat.Room) error {
	return c.write(types.ClientMessage{Type: types.TypeJoinRoom, Room: room.ID})
}

func (c *Client) SendLeaveRoom(room chat.Room) error {
	return c.write(types.ClientMessage{Type: types.TypeLeaveRoom, Room: room.ID})
}

func (c *Client) SendEnterCS() error {
	return c.write(types.ClientMessage{Type: types.TypeEnterCS})
}

func (c *Client) SendExitCS() error {
	return c.write(types.ClientMessage{Type: types.TypeExitCS})
}

func (c *Client) SendNewMessage(text string) error {
	return c.write(types.ClientMessage{Type: types.TypeNewMessage, Text: text})
}

func (c *Client) write(msg types.ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// Run reads server messages and hands each to handle until the connection
// closes. A normal closure returns nil.
func (c *Client) Run(ctx context.Context, handle func(chat.Update)) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var sm types.ServerMessage
		if err := json.Unmarshal(data, &sm); err != nil {
			c.log.Warn("bad server message", zap.Error(err))
			continue
		}
		handle(ToUpdate(sm))
	}
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// ToUpdate maps a wire message onto the session core's update type.
func ToUpdate(sm types.ServerMessage) chat.Update {
	return chat.Update{
		Kind:     chat.UpdateKind(sm.Type),
		Room:     sm.Room,
		ClientID: sm.ClientID,
		Nick:     sm.Nick,
		Text:     sm.Text,
		Seq:      sm.Seq,
		Err:      sm.Error,
	}
}
