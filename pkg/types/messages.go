package types

// Client -> Server
// Hello:       nick
// JoinRoom:    room
// LeaveRoom:   room
// EnterCS:     {}
// ExitCS:      {}
// NewMessage:  text
//
// Server -> Client
// Welcome:     client_id, nick
// Joined/Left: room, client_id, nick
// Message:     room, client_id, nick, text, seq, at
// CSEntered/CSExited: room, client_id, nick
// Error:       error (and the room it concerns, when any)

const (
	TypeHello      = "Hello"
	TypeJoinRoom   = "JoinRoom"
	TypeLeaveRoom  = "LeaveRoom"
	TypeEnterCS    = "EnterCS"
	TypeExitCS     = "ExitCS"
	TypeNewMessage = "NewMessage"
)

const (
	TypeWelcome   = "Welcome"
	TypeJoined    = "Joined"
	TypeLeft      = "Left"
	TypeMessage   = "Message"
	TypeCSEntered = "CSEntered"
	TypeCSExited  = "CSExited"
	TypeError     = "Error"
)

type ClientMessage struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`
	Nick string `json:"nick,omitempty"`
	Text string `json:"text,omitempty"`
}

type ServerMessage struct {
	Type     string `json:"type"`
	Room     string `json:"room,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Nick     string `json:"nick,omitempty"`
	Text     string `json:"text,omitempty"`
	Seq      int    `json:"seq,omitempty"`
	At       int64  `json:"at,omitempty"` // unix millis
	Error    string `json:"error,omitempty"`
}
