// Package chat is the client-side session core: it tracks the room the
// client is in, turns typed input into protocol commands and hands them to a
// Transport. Rendering is left to whatever display layer sits on top.
package chat

import (
	"sync"

	"go.uber.org/zap"
)

// Reserved inputs that toggle the critical section instead of being sent.
const (
	EnterCSCommand = ":enter-cs"
	ExitCSCommand  = ":exit-cs"
)

type Room struct {
	ID   string
	Name string
}

// Transport is the capability set the core needs from the wire layer.
type Transport interface {
	SendJoinRoom(room Room) error
	SendLeaveRoom(room Room) error
	SendEnterCS() error
	SendExitCS() error
	SendNewMessage(text string) error
}

type CommandKind string

const (
	CmdJoinRoom    CommandKind = "JoinRoom"
	CmdLeaveRoom   CommandKind = "LeaveRoom"
	CmdEnterCS     CommandKind = "EnterCriticalSection"
	CmdExitCS      CommandKind = "ExitCriticalSection"
	CmdSendMessage CommandKind = "SendMessage"
)

type OutboundCommand struct {
	Kind CommandKind
	Room Room   // JoinRoom, LeaveRoom
	Text string // SendMessage
}

func JoinRoom(r Room) OutboundCommand       { return OutboundCommand{Kind: CmdJoinRoom, Room: r} }
func LeaveRoom(r Room) OutboundCommand      { return OutboundCommand{Kind: CmdLeaveRoom, Room: r} }
func EnterCriticalSection() OutboundCommand { return OutboundCommand{Kind: CmdEnterCS} }
func ExitCriticalSection() OutboundCommand  { return OutboundCommand{Kind: CmdExitCS} }
func SendMessage(text string) OutboundCommand {
	return OutboundCommand{Kind: CmdSendMessage, Text: text}
}

type SessionState struct {
	Room *Room // nil until a room is selected
	InCS bool
}

type Session struct {
	mu        sync.Mutex
	transport Transport
	log       *zap.Logger

	state    SessionState
	selfID   string
	input    string
	emitted  []OutboundCommand
	onUpdate func(Update)
}

func NewSession(t Transport, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{transport: t, log: log}
}

// SelectRoom switches to room. A current room is always left first, even
// when it is the same room.
func (s *Session) SelectRoom(room Room) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Room != nil {
		s.emit(LeaveRoom(*s.state.Room))
		// Leaving releases the critical section server-side
		s.state.InCS = false
	}
	r := room
	s.state.Room = &r
	s.emit(JoinRoom(room))
}

// Submit classifies text and emits exactly one command. The pending input is
// cleared afterwards whichever command was emitted.
func (s *Session) Submit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submit(text)
}

// SubmitInput submits the pending input buffer.
func (s *Session) SubmitInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submit(s.input)
}

func (s *Session) submit(text string) {
	switch text {
	case EnterCSCommand:
		s.emit(EnterCriticalSection())
		// Optimistic: a rejected enter stays set until the next CS event or room switch
		s.state.InCS = true
	case ExitCSCommand:
		s.emit(ExitCriticalSection())
		s.state.InCS = false
	default:
		s.emit(SendMessage(text))
	}
	s.input = ""
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// State returns a copy of the session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.Room != nil {
		r := *st.Room
		st.Room = &r
	}
	return st
}

// TakeEmitted returns the commands emitted since the previous call.
func (s *Session) TakeEmitted() []OutboundCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.emitted
	s.emitted = nil
	return out
}

func (s *Session) emit(cmd OutboundCommand) {
	s.emitted = append(s.emitted, cmd)
	if s.transport == nil {
		return
	}

	var err error
	switch cmd.Kind {
	case CmdJoinRoom:
		err = s.transport.SendJoinRoom(cmd.Room)
	case CmdLeaveRoom:
		err = s.transport.SendLeaveRoom(cmd.Room)
	case CmdEnterCS:
		err = s.transport.SendEnterCS()
	case CmdExitCS:
		err = s.transport.SendExitCS()
	case CmdSendMessage:
		err = s.transport.SendNewMessage(cmd.Text)
	}
	if err != nil {
		// Failures belong to the transport; the core keeps going
		s.log.Warn("transport send failed", zap.String("cmd", string(cmd.Kind)), zap.Error(err))
	}
}
