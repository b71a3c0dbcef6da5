package engine

import (
	"errors"
	"time"
)

var ErrNotMember = errors.New("not a member of this room")
var ErrAlreadyMember = errors.New("already a member of this room")
var ErrCSBusy = errors.New("critical section held by another member")
var ErrAlreadyInCS = errors.New("already in critical section")
var ErrNotCSHolder = errors.New("not in critical section")
var ErrUnsupportedCommand = errors.New("unsupported command")

type State struct {
	Room     string
	Members  map[string]string // clientID -> nick
	CSHolder string            // "" when the critical section is free
	CSSince  time.Time
	Seq      int
}

type CommandType string

const (
	CmdJoin      CommandType = "Join"
	CmdLeave     CommandType = "Leave"
	CmdEnterCS   CommandType = "EnterCS"
	CmdExitCS    CommandType = "ExitCS"
	CmdPost      CommandType = "Post"
	CmdCSTimeout CommandType = "CSTimeout"
)

/*
	CmdJoin      -> EvtMemberJoined
	CmdLeave     -> EvtMemberLeft (+ EvtCSExited first when the leaver held the CS)
	CmdEnterCS   -> EvtCSEntered
	CmdExitCS    -> EvtCSExited
	CmdPost      -> EvtMessagePosted
	CmdCSTimeout -> EvtCSExpired -> EvtCSExited, or nothing when the holder already moved on
*/

type Command struct {
	Type     CommandType
	ClientID string
	Nick     string
	Text     string
	At       time.Time
}

type EventType string

const (
	EvtMemberJoined  EventType = "MemberJoined"
	EvtMemberLeft    EventType = "MemberLeft"
	EvtCSEntered     EventType = "CSEntered"
	EvtCSExited      EventType = "CSExited"
	EvtCSExpired     EventType = "CSExpired"
	EvtMessagePosted EventType = "MessagePosted"
)

type Event struct {
	Type     EventType
	ClientID string
	Nick     string
	Text     string
	Seq      int
	At       time.Time
}

// Apply validates cmd against s and returns the resulting events and state.
// On error the original state is returned untouched.
func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s
	newState.Members = cloneMembers(s.Members)

	switch cmd.Type {
	case CmdJoin:
		if isMember(s, cmd.ClientID) {
			return nil, s, ErrAlreadyMember
		}
		newState.Members[cmd.ClientID] = cmd.Nick
		return []Event{
			{Type: EvtMemberJoined, ClientID: cmd.ClientID, Nick: cmd.Nick, At: cmd.At},
		}, newState, nil

	case CmdLeave:
		if !isMember(s, cmd.ClientID) {
			return nil, s, ErrNotMember
		}
		nick := s.Members[cmd.ClientID]
		events := []Event{}

		// Leaving releases the critical section
		if s.CSHolder == cmd.ClientID {
			events = append(events, Event{Type: EvtCSExited, ClientID: cmd.ClientID, Nick: nick, At: cmd.At})
			newState.CSHolder = ""
			newState.CSSince = time.Time{}
		}
		delete(newState.Members, cmd.ClientID)
		events = append(events, Event{Type: EvtMemberLeft, ClientID: cmd.ClientID, Nick: nick, At: cmd.At})
		return events, newState, nil

	case CmdEnterCS:
		if !isMember(s, cmd.ClientID) {
			return nil, s, ErrNotMember
		}
		switch s.CSHolder {
		case "":
		case cmd.ClientID:
			return nil, s, ErrAlreadyInCS
		default:
			return nil, s, ErrCSBusy
		}
		newState.CSHolder = cmd.ClientID
		newState.CSSince = cmd.At
		return []Event{
			{Type: EvtCSEntered, ClientID: cmd.ClientID, Nick: s.Members[cmd.ClientID], At: cmd.At},
		}, newState, nil

	case CmdExitCS:
		if !isMember(s, cmd.ClientID) {
			return nil, s, ErrNotMember
		}
		if s.CSHolder != cmd.ClientID {
			return nil, s, ErrNotCSHolder
		}
		newState.CSHolder = ""
		newState.CSSince = time.Time{}
		return []Event{
			{Type: EvtCSExited, ClientID: cmd.ClientID, Nick: s.Members[cmd.ClientID], At: cmd.At},
		}, newState, nil

	case CmdPost:
		if !isMember(s, cmd.ClientID) {
			return nil, s, ErrNotMember
		}
		if !canPost(s, cmd.ClientID) {
			return nil, s, ErrCSBusy
		}
		newState.Seq++
		return []Event{
			{
				Type:     EvtMessagePosted,
				ClientID: cmd.ClientID,
				Nick:     s.Members[cmd.ClientID],
				Text:     cmd.Text,
				Seq:      newState.Seq,
				At:       cmd.At,
			},
		}, newState, nil

	case CmdCSTimeout:
		// Stale timer: the holder already exited or someone else took over
		if s.CSHolder == "" || s.CSHolder != cmd.ClientID {
			return nil, s, nil
		}
		nick := s.Members[cmd.ClientID]
		newState.CSHolder = ""
		newState.CSSince = time.Time{}
		return []Event{
			{Type: EvtCSExpired, ClientID: cmd.ClientID, Nick: nick, At: cmd.At},
			{Type: EvtCSExited, ClientID: cmd.ClientID, Nick: nick, At: cmd.At},
		}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// Reduce rebuilds a room state from its event log.
func Reduce(room string, events []Event) State {
	s := NewState(room)
	for _, event := range events {
		switch event.Type {
		case EvtMemberJoined:
			s.Members[event.ClientID] = event.Nick
		case EvtMemberLeft:
			delete(s.Members, event.ClientID)
		case EvtCSEntered:
			s.CSHolder = event.ClientID
			s.CSSince = event.At
		case EvtCSExited:
			s.CSHolder = ""
			s.CSSince = time.Time{}
		case EvtMessagePosted:
			s.Seq = event.Seq
		}
	}
	return s
}

func isMember(s State, clientID string) bool {
	_, ok := s.Members[clientID]
	return ok
}

func canPost(s State, clientID string) bool {
	return s.CSHolder == "" || s.CSHolder == clientID
}
