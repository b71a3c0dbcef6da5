package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder is a Transport that remembers every call in order.
type recorder struct {
	calls []OutboundCommand
	err   error
}

func (r *recorder) SendJoinRoom(room Room) error {
	r.calls = append(r.calls, JoinRoom(room))
	return r.err
}

func (r *recorder) SendLeaveRoom(room Room) error {
	r.calls = append(r.calls, LeaveRoom(room))
	return r.err
}

func (r *recorder) SendEnterCS() error {
	r.calls = append(r.calls, EnterCriticalSection())
	return r.err
}

func (r *recorder) SendExitCS() error {
	r.calls = append(r.calls, ExitCriticalSection())
	return r.err
}

func (r *recorder) SendNewMessage(text string) error {
	r.calls = append(r.calls, SendMessage(text))
	return r.err
}

func (r *recorder) take() []OutboundCommand {
	out := r.calls
	r.calls = nil
	return out
}

var (
	lobby   = Room{ID: "LOBBY1", Name: "Lobby"}
	general = Room{ID: "GEN001", Name: "General"}
)

func TestSelectRoom_NoCurrentRoom_JoinsOnly(t *testing.T) {
	tr := &recorder{}
	s := NewSession(tr, zap.NewNop())

	s.SelectRoom(lobby)

	assert.Equal(t, []OutboundCommand{JoinRoom(lobby)}, tr.take())
	require.NotNil(t, s.State().Room)
	assert.Equal(t, lobby, *s.State().Room)
}

func TestSelectRoom_SwitchLeavesThenJoins(t *testing.T) {
	tr := &recorder{}
	s := NewSession(tr, zap.NewNop())
	s.SelectRoom(lobby)
	tr.take()

	s.SelectRoom(general)

	assert.Equal(t, []OutboundCommand{LeaveRoom(lobby), JoinRoom(general)}, tr.take())
	assert.Equal(t, general, *s.State().Room)
}

func TestSelectRoom_SameRoomStillLeavesAndRejoins(t *testing.T) {
	tr := &recorder{}
	s := NewSession(tr, zap.NewNop())
	s.SelectRoom(lobby)
	tr.take()

	s.SelectRoom(lobby)

	assert.Equal(t, []OutboundCommand{LeaveRoom(lobby), JoinRoom(lobby)}, tr.take())
}

func TestSubmit_Classification(t *testing.T) {
	cases := []struct {
		name string
		text string
		want OutboundCommand
	}{
		{"enter cs", ":enter-cs", EnterCriticalSection()},
		{"exit cs", ":exit-cs", ExitCriticalSection()},
		{"plain text", "hello", SendMessage("hello")},
		{"empty string", "", SendMessage("")},
		{"near miss with space", ":enter-cs ", SendMessage(":enter-cs ")},
		{"near miss upper case", ":EXIT-CS", SendMessage(":EXIT-CS")},
		{"prefix only", ":enter", SendMessage(":enter")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &recorder{}
			s := NewSession(tr, zap.NewNop())
			s.SetInput(tc.text)

			s.Submit(tc.text)

			assert.Equal(t, []OutboundCommand{tc.want}, tr.take())
			assert.Equal(t, "", s.Input())
		})
	}
}

func TestSubmitInput_UsesAndClearsBuffer(t *testing.T) {
	tr := &recorder{}
	s := NewSession(tr, zap.NewNop())

	s.SetInput("typed")
	s.SubmitInput()
	assert.Equal(t, []OutboundCommand{SendMessage("typed")}, tr.take())
	assert.Equal(t, "", s.Input())

	s.SetInput(EnterCSCommand)
	s.SubmitInput()
	assert.Equal(t, []OutboundCommand{EnterCriticalSection()}, tr.take())
	assert.Equal(t, "", s.Input())
}

func TestScenario_LobbyGeneralHelloEnterCS(t *testing.T) {
	tr := &recorder{}
	s := NewSession(tr, zap.NewNop())

	s.SelectRoom(lobby)
	assert.Equal(t, []OutboundCommand{JoinRoom(lobby)}, tr.take())

	s.SelectRoom(general)
	assert.Equal(t, []OutboundCommand{LeaveRoom(lobby), JoinRoom(general)}, tr.take())

	s.Submit("hello")
	assert.Equal(t, []OutboundCommand{SendMessage("hello")}, tr.take())

	s.Submit(":enter-cs")
	assert.Equal(t, []OutboundCommand{EnterCriticalSection()}, tr.take())
	assert.True(t, s.State().InCS)

	// The core's own log saw the same sequence
	assert.Equal(t, []OutboundCommand{
		JoinRoom(lobby),
		LeaveRoom(lobby), JoinRoom(general),
		SendMessage("hello"),
		EnterCriticalSection(),
	}, s.TakeEmitted())
	assert.Empty(t, s.TakeEmitted())
}

func TestTransportErrors_DoNotChangeEmission(t *testing.T) {
	tr := &recorder{err: errors.New("socket closed")}
	s := NewSession(tr, zap.NewNop())

	s.SelectRoom(lobby)
	s.SelectRoom(general)
	s.Submit("x")

	assert.Equal(t, []OutboundCommand{
		JoinRoom(lobby), LeaveRoom(lobby), JoinRoom(general), SendMessage("x"),
	}, tr.take())
	assert.Equal(t, general, *s.State().Room)
	assert.Equal(t, "", s.Input())
}

func TestCSFlag_FollowsCommandsAndServer(t *testing.T) {
	s := NewSession(&recorder{}, nil)
	s.Apply(Update{Kind: UpdateWelcome, ClientID: "me"})
	require.Equal(t, "me", s.SelfID())

	s.SelectRoom(lobby)
	s.Submit(EnterCSCommand)
	assert.True(t, s.State().InCS)

	// A rejection is only an error update; the flag waits for a CS event
	s.Apply(Update{Kind: UpdateError, Room: lobby.ID, Err: "critical section held by another member"})
	assert.True(t, s.State().InCS)

	// Expiry on the server side clears it
	s.Apply(Update{Kind: UpdateCSExited, Room: lobby.ID, ClientID: "me"})
	assert.False(t, s.State().InCS)

	// Someone else's entry does not concern us
	s.Apply(Update{Kind: UpdateCSEntered, Room: lobby.ID, ClientID: "other"})
	assert.False(t, s.State().InCS)

	s.Submit(EnterCSCommand)
	s.SelectRoom(general)
	assert.False(t, s.State().InCS, "switching rooms drops the critical section")
}

func TestApply_RemovedFromRoomClearsIt(t *testing.T) {
	s := NewSession(&recorder{}, nil)
	s.Apply(Update{Kind: UpdateWelcome, ClientID: "me"})
	s.SelectRoom(lobby)
	s.Submit(EnterCSCommand)
	s.TakeEmitted()

	// Another member leaving, or the answer to our own leave, changes nothing
	s.Apply(Update{Kind: UpdateLeft, Room: lobby.ID, ClientID: "other", Err: "room closed"})
	s.Apply(Update{Kind: UpdateLeft, Room: lobby.ID, ClientID: "me"})
	require.NotNil(t, s.State().Room)

	s.Apply(Update{Kind: UpdateLeft, Room: lobby.ID, ClientID: "me", Err: "room closed"})
	assert.Nil(t, s.State().Room)
	assert.False(t, s.State().InCS)

	// No leave for a room the server already dropped us from
	s.SelectRoom(general)
	assert.Equal(t, []OutboundCommand{JoinRoom(general)}, s.TakeEmitted())
}

func TestApply_ForwardsToDisplay(t *testing.T) {
	s := NewSession(nil, nil)
	var got []Update
	s.OnUpdate(func(u Update) { got = append(got, u) })

	s.Apply(Update{Kind: UpdateMessage, Room: "R", Nick: "bob", Text: "hi", Seq: 3})
	s.Apply(Update{Kind: UpdateError, Err: "critical section held by another member"})

	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Text)
	assert.Equal(t, UpdateError, got[1].Kind)
}

func TestNilTransport_StillRecords(t *testing.T) {
	s := NewSession(nil, nil)
	s.Submit("offline")
	assert.Equal(t, []OutboundCommand{SendMessage("offline")}, s.TakeEmitted())
}
