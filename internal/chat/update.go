package chat

type UpdateKind string

const (
	UpdateWelcome   UpdateKind = "Welcome"
	UpdateJoined    UpdateKind = "Joined"
	UpdateLeft      UpdateKind = "Left"
	UpdateMessage   UpdateKind = "Message"
	UpdateCSEntered UpdateKind = "CSEntered"
	UpdateCSExited  UpdateKind = "CSExited"
	UpdateError     UpdateKind = "Error"
)

// Update is a server-side event as seen by the display layer.
type Update struct {
	Kind     UpdateKind
	Room     string
	ClientID string
	Nick     string
	Text     string
	Seq      int
	Err      string
}

// OnUpdate registers the display callback. It runs outside the session lock.
func (s *Session) OnUpdate(fn func(Update)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Apply folds a server update into the session and forwards it to the
// display callback.
func (s *Session) Apply(u Update) {
	s.mu.Lock()
	switch u.Kind {
	case UpdateWelcome:
		s.selfID = u.ClientID
	case UpdateCSEntered:
		if s.selfID != "" && u.ClientID == s.selfID {
			s.state.InCS = true
		}
	case UpdateCSExited:
		if s.selfID != "" && u.ClientID == s.selfID {
			s.state.InCS = false
		}
	case UpdateLeft:
		// A Left with a reason means the server removed us; a plain one
		// answers our own LeaveRoom
		if u.Err != "" && s.selfID != "" && u.ClientID == s.selfID && s.state.Room != nil && s.state.Room.ID == u.Room {
			s.state.Room = nil
			s.state.InCS = false
		}
	}
	fn := s.onUpdate
	s.mu.Unlock()

	if fn != nil {
		fn(u)
	}
}

func (s *Session) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}
