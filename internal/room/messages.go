package room

import "github.com/therebelliongame/backend/internal/game"

// Msg is the room inbox protocol. One struct per interaction, fields
// validated by the session.
type Msg interface{ isRoomMsg() }

// Join seats a player and registers their outbox. The reply carries the
// name actually assigned (collisions get a numeric suffix) or the refusal.
type Join struct {
	PlayerID string
	Name     string
	Outbox   chan OutMsg
	Reply    chan JoinResult
}

type JoinResult struct {
	Name string
	Err  error
}

// Leave is a disconnect or explicit exit; the session's disconnect policy
// decides what happens to the match.
type Leave struct{ PlayerID string }

type StartMatch struct{ PlayerID string }

type Propose struct {
	PlayerID string
	Members  []string
}

type Vote struct {
	PlayerID string
	Approve  bool
}

type MissionAction struct {
	PlayerID string
	Pass     bool
}

type EndMatch struct{ PlayerID string }

type SetCapacity struct {
	PlayerID string
	Capacity int
}

type SetSelectionSecs struct {
	PlayerID string
	Secs     int
}

type SetPublic struct {
	PlayerID string
	Public   bool
}

type Chat struct {
	PlayerID string
	Text     string
}

// Joinable asks whether the room currently accepts a random public join.
type Joinable struct{ Reply chan bool }

// GetState reflects internal state without data races; used by tests and
// the discovery endpoints.
type GetState struct{ Reply chan View }

type View struct {
	Phase       game.Phase
	Mission     int
	Rejections  int
	MatchNumber int
	NumClients  int
	Names       []string
}

type Shutdown struct{}

// timerFired is posted by the selection timer callback; gen ties it to the
// arm that scheduled it.
type timerFired struct{ gen uint64 }

func (Join) isRoomMsg()             {}
func (Leave) isRoomMsg()            {}
func (StartMatch) isRoomMsg()       {}
func (Propose) isRoomMsg()          {}
func (Vote) isRoomMsg()             {}
func (MissionAction) isRoomMsg()    {}
func (EndMatch) isRoomMsg()         {}
func (SetCapacity) isRoomMsg()      {}
func (SetSelectionSecs) isRoomMsg() {}
func (SetPublic) isRoomMsg()        {}
func (Chat) isRoomMsg()             {}
func (Joinable) isRoomMsg()         {}
func (GetState) isRoomMsg()         {}
func (Shutdown) isRoomMsg()         {}
func (timerFired) isRoomMsg()       {}
