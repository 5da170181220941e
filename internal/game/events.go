package game

type EventType string

const (
	EvtRoomSettings    EventType = "room_settings"
	EvtSeating         EventType = "seating"
	EvtLeaderSelecting EventType = "leader_selecting"
	EvtProposal        EventType = "proposal"
	EvtVoteTally       EventType = "vote_tally"
	EvtVoteTrack       EventType = "vote_track"
	EvtMissionStart    EventType = "mission_start"
	EvtMissionResult   EventType = "mission_result"
	EvtNarration       EventType = "narration"
	EvtMatchEnd        EventType = "match_end"
	EvtAdminChanged    EventType = "admin_changed"
	EvtKicked          EventType = "kicked"
	EvtPlayerUpdate    EventType = "player_update"
)

// Event is one player-visible consequence of a session operation. To is the
// recipient's player ID for unicast events; empty means the whole room.
type Event struct {
	Type    EventType
	To      string
	Payload any
}

type SettingsPayload struct {
	Capacity      int    `json:"capacity"`
	SelectionSecs int    `json:"selection_secs"`
	Public        bool   `json:"public"`
	MatchNumber   int    `json:"match_number"`
	Admin         string `json:"admin"`
}

// Seat is one roster entry as a particular viewer is allowed to see it.
type Seat struct {
	Name      string  `json:"name"`
	Faction   Faction `json:"faction"`
	IsLeader  bool    `json:"is_leader"`
	IsAdmin   bool    `json:"is_admin"`
	OnMission bool    `json:"on_mission"`
	Connected bool    `json:"connected"`
}

type SeatingPayload struct {
	Seats []Seat `json:"seats"`
}

type LeaderSelectingPayload struct {
	Leader        string `json:"leader"`
	YouAreLeader  bool   `json:"you_are_leader"`
	Mission       int    `json:"mission"`
	SelectionSecs int    `json:"selection_secs"`
}

type ProposalPayload struct {
	Mission int      `json:"mission"`
	Members []string `json:"members"`
	Forced  bool     `json:"forced"`
}

type VoteTallyPayload struct {
	Mission      int      `json:"mission"`
	Approvals    []string `json:"approvals"`
	Disapprovals []string `json:"disapprovals"`
	Approved     bool     `json:"approved"`
}

type VoteTrackPayload struct {
	Rejections int `json:"rejections"`
}

type MissionStartPayload struct {
	Mission   int      `json:"mission"`
	Members   []string `json:"members"`
	OnMission bool     `json:"on_mission"`
}

type MissionResultPayload struct {
	Mission int                          `json:"mission"`
	Outcome MissionOutcome               `json:"outcome"`
	Fails   int                          `json:"fails"`
	Track   [MissionCount]MissionOutcome `json:"track"`
}

type NarrationPayload struct {
	Text string `json:"text"`
}

type RevealLine struct {
	Name    string  `json:"name"`
	Faction Faction `json:"faction"`
}

type MatchEndPayload struct {
	Reason  EndReason                    `json:"reason"`
	Message string                       `json:"message"`
	Winner  Faction                      `json:"winner,omitempty"`
	Reveal  []RevealLine                 `json:"reveal"`
	Track   [MissionCount]MissionOutcome `json:"track"`
}

type AdminChangedPayload struct {
	Admin string `json:"admin"`
}

type KickedPayload struct {
	Reason string `json:"reason"`
}

type PlayerUpdatePayload struct {
	Text string `json:"text"`
}

func broadcast(t EventType, payload any) Event {
	return Event{Type: t, Payload: payload}
}

func unicast(t EventType, to string, payload any) Event {
	return Event{Type: t, To: to, Payload: payload}
}
