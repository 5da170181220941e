package game

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

var ErrInvalidProposal = errors.New("invalid proposal")
var ErrInvalidVote = errors.New("invalid vote")
var ErrInvalidMissionAction = errors.New("invalid mission action")
var ErrNotFound = errors.New("not found")
var ErrDuplicateName = errors.New("duplicate name")
var ErrCapacity = errors.New("capacity")
var ErrNotAdmin = errors.New("admin only")
var ErrWrongPhase = errors.New("wrong phase")

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseTeamSelect Phase = "team_select"
	PhaseVote       Phase = "vote"
	PhaseMission    Phase = "mission"
)

type MissionOutcome string

const (
	OutcomeNone MissionOutcome = "none"
	OutcomePass MissionOutcome = "pass"
	OutcomeFail MissionOutcome = "fail"
)

type EndReason string

const (
	EndLoyalWin       EndReason = "loyal_win"
	EndInfiltratorWin EndReason = "infiltrator_win"
	EndRejectionCap   EndReason = "rejection_cap"
	EndAdminEnded     EndReason = "admin_ended"
	EndDisconnect     EndReason = "disconnect"
)

type MissionRecord struct {
	Members []string
	Outcome MissionOutcome
}

// Options configures a new session. Zero fields take room defaults.
type Options struct {
	Capacity      int
	SelectionSecs int
	Public        bool
	Rand          *rand.Rand
}

// Session is the state machine for one room. It owns the roster and the
// round rules and never touches I/O: every operation validates, mutates, and
// returns the events the transport should deliver. A single caller at a time
// (the room actor) is assumed; there is no locking here.
type Session struct {
	code string

	capacity      int
	selectionSecs int
	public        bool
	matchNumber   int

	phase     Phase
	mission   int
	teamSizes [MissionCount]int
	roster    Roster

	rejections   int
	approve      map[string]struct{}
	disapprove   map[string]struct{}
	missionActed map[string]struct{}
	missionPass  int
	missionFail  int
	history      [MissionCount]MissionRecord

	rng *rand.Rand
}

func New(code string, opts Options) *Session {
	if opts.Capacity < MinCapacity || opts.Capacity > MaxCapacity {
		opts.Capacity = 6
	}
	if opts.SelectionSecs <= 0 {
		opts.SelectionSecs = 7 * 60
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Session{
		code:          code,
		capacity:      opts.Capacity,
		selectionSecs: opts.SelectionSecs,
		public:        opts.Public,
		matchNumber:   1,
		phase:         PhaseLobby,
		mission:       1,
		rng:           opts.Rand,
	}
	s.clearTallies()
	return s
}

func (s *Session) Code() string       { return s.code }
func (s *Session) Phase() Phase       { return s.phase }
func (s *Session) Capacity() int      { return s.capacity }
func (s *Session) SelectionSecs() int { return s.selectionSecs }
func (s *Session) Public() bool       { return s.public }
func (s *Session) Roster() *Roster    { return &s.roster }
func (s *Session) Mission() int       { return s.mission }
func (s *Session) Rejections() int    { return s.rejections }
func (s *Session) MatchNumber() int   { return s.matchNumber }

func (s *Session) clearTallies() {
	s.approve = map[string]struct{}{}
	s.disapprove = map[string]struct{}{}
	s.missionActed = map[string]struct{}{}
	s.missionPass = 0
	s.missionFail = 0
}

/* ----- lobby operations ----- */

// Join seats a new player. The first seat becomes room admin. Joining a full
// room or a running match fails with ErrCapacity; the caller is responsible
// for handing in a name already unique within the room.
func (s *Session) Join(id, name string) ([]Event, error) {
	if s.phase != PhaseLobby {
		return nil, fmt.Errorf("%w: match in progress", ErrCapacity)
	}
	if s.roster.Len() >= s.capacity {
		return nil, fmt.Errorf("%w: room %s is full", ErrCapacity, s.code)
	}
	p := &Player{
		ID:        id,
		Name:      name,
		Faction:   FactionUnknown,
		IsAdmin:   s.roster.Len() == 0,
		Connected: true,
	}
	if err := s.roster.Add(p); err != nil {
		return nil, err
	}
	events := []Event{
		broadcast(EvtRoomSettings, s.settingsPayload()),
		broadcast(EvtPlayerUpdate, PlayerUpdatePayload{Text: name + " has joined the game"}),
	}
	return append(events, s.seatingEvents()...), nil
}

// Kick removes a named player from the lobby. Admin only; no-op phase-wise
// once a match has started.
func (s *Session) Kick(callerID, name string) ([]Event, error) {
	if err := s.requireAdmin(callerID); err != nil {
		return nil, err
	}
	if s.phase != PhaseLobby {
		return nil, fmt.Errorf("%w: cannot kick mid-match", ErrWrongPhase)
	}
	target, err := s.roster.ByName(name)
	if err != nil {
		return nil, err
	}
	if target.ID == callerID {
		return nil, fmt.Errorf("%w: cannot kick yourself", ErrNotFound)
	}
	s.roster.Remove(target.ID)
	events := []Event{
		unicast(EvtKicked, target.ID, KickedPayload{Reason: "kicked by admin"}),
		broadcast(EvtPlayerUpdate, PlayerUpdatePayload{Text: name + " was kicked by admin"}),
	}
	return append(events, s.seatingEvents()...), nil
}

// TransferAdmin hands the admin seat to the named player.
func (s *Session) TransferAdmin(callerID, name string) ([]Event, error) {
	caller, err := s.requireAdminPlayer(callerID)
	if err != nil {
		return nil, err
	}
	target, err := s.roster.ByName(name)
	if err != nil {
		return nil, err
	}
	if target.ID == caller.ID {
		return nil, fmt.Errorf("%w: already admin", ErrNotFound)
	}
	caller.IsAdmin = false
	target.IsAdmin = true
	events := []Event{
		broadcast(EvtAdminChanged, AdminChangedPayload{Admin: target.Name}),
		broadcast(EvtRoomSettings, s.settingsPayload()),
	}
	return append(events, s.seatingEvents()...), nil
}

func (s *Session) SetCapacity(callerID string, capacity int) ([]Event, error) {
	if err := s.requireLobbyAdmin(callerID); err != nil {
		return nil, err
	}
	if capacity < MinCapacity || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: capacity %d out of range", ErrCapacity, capacity)
	}
	if capacity < s.roster.Len() {
		return nil, fmt.Errorf("%w: %d players already seated", ErrCapacity, s.roster.Len())
	}
	s.capacity = capacity
	return []Event{broadcast(EvtRoomSettings, s.settingsPayload())}, nil
}

func (s *Session) SetSelectionSecs(callerID string, secs int) ([]Event, error) {
	if err := s.requireLobbyAdmin(callerID); err != nil {
		return nil, err
	}
	if secs < 0 {
		secs = 0
	}
	s.selectionSecs = secs
	return []Event{broadcast(EvtRoomSettings, s.settingsPayload())}, nil
}

func (s *Session) SetPublic(callerID string, public bool) ([]Event, error) {
	if err := s.requireLobbyAdmin(callerID); err != nil {
		return nil, err
	}
	s.public = public
	return []Event{broadcast(EvtRoomSettings, s.settingsPayload())}, nil
}

/* ----- match lifecycle ----- */

// StartMatch shuffles seats, deals factions, picks a random leader, and
// enters TeamSelect. Admin only. An early start with fewer seats than the
// configured capacity snaps capacity down to the seated count, as long as
// the table rules support it.
func (s *Session) StartMatch(callerID string) ([]Event, error) {
	if err := s.requireLobbyAdmin(callerID); err != nil {
		return nil, err
	}
	n := s.roster.Len()
	if n < MinCapacity || n > MaxCapacity {
		return nil, fmt.Errorf("%w: need %d-%d players, have %d", ErrCapacity, MinCapacity, MaxCapacity, n)
	}
	s.capacity = n
	s.teamSizes = MissionTeamSizes(n)
	s.mission = 1
	s.rejections = 0
	s.history = [MissionCount]MissionRecord{}
	for i := range s.history {
		s.history[i].Outcome = OutcomeNone
	}
	s.clearTallies()

	s.roster.Shuffle(s.rng)
	s.dealFactions()
	leader := s.roster.SetLeader(s.rng.Intn(n))
	s.phase = PhaseTeamSelect

	events := s.seatingEvents()
	events = append(events, broadcast(EvtNarration, NarrationPayload{Text: fmt.Sprintf(
		"Welcome soldiers, I am Captain X. I am aware of %d infiltrators among us, so beware and smoke them out. "+
			"I am appointing %s as leader. %s, please choose the members for mission 1.",
		SpyCount(n), leader.Name, leader.Name)}))
	events = append(events, s.leaderSelectingEvents(leader)...)
	return events, nil
}

func (s *Session) dealFactions() {
	n := s.roster.Len()
	factions := make([]Faction, 0, n)
	for i := 0; i < SpyCount(n); i++ {
		factions = append(factions, FactionInfiltrator)
	}
	for len(factions) < n {
		factions = append(factions, FactionLoyal)
	}
	s.rng.Shuffle(len(factions), func(i, j int) {
		factions[i], factions[j] = factions[j], factions[i]
	})
	for i, p := range s.roster.Players() {
		p.Faction = factions[i]
	}
}

// ProposeTeam is the leader submitting the mission team; it moves straight
// into the vote.
func (s *Session) ProposeTeam(callerID string, names []string) ([]Event, error) {
	if s.phase != PhaseTeamSelect {
		return nil, fmt.Errorf("%w: phase is %s", ErrInvalidProposal, s.phase)
	}
	caller, err := s.roster.ByID(callerID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown caller", ErrInvalidProposal)
	}
	if !caller.IsLeader {
		return nil, fmt.Errorf("%w: %s is not the leader", ErrInvalidProposal, caller.Name)
	}
	want := s.teamSizes[s.mission-1]
	if len(names) != want {
		return nil, fmt.Errorf("%w: mission %d needs %d members, got %d", ErrInvalidProposal, s.mission, want, len(names))
	}
	members := make([]*Player, 0, want)
	seen := map[string]struct{}{}
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s named twice", ErrInvalidProposal, name)
		}
		seen[name] = struct{}{}
		p, err := s.roster.ByName(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not in this room", ErrInvalidProposal, name)
		}
		members = append(members, p)
	}
	return s.openVote(members, false), nil
}

// ForceProposal is the selection-timer fallback: a uniformly random team of
// the required size, proposed as if the leader had chosen it. Outside
// TeamSelect it is a harmless no-op so a stale timer fire cannot corrupt a
// session that has moved on.
func (s *Session) ForceProposal() ([]Event, error) {
	if s.phase != PhaseTeamSelect {
		return nil, nil
	}
	want := s.teamSizes[s.mission-1]
	players := s.roster.Players()
	picks := s.rng.Perm(len(players))[:want]
	members := make([]*Player, 0, want)
	for _, i := range picks {
		members = append(members, players[i])
	}
	return s.openVote(members, true), nil
}

func (s *Session) openVote(members []*Player, forced bool) []Event {
	s.roster.ClearOnMission()
	names := make([]string, 0, len(members))
	for _, p := range members {
		p.OnMission = true
		names = append(names, p.Name)
	}
	s.approve = map[string]struct{}{}
	s.disapprove = map[string]struct{}{}
	s.phase = PhaseVote

	events := s.seatingEvents()
	events = append(events, broadcast(EvtProposal, ProposalPayload{Mission: s.mission, Members: names, Forced: forced}))
	text := fmt.Sprintf("Very well, soldiers. Approve or disapprove %s carrying out mission %d.",
		strings.Join(names, ", "), s.mission)
	if forced {
		text = fmt.Sprintf("The leader hesitated too long, so fate chose for them: %s. Approve or disapprove mission %d.",
			strings.Join(names, ", "), s.mission)
	}
	events = append(events, broadcast(EvtNarration, NarrationPayload{Text: text}))
	return events
}

// CastVote records one player's approval or disapproval. Re-voting moves the
// voter between the sets instead of double-counting; the last vote before
// the round closes is the one that counts.
func (s *Session) CastVote(voterID string, approve bool) ([]Event, error) {
	if s.phase != PhaseVote {
		return nil, fmt.Errorf("%w: phase is %s", ErrInvalidVote, s.phase)
	}
	if _, err := s.roster.ByID(voterID); err != nil {
		return nil, fmt.Errorf("%w: unknown voter", ErrInvalidVote)
	}
	delete(s.approve, voterID)
	delete(s.disapprove, voterID)
	if approve {
		s.approve[voterID] = struct{}{}
	} else {
		s.disapprove[voterID] = struct{}{}
	}
	if len(s.approve)+len(s.disapprove) < s.roster.Len() {
		return nil, nil
	}
	return s.closeVote(), nil
}

func (s *Session) closeVote() []Event {
	approved := len(s.approve) > len(s.disapprove)
	tally := VoteTallyPayload{Mission: s.mission, Approved: approved}
	for _, p := range s.roster.Players() {
		if _, ok := s.approve[p.ID]; ok {
			tally.Approvals = append(tally.Approvals, p.Name)
		} else if _, ok := s.disapprove[p.ID]; ok {
			tally.Disapprovals = append(tally.Disapprovals, p.Name)
		}
	}
	events := []Event{broadcast(EvtVoteTally, tally)}

	if approved {
		s.rejections = 0
		s.clearTallies()
		s.phase = PhaseMission
		s.history[s.mission-1].Members = s.missionTeamNames()
		events = append(events, broadcast(EvtVoteTrack, VoteTrackPayload{Rejections: 0}))
		events = append(events, s.missionStartEvents()...)
		return events
	}

	s.rejections++
	events = append(events, broadcast(EvtVoteTrack, VoteTrackPayload{Rejections: s.rejections}))
	if s.rejections >= MaxRejections {
		events = append(events, broadcast(EvtNarration, NarrationPayload{
			Text: "Five proposals rejected in a row. Our command structure has collapsed.",
		}))
		return append(events, s.endMatch(EndRejectionCap)...)
	}
	events = append(events, s.nextProposalRound("The proposal was rejected. ")...)
	return events
}

func (s *Session) missionTeamNames() []string {
	var names []string
	for _, p := range s.roster.Players() {
		if p.OnMission {
			names = append(names, p.Name)
		}
	}
	return names
}

func (s *Session) missionStartEvents() []Event {
	names := s.missionTeamNames()
	events := make([]Event, 0, s.roster.Len()+1)
	for _, p := range s.roster.Players() {
		events = append(events, unicast(EvtMissionStart, p.ID, MissionStartPayload{
			Mission:   s.mission,
			Members:   names,
			OnMission: p.OnMission,
		}))
	}
	events = append(events, broadcast(EvtNarration, NarrationPayload{Text: fmt.Sprintf(
		"The vote has been approved, we begin our mission now. %s, please decide: PASS or FAIL. "+
			"Loyal soldiers must choose pass.", strings.Join(names, ", "))}))
	return events
}

// SubmitMissionAction records a pass or fail card from a mission member.
// Each member acts once; the tally is resolved when the last card is in.
func (s *Session) SubmitMissionAction(playerID string, pass bool) ([]Event, error) {
	if s.phase != PhaseMission {
		return nil, fmt.Errorf("%w: phase is %s", ErrInvalidMissionAction, s.phase)
	}
	p, err := s.roster.ByID(playerID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown player", ErrInvalidMissionAction)
	}
	if !p.OnMission {
		return nil, fmt.Errorf("%w: %s is not on this mission", ErrInvalidMissionAction, p.Name)
	}
	if _, acted := s.missionActed[playerID]; acted {
		return nil, fmt.Errorf("%w: %s already acted", ErrInvalidMissionAction, p.Name)
	}
	s.missionActed[playerID] = struct{}{}
	if pass {
		s.missionPass++
	} else {
		s.missionFail++
	}
	if s.missionPass+s.missionFail < s.teamSizes[s.mission-1] {
		return nil, nil
	}
	return s.resolveMission(), nil
}

func (s *Session) resolveMission() []Event {
	failed := s.missionFail >= FailsNeededToFail(s.capacity, s.mission)
	outcome := OutcomePass
	if failed {
		outcome = OutcomeFail
	}
	s.history[s.mission-1].Outcome = outcome
	fails := s.missionFail

	events := []Event{broadcast(EvtMissionResult, MissionResultPayload{
		Mission: s.mission,
		Outcome: outcome,
		Fails:   fails,
		Track:   s.outcomeTrack(),
	})}

	passes, failures := s.missionScore()
	switch {
	case passes >= 3:
		events = append(events, broadcast(EvtNarration, NarrationPayload{
			Text: "Three missions have succeeded. The resistance prevails.",
		}))
		return append(events, s.endMatch(EndLoyalWin)...)
	case failures >= 3:
		events = append(events, broadcast(EvtNarration, NarrationPayload{
			Text: "Three missions have been sabotaged. The infiltrators prevail.",
		}))
		return append(events, s.endMatch(EndInfiltratorWin)...)
	}

	s.mission++
	prefix := fmt.Sprintf("Mission %d succeeded. ", s.mission-1)
	if failed {
		prefix = fmt.Sprintf("Mission %d was sabotaged with %d fail card(s). ", s.mission-1, fails)
	}
	events = append(events, s.nextProposalRound(prefix)...)
	return events
}

// nextProposalRound rotates the leader and re-enters TeamSelect with clean
// tallies. The room actor re-arms the selection timer on seeing the phase.
func (s *Session) nextProposalRound(prefix string) []Event {
	s.clearTallies()
	s.roster.ClearOnMission()
	leader := s.roster.RotateLeader()
	s.phase = PhaseTeamSelect

	events := s.seatingEvents()
	events = append(events, broadcast(EvtNarration, NarrationPayload{Text: fmt.Sprintf(
		"%sWe proceed. The new leader is %s. %s, please choose the members for mission %d.",
		prefix, leader.Name, leader.Name, s.mission)}))
	events = append(events, s.leaderSelectingEvents(leader)...)
	return events
}

func (s *Session) missionScore() (passes, failures int) {
	for _, rec := range s.history {
		switch rec.Outcome {
		case OutcomePass:
			passes++
		case OutcomeFail:
			failures++
		}
	}
	return passes, failures
}

func (s *Session) outcomeTrack() [MissionCount]MissionOutcome {
	var track [MissionCount]MissionOutcome
	for i, rec := range s.history {
		track[i] = rec.Outcome
		if track[i] == "" {
			track[i] = OutcomeNone
		}
	}
	return track
}

// EndMatch is the admin aborting a running match.
func (s *Session) EndMatch(callerID string) ([]Event, error) {
	if err := s.requireAdmin(callerID); err != nil {
		return nil, err
	}
	if s.phase == PhaseLobby {
		return nil, fmt.Errorf("%w: no match in progress", ErrWrongPhase)
	}
	return s.endMatch(EndAdminEnded), nil
}

// endMatch reveals every faction, broadcasts the summary, and resets the
// session to the lobby for the next match. The roster keeps its seats.
func (s *Session) endMatch(reason EndReason) []Event {
	payload := MatchEndPayload{
		Reason: reason,
		Track:  s.outcomeTrack(),
	}
	switch reason {
	case EndLoyalWin:
		payload.Winner = FactionLoyal
		payload.Message = "Game Over: The Resistance Wins"
	case EndInfiltratorWin, EndRejectionCap:
		payload.Winner = FactionInfiltrator
		payload.Message = "Game Over: The Infiltrators Win"
	case EndDisconnect:
		payload.Message = "Game Aborted Due to User Disconnect"
	case EndAdminEnded:
		payload.Message = "Game Ended by Admin"
	}
	for _, p := range s.roster.Players() {
		payload.Reveal = append(payload.Reveal, RevealLine{Name: p.Name, Faction: p.Faction})
	}

	s.roster.ResetMatchState()
	s.clearTallies()
	s.mission = 1
	s.rejections = 0
	s.phase = PhaseLobby
	s.matchNumber++

	return []Event{
		broadcast(EvtMatchEnd, payload),
		broadcast(EvtRoomSettings, s.settingsPayload()),
	}
}

/* ----- disconnect policy ----- */

// HandleDisconnect applies the room's disconnect policy. In the lobby the
// seat is simply removed; mid-match the whole match ends with a reveal and
// the seat is removed afterwards. The returned empty flag tells the caller
// to tear the room down.
func (s *Session) HandleDisconnect(playerID string) (events []Event, empty bool) {
	p, err := s.roster.ByID(playerID)
	if err != nil {
		return nil, s.roster.Len() == 0
	}

	if s.phase != PhaseLobby {
		events = append(events, broadcast(EvtPlayerUpdate, PlayerUpdatePayload{Text: p.Name + " has disconnected"}))
		events = append(events, s.endMatch(EndDisconnect)...)
	}

	_, _, wasAdmin := s.roster.Remove(playerID)
	if s.roster.Len() == 0 {
		return events, true
	}
	if s.phase == PhaseLobby && len(events) == 0 {
		events = append(events, broadcast(EvtPlayerUpdate, PlayerUpdatePayload{Text: p.Name + " has left the game"}))
	}
	if wasAdmin {
		admin := s.roster.RotateAdmin()
		events = append(events,
			broadcast(EvtAdminChanged, AdminChangedPayload{Admin: admin.Name}),
			broadcast(EvtRoomSettings, s.settingsPayload()),
		)
	}
	return append(events, s.seatingEvents()...), false
}

/* ----- event helpers ----- */

func (s *Session) settingsPayload() SettingsPayload {
	p := SettingsPayload{
		Capacity:      s.capacity,
		SelectionSecs: s.selectionSecs,
		Public:        s.public,
		MatchNumber:   s.matchNumber,
	}
	if admin := s.roster.Admin(); admin != nil {
		p.Admin = admin.Name
	}
	return p
}

// seatingEvents emits one seating view per player, masked per the reveal
// rule: loyal viewers see every faction (their own included) as Unknown,
// infiltrators see exactly the infiltrator seats.
func (s *Session) seatingEvents() []Event {
	events := make([]Event, 0, s.roster.Len())
	for _, viewer := range s.roster.Players() {
		events = append(events, unicast(EvtSeating, viewer.ID, SeatingPayload{Seats: s.maskedSeatsFor(viewer)}))
	}
	return events
}

func (s *Session) maskedSeatsFor(viewer *Player) []Seat {
	seats := make([]Seat, 0, s.roster.Len())
	for _, p := range s.roster.Players() {
		faction := FactionUnknown
		if viewer.Faction == FactionInfiltrator && p.Faction == FactionInfiltrator {
			faction = FactionInfiltrator
		}
		seats = append(seats, Seat{
			Name:      p.Name,
			Faction:   faction,
			IsLeader:  p.IsLeader,
			IsAdmin:   p.IsAdmin,
			OnMission: p.OnMission,
			Connected: p.Connected,
		})
	}
	return seats
}

func (s *Session) leaderSelectingEvents(leader *Player) []Event {
	events := make([]Event, 0, s.roster.Len())
	for _, p := range s.roster.Players() {
		events = append(events, unicast(EvtLeaderSelecting, p.ID, LeaderSelectingPayload{
			Leader:        leader.Name,
			YouAreLeader:  p.ID == leader.ID,
			Mission:       s.mission,
			SelectionSecs: s.selectionSecs,
		}))
	}
	return events
}

/* ----- guards ----- */

func (s *Session) requireAdmin(callerID string) error {
	_, err := s.requireAdminPlayer(callerID)
	return err
}

func (s *Session) requireAdminPlayer(callerID string) (*Player, error) {
	p, err := s.roster.ByID(callerID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin {
		return nil, fmt.Errorf("%w: %s", ErrNotAdmin, p.Name)
	}
	return p, nil
}

func (s *Session) requireLobbyAdmin(callerID string) error {
	if err := s.requireAdmin(callerID); err != nil {
		return err
	}
	if s.phase != PhaseLobby {
		return fmt.Errorf("%w: phase is %s", ErrWrongPhase, s.phase)
	}
	return nil
}
