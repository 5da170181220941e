package game

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, players int) *Session {
	t.Helper()
	s := New("R1", Options{
		Capacity:      players,
		SelectionSecs: 60,
		Rand:          rand.New(rand.NewSource(7)),
	})
	for i := 1; i <= players; i++ {
		if _, err := s.Join(fmt.Sprintf("id%d", i), fmt.Sprintf("P%d", i)); err != nil {
			t.Fatalf("joining P%d: %v", i, err)
		}
	}
	return s
}

func adminID(t *testing.T, s *Session) string {
	t.Helper()
	admin := s.Roster().Admin()
	if admin == nil {
		t.Fatal("no admin seated")
	}
	return admin.ID
}

func eventsOfType(events []Event, et EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == et {
			out = append(out, ev)
		}
	}
	return out
}

// proposeInOrder has the current leader propose the first N seats.
func proposeInOrder(t *testing.T, s *Session) []Event {
	t.Helper()
	want := s.teamSizes[s.mission-1]
	names := s.Roster().Names()[:want]
	events, err := s.ProposeTeam(s.Roster().Leader().ID, names)
	if err != nil {
		t.Fatalf("proposing %v: %v", names, err)
	}
	return events
}

// voteAll casts the same vote for every seat and returns the closing events.
func voteAll(t *testing.T, s *Session, approve bool) []Event {
	t.Helper()
	var final []Event
	for _, p := range s.Roster().Players() {
		events, err := s.CastVote(p.ID, approve)
		if err != nil {
			t.Fatalf("%s voting: %v", p.Name, err)
		}
		final = events
	}
	if final == nil {
		t.Fatal("vote round never closed")
	}
	return final
}

func TestStartMatchAssignsFactionsAndLeader(t *testing.T) {
	s := newTestSession(t, 7)
	_, err := s.StartMatch(adminID(t, s))
	if err != nil {
		t.Fatalf("StartMatch: %v", err)
	}

	if s.Phase() != PhaseTeamSelect {
		t.Fatalf("phase = %s, want team_select", s.Phase())
	}
	spies, leaders := 0, 0
	for _, p := range s.Roster().Players() {
		if p.Faction == FactionInfiltrator {
			spies++
		}
		if p.Faction == FactionUnknown {
			t.Fatalf("%s has no faction after match start", p.Name)
		}
		if p.IsLeader {
			leaders++
		}
	}
	if spies != SpyCount(7) {
		t.Fatalf("spies = %d, want %d", spies, SpyCount(7))
	}
	if leaders != 1 {
		t.Fatalf("leaders = %d, want 1", leaders)
	}
}

func TestStartMatchRequiresAdminAndQuorum(t *testing.T) {
	s := newTestSession(t, 5)
	for _, p := range s.Roster().Players() {
		if !p.IsAdmin {
			if _, err := s.StartMatch(p.ID); !errors.Is(err, ErrNotAdmin) {
				t.Fatalf("want ErrNotAdmin, got %v", err)
			}
			break
		}
	}

	small := New("R2", Options{Capacity: 5, Rand: rand.New(rand.NewSource(1))})
	if _, err := small.Join("a", "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := small.StartMatch("a"); !errors.Is(err, ErrCapacity) {
		t.Fatalf("want ErrCapacity for a 1-player start, got %v", err)
	}
}

func TestSeatingMaskedPerViewer(t *testing.T) {
	s := newTestSession(t, 7)
	events, err := s.StartMatch(adminID(t, s))
	require.NoError(t, err)

	seatings := eventsOfType(events, EvtSeating)
	require.Len(t, seatings, 7, "one seating view per player")

	for _, ev := range seatings {
		viewer, err := s.Roster().ByID(ev.To)
		require.NoError(t, err)
		payload := ev.Payload.(SeatingPayload)
		require.Len(t, payload.Seats, 7)

		for _, seat := range payload.Seats {
			actual, err := s.Roster().ByName(seat.Name)
			require.NoError(t, err)
			if viewer.Faction == FactionInfiltrator && actual.Faction == FactionInfiltrator {
				assert.Equal(t, FactionInfiltrator, seat.Faction,
					"%s must see fellow infiltrator %s", viewer.Name, seat.Name)
			} else {
				assert.Equal(t, FactionUnknown, seat.Faction,
					"%s must not see %s's faction", viewer.Name, seat.Name)
			}
		}
	}
}

func TestVoteOverwriteNotAccumulate(t *testing.T) {
	s := newTestSession(t, 5)
	if _, err := s.StartMatch(adminID(t, s)); err != nil {
		t.Fatal(err)
	}
	proposeInOrder(t, s)

	voter := s.Roster().Players()[0]
	if _, err := s.CastVote(voter.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CastVote(voter.ID, true); err != nil {
		t.Fatal(err)
	}
	if len(s.approve)+len(s.disapprove) != 1 {
		t.Fatalf("repeat vote double-counted: %d approvals, %d disapprovals",
			len(s.approve), len(s.disapprove))
	}

	if _, err := s.CastVote(voter.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.approve[voter.ID]; ok {
		t.Fatal("voter still in approve set after switching")
	}
	if _, ok := s.disapprove[voter.ID]; !ok {
		t.Fatal("voter missing from disapprove set after switching")
	}
}

func TestVoteTieRejects(t *testing.T) {
	s := newTestSession(t, 6)
	if _, err := s.StartMatch(adminID(t, s)); err != nil {
		t.Fatal(err)
	}
	proposeInOrder(t, s)

	var final []Event
	for i, p := range s.Roster().Players() {
		events, err := s.CastVote(p.ID, i%2 == 0) // 3 approve, 3 disapprove
		if err != nil {
			t.Fatal(err)
		}
		final = events
	}

	tallies := eventsOfType(final, EvtVoteTally)
	if len(tallies) != 1 {
		t.Fatalf("expected one tally event, got %d", len(tallies))
	}
	if tallies[0].Payload.(VoteTallyPayload).Approved {
		t.Fatal("a tied vote must reject the proposal")
	}
	if s.Phase() != PhaseTeamSelect {
		t.Fatalf("rejected vote should re-enter team select, phase=%s", s.Phase())
	}
}

func TestRejectionCapEndsMatchForInfiltrators(t *testing.T) {
	s := newTestSession(t, 5)
	require.NoError(t, errOf(s.StartMatch(adminID(t, s))))

	var final []Event
	for round := 1; round <= MaxRejections; round++ {
		proposeInOrder(t, s)
		final = voteAll(t, s, false)
		if round < MaxRejections {
			require.Equal(t, round, s.Rejections())
			require.Equal(t, PhaseTeamSelect, s.Phase())
		}
	}

	tracks := eventsOfType(final, EvtVoteTrack)
	require.NotEmpty(t, tracks)
	require.Equal(t, MaxRejections, tracks[0].Payload.(VoteTrackPayload).Rejections,
		"the counter must read exactly 5 at the moment the match ends")

	ends := eventsOfType(final, EvtMatchEnd)
	require.Len(t, ends, 1)
	payload := ends[0].Payload.(MatchEndPayload)
	require.Equal(t, EndRejectionCap, payload.Reason)
	require.Equal(t, FactionInfiltrator, payload.Winner)
	require.Equal(t, PhaseLobby, s.Phase())
}

func TestApprovalResetsRejectionCounter(t *testing.T) {
	s := newTestSession(t, 5)
	if _, err := s.StartMatch(adminID(t, s)); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		proposeInOrder(t, s)
		voteAll(t, s, false)
	}
	if s.Rejections() != 2 {
		t.Fatalf("rejections = %d, want 2", s.Rejections())
	}

	proposeInOrder(t, s)
	voteAll(t, s, true)
	if s.Rejections() != 0 {
		t.Fatalf("an approval must reset the counter, got %d", s.Rejections())
	}
	if s.Phase() != PhaseMission {
		t.Fatalf("approved proposal should enter the mission, phase=%s", s.Phase())
	}
}

func TestMissionFourNeedsTwoFailsAtCapacityTen(t *testing.T) {
	run := func(fails int) MissionOutcome {
		s := newTestSession(t, 10)
		require.NoError(t, errOf(s.StartMatch(adminID(t, s))))
		s.mission = 4 // jump straight to the two-fail mission

		proposeInOrder(t, s)
		voteAll(t, s, true)

		var final []Event
		submitted := 0
		for _, p := range s.Roster().Players() {
			if !p.OnMission {
				continue
			}
			events, err := s.SubmitMissionAction(p.ID, submitted >= fails)
			require.NoError(t, err)
			final = events
			submitted++
		}

		results := eventsOfType(final, EvtMissionResult)
		require.Len(t, results, 1)
		payload := results[0].Payload.(MissionResultPayload)
		require.Equal(t, fails, payload.Fails)
		return payload.Outcome
	}

	require.Equal(t, OutcomePass, run(1), "one fail must not sink mission 4 at capacity 10")
	require.Equal(t, OutcomeFail, run(2), "two fails must sink mission 4 at capacity 10")
}

func TestEndToEndLoyalWin(t *testing.T) {
	s := newTestSession(t, 5)
	events, err := s.StartMatch(adminID(t, s))
	require.NoError(t, err)
	require.Equal(t, [MissionCount]int{2, 3, 2, 3, 3}, s.teamSizes)
	require.NotEmpty(t, eventsOfType(events, EvtLeaderSelecting))

	var final []Event
	for mission := 1; mission <= 3; mission++ {
		require.Equal(t, mission, s.Mission())
		leaderBefore := s.Roster().Leader().Name

		proposeInOrder(t, s)
		require.Equal(t, PhaseVote, s.Phase())
		voteAll(t, s, true)
		require.Equal(t, PhaseMission, s.Phase())

		for _, p := range s.Roster().Players() {
			if !p.OnMission {
				continue
			}
			ev, err := s.SubmitMissionAction(p.ID, true)
			require.NoError(t, err)
			if ev != nil {
				final = ev
			}
		}
		require.Equal(t, OutcomePass, s.history[mission-1].Outcome)

		if mission < 3 {
			require.Equal(t, PhaseTeamSelect, s.Phase())
			require.NotEqual(t, leaderBefore, s.Roster().Leader().Name,
				"leader must rotate between missions")
		}
	}

	ends := eventsOfType(final, EvtMatchEnd)
	require.Len(t, ends, 1)
	payload := ends[0].Payload.(MatchEndPayload)
	require.Equal(t, EndLoyalWin, payload.Reason)
	require.Equal(t, FactionLoyal, payload.Winner)
	require.Len(t, payload.Reveal, 5)
	for _, line := range payload.Reveal {
		require.NotEqual(t, FactionUnknown, line.Faction, "match end reveals true factions")
	}
	require.Equal(t, [MissionCount]MissionOutcome{OutcomePass, OutcomePass, OutcomePass, OutcomeNone, OutcomeNone},
		payload.Track)

	// the room lives on for the next match
	require.Equal(t, PhaseLobby, s.Phase())
	require.Equal(t, 2, s.MatchNumber())
	for _, p := range s.Roster().Players() {
		require.Equal(t, FactionUnknown, p.Faction)
		require.False(t, p.IsLeader)
		require.False(t, p.OnMission)
	}
}

func TestForceProposalFallback(t *testing.T) {
	s := newTestSession(t, 5)
	if _, err := s.StartMatch(adminID(t, s)); err != nil {
		t.Fatal(err)
	}

	events, err := s.ForceProposal()
	if err != nil {
		t.Fatalf("ForceProposal: %v", err)
	}
	props := eventsOfType(events, EvtProposal)
	if len(props) != 1 {
		t.Fatalf("expected one proposal event, got %d", len(props))
	}
	payload := props[0].Payload.(ProposalPayload)
	if !payload.Forced {
		t.Fatal("forced proposal must be marked forced")
	}
	if len(payload.Members) != s.teamSizes[0] {
		t.Fatalf("forced team size = %d, want %d", len(payload.Members), s.teamSizes[0])
	}
	if s.Phase() != PhaseVote {
		t.Fatalf("forced proposal should open the vote, phase=%s", s.Phase())
	}

	// a stale fire after the phase moved on is a silent no-op
	events, err = s.ForceProposal()
	if events != nil || err != nil {
		t.Fatalf("stale force must be a no-op, got events=%v err=%v", events, err)
	}
}

func TestLobbyDisconnectRemovesSeatAndRotatesAdmin(t *testing.T) {
	s := newTestSession(t, 5)
	admin := s.Roster().Admin()

	events, empty := s.HandleDisconnect(admin.ID)
	if empty {
		t.Fatal("four players remain, room must survive")
	}
	if s.Roster().Len() != 4 {
		t.Fatalf("roster len = %d, want 4", s.Roster().Len())
	}
	if len(eventsOfType(events, EvtAdminChanged)) != 1 {
		t.Fatal("departing admin must hand the seat on")
	}
	if s.Roster().Admin() == nil {
		t.Fatal("no admin after rotation")
	}
}

func TestLastLobbyDisconnectSignalsTeardown(t *testing.T) {
	s := New("R1", Options{Capacity: 5, Rand: rand.New(rand.NewSource(1))})
	if _, err := s.Join("a", "A"); err != nil {
		t.Fatal(err)
	}
	_, empty := s.HandleDisconnect("a")
	if !empty {
		t.Fatal("last seat leaving must signal room teardown")
	}
}

func TestMidMatchDisconnectEndsMatch(t *testing.T) {
	s := newTestSession(t, 5)
	if _, err := s.StartMatch(adminID(t, s)); err != nil {
		t.Fatal(err)
	}
	victim := s.Roster().Players()[2]

	events, empty := s.HandleDisconnect(victim.ID)
	if empty {
		t.Fatal("room must survive a mid-match disconnect")
	}
	ends := eventsOfType(events, EvtMatchEnd)
	if len(ends) != 1 {
		t.Fatalf("expected a match end, got %d", len(ends))
	}
	payload := ends[0].Payload.(MatchEndPayload)
	if payload.Reason != EndDisconnect {
		t.Fatalf("reason = %s, want disconnect", payload.Reason)
	}
	if len(payload.Reveal) != 5 {
		t.Fatal("the reveal must still include the disconnecting player")
	}
	if s.Phase() != PhaseLobby {
		t.Fatalf("phase = %s, want lobby", s.Phase())
	}
	if s.Roster().Len() != 4 {
		t.Fatalf("disconnecting seat must be removed, len=%d", s.Roster().Len())
	}
}

func TestJoinRefusals(t *testing.T) {
	s := newTestSession(t, 5)
	s.capacity = 5
	if _, err := s.Join("late", "Late"); !errors.Is(err, ErrCapacity) {
		t.Fatalf("full room join: want ErrCapacity, got %v", err)
	}

	if _, err := s.StartMatch(adminID(t, s)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Join("late", "Late"); !errors.Is(err, ErrCapacity) {
		t.Fatalf("mid-match join: want ErrCapacity, got %v", err)
	}
}

func TestKickAndAdminTransfer(t *testing.T) {
	s := newTestSession(t, 5)
	admin := adminID(t, s)

	if _, err := s.Kick("id3", "P2"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("non-admin kick: want ErrNotAdmin, got %v", err)
	}

	events, err := s.Kick(admin, "P3")
	if err != nil {
		t.Fatalf("admin kick: %v", err)
	}
	if s.Roster().HasName("P3") {
		t.Fatal("kicked player still seated")
	}
	kicked := eventsOfType(events, EvtKicked)
	if len(kicked) != 1 || kicked[0].To != "id3" {
		t.Fatalf("the kicked player must be told directly, got %+v", kicked)
	}

	if _, err := s.TransferAdmin(admin, "P2"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := s.Roster().Admin().Name; got != "P2" {
		t.Fatalf("admin = %s, want P2", got)
	}
}

func TestProposalValidation(t *testing.T) {
	s := newTestSession(t, 5)
	if _, err := s.ProposeTeam("id1", []string{"P1", "P2"}); !errors.Is(err, ErrInvalidProposal) {
		t.Fatalf("lobby proposal: want ErrInvalidProposal, got %v", err)
	}

	if _, err := s.StartMatch(adminID(t, s)); err != nil {
		t.Fatal(err)
	}
	leader := s.Roster().Leader()
	var follower *Player
	for _, p := range s.Roster().Players() {
		if !p.IsLeader {
			follower = p
			break
		}
	}

	cases := []struct {
		name   string
		caller string
		team   []string
	}{
		{name: "non-leader caller", caller: follower.ID, team: []string{"P1", "P2"}},
		{name: "wrong size", caller: leader.ID, team: []string{"P1", "P2", "P3"}},
		{name: "unknown member", caller: leader.ID, team: []string{"P1", "GHOST"}},
		{name: "duplicate member", caller: leader.ID, team: []string{"P1", "P1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.ProposeTeam(tc.caller, tc.team); !errors.Is(err, ErrInvalidProposal) {
				t.Fatalf("want ErrInvalidProposal, got %v", err)
			}
			if s.Phase() != PhaseTeamSelect {
				t.Fatalf("failed proposal must not change phase, got %s", s.Phase())
			}
		})
	}
}

func TestMissionActionValidation(t *testing.T) {
	s := newTestSession(t, 5)
	if _, err := s.StartMatch(adminID(t, s)); err != nil {
		t.Fatal(err)
	}
	proposeInOrder(t, s)
	voteAll(t, s, true)

	var member, outsider *Player
	for _, p := range s.Roster().Players() {
		if p.OnMission && member == nil {
			member = p
		}
		if !p.OnMission && outsider == nil {
			outsider = p
		}
	}

	if _, err := s.SubmitMissionAction(outsider.ID, true); !errors.Is(err, ErrInvalidMissionAction) {
		t.Fatalf("outsider action: want ErrInvalidMissionAction, got %v", err)
	}
	if _, err := s.SubmitMissionAction(member.ID, true); err != nil {
		t.Fatalf("first action: %v", err)
	}
	if _, err := s.SubmitMissionAction(member.ID, false); !errors.Is(err, ErrInvalidMissionAction) {
		t.Fatalf("second action: want ErrInvalidMissionAction, got %v", err)
	}
	if s.missionPass+s.missionFail != 1 {
		t.Fatalf("tally corrupted by rejected submissions: %d/%d", s.missionPass, s.missionFail)
	}
}

func TestAdminCanEndRunningMatch(t *testing.T) {
	s := newTestSession(t, 5)
	admin := adminID(t, s)

	if _, err := s.EndMatch(admin); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("lobby end: want ErrWrongPhase, got %v", err)
	}

	if _, err := s.StartMatch(admin); err != nil {
		t.Fatal(err)
	}
	events, err := s.EndMatch(admin)
	if err != nil {
		t.Fatalf("EndMatch: %v", err)
	}
	ends := eventsOfType(events, EvtMatchEnd)
	if len(ends) != 1 || ends[0].Payload.(MatchEndPayload).Reason != EndAdminEnded {
		t.Fatalf("want admin_ended match end, got %+v", ends)
	}
}

func errOf(_ []Event, err error) error { return err }
