package game

import (
	"errors"
	"testing"
)

func seatedRoster(t *testing.T, names ...string) *Roster {
	t.Helper()
	r := &Roster{}
	for i, name := range names {
		if err := r.Add(&Player{ID: "id-" + name, Name: name, IsAdmin: i == 0, Connected: true}); err != nil {
			t.Fatalf("seeding roster: %v", err)
		}
	}
	return r
}

func TestRosterRejectsDuplicateName(t *testing.T) {
	r := seatedRoster(t, "ana", "bob")
	err := r.Add(&Player{ID: "id-x", Name: "bob"})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("want ErrDuplicateName, got %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("failed add must not grow the roster, len=%d", r.Len())
	}
}

func TestRosterRemoveReportsLostFlags(t *testing.T) {
	r := seatedRoster(t, "ana", "bob", "cal")
	r.SetLeader(1)

	removed, wasLeader, wasAdmin := r.Remove("id-bob")
	if removed == nil || removed.Name != "bob" {
		t.Fatalf("expected bob removed, got %+v", removed)
	}
	if !wasLeader || wasAdmin {
		t.Fatalf("bob held leader only: wasLeader=%v wasAdmin=%v", wasLeader, wasAdmin)
	}

	// removing an absent seat is a no-op
	removed, _, _ = r.Remove("id-bob")
	if removed != nil || r.Len() != 2 {
		t.Fatalf("second remove must be a no-op")
	}
}

func TestRotateLeaderWraps(t *testing.T) {
	r := seatedRoster(t, "ana", "bob", "cal")
	r.SetLeader(2)

	next := r.RotateLeader()
	if next.Name != "ana" {
		t.Fatalf("rotation from the last seat should wrap to ana, got %s", next.Name)
	}
	leaders := 0
	for _, p := range r.Players() {
		if p.IsLeader {
			leaders++
		}
	}
	if leaders != 1 {
		t.Fatalf("exactly one leader expected, got %d", leaders)
	}
}

func TestRotateAdminIndependentOfLeader(t *testing.T) {
	r := seatedRoster(t, "ana", "bob", "cal")
	r.SetLeader(2) // cal leads, ana is admin

	admin := r.RotateAdmin()
	if admin.Name != "bob" {
		t.Fatalf("admin should rotate in seat order to bob, got %s", admin.Name)
	}
	if leader := r.Leader(); leader == nil || leader.Name != "cal" {
		t.Fatalf("leader must be untouched by admin rotation")
	}
}

func TestResetMatchStateKeepsSeats(t *testing.T) {
	r := seatedRoster(t, "ana", "bob")
	r.Players()[0].Faction = FactionInfiltrator
	r.Players()[1].Faction = FactionLoyal
	r.SetLeader(1)
	r.Players()[0].OnMission = true

	r.ResetMatchState()

	for _, p := range r.Players() {
		if p.Faction != FactionUnknown || p.IsLeader || p.OnMission {
			t.Fatalf("match state not cleared for %s: %+v", p.Name, p)
		}
	}
	if r.Admin() == nil {
		t.Fatalf("admin must survive a match reset")
	}
}
