package game

import (
	"fmt"
	"math/rand"
)

type Faction string

const (
	FactionUnknown     Faction = "unknown"
	FactionLoyal       Faction = "loyal"
	FactionInfiltrator Faction = "infiltrator"
)

// Player is one seat in a room. ID is the connection identity the transport
// layer binds; Name is unique within the room.
type Player struct {
	ID        string
	Name      string
	Faction   Faction
	IsLeader  bool
	IsAdmin   bool
	OnMission bool
	Connected bool
}

// Roster is the ordered seat list for one room. Pure bookkeeping; the
// session decides when rotation and resets happen.
type Roster struct {
	players []*Player
}

func (r *Roster) Len() int { return len(r.players) }

// Players returns the seats in order. Callers must not reorder the slice.
func (r *Roster) Players() []*Player { return r.players }

func (r *Roster) Add(p *Player) error {
	if r.HasName(p.Name) {
		return fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
	}
	r.players = append(r.players, p)
	return nil
}

// Remove drops the seat with the given ID. It reports whether that seat held
// the leader or admin flag so the caller can reassign.
func (r *Roster) Remove(id string) (removed *Player, wasLeader, wasAdmin bool) {
	for i, p := range r.players {
		if p.ID == id {
			r.players = append(r.players[:i], r.players[i+1:]...)
			return p, p.IsLeader, p.IsAdmin
		}
	}
	return nil, false, false
}

func (r *Roster) ByID(id string) (*Player, error) {
	for _, p := range r.players {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: id %s", ErrNotFound, id)
}

func (r *Roster) ByName(name string) (*Player, error) {
	for _, p := range r.players {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (r *Roster) HasName(name string) bool {
	_, err := r.ByName(name)
	return err == nil
}

func (r *Roster) Leader() *Player {
	for _, p := range r.players {
		if p.IsLeader {
			return p
		}
	}
	return nil
}

func (r *Roster) Admin() *Player {
	for _, p := range r.players {
		if p.IsAdmin {
			return p
		}
	}
	return nil
}

// SetLeader makes the seat at index i the sole leader.
func (r *Roster) SetLeader(i int) *Player {
	for j, p := range r.players {
		p.IsLeader = j == i
	}
	return r.players[i]
}

// RotateLeader moves the leader flag to the next seat in order, wrapping.
// The roster must not be empty; with no current leader seat 0 is chosen.
func (r *Roster) RotateLeader() *Player {
	next := 0
	for i, p := range r.players {
		if p.IsLeader {
			next = (i + 1) % len(r.players)
			break
		}
	}
	return r.SetLeader(next)
}

// RotateAdmin moves the admin flag to the next seat in order, independent of
// leader rotation. Used when the admin leaves without naming a successor.
func (r *Roster) RotateAdmin() *Player {
	next := 0
	for i, p := range r.players {
		if p.IsAdmin {
			p.IsAdmin = false
			next = (i + 1) % len(r.players)
			break
		}
	}
	r.players[next].IsAdmin = true
	return r.players[next]
}

func (r *Roster) ClearOnMission() {
	for _, p := range r.players {
		p.OnMission = false
	}
}

// ResetMatchState clears everything a finished match revealed or assigned.
// Seats, names, admin and connectivity survive into the next match.
func (r *Roster) ResetMatchState() {
	for _, p := range r.players {
		p.Faction = FactionUnknown
		p.IsLeader = false
		p.OnMission = false
	}
}

// Shuffle randomizes seat order for a fresh match.
func (r *Roster) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(r.players), func(i, j int) {
		r.players[i], r.players[j] = r.players[j], r.players[i]
	})
}

func (r *Roster) Names() []string {
	names := make([]string, 0, len(r.players))
	for _, p := range r.players {
		names = append(names, p.Name)
	}
	return names
}
