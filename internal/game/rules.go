package game

const (
	MinCapacity  = 5
	MaxCapacity  = 10
	MissionCount = 5

	// MaxRejections is how many consecutive rejected proposals end the
	// match in favor of the infiltrators.
	MaxRejections = 5
)

// missionTeamSizes is a fixed lookup, not a formula: capacities 5 and 7
// break any arithmetic pattern.
var missionTeamSizes = map[int][MissionCount]int{
	5:  {2, 3, 2, 3, 3},
	6:  {2, 3, 4, 3, 4},
	7:  {2, 3, 3, 4, 4},
	8:  {3, 4, 4, 5, 5},
	9:  {3, 4, 4, 5, 5},
	10: {3, 4, 4, 5, 5},
}

// SpyCount returns how many infiltrators a match of the given capacity seats.
func SpyCount(capacity int) int {
	switch {
	case capacity < 7:
		return 2
	case capacity < 10:
		return 3
	default:
		return 4
	}
}

// MissionTeamSizes returns the five mission team sizes for a capacity.
// Capacities outside 5..10 clamp to the nearest table row.
func MissionTeamSizes(capacity int) [MissionCount]int {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	return missionTeamSizes[capacity]
}

// FailsNeededToFail returns how many fail cards sink the given mission.
// The fourth mission in larger games needs two.
func FailsNeededToFail(capacity, mission int) int {
	if capacity >= 7 && mission == 4 {
		return 2
	}
	return 1
}
