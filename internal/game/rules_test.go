package game

import "testing"

func TestSpyCountAndTeamSizes(t *testing.T) {
	cases := []struct {
		capacity  int
		spies     int
		teamSizes [MissionCount]int
	}{
		{capacity: 5, spies: 2, teamSizes: [MissionCount]int{2, 3, 2, 3, 3}},
		{capacity: 6, spies: 2, teamSizes: [MissionCount]int{2, 3, 4, 3, 4}},
		{capacity: 7, spies: 3, teamSizes: [MissionCount]int{2, 3, 3, 4, 4}},
		{capacity: 8, spies: 3, teamSizes: [MissionCount]int{3, 4, 4, 5, 5}},
		{capacity: 9, spies: 3, teamSizes: [MissionCount]int{3, 4, 4, 5, 5}},
		{capacity: 10, spies: 4, teamSizes: [MissionCount]int{3, 4, 4, 5, 5}},
	}

	for _, tc := range cases {
		if got := SpyCount(tc.capacity); got != tc.spies {
			t.Errorf("SpyCount(%d) = %d, want %d", tc.capacity, got, tc.spies)
		}
		if got := MissionTeamSizes(tc.capacity); got != tc.teamSizes {
			t.Errorf("MissionTeamSizes(%d) = %v, want %v", tc.capacity, got, tc.teamSizes)
		}
	}
}

func TestFailsNeededToFail(t *testing.T) {
	cases := []struct {
		name     string
		capacity int
		mission  int
		want     int
	}{
		{name: "small game mission 4 needs one", capacity: 6, mission: 4, want: 1},
		{name: "seven players mission 4 needs two", capacity: 7, mission: 4, want: 2},
		{name: "ten players mission 4 needs two", capacity: 10, mission: 4, want: 2},
		{name: "ten players mission 3 needs one", capacity: 10, mission: 3, want: 1},
		{name: "ten players mission 5 needs one", capacity: 10, mission: 5, want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FailsNeededToFail(tc.capacity, tc.mission); got != tc.want {
				t.Fatalf("FailsNeededToFail(%d, %d) = %d, want %d", tc.capacity, tc.mission, got, tc.want)
			}
		})
	}
}

func TestMissionTeamSizesClampsOutOfRange(t *testing.T) {
	if got := MissionTeamSizes(4); got != missionTeamSizes[5] {
		t.Fatalf("capacity 4 should clamp to the 5-player row, got %v", got)
	}
	if got := MissionTeamSizes(12); got != missionTeamSizes[10] {
		t.Fatalf("capacity 12 should clamp to the 10-player row, got %v", got)
	}
}
