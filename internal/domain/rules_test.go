package domain

import (
	"errors"
	"testing"
)

func TestComputeArrivalPoints(t *testing.T) {
	tests := []struct {
		name      string
		base      int
		placement int
		want      int
	}{
		{name: "first place full value", base: 4, placement: 1, want: 4},
		{name: "second place 75%", base: 4, placement: 2, want: 3},
		{name: "third place 50%", base: 4, placement: 3, want: 2},
		{name: "fourth place 25%", base: 4, placement: 4, want: 1},
		{name: "fifth place nothing", base: 4, placement: 5, want: 0},
		{name: "floors fractional points", base: 3, placement: 2, want: 2},
		{name: "floors below one", base: 1, placement: 4, want: 0},
		{name: "far placement", base: 100, placement: 40, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeArrivalPoints(tt.base, tt.placement)
			if err != nil {
				t.Fatalf("ComputeArrivalPoints error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ComputeArrivalPoints(%d, %d) = %d, want %d", tt.base, tt.placement, got, tt.want)
			}
		})
	}
}

func TestComputeArrivalPointsZeroFromFifth(t *testing.T) {
	for base := 0; base <= 50; base++ {
		for p := 5; p <= 12; p++ {
			got, err := ComputeArrivalPoints(base, p)
			if err != nil || got != 0 {
				t.Fatalf("ComputeArrivalPoints(%d, %d) = %d, %v; want 0", base, p, got, err)
			}
		}
	}
}

func TestComputeArrivalPointsRejectsPlacementBelowOne(t *testing.T) {
	for _, p := range []int{0, -1} {
		if _, err := ComputeArrivalPoints(4, p); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("placement %d: err = %v, want ErrInvalidArgument", p, err)
		}
	}
}

func TestComputeCompletionBonus(t *testing.T) {
	tests := []struct {
		name      string
		survivors int
		members   int
		rules     BonusRules
		want      int
	}{
		{name: "disabled", survivors: 2, members: 2, rules: BonusRules{}, want: 0},
		{name: "full team survives", survivors: 2, members: 2, rules: BonusRules{SurvivorMultiplier: 0.5, FullTeamBonus: true}, want: 8},
		{name: "one survivor", survivors: 1, members: 2, rules: BonusRules{SurvivorMultiplier: 0.5, FullTeamBonus: true}, want: 2},
		{name: "ghosts only", survivors: 0, members: 2, rules: BonusRules{SurvivorMultiplier: 0.5, FullTeamBonus: true}, want: 0},
		{name: "full team bonus only", survivors: 3, members: 3, rules: BonusRules{FullTeamBonus: true}, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeCompletionBonus(4, tt.survivors, tt.members, tt.rules); got != tt.want {
				t.Fatalf("ComputeCompletionBonus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPointsBreakdown(t *testing.T) {
	got := PointsBreakdown(4, 2, 2, BonusRules{SurvivorMultiplier: 0.5, FullTeamBonus: true})
	want := "4 base + 4 (2/2 survived) + 4 (full team) = 12"
	if got != want {
		t.Fatalf("PointsBreakdown = %q, want %q", got, want)
	}
}

func TestPointTableBasePoints(t *testing.T) {
	table := DefaultPointTable()

	tests := []struct {
		mapID   string
		want    int
		unknown bool
	}{
		{mapID: "Shore", want: 1},
		{mapID: "Tropics", want: 2},
		{mapID: "Alpine", want: 4},
		{mapID: "MESA", want: 4},
		{mapID: "Caldera", want: 6},
		{mapID: "Kiln", want: 8},
		{mapID: "Moon", want: 1, unknown: true},
		{mapID: "", want: 1, unknown: true},
	}

	for _, tt := range tests {
		t.Run(tt.mapID, func(t *testing.T) {
			got, err := table.BasePoints(tt.mapID)
			if got != tt.want {
				t.Fatalf("BasePoints(%q) = %d, want %d", tt.mapID, got, tt.want)
			}
			if tt.unknown != errors.Is(err, ErrUnknownMap) {
				t.Fatalf("BasePoints(%q) warning = %v, unknown = %v", tt.mapID, err, tt.unknown)
			}
		})
	}
}

func TestPointTableLowestTierFallback(t *testing.T) {
	table := PointTable{{ID: "hard", Keywords: []string{"hard"}, Points: 5}, {ID: "easy", Keywords: []string{"easy"}, Points: 3}}
	if got, _ := table.BasePoints("unknown"); got != 3 {
		t.Fatalf("fallback = %d, want 3", got)
	}
	if got, _ := (PointTable{}).BasePoints("any"); got != 1 {
		t.Fatalf("empty table fallback = %d, want 1", got)
	}
}

func TestProgressionNext(t *testing.T) {
	p := DefaultProgression()

	tests := []struct {
		current   string
		wantNext  string
		wantFinal bool
	}{
		{current: "Shore", wantNext: "Tropics"},
		{current: "tropics", wantNext: "Mesa"},
		{current: "Caldera", wantNext: "Kiln"},
		{current: "Kiln", wantFinal: true},
		{current: "Nowhere", wantNext: "Shore"},
	}

	for _, tt := range tests {
		t.Run(tt.current, func(t *testing.T) {
			next, final := p.Next(tt.current)
			if next != tt.wantNext || final != tt.wantFinal {
				t.Fatalf("Next(%q) = (%q, %v), want (%q, %v)", tt.current, next, final, tt.wantNext, tt.wantFinal)
			}
		})
	}
}
