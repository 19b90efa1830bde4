package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// PlacementDecayPercent is how much of the base value each later placement loses.
const PlacementDecayPercent = 25

var ErrUnknownMap = errors.New("unknown map, using lowest tier points")

// ComputeArrivalPoints returns floor(base * multiplier) where the multiplier drops by 25 points per
// placement: 1st 100%, 2nd 75%, 3rd 50%, 4th 25%, 5th and later 0%.
func ComputeArrivalPoints(basePoints, placement int) (int, error) {
	if placement < 1 {
		return 0, fmt.Errorf("placement %d: %w", placement, ErrInvalidArgument)
	}
	percent := 100 - PlacementDecayPercent*(placement-1)
	if percent <= 0 {
		return 0, nil
	}
	return floorDiv(basePoints*percent, 100), nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// BonusRules toggles the completion bonuses awarded when a whole team reaches the checkpoint.
type BonusRules struct {
	SurvivorMultiplier float64 `json:"survivor_multiplier"` // per surviving member, fraction of base
	FullTeamBonus      bool    `json:"full_team_bonus"`     // extra base points when nobody was a ghost
}

// ComputeCompletionBonus returns the survivor bonus plus the optional full team bonus.
func ComputeCompletionBonus(basePoints, survivors, members int, rules BonusRules) int {
	bonus := 0
	if rules.SurvivorMultiplier > 0 && survivors > 0 {
		bonus += int(math.Floor(float64(basePoints) * rules.SurvivorMultiplier * float64(survivors)))
	}
	if rules.FullTeamBonus && members > 0 && survivors >= members {
		bonus += basePoints
	}
	return bonus
}

// PointsBreakdown renders how a team's completion was scored, e.g. "4 base + 4 (2/2 survived) = 8".
func PointsBreakdown(basePoints, survivors, members int, rules BonusRules) string {
	var b strings.Builder
	total := basePoints
	fmt.Fprintf(&b, "%d base", basePoints)
	if rules.SurvivorMultiplier > 0 {
		if survivors > 0 {
			individual := int(math.Floor(float64(basePoints) * rules.SurvivorMultiplier * float64(survivors)))
			total += individual
			fmt.Fprintf(&b, " + %d (%d/%d survived)", individual, survivors, members)
		} else {
			b.WriteString(" + 0 (ghosted)")
		}
	}
	if rules.FullTeamBonus && members > 0 && survivors >= members {
		total += basePoints
		fmt.Fprintf(&b, " + %d (full team)", basePoints)
	}
	fmt.Fprintf(&b, " = %d", total)
	return b.String()
}

// MapTier maps a set of map keywords to the base points of that difficulty.
type MapTier struct {
	ID       string   `json:"id"`
	Keywords []string `json:"keywords"`
	Points   int      `json:"points"`
}

// PointTable is the difficulty table used to derive base points from a map id.
type PointTable []MapTier

// DefaultPointTable returns the standard biome difficulty tiers.
func DefaultPointTable() PointTable {
	return PointTable{
		{ID: "shore", Keywords: []string{"shore", "coast", "beach"}, Points: 1},
		{ID: "tropics", Keywords: []string{"tropics", "jungle", "roots", "redwood"}, Points: 2},
		{ID: "alpine", Keywords: []string{"alpine", "snow", "mesa", "desert"}, Points: 4},
		{ID: "caldera", Keywords: []string{"caldera", "volcano"}, Points: 6},
		{ID: "kiln", Keywords: []string{"kiln", "summit", "peak"}, Points: 8},
	}
}

// BasePoints returns the base points for a map. It never fails: an unrecognized map yields the
// lowest tier's points together with ErrUnknownMap as a warning.
func (t PointTable) BasePoints(mapID string) (int, error) {
	lower := strings.ToLower(mapID)
	if lower != "" {
		for _, tier := range t {
			for _, kw := range tier.Keywords {
				if strings.Contains(lower, strings.ToLower(kw)) {
					return tier.Points, nil
				}
			}
		}
	}
	return t.lowest(), fmt.Errorf("map %q: %w", mapID, ErrUnknownMap)
}

func (t PointTable) lowest() int {
	if len(t) == 0 {
		return 1
	}
	low := t[0].Points
	for _, tier := range t[1:] {
		if tier.Points < low {
			low = tier.Points
		}
	}
	return low
}

// Progression is the fixed linear order of map segments in a match.
type Progression []string

// DefaultProgression returns the biome order climbed during a match.
func DefaultProgression() Progression {
	return Progression{"Shore", "Tropics", "Mesa", "Alpine", "Roots", "Caldera", "Kiln"}
}

// First returns the opening segment.
func (p Progression) First() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Next returns the segment after current. final is true when current is the last segment.
// An unrecognized current segment restarts at the first one.
func (p Progression) Next(current string) (next string, final bool) {
	if len(p) == 0 {
		return "", true
	}
	for i, seg := range p {
		if strings.EqualFold(seg, current) {
			if i == len(p)-1 {
				return "", true
			}
			return p[i+1], false
		}
	}
	return p[0], false
}
