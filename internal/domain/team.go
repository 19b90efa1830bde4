package domain

import (
	"fmt"
	"sort"
)

var teamNames = []string{"Red Team", "Blue Team", "Green Team", "Yellow Team", "Purple Team"}

var teamColors = []string{"#FF4444", "#4444FF", "#44FF44", "#FFFF44", "#FF44FF"}

// TeamName returns the display name for a team index.
func TeamName(id int) string {
	if id >= 0 && id < len(teamNames) {
		return teamNames[id]
	}
	return fmt.Sprintf("Team %d", id+1)
}

// TeamColor returns the hex color used by scoreboards for a team index.
func TeamColor(id int) string {
	if id >= 0 && id < len(teamColors) {
		return teamColors[id]
	}
	return "#FFFFFF"
}

// Team holds membership, score and per-round arrival bookkeeping.
type Team struct {
	ID    int
	Name  string
	Score int

	Members map[string]struct{}

	// Round-scoped fields, cleared by ResetRound.
	ReachedCheckpoint   bool
	FinishPlacement     int // 0 = not finished, else 1-based rank among teams
	ArrivedPlayers      map[string]struct{}
	GhostArrivedPlayers map[string]struct{}
}

// NewTeam creates an empty team with its default name.
func NewTeam(id int) *Team {
	return &Team{
		ID:                  id,
		Name:                TeamName(id),
		Members:             make(map[string]struct{}),
		ArrivedPlayers:      make(map[string]struct{}),
		GhostArrivedPlayers: make(map[string]struct{}),
	}
}

// HasMember reports whether the player belongs to the team.
func (t *Team) HasMember(playerID string) bool {
	_, ok := t.Members[playerID]
	return ok
}

// HasArrived reports whether the player already arrived this round.
func (t *Team) HasArrived(playerID string) bool {
	_, ok := t.ArrivedPlayers[playerID]
	return ok
}

// MemberIDs returns the members sorted for stable output.
func (t *Team) MemberIDs() []string {
	return sortedKeys(t.Members)
}

// ArrivedIDs returns the players that reached the checkpoint this round, sorted.
func (t *Team) ArrivedIDs() []string {
	return sortedKeys(t.ArrivedPlayers)
}

// Survivors counts non-ghost arrivals this round.
func (t *Team) Survivors() int {
	return len(t.ArrivedPlayers) - len(t.GhostArrivedPlayers)
}

// allArrived is true when the team has members and every one of them arrived.
func (t *Team) allArrived() bool {
	if len(t.Members) == 0 {
		return false
	}
	for id := range t.Members {
		if _, ok := t.ArrivedPlayers[id]; !ok {
			return false
		}
	}
	return true
}

func (t *Team) resetRound() {
	t.ReachedCheckpoint = false
	t.FinishPlacement = 0
	t.ArrivedPlayers = make(map[string]struct{})
	t.GhostArrivedPlayers = make(map[string]struct{})
}

func (t *Team) removeMember(playerID string) {
	delete(t.Members, playerID)
	delete(t.ArrivedPlayers, playerID)
	delete(t.GhostArrivedPlayers, playerID)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
