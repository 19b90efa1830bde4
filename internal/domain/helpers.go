package domain

// GameName is the label game tag used by matchmaking.
const GameName = "peakrace"

// LabelPayload holds the values advertised in the match label.
type LabelPayload struct {
	Open    bool   `json:"open"`
	Game    string `json:"game"`
	Phase   string `json:"phase"`
	Round   int    `json:"round"`
	MapID   string `json:"map_id,omitempty"`
	Teams   int    `json:"teams"`
	Players int    `json:"players"`
}

// ComputeLabel derives the advertised label from match state.
// A match is open while no match is running and there is room left.
func ComputeLabel(s *MatchState, players, capacity int) LabelPayload {
	open := !s.MatchActive() && (capacity <= 0 || players < capacity)
	return LabelPayload{
		Open:    open,
		Game:    GameName,
		Phase:   string(s.Phase),
		Round:   s.CurrentRound,
		MapID:   s.CurrentMapID,
		Teams:   s.Teams.Len(),
		Players: players,
	}
}

// TeamCountFor returns how many teams are needed to seat players at playersPerTeam each,
// capped at maxTeams. At least one team is always returned.
func TeamCountFor(players, playersPerTeam, maxTeams int) int {
	if playersPerTeam < 1 {
		playersPerTeam = 1
	}
	n := (players + playersPerTeam - 1) / playersPerTeam
	if maxTeams > 0 && n > maxTeams {
		n = maxTeams
	}
	if n < 1 {
		n = 1
	}
	return n
}
