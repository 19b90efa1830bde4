package domain

import (
	"errors"
	"sort"
)

var (
	ErrAlreadyActive     = errors.New("match already active")
	ErrInvalidTransition = errors.New("invalid match transition")
	ErrRoundNotActive    = errors.New("round not active")
)

// ScoringConfig is the read-only scoring input of a match.
type ScoringConfig struct {
	Points PointTable
	Bonus  BonusRules
}

// ArrivalResult describes the effect of one arrival on the match.
type ArrivalResult struct {
	Outcome         Outcome
	TeamID          int
	Placement       int // global placement consumed, 0 when none was
	Points          int // placement points awarded
	Bonus           int // completion bonus awarded when the team finished
	TeamFinished    bool
	FinishPlacement int
	StartsTimer     bool  // first scoring arrival of the round
	Warning         error // non-fatal diagnostic such as ErrUnknownMap
}

// Standing is a presentation row for one team.
type Standing struct {
	TeamID            int      `json:"team_id"`
	Name              string   `json:"name"`
	Color             string   `json:"color"`
	Score             int      `json:"score"`
	Members           []string `json:"members"`
	ReachedCheckpoint bool     `json:"reached_checkpoint"`
	FinishPlacement   int      `json:"finish_placement"`
}

// MatchState is the authoritative match/round state machine. Only the host mutates it.
type MatchState struct {
	Teams *TeamRegistry

	Phase                Phase
	MatchNumber          int // incremented by StartMatch; tells rounds of different matches apart
	CurrentRound         int
	CurrentMapID         string
	NextArrivalPlacement int
	WinningTeam          *int

	Scoring ScoringConfig
}

// NewMatchState returns an idle match with no teams.
func NewMatchState(scoring ScoringConfig) *MatchState {
	if scoring.Points == nil {
		scoring.Points = DefaultPointTable()
	}
	return &MatchState{
		Teams:                NewTeamRegistry(),
		Phase:                PhaseIdle,
		NextArrivalPlacement: 1,
		Scoring:              scoring,
	}
}

// MatchActive is true from StartMatch until EndMatch.
func (m *MatchState) MatchActive() bool {
	switch m.Phase {
	case PhaseMatchActive, PhaseRoundActive, PhaseRoundEnding:
		return true
	}
	return false
}

// RoundActive is true while arrivals are accepted.
func (m *MatchState) RoundActive() bool {
	return m.Phase == PhaseRoundActive
}

// StartMatch moves an idle or ended match to active and clears scores.
func (m *MatchState) StartMatch() error {
	if m.MatchActive() {
		return ErrAlreadyActive
	}
	m.Teams.ResetMatch()
	m.Phase = PhaseMatchActive
	m.MatchNumber++
	m.CurrentRound = 0
	m.CurrentMapID = ""
	m.NextArrivalPlacement = 1
	m.WinningTeam = nil
	return nil
}

// StartRound begins the next round on mapID.
func (m *MatchState) StartRound(mapID string) error {
	if m.Phase != PhaseMatchActive && m.Phase != PhaseRoundEnding {
		return ErrInvalidTransition
	}
	m.Phase = PhaseRoundActive
	m.CurrentRound++
	m.CurrentMapID = mapID
	m.NextArrivalPlacement = 1
	m.Teams.ResetRound()
	return nil
}

// RecordTeamArrival applies an arrival through the registry gate and scores it.
// Ghost arrivals are recorded for presence but neither consume a placement nor score.
func (m *MatchState) RecordTeamArrival(teamID int, playerID string, ghost bool) (ArrivalResult, error) {
	result := ArrivalResult{TeamID: teamID, Outcome: OutcomeRejected}
	if !m.RoundActive() {
		return result, ErrRoundNotActive
	}

	outcome, finished := m.Teams.recordArrival(teamID, playerID, ghost)
	result.Outcome = outcome
	if outcome != OutcomeAccepted {
		return result, nil
	}
	team := m.Teams.Team(teamID)

	base, warn := m.Scoring.Points.BasePoints(m.CurrentMapID)
	result.Warning = warn

	if !ghost {
		result.Placement = m.NextArrivalPlacement
		m.NextArrivalPlacement++
		points, err := ComputeArrivalPoints(base, result.Placement)
		if err != nil {
			return result, err
		}
		result.Points = points
		team.Score += points
		result.StartsTimer = result.Placement == 1
	}

	if finished {
		result.TeamFinished = true
		result.FinishPlacement = team.FinishPlacement
		result.Bonus = m.awardCompletion(team, base)
	}
	return result, nil
}

// RemovePlayer drops a player from their team. During a round this may complete the team if every
// remaining member already arrived.
func (m *MatchState) RemovePlayer(playerID string) (team *Team, finished bool) {
	team = m.Teams.RemovePlayer(playerID)
	if team == nil || !m.RoundActive() {
		return team, false
	}
	if m.Teams.completeIfArrived(team) {
		base, _ := m.Scoring.Points.BasePoints(m.CurrentMapID)
		m.awardCompletion(team, base)
		return team, true
	}
	return team, false
}

func (m *MatchState) awardCompletion(team *Team, base int) int {
	bonus := ComputeCompletionBonus(base, team.Survivors(), len(team.Members), m.Scoring.Bonus)
	team.Score += bonus
	return bonus
}

// EndRound stops accepting arrivals and reports the leading team, which may be nil on a tie.
// Scoring already happened per arrival, so nothing is awarded here.
func (m *MatchState) EndRound() (*Team, error) {
	if m.Phase != PhaseRoundActive {
		return nil, ErrInvalidTransition
	}
	m.Phase = PhaseRoundEnding
	return m.Teams.LeadingTeam(), nil
}

// EndMatch finishes the match and records the winner, nil when the top score is tied.
func (m *MatchState) EndMatch() error {
	if m.Phase != PhaseMatchActive && m.Phase != PhaseRoundEnding {
		return ErrInvalidTransition
	}
	m.Phase = PhaseMatchEnded
	m.WinningTeam = nil
	if winner := m.Teams.StrictLeader(); winner != nil {
		id := winner.ID
		m.WinningTeam = &id
	}
	return nil
}

// AllTeamsFinished is true iff every populated team reached the checkpoint.
func (m *MatchState) AllTeamsFinished() bool {
	return m.Teams.AllTeamsFinished()
}

// Standings returns teams ordered by score, highest first.
func (m *MatchState) Standings() []Standing {
	out := make([]Standing, 0, m.Teams.Len())
	for _, t := range m.Teams.Teams() {
		out = append(out, Standing{
			TeamID:            t.ID,
			Name:              t.Name,
			Color:             TeamColor(t.ID),
			Score:             t.Score,
			Members:           t.MemberIDs(),
			ReachedCheckpoint: t.ReachedCheckpoint,
			FinishPlacement:   t.FinishPlacement,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
