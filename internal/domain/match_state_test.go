package domain

import (
	"errors"
	"fmt"
	"testing"
)

// newMatch builds a started match with count teams of perTeam players named t<team>p<n>.
func newMatch(t *testing.T, count, perTeam int, scoring ScoringConfig) *MatchState {
	t.Helper()
	m := NewMatchState(scoring)
	if err := m.Teams.InitializeTeams(count, perTeam); err != nil {
		t.Fatalf("InitializeTeams: %v", err)
	}
	for team := 0; team < count; team++ {
		for n := 0; n < perTeam; n++ {
			if err := m.Teams.AssignPlayer(fmt.Sprintf("t%dp%d", team, n), team); err != nil {
				t.Fatalf("AssignPlayer: %v", err)
			}
		}
	}
	if err := m.StartMatch(); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	return m
}

func TestMatchPhaseTransitions(t *testing.T) {
	m := NewMatchState(ScoringConfig{})
	if m.Phase != PhaseIdle || m.MatchActive() {
		t.Fatalf("new match should be idle")
	}
	if err := m.StartRound("Shore"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("StartRound before StartMatch err = %v", err)
	}
	if err := m.StartMatch(); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if m.MatchNumber != 1 {
		t.Fatalf("MatchNumber = %d after first start", m.MatchNumber)
	}
	if err := m.StartMatch(); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second StartMatch err = %v, want ErrAlreadyActive", err)
	}
	if _, err := m.EndRound(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("EndRound without round err = %v", err)
	}
	if err := m.StartRound("Shore"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if !m.RoundActive() || m.CurrentRound != 1 || m.CurrentMapID != "Shore" {
		t.Fatalf("unexpected round state: %+v", m)
	}
	if err := m.EndMatch(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("EndMatch during round err = %v", err)
	}
	if _, err := m.EndRound(); err != nil {
		t.Fatalf("EndRound: %v", err)
	}
	if err := m.StartRound("Tropics"); err != nil {
		t.Fatalf("StartRound after EndRound: %v", err)
	}
	if m.CurrentRound != 2 {
		t.Fatalf("CurrentRound = %d, want 2", m.CurrentRound)
	}
	_, _ = m.EndRound()
	if err := m.EndMatch(); err != nil {
		t.Fatalf("EndMatch: %v", err)
	}
	if m.MatchActive() || m.Phase != PhaseMatchEnded {
		t.Fatalf("match should be ended, phase = %s", m.Phase)
	}
	if err := m.StartMatch(); err != nil {
		t.Fatalf("restart after end: %v", err)
	}
	if m.CurrentRound != 0 || m.WinningTeam != nil {
		t.Fatalf("restart should clear round and winner")
	}
}

func TestRecordTeamArrivalRequiresRound(t *testing.T) {
	m := newMatch(t, 2, 1, ScoringConfig{})
	if _, err := m.RecordTeamArrival(0, "t0p0", false); !errors.Is(err, ErrRoundNotActive) {
		t.Fatalf("err = %v, want ErrRoundNotActive", err)
	}
}

func TestAlpinePlacementScoring(t *testing.T) {
	m := newMatch(t, 4, 2, ScoringConfig{})
	if err := m.StartRound("Alpine"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	order := []struct {
		team   int
		player string
		points int
	}{
		{0, "t0p0", 4},
		{1, "t1p0", 3},
		{2, "t2p0", 2},
		{3, "t3p0", 1},
		{0, "t0p1", 0},
		{1, "t1p1", 0},
	}
	for i, o := range order {
		res, err := m.RecordTeamArrival(o.team, o.player, false)
		if err != nil {
			t.Fatalf("arrival %d: %v", i, err)
		}
		if res.Outcome != OutcomeAccepted || res.Placement != i+1 || res.Points != o.points {
			t.Fatalf("arrival %d = %+v, want placement %d points %d", i, res, i+1, o.points)
		}
		if res.StartsTimer != (i == 0) {
			t.Fatalf("arrival %d StartsTimer = %v", i, res.StartsTimer)
		}
	}
	if m.NextArrivalPlacement != len(order)+1 {
		t.Fatalf("NextArrivalPlacement = %d", m.NextArrivalPlacement)
	}
	if got := m.Teams.Team(0).Score; got != 4 {
		t.Fatalf("team 0 score = %d, want 4", got)
	}
}

func TestDuplicateArrivalScoresOnce(t *testing.T) {
	m := newMatch(t, 2, 2, ScoringConfig{})
	_ = m.StartRound("Alpine")

	first, err := m.RecordTeamArrival(0, "t0p0", false)
	if err != nil || first.Outcome != OutcomeAccepted {
		t.Fatalf("first arrival = %+v, %v", first, err)
	}
	score := m.Teams.Team(0).Score
	placement := m.NextArrivalPlacement

	dup, err := m.RecordTeamArrival(0, "t0p0", false)
	if err != nil || dup.Outcome != OutcomeDuplicateIgnored {
		t.Fatalf("duplicate arrival = %+v, %v", dup, err)
	}
	if m.Teams.Team(0).Score != score || m.NextArrivalPlacement != placement {
		t.Fatalf("duplicate changed score or placement")
	}
}

func TestGhostArrivalDoesNotScore(t *testing.T) {
	m := newMatch(t, 2, 2, ScoringConfig{})
	_ = m.StartRound("Alpine")

	res, err := m.RecordTeamArrival(0, "t0p0", true)
	if err != nil || res.Outcome != OutcomeAccepted {
		t.Fatalf("ghost arrival = %+v, %v", res, err)
	}
	if res.Placement != 0 || res.Points != 0 || res.StartsTimer {
		t.Fatalf("ghost should not consume a placement: %+v", res)
	}
	live, _ := m.RecordTeamArrival(1, "t1p0", false)
	if live.Placement != 1 || live.Points != 4 || !live.StartsTimer {
		t.Fatalf("first live arrival = %+v", live)
	}
}

func TestTeamFinishAndCompletionBonus(t *testing.T) {
	scoring := ScoringConfig{Bonus: BonusRules{SurvivorMultiplier: 0.5, FullTeamBonus: true}}
	m := newMatch(t, 2, 2, scoring)
	_ = m.StartRound("Alpine")

	_, _ = m.RecordTeamArrival(1, "t1p0", false) // 4
	res, _ := m.RecordTeamArrival(1, "t1p1", false)
	if !res.TeamFinished || res.FinishPlacement != 1 {
		t.Fatalf("team 1 should finish first: %+v", res)
	}
	// placement points 4 + 3, survivor bonus floor(4*0.5*2)=4, full team 4
	if res.Bonus != 8 || m.Teams.Team(1).Score != 15 {
		t.Fatalf("bonus = %d score = %d, want 8 and 15", res.Bonus, m.Teams.Team(1).Score)
	}
}

func TestAllTeamsFinishedTropics(t *testing.T) {
	m := newMatch(t, 4, 1, ScoringConfig{})
	m.Teams.RemovePlayer("t3p0") // leave team 3 empty
	_ = m.StartRound("Tropics")

	_, _ = m.RecordTeamArrival(0, "t0p0", false)
	_, _ = m.RecordTeamArrival(1, "t1p0", false)
	if m.AllTeamsFinished() {
		t.Fatalf("3 populated teams with 2 finished should not be all finished")
	}
	_, _ = m.RecordTeamArrival(2, "t2p0", false)
	if !m.AllTeamsFinished() {
		t.Fatalf("all populated teams finished, want true")
	}
}

func TestRemovePlayerCompletesTeam(t *testing.T) {
	m := newMatch(t, 2, 2, ScoringConfig{})
	_ = m.StartRound("Shore")
	_, _ = m.RecordTeamArrival(0, "t0p0", false)

	team, finished := m.RemovePlayer("t0p1")
	if team == nil || team.ID != 0 || !finished {
		t.Fatalf("RemovePlayer = %+v, %v; want team 0 finished", team, finished)
	}
	if !team.ReachedCheckpoint || team.FinishPlacement != 1 {
		t.Fatalf("team should be marked finished: %+v", team)
	}

	if _, finished := m.RemovePlayer("unknown"); finished {
		t.Fatalf("unknown player should not finish anything")
	}
}

func TestUnknownMapWarning(t *testing.T) {
	m := newMatch(t, 1, 1, ScoringConfig{})
	_ = m.StartRound("Moon")
	res, err := m.RecordTeamArrival(0, "t0p0", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(res.Warning, ErrUnknownMap) || res.Points != 1 {
		t.Fatalf("unknown map result = %+v", res)
	}
}

func TestEndMatchWinner(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   int // -1 = no winner
	}{
		{name: "tie at the top", scores: []int{12, 12, 7}, want: -1},
		{name: "clear winner", scores: []int{3, 12, 7}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMatch(t, len(tt.scores), 1, ScoringConfig{})
			for i, team := range m.Teams.Teams() {
				team.Score = tt.scores[i]
			}
			if err := m.EndMatch(); err != nil {
				t.Fatalf("EndMatch: %v", err)
			}
			if tt.want == -1 {
				if m.WinningTeam != nil {
					t.Fatalf("WinningTeam = %d, want nil", *m.WinningTeam)
				}
				return
			}
			if m.WinningTeam == nil || *m.WinningTeam != tt.want {
				t.Fatalf("WinningTeam = %v, want %d", m.WinningTeam, tt.want)
			}
		})
	}
}

func TestStandingsOrder(t *testing.T) {
	m := newMatch(t, 3, 1, ScoringConfig{})
	for i, s := range []int{2, 9, 5} {
		m.Teams.Team(i).Score = s
	}
	got := m.Standings()
	if len(got) != 3 || got[0].TeamID != 1 || got[1].TeamID != 2 || got[2].TeamID != 0 {
		t.Fatalf("unexpected standings: %+v", got)
	}
	if got[0].Name != "Blue Team" || got[0].Color != TeamColor(1) || len(got[0].Members) != 1 {
		t.Fatalf("unexpected standing row: %+v", got[0])
	}
}
