package app

import (
	"errors"

	"peakrace/internal/config"
	"peakrace/internal/domain"
)

// Service contains race use-cases operating on domain state.
type Service struct {
	cfg *config.RaceConfig
}

// NewService constructs a Service over cfg, or the default config when nil.
func NewService(cfg *config.RaceConfig) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Service{cfg: cfg}
}

var (
	ErrMatchActive    = errors.New("match already active")
	ErrMatchNotActive = errors.New("match not active")
	ErrTooFewPlayers  = errors.New("not enough players to start")
	ErrUnknownPlayer  = errors.New("player not found")
	ErrNotOwner       = errors.New("actor is not match owner")
	ErrStaleRound     = errors.New("arrival for another round")
)

// Config returns the race configuration the service was built with.
func (s *Service) Config() *config.RaceConfig {
	return s.cfg
}

func (s *Service) minPlayers() int {
	if s.cfg.MinPlayersToStart > 0 {
		return s.cfg.MinPlayersToStart
	}
	return MinPlayersToStartMatch
}

// teamCount is one team per player in free-for-all, else enough teams to seat everyone.
func (s *Service) teamCount(players int) int {
	if s.cfg.FreeForAll {
		return domain.TeamCountFor(players, 1, 0)
	}
	return domain.TeamCountFor(players, s.cfg.PlayersPerTeam, s.cfg.MaxTeams)
}

// AssignTeams rebuilds the team set for players using the configured mode.
func (s *Service) AssignTeams(state *domain.MatchState, players []string) ([]Event, error) {
	if state.MatchActive() {
		return nil, ErrMatchActive
	}
	if err := state.Teams.ReinitializeTeams(s.teamCount(len(players)), s.cfg.EffectivePlayersPerTeam()); err != nil {
		return nil, err
	}
	if s.cfg.AssignInOrder && !s.cfg.FreeForAll {
		state.Teams.AssignInOrder(players)
	} else {
		state.Teams.Balance(players)
	}
	return []Event{{Kind: EventTeamsChanged, Payload: TeamsChangedPayload{Teams: state.Teams.Len()}}}, nil
}

// AssignPlayer moves a player onto a team while no match is running. When no team-set exists yet,
// the full set of teams is created first so the owner can use any of them.
func (s *Service) AssignPlayer(state *domain.MatchState, players []string, playerID string, teamID int) ([]Event, error) {
	if state.MatchActive() {
		return nil, ErrMatchActive
	}
	if state.Teams.Len() == 0 {
		count := s.cfg.MaxTeams
		if s.cfg.FreeForAll {
			count = s.teamCount(len(players))
		}
		if err := state.Teams.InitializeTeams(count, s.cfg.EffectivePlayersPerTeam()); err != nil {
			return nil, err
		}
	}
	if err := state.Teams.AssignPlayer(playerID, teamID); err != nil {
		return nil, err
	}
	return []Event{{Kind: EventPlayerAssigned, Payload: PlayerAssignedPayload{PlayerID: playerID, TeamID: teamID}}}, nil
}

// JoinLobby puts a newly joined player on the smallest team when a team-set exists and no match is
// running. It returns nil events otherwise; players joining mid-match spectate until the next match.
func (s *Service) JoinLobby(state *domain.MatchState, playerID string) []Event {
	// free-for-all teams are built at match start
	if s.cfg.FreeForAll || state.MatchActive() || state.Teams.TeamOf(playerID) != nil {
		return nil
	}
	team := state.Teams.SmallestTeam()
	if team == nil {
		return nil
	}
	if err := state.Teams.AssignPlayer(playerID, team.ID); err != nil {
		return nil
	}
	return []Event{{Kind: EventPlayerAssigned, Payload: PlayerAssignedPayload{PlayerID: playerID, TeamID: team.ID}}}
}

// StartMatch starts a match with players and opens the first round on the first map.
// With keepAssignments the current team-set is used as long as it seats every player; otherwise
// teams are rebuilt by mode.
func (s *Service) StartMatch(state *domain.MatchState, players []string, keepAssignments bool) ([]Event, error) {
	if state.MatchActive() {
		return nil, ErrMatchActive
	}
	if len(players) < s.minPlayers() {
		return nil, ErrTooFewPlayers
	}

	events := make([]Event, 0, 3)
	if !keepAssignments || !seatsEveryone(state, players) {
		evs, err := s.AssignTeams(state, players)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}

	if err := state.StartMatch(); err != nil {
		return nil, err
	}
	events = append(events, Event{
		Kind:    EventMatchStarted,
		Payload: MatchStartedPayload{Teams: state.Teams.Len(), FreeForAll: s.cfg.FreeForAll},
	})

	first := s.cfg.Progression.First()
	if err := state.StartRound(first); err != nil {
		return nil, err
	}
	events = append(events, Event{
		Kind:    EventRoundStarted,
		Payload: RoundStartedPayload{Round: state.CurrentRound, MapID: first},
	})
	return events, nil
}

func seatsEveryone(state *domain.MatchState, players []string) bool {
	if state.Teams.Len() == 0 {
		return false
	}
	for _, p := range players {
		if state.Teams.TeamOf(p) == nil {
			return false
		}
	}
	return true
}

// RecordArrival applies one arrival and reports the scoring events.
func (s *Service) RecordArrival(state *domain.MatchState, ev domain.ArrivalEvent) (domain.ArrivalResult, []Event, error) {
	res, err := state.RecordTeamArrival(ev.TeamID, ev.PlayerID, ev.Ghost)
	if err != nil {
		return res, nil, err
	}
	if res.Outcome != domain.OutcomeAccepted {
		return res, nil, nil
	}

	events := []Event{{
		Kind: EventArrivalRecorded,
		Payload: ArrivalRecordedPayload{
			PlayerID:  ev.PlayerID,
			TeamID:    ev.TeamID,
			Ghost:     ev.Ghost,
			Placement: res.Placement,
			Points:    res.Points,
		},
	}}
	if res.TeamFinished {
		team := state.Teams.Team(ev.TeamID)
		base, _ := s.cfg.MapTiers.BasePoints(state.CurrentMapID)
		events = append(events, Event{
			Kind: EventTeamFinished,
			Payload: TeamFinishedPayload{
				TeamID:          team.ID,
				Name:            team.Name,
				FinishPlacement: res.FinishPlacement,
				Bonus:           res.Bonus,
				Breakdown:       domain.PointsBreakdown(base, team.Survivors(), len(team.Members), s.cfg.Bonus),
			},
		})
	}
	return res, events, nil
}

// EndRound closes the active round.
func (s *Service) EndRound(state *domain.MatchState, reason string) ([]Event, error) {
	leader, err := state.EndRound()
	if err != nil {
		return nil, err
	}
	var leading *int
	if leader != nil {
		id := leader.ID
		leading = &id
	}
	return []Event{{
		Kind:    EventRoundEnded,
		Payload: RoundEndedPayload{Round: state.CurrentRound, MapID: state.CurrentMapID, LeadingTeam: leading, Reason: reason},
	}}, nil
}

// AdvanceRound moves to the next map of the progression, or ends the match after the final one.
func (s *Service) AdvanceRound(state *domain.MatchState) ([]Event, error) {
	next, final := s.cfg.Progression.Next(state.CurrentMapID)
	if final {
		return s.EndMatch(state)
	}
	if err := state.StartRound(next); err != nil {
		return nil, err
	}
	return []Event{{
		Kind:    EventRoundStarted,
		Payload: RoundStartedPayload{Round: state.CurrentRound, MapID: next},
	}}, nil
}

// EndMatch finishes the match. An active round is closed first.
func (s *Service) EndMatch(state *domain.MatchState) ([]Event, error) {
	if !state.MatchActive() {
		return nil, ErrMatchNotActive
	}
	var events []Event
	if state.RoundActive() {
		evs, err := s.EndRound(state, ReasonAborted)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	if err := state.EndMatch(); err != nil {
		return nil, err
	}
	events = append(events, Event{
		Kind:    EventMatchEnded,
		Payload: MatchEndedPayload{WinningTeam: state.WinningTeam, Standings: state.Standings()},
	})
	return events, nil
}
