package domain

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownTeam     = errors.New("team not found")
	ErrTeamsAssigned   = errors.New("teams already initialized with assignments")
)

// TeamRegistry owns the team set, membership and per-round arrival bookkeeping.
type TeamRegistry struct {
	teams               []*Team
	playersPerTeam      int
	nextFinishPlacement int
}

// NewTeamRegistry returns an empty registry.
func NewTeamRegistry() *TeamRegistry {
	return &TeamRegistry{nextFinishPlacement: 1}
}

// InitializeTeams replaces the team list with count fresh teams.
// Re-initializing with the same count while players are assigned is rejected; use ReinitializeTeams
// to reset deliberately.
func (r *TeamRegistry) InitializeTeams(count, playersPerTeam int) error {
	if count < 1 || playersPerTeam < 1 {
		return ErrInvalidArgument
	}
	if len(r.teams) == count && r.assignedCount() > 0 {
		return ErrTeamsAssigned
	}
	r.reset(count, playersPerTeam)
	return nil
}

// ReinitializeTeams replaces the team list unconditionally.
func (r *TeamRegistry) ReinitializeTeams(count, playersPerTeam int) error {
	if count < 1 || playersPerTeam < 1 {
		return ErrInvalidArgument
	}
	r.reset(count, playersPerTeam)
	return nil
}

func (r *TeamRegistry) reset(count, playersPerTeam int) {
	r.teams = make([]*Team, count)
	for i := range r.teams {
		r.teams[i] = NewTeam(i)
	}
	r.playersPerTeam = playersPerTeam
	r.nextFinishPlacement = 1
}

// Clear drops every team.
func (r *TeamRegistry) Clear() {
	r.teams = nil
	r.nextFinishPlacement = 1
}

// Teams returns the ordered team list. Callers must not mutate it.
func (r *TeamRegistry) Teams() []*Team {
	return r.teams
}

// Len returns the number of teams.
func (r *TeamRegistry) Len() int {
	return len(r.teams)
}

// PlayersPerTeam returns the configured capacity of each team.
func (r *TeamRegistry) PlayersPerTeam() int {
	return r.playersPerTeam
}

// Team returns the team with the given id or nil.
func (r *TeamRegistry) Team(id int) *Team {
	for _, t := range r.teams {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TeamOf returns the team holding the player or nil.
func (r *TeamRegistry) TeamOf(playerID string) *Team {
	for _, t := range r.teams {
		if t.HasMember(playerID) {
			return t
		}
	}
	return nil
}

// AssignPlayer adds the player to a team, moving them off any other team.
// Assigning a player to the team they already belong to is a no-op.
func (r *TeamRegistry) AssignPlayer(playerID string, teamID int) error {
	if playerID == "" {
		return ErrInvalidArgument
	}
	team := r.Team(teamID)
	if team == nil {
		return ErrUnknownTeam
	}
	if team.HasMember(playerID) {
		return nil
	}
	if prev := r.TeamOf(playerID); prev != nil {
		prev.removeMember(playerID)
	}
	team.Members[playerID] = struct{}{}
	return nil
}

// RemovePlayer removes the player from whichever team holds it and returns that team.
func (r *TeamRegistry) RemovePlayer(playerID string) *Team {
	team := r.TeamOf(playerID)
	if team == nil {
		return nil
	}
	team.removeMember(playerID)
	return team
}

// AssignInOrder fills teams up to capacity in order, wrapping to the first team when all are full.
func (r *TeamRegistry) AssignInOrder(players []string) {
	if len(r.teams) == 0 {
		return
	}
	current := 0
	for _, p := range players {
		if err := r.AssignPlayer(p, r.teams[current].ID); err != nil {
			continue
		}
		if len(r.teams[current].Members) >= r.playersPerTeam {
			current = (current + 1) % len(r.teams)
		}
	}
}

// Balance clears membership and redistributes players round-robin.
func (r *TeamRegistry) Balance(players []string) {
	if len(r.teams) == 0 {
		return
	}
	for _, t := range r.teams {
		t.Members = make(map[string]struct{})
		t.resetRound()
	}
	for i, p := range players {
		_ = r.AssignPlayer(p, r.teams[i%len(r.teams)].ID)
	}
}

// SmallestTeam returns the first team with the fewest members or nil when there are no teams.
func (r *TeamRegistry) SmallestTeam() *Team {
	var smallest *Team
	for _, t := range r.teams {
		if smallest == nil || len(t.Members) < len(smallest.Members) {
			smallest = t
		}
	}
	return smallest
}

// RecordArrival is the arrival idempotency gate: a player arrives at most once per round.
func (r *TeamRegistry) RecordArrival(teamID int, playerID string, ghost bool) Outcome {
	outcome, _ := r.recordArrival(teamID, playerID, ghost)
	return outcome
}

func (r *TeamRegistry) recordArrival(teamID int, playerID string, ghost bool) (Outcome, bool) {
	team := r.Team(teamID)
	if team == nil {
		return OutcomeUnknownTeam, false
	}
	if !team.HasMember(playerID) {
		return OutcomeNotMember, false
	}
	if team.HasArrived(playerID) {
		return OutcomeDuplicateIgnored, false
	}

	team.ArrivedPlayers[playerID] = struct{}{}
	if ghost {
		team.GhostArrivedPlayers[playerID] = struct{}{}
	}
	return OutcomeAccepted, r.completeIfArrived(team)
}

// completeIfArrived marks the team finished once every member arrived, assigning the next team
// placement. It reports whether the team finished on this call.
func (r *TeamRegistry) completeIfArrived(team *Team) bool {
	if team.ReachedCheckpoint || !team.allArrived() {
		return false
	}
	team.ReachedCheckpoint = true
	team.FinishPlacement = r.nextFinishPlacement
	r.nextFinishPlacement++
	return true
}

// AllTeamsFinished is true iff every team with at least one member reached the checkpoint.
// With no populated teams it returns false.
func (r *TeamRegistry) AllTeamsFinished() bool {
	populated := 0
	for _, t := range r.teams {
		if len(t.Members) == 0 {
			continue
		}
		populated++
		if !t.ReachedCheckpoint {
			return false
		}
	}
	return populated > 0
}

// ResetRound clears round-scoped fields on every team.
func (r *TeamRegistry) ResetRound() {
	for _, t := range r.teams {
		t.resetRound()
	}
	r.nextFinishPlacement = 1
}

// ResetMatch clears scores and round-scoped fields.
func (r *TeamRegistry) ResetMatch() {
	for _, t := range r.teams {
		t.Score = 0
	}
	r.ResetRound()
}

// LeadingTeam returns the highest scoring team. Ties at the top are broken by the earliest finish
// placement this round; an unresolved tie returns nil.
func (r *TeamRegistry) LeadingTeam() *Team {
	top := r.topScorers()
	if len(top) == 1 {
		return top[0]
	}
	var leader *Team
	for _, t := range top {
		if t.FinishPlacement == 0 {
			continue
		}
		if leader == nil || t.FinishPlacement < leader.FinishPlacement {
			leader = t
		}
	}
	return leader
}

// StrictLeader returns the team with strictly the highest score, or nil on a tie.
func (r *TeamRegistry) StrictLeader() *Team {
	top := r.topScorers()
	if len(top) != 1 {
		return nil
	}
	return top[0]
}

func (r *TeamRegistry) topScorers() []*Team {
	var top []*Team
	for _, t := range r.teams {
		switch {
		case len(top) == 0 || t.Score > top[0].Score:
			top = []*Team{t}
		case t.Score == top[0].Score:
			top = append(top, t)
		}
	}
	return top
}

func (r *TeamRegistry) assignedCount() int {
	n := 0
	for _, t := range r.teams {
		n += len(t.Members)
	}
	return n
}
