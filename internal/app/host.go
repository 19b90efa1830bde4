package app

import (
	"context"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"peakrace/internal/config"
	"peakrace/internal/domain"
	"peakrace/internal/ports"
	"peakrace/internal/replication"
	"peakrace/internal/wire"
)

// Host is the coordinator context: the only writer of match state. Callers serialise all calls on
// one loop (Nakama MatchLoop or the peer runner inbox).
type Host struct {
	service    *Service
	state      *domain.MatchState
	timer      *RoundTimer
	transition *Transition
	logger     runtime.Logger

	players     []string // present players in join order
	manualTeams bool     // owner arranged teams since the last match
}

// NewHost wires a host over cfg. locator may not be nil.
func NewHost(cfg *config.RaceConfig, locator ports.CheckpointLocator, logger runtime.Logger) *Host {
	service := NewService(cfg)
	cfg = service.Config()
	return &Host{
		service: service,
		state:   domain.NewMatchState(cfg.Scoring()),
		timer:   NewRoundTimer(cfg.RoundDuration()),
		transition: NewTransition(service, locator, TransitionDelays{
			Settle:  cfg.SettleDelay(),
			Restore: cfg.RestoreDelay(),
			Retry:   cfg.RetryDelay(),
		}),
		logger: logger,
	}
}

// State exposes the match state for publishing and labels. Callers must not mutate it.
func (h *Host) State() *domain.MatchState {
	return h.state
}

func (h *Host) TimerState(now time.Time) replication.TimerState {
	return h.timer.State(now)
}

func (h *Host) TransitionInProgress() bool {
	return h.transition.InProgress()
}

// Players returns present players in join order.
func (h *Host) Players() []string {
	return append([]string(nil), h.players...)
}

// TeamOf returns the player's team id.
func (h *Host) TeamOf(playerID string) (int, bool) {
	team := h.state.Teams.TeamOf(playerID)
	if team == nil {
		return 0, false
	}
	return team.ID, true
}

// Join registers a present player. Joining twice is a no-op.
func (h *Host) Join(playerID string) []Event {
	for _, p := range h.players {
		if p == playerID {
			return nil
		}
	}
	h.players = append(h.players, playerID)
	h.logger.Info("Host: player %s joined (%d present)", playerID, len(h.players))
	return h.service.JoinLobby(h.state, playerID)
}

// Leave drops a player. If everyone left on their team already arrived, the team completes. When
// every remaining populated team is done the round ends.
func (h *Host) Leave(playerID string, now time.Time) []Event {
	for i, p := range h.players {
		if p == playerID {
			h.players = append(h.players[:i], h.players[i+1:]...)
			break
		}
	}
	team, finished := h.state.RemovePlayer(playerID)
	if team == nil {
		return nil
	}
	h.logger.Info("Host: player %s left team %d", playerID, team.ID)
	var events []Event
	if finished {
		events = append(events, Event{
			Kind:    EventTeamFinished,
			Payload: TeamFinishedPayload{TeamID: team.ID, Name: team.Name, FinishPlacement: team.FinishPlacement},
		})
	}
	// an emptied team no longer counts, so the rest may all be done now
	if h.state.RoundActive() && h.state.AllTeamsFinished() {
		events = append(events, h.transition.Trigger(h.state, h.timer, now, ReasonAllTeamsFinished, h.logger)...)
	}
	return events
}

// AssignPlayer is the owner control to move a player between teams before a match.
func (h *Host) AssignPlayer(playerID string, teamID int) ([]Event, error) {
	events, err := h.service.AssignPlayer(h.state, h.players, playerID, teamID)
	if err != nil {
		return nil, err
	}
	h.manualTeams = true
	return events, nil
}

// BalanceTeams redistributes present players round-robin.
func (h *Host) BalanceTeams() ([]Event, error) {
	events, err := h.service.AssignTeams(h.state, h.players)
	if err != nil {
		return nil, err
	}
	h.manualTeams = true
	return events, nil
}

// StartMatch starts a match with the present players and opens the first round.
func (h *Host) StartMatch() ([]Event, error) {
	events, err := h.service.StartMatch(h.state, h.players, h.manualTeams)
	if err != nil {
		return nil, err
	}
	h.manualTeams = false
	h.timer.Stop()
	h.transition.Cancel()
	h.logger.Info("Host: match started with %d players on %d teams", len(h.players), h.state.Teams.Len())
	return events, nil
}

// RecordArrival applies an arrival. The first scoring arrival starts the round timer; the arrival
// that completes the last populated team triggers the transition.
func (h *Host) RecordArrival(ev domain.ArrivalEvent, now time.Time) (domain.ArrivalResult, []Event, error) {
	res, events, err := h.service.RecordArrival(h.state, ev)
	if err != nil {
		return res, nil, err
	}
	if res.Warning != nil {
		h.logger.Warn("Host: %v", res.Warning)
	}
	if res.Outcome != domain.OutcomeAccepted {
		h.logger.Debug("Host: arrival of %s on team %d: %s", ev.PlayerID, ev.TeamID, res.Outcome)
		return res, nil, nil
	}

	if res.StartsTimer && h.timer.Start(now) {
		events = append(events, Event{
			Kind:    EventTimerStarted,
			Payload: TimerStartedPayload{DurationSeconds: int(h.timer.Duration() / time.Second)},
		})
	}
	if h.state.AllTeamsFinished() {
		events = append(events, h.transition.Trigger(h.state, h.timer, now, ReasonAllTeamsFinished, h.logger)...)
	}
	return res, events, nil
}

// AcceptArrival applies an arrival received over a transport and builds its ack. An arrival stamped
// with another round is stale and is acked without being applied.
func (h *Host) AcceptArrival(a wire.Arrival, now time.Time) (wire.Ack, []Event) {
	ack := wire.Ack{MessageID: a.MessageID}
	if a.Round != 0 && a.Round != h.state.CurrentRound {
		h.logger.Debug("Host: stale arrival of %s for round %d (current %d)", a.PlayerID, a.Round, h.state.CurrentRound)
		ack.Outcome = domain.OutcomeDuplicateIgnored
		ack.Error = ErrStaleRound.Error()
		return ack, nil
	}
	res, events, err := h.RecordArrival(domain.ArrivalEvent{PlayerID: a.PlayerID, TeamID: a.TeamID, Ghost: a.Ghost}, now)
	ack.Outcome = res.Outcome
	if err != nil {
		h.logger.Warn("Host: arrival of %s rejected: %v", a.PlayerID, err)
		ack.Outcome = domain.OutcomeRejected
		ack.Error = err.Error()
	}
	return ack, events
}

// EndMatch is the owner control to stop the match early.
func (h *Host) EndMatch() ([]Event, error) {
	// the transition may have already closed the round
	events, err := h.service.EndMatch(h.state)
	if err != nil {
		return nil, err
	}
	h.timer.Stop()
	h.transition.Cancel()
	return events, nil
}

// Tick advances the timer and any pending transition.
func (h *Host) Tick(ctx context.Context, now time.Time) []Event {
	var events []Event
	if h.timer.Advance(now) {
		events = append(events, h.transition.Trigger(h.state, h.timer, now, ReasonTimerExpired, h.logger)...)
	}
	return append(events, h.transition.Advance(ctx, h.state, now, h.logger)...)
}
