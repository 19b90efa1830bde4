package app

import (
	"context"
	"sort"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"peakrace/internal/domain"
	"peakrace/internal/ports"
)

type transitionStage int

const (
	stageIdle transitionStage = iota
	stageReposition
	stageAdvance
)

func (s transitionStage) String() string {
	switch s {
	case stageReposition:
		return "reposition"
	case stageAdvance:
		return "advance"
	default:
		return "idle"
	}
}

// TransitionDelays are the pauses between transition steps.
type TransitionDelays struct {
	Settle  time.Duration // eliminate -> reposition
	Restore time.Duration // reposition -> next round
	Retry   time.Duration // after a failed checkpoint lookup
}

// Transition sequences the end of a round: eliminate everyone, reposition at the next checkpoint,
// then start the next round or end the match. It is a pending action with a deadline advanced by the
// host tick, so at most one sequence runs at a time.
type Transition struct {
	service *Service
	locator ports.CheckpointLocator
	delays  TransitionDelays

	stage    transitionStage
	deadline time.Time
	match    int
	round    int
	mapID    string
	arrived  []string
}

func NewTransition(service *Service, locator ports.CheckpointLocator, delays TransitionDelays) *Transition {
	return &Transition{service: service, locator: locator, delays: delays}
}

// InProgress is true from Trigger until the next round starts or the match ends.
func (t *Transition) InProgress() bool {
	return t.stage != stageIdle
}

// Trigger ends the active round and starts the sequence. It is ignored while a sequence is pending
// or when no round is active.
func (t *Transition) Trigger(state *domain.MatchState, timer *RoundTimer, now time.Time, reason string, logger runtime.Logger) []Event {
	if t.InProgress() || !state.RoundActive() {
		logger.Debug("Transition: ignoring trigger %s (stage=%s, phase=%s)", reason, t.stage, state.Phase)
		return nil
	}

	// arrivals are cleared when the next round starts
	t.arrived = arrivedPlayers(state)
	t.match = state.MatchNumber
	t.round = state.CurrentRound
	t.mapID = state.CurrentMapID

	events, err := t.service.EndRound(state, reason)
	if err != nil {
		logger.Warn("Transition: end round failed: %v", err)
		return nil
	}
	timer.Stop()

	logger.Info("Transition: round %d on %s ended (%s)", t.round, t.mapID, reason)
	events = append(events, Event{Kind: EventEliminateAll, Payload: EliminateAllPayload{Match: t.match, Round: t.round}})
	t.stage = stageReposition
	t.deadline = now.Add(t.delays.Settle)
	return events
}

// Advance runs every step whose deadline has passed.
func (t *Transition) Advance(ctx context.Context, state *domain.MatchState, now time.Time, logger runtime.Logger) []Event {
	var events []Event
	for t.InProgress() && !now.Before(t.deadline) {
		switch t.stage {
		case stageReposition:
			loc, err := t.locator.NextCheckpointLocation(ctx, t.mapID)
			if err != nil {
				logger.Warn("Transition: checkpoint lookup after %s failed, retrying in %s: %v", t.mapID, t.delays.Retry, err)
				t.deadline = now.Add(t.delays.Retry)
				return events
			}
			events = append(events, Event{
				Kind:    EventRepositionAll,
				Payload: RepositionAllPayload{Match: t.match, Round: t.round, Location: loc, ArrivedPlayers: t.arrived},
			})
			t.stage = stageAdvance
			t.deadline = now.Add(t.delays.Restore)

		case stageAdvance:
			t.stage = stageIdle
			t.arrived = nil
			evs, err := t.service.AdvanceRound(state)
			if err != nil {
				logger.Warn("Transition: advance after round %d failed: %v", t.round, err)
				return events
			}
			events = append(events, evs...)
		}
	}
	return events
}

// Cancel drops a pending sequence, e.g. when the owner ends the match.
func (t *Transition) Cancel() {
	t.stage = stageIdle
	t.arrived = nil
}

func arrivedPlayers(state *domain.MatchState) []string {
	var out []string
	for _, team := range state.Teams.Teams() {
		out = append(out, team.ArrivedIDs()...)
	}
	sort.Strings(out)
	return out
}
