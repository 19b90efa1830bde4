// Package replication turns host match state into replicated properties and applies them on peers.
package replication

import (
	"bytes"

	"peakrace/internal/domain"
	"peakrace/internal/wire"
)

// Replicated property keys. Each key is published and applied independently.
const (
	KeyTeams          = "teams"
	KeyScores         = "scores"
	KeyMatchActive    = "matchActive"
	KeyRoundActive    = "roundActive"
	KeyCurrentRound   = "currentRound"
	KeyMapID          = "mapId"
	KeyTimerActive    = "timerActive"
	KeyTimerRemaining = "timerRemaining"
	KeyWinningTeam    = "winningTeam"
	KeyPhase          = "phase"
)

// Keys lists every replicated key in publish order.
var Keys = []string{
	KeyTeams, KeyScores, KeyMatchActive, KeyRoundActive, KeyCurrentRound,
	KeyMapID, KeyTimerActive, KeyTimerRemaining, KeyWinningTeam, KeyPhase,
}

// TimerState is the replicated view of the round timer, in whole seconds.
type TimerState struct {
	Active    bool
	Remaining int
}

// Snapshot encodes the full replicated state.
func Snapshot(state *domain.MatchState, timer TimerState) []wire.Property {
	teams := state.Teams.Teams()
	teamRecs := make([]wire.TeamRecord, 0, len(teams))
	scoreRecs := make([]wire.ScoreRecord, 0, len(teams))
	for _, t := range teams {
		teamRecs = append(teamRecs, wire.TeamRecord{ID: t.ID, Name: t.Name, Members: t.MemberIDs()})
		scoreRecs = append(scoreRecs, wire.ScoreRecord{ID: t.ID, Score: t.Score})
	}

	return []wire.Property{
		{Key: KeyTeams, Value: wire.EncodeTeams(teamRecs)},
		{Key: KeyScores, Value: wire.EncodeScores(scoreRecs)},
		{Key: KeyMatchActive, Value: wire.EncodeBool(state.MatchActive())},
		{Key: KeyRoundActive, Value: wire.EncodeBool(state.RoundActive())},
		{Key: KeyCurrentRound, Value: wire.EncodeInt(state.CurrentRound)},
		{Key: KeyMapID, Value: wire.EncodeString(state.CurrentMapID)},
		{Key: KeyTimerActive, Value: wire.EncodeBool(timer.Active)},
		{Key: KeyTimerRemaining, Value: wire.EncodeInt(timer.Remaining)},
		{Key: KeyWinningTeam, Value: wire.EncodeOptionalInt(state.WinningTeam)},
		{Key: KeyPhase, Value: wire.EncodeString(string(state.Phase))},
	}
}

// Publisher tracks the last published value per key so only changes go out.
// It is owned by the host loop and is not safe for concurrent use.
type Publisher struct {
	last map[string][]byte
}

func NewPublisher() *Publisher {
	return &Publisher{last: make(map[string][]byte)}
}

// Publish returns the properties whose encoded value changed since the previous call.
func (p *Publisher) Publish(state *domain.MatchState, timer TimerState) []wire.Property {
	var changed []wire.Property
	for _, prop := range Snapshot(state, timer) {
		if prev, ok := p.last[prop.Key]; ok && bytes.Equal(prev, prop.Value) {
			continue
		}
		p.last[prop.Key] = prop.Value
		changed = append(changed, prop)
	}
	return changed
}

// Reset forgets published values so the next Publish sends every key.
func (p *Publisher) Reset() {
	p.last = make(map[string][]byte)
}
