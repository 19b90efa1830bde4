package replication

import (
	"errors"
	"fmt"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"

	"peakrace/internal/domain"
	"peakrace/internal/wire"
)

var ErrUnknownKey = errors.New("unknown replicated key")

// maxTeams bounds team ids accepted from the wire.
const maxTeams = 64

// TeamView is the mirrored state of one team.
type TeamView struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Color   string   `json:"color"`
	Members []string `json:"members"`
	Score   int      `json:"score"`
}

// View is a read-only copy of the mirrored match state.
type View struct {
	Teams          []TeamView `json:"teams"`
	MatchActive    bool       `json:"match_active"`
	RoundActive    bool       `json:"round_active"`
	CurrentRound   int        `json:"current_round"`
	MapID          string     `json:"map_id"`
	TimerActive    bool       `json:"timer_active"`
	TimerRemaining int        `json:"timer_remaining"`
	WinningTeam    *int       `json:"winning_team"`
	Phase          string     `json:"phase"`
}

// TeamOf returns the mirrored team holding the player.
func (v View) TeamOf(playerID string) (TeamView, bool) {
	for _, t := range v.Teams {
		for _, m := range t.Members {
			if m == playerID {
				return t, true
			}
		}
	}
	return TeamView{}, false
}

// Mirror is the per-peer replica built from received properties. Every peer, the host included,
// applies the same values so all replicas converge on the last value per key.
type Mirror struct {
	mu     sync.RWMutex
	view   View
	logger runtime.Logger
}

func NewMirror(logger runtime.Logger) *Mirror {
	return &Mirror{logger: logger, view: View{Phase: string(domain.PhaseIdle)}}
}

// ApplyRemote overwrites the mirrored value of key. Re-applying a value is harmless.
// Malformed list entries are skipped with a warning and the rest applied; an undecodable
// scalar leaves the previous value in place.
func (m *Mirror) ApplyRemote(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	switch key {
	case KeyTeams:
		var recs []wire.TeamRecord
		recs, err = wire.DecodeTeams(value)
		if err == nil || len(recs) > 0 {
			m.applyTeams(recs)
		}
		if err != nil && len(recs) > 0 {
			m.warnPartial(key, err)
			err = nil
		}
	case KeyScores:
		var recs []wire.ScoreRecord
		recs, err = wire.DecodeScores(value)
		m.applyScores(recs)
		if err != nil && len(recs) > 0 {
			m.warnPartial(key, err)
			err = nil
		}
	case KeyMatchActive:
		err = decodeInto(value, wire.DecodeBool, &m.view.MatchActive)
	case KeyRoundActive:
		err = decodeInto(value, wire.DecodeBool, &m.view.RoundActive)
	case KeyCurrentRound:
		err = decodeInto(value, wire.DecodeInt, &m.view.CurrentRound)
	case KeyMapID:
		err = decodeInto(value, wire.DecodeString, &m.view.MapID)
	case KeyTimerActive:
		err = decodeInto(value, wire.DecodeBool, &m.view.TimerActive)
	case KeyTimerRemaining:
		err = decodeInto(value, wire.DecodeInt, &m.view.TimerRemaining)
	case KeyWinningTeam:
		err = decodeInto(value, wire.DecodeOptionalInt, &m.view.WinningTeam)
	case KeyPhase:
		err = decodeInto(value, wire.DecodeString, &m.view.Phase)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("apply %s: %w", key, err)
	}
	return nil
}

// ApplyBatch applies every property of a batch, logging failures instead of stopping.
func (m *Mirror) ApplyBatch(props []wire.Property) {
	for _, p := range props {
		if err := m.ApplyRemote(p.Key, p.Value); err != nil && m.logger != nil {
			m.logger.Warn("ApplyBatch: skipping property %s: %v", p.Key, err)
		}
	}
}

func decodeInto[T any](value []byte, decode func([]byte) (T, error), dst *T) error {
	v, err := decode(value)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func (m *Mirror) warnPartial(key string, err error) {
	if m.logger != nil {
		m.logger.Warn("ApplyRemote: skipped malformed %s entries: %v", key, err)
	}
}

// applyTeams replaces membership wholesale. When the incoming cardinality differs from the local
// team list it is re-created at the incoming size, keeping scores of surviving ids.
func (m *Mirror) applyTeams(recs []wire.TeamRecord) {
	recs = m.boundTeams(recs)
	count := len(recs)
	for _, r := range recs {
		if r.ID+1 > count {
			count = r.ID + 1
		}
	}
	if count != len(m.view.Teams) {
		m.resize(count)
	}
	for i := range m.view.Teams {
		m.view.Teams[i].Members = nil
	}
	for _, r := range recs {
		t := &m.view.Teams[r.ID]
		if r.Name != "" {
			t.Name = r.Name
		}
		t.Members = append([]string(nil), r.Members...)
	}
}

// applyScores sets scores by id, creating placeholder teams for ids not seen yet.
func (m *Mirror) applyScores(recs []wire.ScoreRecord) {
	for _, r := range recs {
		if r.ID >= maxTeams {
			m.warnBound(KeyScores, r.ID)
			continue
		}
		if r.ID >= len(m.view.Teams) {
			m.resize(r.ID + 1)
		}
		m.view.Teams[r.ID].Score = r.Score
	}
}

func (m *Mirror) boundTeams(recs []wire.TeamRecord) []wire.TeamRecord {
	out := recs[:0:0]
	for _, r := range recs {
		if r.ID >= maxTeams {
			m.warnBound(KeyTeams, r.ID)
			continue
		}
		out = append(out, r)
	}
	return out
}

func (m *Mirror) warnBound(key string, id int) {
	if m.logger != nil {
		m.logger.Warn("ApplyRemote: dropping %s entry with team id %d", key, id)
	}
}

func (m *Mirror) resize(count int) {
	teams := make([]TeamView, count)
	for i := range teams {
		if i < len(m.view.Teams) {
			teams[i] = m.view.Teams[i]
			continue
		}
		teams[i] = TeamView{ID: i, Name: domain.TeamName(i), Color: domain.TeamColor(i)}
	}
	m.view.Teams = teams
}

// View returns a deep copy of the mirrored state.
func (m *Mirror) View() View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v := m.view
	v.Teams = make([]TeamView, len(m.view.Teams))
	for i, t := range m.view.Teams {
		t.Members = append([]string(nil), t.Members...)
		v.Teams[i] = t
	}
	if m.view.WinningTeam != nil {
		w := *m.view.WinningTeam
		v.WinningTeam = &w
	}
	return v
}
