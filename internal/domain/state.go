package domain

import "fmt"

// Phase represents the lifecycle stage of a race match.
type Phase string

const (
	// PhaseIdle is the state before any match has been started.
	PhaseIdle Phase = "idle"
	// PhaseMatchActive is a started match that has not begun its first round.
	PhaseMatchActive Phase = "match_active"
	// PhaseRoundActive is a round in progress; arrivals are accepted.
	PhaseRoundActive Phase = "round_active"
	// PhaseRoundEnding is the gap between rounds while the transition runs.
	PhaseRoundEnding Phase = "round_ending"
	// PhaseMatchEnded is the state after the final round or an aborted match.
	PhaseMatchEnded Phase = "match_ended"
)

// Position is a checkpoint location in world space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// ArrivalEvent reports that a player physically reached the round checkpoint.
type ArrivalEvent struct {
	PlayerID string
	TeamID   int
	Ghost    bool // player was eliminated for this round when arriving
}

// Outcome is the result of the arrival idempotency gate. The zero value is a rejection so an
// outcome left unset never reads as accepted.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeAccepted
	OutcomeDuplicateIgnored
	OutcomeUnknownTeam
	OutcomeNotMember
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicateIgnored:
		return "duplicate_ignored"
	case OutcomeUnknownTeam:
		return "unknown_team"
	case OutcomeNotMember:
		return "not_member"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}
