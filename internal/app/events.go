package app

import "peakrace/internal/domain"

// EventKind identifies emitted domain events for transport dispatch.
type EventKind string

const (
	EventPlayerAssigned  EventKind = "player_assigned"
	EventTeamsChanged    EventKind = "teams_changed"
	EventMatchStarted    EventKind = "match_started"
	EventRoundStarted    EventKind = "round_started"
	EventArrivalRecorded EventKind = "arrival_recorded"
	EventArrivalAck      EventKind = "arrival_ack"
	EventTeamFinished    EventKind = "team_finished"
	EventTimerStarted    EventKind = "timer_started"
	EventRoundEnded      EventKind = "round_ended"
	EventEliminateAll    EventKind = "eliminate_all"
	EventRepositionAll   EventKind = "reposition_all"
	EventMatchEnded      EventKind = "match_ended"
)

// Event is a domain/app event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // player IDs; empty means broadcast
}

type PlayerAssignedPayload struct {
	PlayerID string
	TeamID   int
}

type TeamsChangedPayload struct {
	Teams int
}

type MatchStartedPayload struct {
	Teams      int
	FreeForAll bool
}

type RoundStartedPayload struct {
	Round int
	MapID string
}

type ArrivalRecordedPayload struct {
	PlayerID  string
	TeamID    int
	Ghost     bool
	Placement int
	Points    int
}

type ArrivalAckPayload struct {
	MessageID string
	Outcome   domain.Outcome
	Error     string
}

type TeamFinishedPayload struct {
	TeamID          int
	Name            string
	FinishPlacement int
	Bonus           int
	Breakdown       string
}

type TimerStartedPayload struct {
	DurationSeconds int
}

// Round end reasons.
const (
	ReasonTimerExpired     = "timer_expired"
	ReasonAllTeamsFinished = "all_teams_finished"
	ReasonAborted          = "aborted"
)

type RoundEndedPayload struct {
	Round       int
	MapID       string
	LeadingTeam *int
	Reason      string
}

type EliminateAllPayload struct {
	Match int
	Round int
}

type RepositionAllPayload struct {
	Match          int
	Round          int
	Location       domain.Position
	ArrivedPlayers []string
}

type MatchEndedPayload struct {
	WinningTeam *int
	Standings   []domain.Standing
}
