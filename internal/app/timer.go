package app

import (
	"time"

	"peakrace/internal/replication"
)

// DefaultRoundDuration is the round length when none is configured.
const DefaultRoundDuration = 600 * time.Second

// RoundTimer counts a round down against the host clock. It is advanced by the host tick.
type RoundTimer struct {
	duration time.Duration
	deadline time.Time
	active   bool
}

func NewRoundTimer(duration time.Duration) *RoundTimer {
	if duration <= 0 {
		duration = DefaultRoundDuration
	}
	return &RoundTimer{duration: duration}
}

// Start arms the timer from now. Restarting an active timer is a no-op.
func (t *RoundTimer) Start(now time.Time) bool {
	if t.active {
		return false
	}
	t.active = true
	t.deadline = now.Add(t.duration)
	return true
}

func (t *RoundTimer) Stop() {
	t.active = false
}

func (t *RoundTimer) Active() bool {
	return t.active
}

func (t *RoundTimer) Duration() time.Duration {
	return t.duration
}

// Remaining is zero when the timer is stopped or expired.
func (t *RoundTimer) Remaining(now time.Time) time.Duration {
	if !t.active {
		return 0
	}
	if left := t.deadline.Sub(now); left > 0 {
		return left
	}
	return 0
}

// Advance stops the timer and reports true the first time now reaches the deadline.
func (t *RoundTimer) Advance(now time.Time) bool {
	if !t.active || now.Before(t.deadline) {
		return false
	}
	t.active = false
	return true
}

// State is the replicated view in whole seconds, rounded up so a running timer never shows 0.
func (t *RoundTimer) State(now time.Time) replication.TimerState {
	left := t.Remaining(now)
	return replication.TimerState{
		Active:    t.active,
		Remaining: int((left + time.Second - 1) / time.Second),
	}
}
