package peer

import (
	"sync"

	"peakrace/internal/wire"
)

type commandKey struct {
	match int
	kind  wire.CommandKind
	round int
}

// CommandGate lets each (match, kind, round) command through once, so redelivered broadcasts are
// harmless and round numbers restarting in a new match are not mistaken for repeats.
type CommandGate struct {
	mu       sync.Mutex
	seen     map[commandKey]struct{}
	maxMatch int
	maxRound int
}

func NewCommandGate() *CommandGate {
	return &CommandGate{seen: make(map[commandKey]struct{})}
}

// Admit reports whether cmd has not been executed yet and marks it executed.
func (g *CommandGate) Admit(cmd wire.Command) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cmd.Match < g.maxMatch {
		return false
	}
	key := commandKey{match: cmd.Match, kind: cmd.Kind, round: cmd.Round}
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}

	if cmd.Match > g.maxMatch {
		g.maxMatch = cmd.Match
		g.maxRound = cmd.Round
		g.prune()
	} else if cmd.Round > g.maxRound {
		g.maxRound = cmd.Round
		g.prune()
	}
	return true
}

// prune forgets earlier matches and rounds before the previous one.
func (g *CommandGate) prune() {
	for k := range g.seen {
		if k.match < g.maxMatch || k.round < g.maxRound-1 {
			delete(g.seen, k)
		}
	}
}
