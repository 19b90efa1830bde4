package wire

import (
	"fmt"

	"peakrace/internal/domain"
)

// Arrival is the client to host arrival notification. MessageID lets the sender match the ack.
type Arrival struct {
	MessageID string
	PlayerID  string
	TeamID    int
	Ghost     bool
	Round     int
}

func EncodeArrival(a Arrival) []byte {
	var b []byte
	b = appendString(b, 1, a.MessageID)
	b = appendString(b, 2, a.PlayerID)
	b = appendUint(b, 3, uint64(a.TeamID))
	b = appendBool(b, 4, a.Ghost)
	b = appendUint(b, 5, uint64(a.Round))
	return b
}

func DecodeArrival(b []byte) (Arrival, error) {
	var a Arrival
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			a.MessageID, err = str(f)
		case 2:
			a.PlayerID, err = str(f)
		case 3:
			a.TeamID, err = unsigned(f)
		case 4:
			var v int
			if v, err = unsigned(f); err == nil {
				a.Ghost = v != 0
			}
		case 5:
			a.Round, err = unsigned(f)
		}
		return err
	})
	if err != nil {
		return Arrival{}, err
	}
	if a.PlayerID == "" {
		return Arrival{}, fmt.Errorf("%w: arrival without player", ErrMalformed)
	}
	return a, nil
}

// Ack answers an Arrival. Error is set when the host rejected it outright (e.g. no active round).
type Ack struct {
	MessageID string
	Outcome   domain.Outcome
	Error     string
}

func EncodeAck(a Ack) []byte {
	var b []byte
	b = appendString(b, 1, a.MessageID)
	b = appendUint(b, 2, uint64(a.Outcome))
	if a.Error != "" {
		b = appendString(b, 3, a.Error)
	}
	return b
}

func DecodeAck(b []byte) (Ack, error) {
	var a Ack
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			a.MessageID, err = str(f)
		case 2:
			var v int
			if v, err = unsigned(f); err == nil {
				a.Outcome = domain.Outcome(v)
			}
		case 3:
			a.Error, err = str(f)
		}
		return err
	})
	if err != nil {
		return Ack{}, err
	}
	return a, nil
}

// CommandKind identifies a broadcast transition command.
type CommandKind int

const (
	CommandEliminateAll CommandKind = iota + 1
	CommandRepositionAll
)

func (k CommandKind) String() string {
	switch k {
	case CommandEliminateAll:
		return "eliminate_all"
	case CommandRepositionAll:
		return "reposition_all"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is a host broadcast every peer executes against its local world, once per
// (Match, Kind, Round).
type Command struct {
	Kind           CommandKind
	Match          int
	Round          int
	Location       domain.Position
	ArrivedPlayers []string
}

func EncodeCommand(c Command) []byte {
	var b []byte
	b = appendUint(b, 1, uint64(c.Kind))
	b = appendUint(b, 2, uint64(c.Round))
	if c.Kind == CommandRepositionAll {
		var loc []byte
		loc = appendDouble(loc, 1, c.Location.X)
		loc = appendDouble(loc, 2, c.Location.Y)
		loc = appendDouble(loc, 3, c.Location.Z)
		b = appendRecord(b, 3, loc)
	}
	for _, p := range c.ArrivedPlayers {
		b = appendString(b, 4, p)
	}
	b = appendUint(b, 5, uint64(c.Match))
	return b
}

func DecodeCommand(b []byte) (Command, error) {
	var c Command
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var v int
			if v, err = unsigned(f); err == nil {
				c.Kind = CommandKind(v)
			}
		case 2:
			c.Round, err = unsigned(f)
		case 3:
			var raw []byte
			if raw, err = recordBytes(f); err == nil {
				c.Location, err = decodePosition(raw)
			}
		case 4:
			var p string
			if p, err = str(f); err == nil {
				c.ArrivedPlayers = append(c.ArrivedPlayers, p)
			}
		case 5:
			c.Match, err = unsigned(f)
		}
		return err
	})
	if err != nil {
		return Command{}, err
	}
	if c.Kind != CommandEliminateAll && c.Kind != CommandRepositionAll {
		return Command{}, fmt.Errorf("%w: unknown command kind %d", ErrMalformed, int(c.Kind))
	}
	return c, nil
}

func recordBytes(f field) ([]byte, error) {
	s, err := str(f)
	return []byte(s), err
}

func decodePosition(b []byte) (domain.Position, error) {
	var p domain.Position
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			p.X, err = double(f)
		case 2:
			p.Y, err = double(f)
		case 3:
			p.Z, err = double(f)
		}
		return err
	})
	return p, err
}

// Assignment moves a player onto a team (owner control).
type Assignment struct {
	PlayerID string
	TeamID   int
}

func EncodeAssignment(a Assignment) []byte {
	var b []byte
	b = appendString(b, 1, a.PlayerID)
	b = appendUint(b, 2, uint64(a.TeamID))
	return b
}

func DecodeAssignment(b []byte) (Assignment, error) {
	var a Assignment
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			a.PlayerID, err = str(f)
		case 2:
			a.TeamID, err = unsigned(f)
		}
		return err
	})
	if err != nil {
		return Assignment{}, err
	}
	if a.PlayerID == "" {
		return Assignment{}, fmt.Errorf("%w: assignment without player", ErrMalformed)
	}
	return a, nil
}

// ErrorMessage is sent to a single client whose request was rejected.
type ErrorMessage struct {
	Code    string
	Message string
}

func EncodeError(e ErrorMessage) []byte {
	var b []byte
	b = appendString(b, 1, e.Code)
	b = appendString(b, 2, e.Message)
	return b
}

func DecodeError(b []byte) (ErrorMessage, error) {
	var e ErrorMessage
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			e.Code, err = str(f)
		case 2:
			e.Message, err = str(f)
		}
		return err
	})
	return e, err
}

// Presence announces a player joining or leaving a match on transports without built-in presence.
type Presence struct {
	PlayerID string
	Left     bool
}

func EncodePresence(p Presence) []byte {
	var b []byte
	b = appendString(b, 1, p.PlayerID)
	b = appendBool(b, 2, p.Left)
	return b
}

func DecodePresence(b []byte) (Presence, error) {
	var p Presence
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			p.PlayerID, err = str(f)
		case 2:
			var v int
			if v, err = unsigned(f); err == nil {
				p.Left = v != 0
			}
		}
		return err
	})
	if err != nil {
		return Presence{}, err
	}
	if p.PlayerID == "" {
		return Presence{}, fmt.Errorf("%w: presence without player", ErrMalformed)
	}
	return p, nil
}
