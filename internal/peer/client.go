package peer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"

	"peakrace/internal/domain"
	"peakrace/internal/ports"
	"peakrace/internal/replication"
	"peakrace/internal/wire"
)

var (
	ErrNoTeam          = errors.New("player has no team")
	ErrArrivalRejected = errors.New("arrival rejected by host")
)

// ClientOptions configures a ClientRunner.
type ClientOptions struct {
	PlayerID   string
	Retries    int           // extra attempts after the first arrival request
	RetryDelay time.Duration // wait between attempts
}

// ClientRunner is one peer's view of the match: it mirrors replicated properties, executes host
// commands against the local world and forwards the local player's arrivals.
type ClientRunner struct {
	opts     ClientOptions
	mirror   *replication.Mirror
	gate     *CommandGate
	store    ports.PropertyStore
	commands ports.CommandBus
	arrivals ports.ArrivalTransport
	presence ports.PresenceTransport
	world    ports.LocalWorld
	logger   runtime.Logger
}

func NewClientRunner(opts ClientOptions, store ports.PropertyStore, commands ports.CommandBus, arrivals ports.ArrivalTransport, presence ports.PresenceTransport, world ports.LocalWorld, logger runtime.Logger) *ClientRunner {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &ClientRunner{
		opts:     opts,
		mirror:   replication.NewMirror(logger),
		gate:     NewCommandGate(),
		store:    store,
		commands: commands,
		arrivals: arrivals,
		presence: presence,
		world:    world,
		logger:   logger,
	}
}

// Mirror exposes the replicated view for presentation.
func (c *ClientRunner) Mirror() *replication.Mirror {
	return c.mirror
}

// Run mirrors properties and executes commands until ctx ends. The player is announced on start
// and withdrawn on exit.
func (c *ClientRunner) Run(ctx context.Context) error {
	errs := make(chan error, 2)
	go func() {
		errs <- c.store.Watch(ctx, func(p wire.Property) {
			if err := c.mirror.ApplyRemote(p.Key, p.Value); err != nil {
				c.logger.Warn("ClientRunner: %s not applied: %v", p.Key, err)
			}
		})
	}()
	go func() {
		errs <- c.commands.Subscribe(ctx, func(cmd wire.Command) {
			c.HandleCommand(ctx, cmd)
		})
	}()

	if c.presence != nil {
		if err := c.presence.Announce(ctx, wire.Presence{PlayerID: c.opts.PlayerID}); err != nil {
			c.logger.Warn("ClientRunner: join not announced: %v", err)
		}
		defer func() {
			leaveCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := c.presence.Announce(leaveCtx, wire.Presence{PlayerID: c.opts.PlayerID, Left: true}); err != nil {
				c.logger.Warn("ClientRunner: leave not announced: %v", err)
			}
		}()
	}

	var first error
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err != nil && first == nil {
				first = err
			}
		case <-ctx.Done():
			return first
		}
	}
	return first
}

// HandleCommand executes a host command once per (kind, round).
func (c *ClientRunner) HandleCommand(ctx context.Context, cmd wire.Command) {
	if !c.gate.Admit(cmd) {
		c.logger.Debug("ClientRunner: %s for round %d already executed", cmd.Kind, cmd.Round)
		return
	}

	var err error
	switch cmd.Kind {
	case wire.CommandEliminateAll:
		err = c.world.EliminateLocal(ctx, cmd.Round)
	case wire.CommandRepositionAll:
		inPlace := slices.Contains(cmd.ArrivedPlayers, c.opts.PlayerID)
		err = c.world.Restore(ctx, cmd.Location, inPlace)
	}
	if err != nil {
		c.logger.Warn("ClientRunner: %s for round %d failed: %v", cmd.Kind, cmd.Round, err)
	}
}

// ReportArrival forwards the local player's arrival to the host, retrying until an ack arrives.
// Every attempt carries the same message id so the host can absorb duplicates.
func (c *ClientRunner) ReportArrival(ctx context.Context, ghost bool) (wire.Ack, error) {
	view := c.mirror.View()
	if !view.RoundActive {
		return wire.Ack{}, domain.ErrRoundNotActive
	}
	team, ok := view.TeamOf(c.opts.PlayerID)
	if !ok {
		return wire.Ack{}, ErrNoTeam
	}

	arrival := wire.Arrival{
		MessageID: uuid.NewString(),
		PlayerID:  c.opts.PlayerID,
		TeamID:    team.ID,
		Ghost:     ghost,
		Round:     view.CurrentRound,
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.opts.RetryDelay):
			case <-ctx.Done():
				return wire.Ack{}, ctx.Err()
			}
		}
		ack, err := c.arrivals.SendArrival(ctx, arrival)
		if err != nil {
			lastErr = err
			c.logger.Warn("ClientRunner: arrival %s attempt %d failed: %v", arrival.MessageID, attempt+1, err)
			continue
		}
		if ack.Error != "" {
			return ack, fmt.Errorf("%w: %s", ErrArrivalRejected, ack.Error)
		}
		return ack, nil
	}
	return wire.Ack{}, fmt.Errorf("arrival %s: %w", arrival.MessageID, lastErr)
}
