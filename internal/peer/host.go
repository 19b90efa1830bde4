package peer

import (
	"context"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"peakrace/internal/app"
	"peakrace/internal/config"
	"peakrace/internal/ports"
	"peakrace/internal/replication"
	"peakrace/internal/wire"
)

// job runs on the host loop. done, when set, receives the job's error after its events were
// dispatched and published.
type job struct {
	fn   func(now time.Time) ([]app.Event, error)
	done chan error
}

// HostRunner owns an app.Host on a single goroutine, fed by an inbox and a ticker, and publishes
// through the transport ports.
type HostRunner struct {
	host      *app.Host
	publisher *replication.Publisher
	store     ports.PropertyStore
	commands  ports.CommandBus
	logger    runtime.Logger
	tick      time.Duration
	clock     func() time.Time
	inbox     chan job
}

func NewHostRunner(cfg *config.RaceConfig, locator ports.CheckpointLocator, store ports.PropertyStore, commands ports.CommandBus, logger runtime.Logger) *HostRunner {
	if cfg == nil {
		cfg = config.Default()
	}
	rate := cfg.TickRate
	if rate <= 0 {
		rate = 1
	}
	return &HostRunner{
		host:      app.NewHost(cfg, locator, logger),
		publisher: replication.NewPublisher(),
		store:     store,
		commands:  commands,
		logger:    logger,
		tick:      time.Second / time.Duration(rate),
		clock:     time.Now,
		inbox:     make(chan job, 256),
	}
}

// Run processes jobs and ticks until ctx ends.
func (r *HostRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	r.flush(ctx, nil)
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-r.inbox:
			events, err := j.fn(r.clock())
			r.flush(ctx, events)
			if j.done != nil {
				j.done <- err
			}
		case <-ticker.C:
			r.flush(ctx, r.host.Tick(ctx, r.clock()))
		}
	}
}

// Serve runs the host loop together with the arrival and presence listeners.
func (r *HostRunner) Serve(ctx context.Context, arrivals ports.ArrivalTransport, presence ports.PresenceTransport) error {
	if arrivals != nil {
		go func() {
			err := arrivals.ServeArrivals(ctx, func(a wire.Arrival) wire.Ack {
				ack, err := r.RecordArrival(ctx, a)
				if err != nil {
					ack = wire.Ack{MessageID: a.MessageID, Error: err.Error()}
				}
				return ack
			})
			if err != nil {
				r.logger.Error("HostRunner: arrival listener stopped: %v", err)
			}
		}()
	}
	if presence != nil {
		go func() {
			err := presence.ServePresence(ctx, func(p wire.Presence) {
				var err error
				if p.Left {
					err = r.Leave(ctx, p.PlayerID)
				} else {
					err = r.Join(ctx, p.PlayerID)
				}
				if err != nil {
					r.logger.Warn("HostRunner: presence of %s not applied: %v", p.PlayerID, err)
				}
			})
			if err != nil {
				r.logger.Error("HostRunner: presence listener stopped: %v", err)
			}
		}()
	}
	return r.Run(ctx)
}

// call queues fn on the loop and waits for it to finish.
func (r *HostRunner) call(ctx context.Context, fn func(now time.Time) ([]app.Event, error)) error {
	done := make(chan error, 1)
	select {
	case r.inbox <- job{fn: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *HostRunner) Join(ctx context.Context, playerID string) error {
	return r.call(ctx, func(time.Time) ([]app.Event, error) {
		return r.host.Join(playerID), nil
	})
}

func (r *HostRunner) Leave(ctx context.Context, playerID string) error {
	return r.call(ctx, func(now time.Time) ([]app.Event, error) {
		return r.host.Leave(playerID, now), nil
	})
}

func (r *HostRunner) StartMatch(ctx context.Context) error {
	return r.call(ctx, func(time.Time) ([]app.Event, error) {
		return r.host.StartMatch()
	})
}

func (r *HostRunner) EndMatch(ctx context.Context) error {
	return r.call(ctx, func(time.Time) ([]app.Event, error) {
		return r.host.EndMatch()
	})
}

func (r *HostRunner) AssignPlayer(ctx context.Context, playerID string, teamID int) error {
	return r.call(ctx, func(time.Time) ([]app.Event, error) {
		return r.host.AssignPlayer(playerID, teamID)
	})
}

func (r *HostRunner) BalanceTeams(ctx context.Context) error {
	return r.call(ctx, func(time.Time) ([]app.Event, error) {
		return r.host.BalanceTeams()
	})
}

// RecordArrival applies a transport arrival on the loop and returns its ack.
func (r *HostRunner) RecordArrival(ctx context.Context, a wire.Arrival) (wire.Ack, error) {
	var ack wire.Ack
	err := r.call(ctx, func(now time.Time) ([]app.Event, error) {
		var events []app.Event
		ack, events = r.host.AcceptArrival(a, now)
		return events, nil
	})
	return ack, err
}

// flush broadcasts transition commands, then publishes changed properties.
func (r *HostRunner) flush(ctx context.Context, events []app.Event) {
	for _, ev := range events {
		var cmd wire.Command
		switch ev.Kind {
		case app.EventEliminateAll:
			p := ev.Payload.(app.EliminateAllPayload)
			cmd = wire.Command{Kind: wire.CommandEliminateAll, Match: p.Match, Round: p.Round}
		case app.EventRepositionAll:
			p := ev.Payload.(app.RepositionAllPayload)
			cmd = wire.Command{Kind: wire.CommandRepositionAll, Match: p.Match, Round: p.Round, Location: p.Location, ArrivedPlayers: p.ArrivedPlayers}
		default:
			r.logger.Debug("HostRunner: event %s %+v", ev.Kind, ev.Payload)
			continue
		}
		if err := r.commands.Broadcast(ctx, cmd); err != nil {
			r.logger.Error("HostRunner: %s for round %d not sent: %v", cmd.Kind, cmd.Round, err)
		}
	}

	props := r.publisher.Publish(r.host.State(), r.host.TimerState(r.clock()))
	if len(props) == 0 {
		return
	}
	if err := r.store.Put(ctx, props); err != nil {
		// resend everything next time rather than lose a key
		r.logger.Warn("HostRunner: publish failed: %v", err)
		r.publisher.Reset()
	}
}
