package natsbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/nats-io/nats.go"

	"peakrace/internal/wire"
)

// ErrNoAck is returned when the host did not answer an arrival in time.
var ErrNoAck = errors.New("arrival not acknowledged")

// Bus implements the command broadcast and the arrival request/ack over core NATS subjects.
type Bus struct {
	nc      *nats.Conn
	matchID string
	timeout time.Duration
	logger  runtime.Logger
}

// NewBus binds a bus to matchID. timeout bounds each arrival request.
func NewBus(nc *nats.Conn, matchID string, timeout time.Duration, logger runtime.Logger) *Bus {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Bus{nc: nc, matchID: matchID, timeout: timeout, logger: logger}
}

// Broadcast publishes a command to every peer of the match.
func (b *Bus) Broadcast(ctx context.Context, cmd wire.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.nc.Publish(CommandSubject(b.matchID), wire.EncodeCommand(cmd)); err != nil {
		return fmt.Errorf("broadcast %s: %w", cmd.Kind, err)
	}
	return nil
}

// Subscribe delivers decoded commands until ctx ends. Malformed commands are dropped.
func (b *Bus) Subscribe(ctx context.Context, fn func(wire.Command)) error {
	sub, err := b.nc.Subscribe(CommandSubject(b.matchID), func(m *nats.Msg) {
		cmd, err := wire.DecodeCommand(m.Data)
		if err != nil {
			b.logger.Warn("Bus: dropping command: %v", err)
			return
		}
		fn(cmd)
	})
	if err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

// SendArrival makes one request to the host and returns its ack.
func (b *Bus) SendArrival(ctx context.Context, arrival wire.Arrival) (wire.Ack, error) {
	reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	msg, err := b.nc.RequestWithContext(reqCtx, ArrivalSubject(b.matchID), wire.EncodeArrival(arrival))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrNoResponders) {
			return wire.Ack{}, fmt.Errorf("%w: %v", ErrNoAck, err)
		}
		return wire.Ack{}, err
	}
	ack, err := wire.DecodeAck(msg.Data)
	if err != nil {
		return wire.Ack{}, fmt.Errorf("decode ack: %w", err)
	}
	return ack, nil
}

// ServeArrivals answers arrival requests with handle until ctx ends.
func (b *Bus) ServeArrivals(ctx context.Context, handle func(wire.Arrival) wire.Ack) error {
	sub, err := b.nc.Subscribe(ArrivalSubject(b.matchID), func(m *nats.Msg) {
		var ack wire.Ack
		arrival, err := wire.DecodeArrival(m.Data)
		if err != nil {
			b.logger.Warn("Bus: bad arrival: %v", err)
			ack.Error = err.Error()
		} else {
			ack = handle(arrival)
		}
		if err := m.Respond(wire.EncodeAck(ack)); err != nil {
			b.logger.Warn("Bus: ack %s not sent: %v", ack.MessageID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe arrivals: %w", err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

// Announce publishes a join or leave to the host.
func (b *Bus) Announce(ctx context.Context, p wire.Presence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.nc.Publish(PresenceSubject(b.matchID), wire.EncodePresence(p)); err != nil {
		return fmt.Errorf("announce %s: %w", p.PlayerID, err)
	}
	return b.nc.FlushWithContext(ctx)
}

// ServePresence delivers announcements until ctx ends.
func (b *Bus) ServePresence(ctx context.Context, handle func(wire.Presence)) error {
	sub, err := b.nc.Subscribe(PresenceSubject(b.matchID), func(m *nats.Msg) {
		p, err := wire.DecodePresence(m.Data)
		if err != nil {
			b.logger.Warn("Bus: bad presence: %v", err)
			return
		}
		handle(p)
	})
	if err != nil {
		return fmt.Errorf("subscribe presence: %w", err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}
