package ports

import (
	"context"

	"peakrace/internal/domain"
	"peakrace/internal/wire"
)

// CheckpointLocator resolves where players are placed for the next map segment.
type CheckpointLocator interface {
	// NextCheckpointLocation returns the checkpoint after currentMapID.
	// Errors are transient; the caller retries later.
	NextCheckpointLocation(ctx context.Context, currentMapID string) (domain.Position, error)
}

// LocalWorld is the per-peer game world a transition command acts on.
type LocalWorld interface {
	// EliminateLocal kills the local player for the given round.
	EliminateLocal(ctx context.Context, round int) error
	// Restore revives the local player. inPlace keeps players who already reached the checkpoint
	// where they stand; others are moved to position.
	Restore(ctx context.Context, position domain.Position, inPlace bool) error
}

// PropertyStore is the replicated key/value channel. Writes are best-effort and the last value per
// key wins.
type PropertyStore interface {
	Put(ctx context.Context, props []wire.Property) error
	// Watch delivers the current value of every key followed by each later change until ctx ends.
	Watch(ctx context.Context, fn func(wire.Property)) error
}

// CommandBus carries host broadcast commands to every peer.
type CommandBus interface {
	Broadcast(ctx context.Context, cmd wire.Command) error
	Subscribe(ctx context.Context, fn func(wire.Command)) error
}

// ArrivalTransport carries client arrivals to the host and the host's acks back.
type ArrivalTransport interface {
	// SendArrival delivers an arrival and waits for its ack.
	SendArrival(ctx context.Context, arrival wire.Arrival) (wire.Ack, error)
	// ServeArrivals handles arrivals on the host until ctx ends.
	ServeArrivals(ctx context.Context, handle func(wire.Arrival) wire.Ack) error
}

// PresenceTransport carries join and leave announcements to the host.
type PresenceTransport interface {
	Announce(ctx context.Context, p wire.Presence) error
	// ServePresence handles announcements on the host until ctx ends.
	ServePresence(ctx context.Context, handle func(wire.Presence)) error
}
