package peer

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"

	"peakrace/internal/domain"
)

// LogWorld is a LocalWorld for headless peers: it records what the game client would do.
type LogWorld struct {
	PlayerID string
	Logger   runtime.Logger
}

func (w LogWorld) EliminateLocal(ctx context.Context, round int) error {
	w.Logger.Info("World: %s eliminated for round %d", w.PlayerID, round)
	return ctx.Err()
}

func (w LogWorld) Restore(ctx context.Context, position domain.Position, inPlace bool) error {
	if inPlace {
		w.Logger.Info("World: %s revived in place", w.PlayerID)
	} else {
		w.Logger.Info("World: %s revived at %s", w.PlayerID, position)
	}
	return ctx.Err()
}
