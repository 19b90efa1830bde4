package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"peakrace/internal/domain"
)

var ErrNoCheckpoint = errors.New("no checkpoint configured for map")

// CheckpointTable resolves the next checkpoint from the configured progression.
type CheckpointTable struct {
	progression domain.Progression
	byMap       map[string]domain.Position
}

// NewCheckpointTable indexes checkpoints by lower-cased map id.
func NewCheckpointTable(progression domain.Progression, checkpoints []Checkpoint) *CheckpointTable {
	t := &CheckpointTable{progression: progression, byMap: make(map[string]domain.Position, len(checkpoints))}
	for _, cp := range checkpoints {
		t.byMap[strings.ToLower(cp.MapID)] = cp.Position
	}
	return t
}

// NextCheckpointLocation returns where players are placed for the segment after currentMapID.
// After the final segment the current segment's checkpoint is returned so players can gather there.
func (t *CheckpointTable) NextCheckpointLocation(ctx context.Context, currentMapID string) (domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return domain.Position{}, err
	}
	target, final := t.progression.Next(currentMapID)
	if final {
		target = currentMapID
	}
	pos, ok := t.byMap[strings.ToLower(target)]
	if !ok {
		return domain.Position{}, fmt.Errorf("%w: %q", ErrNoCheckpoint, target)
	}
	return pos, nil
}
