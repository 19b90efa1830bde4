package nakama

import (
	"context"
	"database/sql"

	"peakrace/internal/config"

	"github.com/heroiclabs/nakama-common/runtime"
)

// InitModule wires RPCs and match handlers for Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	if err := config.LoadRaceConfig(config.DefaultPath, env); err != nil {
		logger.Warn("InitModule: Could not load race config, using defaults: %v", err)
	}
	initVivox(env)

	if err := RegisterRPCs(initializer); err != nil {
		return err
	}

	if err := initializer.RegisterMatch(MatchNameRace, NewMatch); err != nil {
		return err
	}

	logger.Info("PeakRace Go module loaded.")
	return nil
}
