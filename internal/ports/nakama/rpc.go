package nakama

import (
	"context"
	"database/sql"

	"github.com/heroiclabs/nakama-common/runtime"
)

// rpcFindMatch searches for a race match that still has room.
// If an available match is found, it returns the Match ID.
// If no match is found, it creates a new one and returns its ID.
//
// Payload: unused.
// Returns: String containing the Match ID.
func rpcFindMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userId, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)

	// +label.open:T keeps matches that are in the lobby and not full.
	limit := 1
	authoritative := true
	labelQuery := "+label.open:T +label.game:" + gameLabel

	matches, err := nk.MatchList(ctx, limit, authoritative, "", nil, nil, labelQuery)
	if err != nil {
		logger.Error("rpcFindMatch [User:%s]: Failed to list matches: %v", userId, err)
		return "", err
	}

	if len(matches) > 0 {
		matchId := matches[0].MatchId
		logger.Info("rpcFindMatch [User:%s]: Found existing match %s", userId, matchId)
		return matchId, nil
	}

	matchId, err := nk.MatchCreate(ctx, MatchNameRace, nil)
	if err != nil {
		logger.Error("rpcFindMatch [User:%s]: Failed to create match: %v", userId, err)
		return "", err
	}

	logger.Info("rpcFindMatch [User:%s]: Created new match %s", userId, matchId)
	return matchId, nil
}
