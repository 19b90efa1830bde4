package nakama

import (
	"context"
	"database/sql"
	"encoding/json"

	"peakrace/internal/domain"

	"github.com/heroiclabs/nakama-common/runtime"
)

const gameLabel = domain.GameName

// QuickMatchResponse is the payload returned to clients when requesting a lobby-capable match.
type QuickMatchResponse struct {
	MatchID string `json:"match_id"`
	IsNew   bool   `json:"is_new"`
}

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer) error {
	if err := initializer.RegisterRpc(RpcQuickMatch, rpcQuickMatch); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcFindMatch, rpcFindMatch); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcVivoxToken, RpcGetVivoxToken); err != nil {
		return err
	}
	return initializer.RegisterRpc(RpcTeamVoiceToken, rpcTeamVoiceToken)
}

func rpcQuickMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	// Find any open lobby of our game that already has players waiting.
	query := "+label.open:T +label.game:" + gameLabel

	limit := 10
	authoritative := true
	minSize := 1

	matches, err := nk.MatchList(ctx, limit, authoritative, "", &minSize, nil, query)
	if err != nil {
		logger.Error("MatchList error: %v", err)
		return "", err
	}

	if len(matches) > 0 {
		resp := QuickMatchResponse{MatchID: matches[0].MatchId, IsNew: false}
		b, _ := json.Marshal(resp)
		return string(b), nil
	}

	// Create new match; ownership and team assignment happen in MatchJoin.
	matchID, err := nk.MatchCreate(ctx, MatchNameRace, map[string]interface{}{})
	if err != nil {
		logger.Error("MatchCreate error: %v", err)
		return "", err
	}

	resp := QuickMatchResponse{MatchID: matchID, IsNew: true}
	b, _ := json.Marshal(resp)
	return string(b), nil
}
