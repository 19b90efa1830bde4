package nakama

import (
	"context"
	"database/sql"
	"encoding/json"

	"peakrace/internal/app"

	"github.com/heroiclabs/nakama-common/runtime"
)

// vivoxService is configured once from the runtime env in InitModule.
var vivoxService *app.VivoxService

func initVivox(env map[string]string) {
	vivoxService = app.NewVivoxService(env["vivox_secret"], env["vivox_issuer"], env["vivox_domain"])
}

type vivoxTokenRequest struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

type voiceTokenRequest struct {
	MatchID string `json:"match_id"`
}

type voiceTokenResponse struct {
	Token   string `json:"token"`
	Channel string `json:"channel,omitempty"`
}

// RpcGetVivoxToken signs a login or join token for the caller.
// Payload: {"action": "login" | "join", "channel": "..."}
func RpcGetVivoxToken(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userId, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userId == "" {
		return "", runtime.NewError("Unauthenticated", 16) // UNAUTHENTICATED
	}

	var req vivoxTokenRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("Invalid payload", 3) // INVALID_ARGUMENT
	}

	token, err := vivoxService.GenerateToken(userId, req.Action, req.Channel)
	if err != nil {
		logger.Warn("RpcGetVivoxToken [User:%s]: %v", userId, err)
		return "", runtime.NewError(err.Error(), 3)
	}
	return marshalVoiceToken(voiceTokenResponse{Token: token, Channel: req.Channel})
}

// rpcTeamVoiceToken signs a join token for the caller's voice channel in a match: their team channel,
// or the match-wide channel in free-for-all or while unassigned.
// Payload: {"match_id": "..."}
func rpcTeamVoiceToken(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userId, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userId == "" {
		return "", runtime.NewError("Unauthenticated", 16)
	}

	var req voiceTokenRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.MatchID == "" {
		return "", runtime.NewError("match_id required", 3)
	}

	reply, err := nk.MatchSignal(ctx, req.MatchID, signalTeamOf+userId)
	if err != nil {
		logger.Warn("rpcTeamVoiceToken [User:%s]: Match %s not reachable: %v", userId, req.MatchID, err)
		return "", runtime.NewError("Match not found", 5) // NOT_FOUND
	}
	var team teamOfReply
	if err := json.Unmarshal([]byte(reply), &team); err != nil {
		logger.Error("rpcTeamVoiceToken [User:%s]: Bad signal reply %q: %v", userId, reply, err)
		return "", runtime.NewError("Internal error", 13) // INTERNAL
	}

	seat := app.VoiceSeat{MatchID: req.MatchID, TeamID: team.TeamID, HasTeam: team.HasTeam, FreeForAll: team.FreeForAll}
	token, channel, err := vivoxService.SeatJoinToken(userId, seat)
	if err != nil {
		logger.Warn("rpcTeamVoiceToken [User:%s]: %v", userId, err)
		return "", runtime.NewError(err.Error(), 9) // FAILED_PRECONDITION
	}
	return marshalVoiceToken(voiceTokenResponse{Token: token, Channel: channel})
}

func marshalVoiceToken(res voiceTokenResponse) (string, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return "", runtime.NewError("Internal error", 13)
	}
	return string(b), nil
}
