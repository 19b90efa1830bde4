package nakama

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"peakrace/internal/app"

	"github.com/form3tech-oss/jwt-go"
	"github.com/heroiclabs/nakama-common/runtime"
)

// signalNakama routes MatchSignal to a local match handler; every other module call panics.
type signalNakama struct {
	runtime.NakamaModule
	handler *matchHandler
	state   *MatchState
}

func (n *signalNakama) MatchSignal(ctx context.Context, id string, data string) (string, error) {
	_, reply := n.handler.MatchSignal(ctx, noopLogger{}, nil, nil, &mockDispatcher{}, 0, n.state, data)
	return reply, nil
}

func TestRpcGetVivoxToken_GeneratesValidClaims(t *testing.T) {
	t.Cleanup(func() { vivoxService = nil })

	vivoxService = app.NewVivoxService("test-secret", "issuer", "example.com")

	ctx := context.WithValue(context.Background(), runtime.RUNTIME_CTX_USER_ID, "user123")
	payload := `{"action":"login"}`

	// 1. Generate Token 1
	raw1, err := RpcGetVivoxToken(ctx, noopLogger{}, nil, nil, payload)
	if err != nil {
		t.Fatalf("RpcGetVivoxToken error: %v", err)
	}
	token1 := parseToken(t, raw1)

	// 2. Generate Token 2 (to check uniqueness)
	raw2, err := RpcGetVivoxToken(ctx, noopLogger{}, nil, nil, payload)
	if err != nil {
		t.Fatalf("RpcGetVivoxToken error: %v", err)
	}
	token2 := parseToken(t, raw2)

	// 3. Validate Claims
	claims1 := parseVivoxClaims(t, token1, "test-secret")
	claims2 := parseVivoxClaims(t, token2, "test-secret")

	// Standard Claims
	assertClaim(t, claims1, "iss", "issuer")
	assertClaim(t, claims1, "sub", "user123")
	assertClaim(t, claims1, "vxa", app.VivoxTokenActionLogin)
	assertClaim(t, claims1, "f", "sip:.issuer.user123.@example.com")

	// Check VXI uniqueness (Nonce)
	vxi1, ok1 := claims1["vxi"]
	vxi2, ok2 := claims2["vxi"]
	if !ok1 || !ok2 {
		t.Fatal("vxi claim missing")
	}
	if vxi1 == vxi2 {
		t.Errorf("vxi claim must be unique per token. Got %v for both.", vxi1)
	}
}

func TestRpcTeamVoiceToken_UsesTeamChannel(t *testing.T) {
	t.Cleanup(func() { vivoxService = nil })
	vivoxService = app.NewVivoxService("test-secret", "issuer", "example.com")

	mh, state, dispatcher := newTestMatch(t, "u1", "u2")
	loop(mh, state, dispatcher, 1, testMatchData{userID: "u1", opCode: OpStartMatch})
	teamID, _ := state.Host.TeamOf("u2")
	nk := &signalNakama{handler: mh, state: state}

	ctx := context.WithValue(context.Background(), runtime.RUNTIME_CTX_USER_ID, "u2")
	raw, err := rpcTeamVoiceToken(ctx, noopLogger{}, nil, nk, `{"match_id":"match.1"}`)
	if err != nil {
		t.Fatalf("rpcTeamVoiceToken error: %v", err)
	}
	var resp voiceTokenResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if want := app.TeamChannel("match.1", teamID); resp.Channel != want {
		t.Fatalf("channel = %s, want %s", resp.Channel, want)
	}
	claims := parseVivoxClaims(t, resp.Token, "test-secret")
	assertClaim(t, claims, "vxa", app.VivoxTokenActionJoin)
	assertClaim(t, claims, "t", "sip:confctl-g-"+resp.Channel+"@example.com")

	// a spectator without a team joins the match channel
	ctx = context.WithValue(context.Background(), runtime.RUNTIME_CTX_USER_ID, "u9")
	raw, err = rpcTeamVoiceToken(ctx, noopLogger{}, nil, nk, `{"match_id":"match.1"}`)
	if err != nil {
		t.Fatalf("rpcTeamVoiceToken error: %v", err)
	}
	_ = json.Unmarshal([]byte(raw), &resp)
	if resp.Channel != app.MatchChannel("match.1") {
		t.Fatalf("spectator channel = %s", resp.Channel)
	}
}

func TestRpcTeamVoiceToken_RequiresMatchID(t *testing.T) {
	ctx := context.WithValue(context.Background(), runtime.RUNTIME_CTX_USER_ID, "u1")
	if _, err := rpcTeamVoiceToken(ctx, noopLogger{}, nil, nil, `{}`); err == nil {
		t.Fatalf("missing match_id accepted")
	}
}

func parseToken(t *testing.T, jsonRaw string) string {
	var resp voiceTokenResponse
	if err := json.Unmarshal([]byte(jsonRaw), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected token in response")
	}
	return resp.Token
}

func parseVivoxClaims(t *testing.T, tokenString, secret string) jwt.MapClaims {
	t.Helper()

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		t.Fatalf("parse token error: %v", err)
	}
	if !token.Valid {
		t.Fatal("token is invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("claims are not map claims")
	}
	return claims
}

func assertClaim(t *testing.T, claims jwt.MapClaims, key, expected string) {
	t.Helper()
	val, ok := claims[key]
	if !ok {
		t.Errorf("missing claim: %s", key)
		return
	}
	str, ok := val.(string)
	if !ok {
		t.Errorf("claim %s is not a string: %v", key, val)
		return
	}
	if str != expected {
		t.Errorf("claim %s = %s, want %s", key, str, expected)
	}
}
