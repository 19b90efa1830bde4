//go:build integration

// Package integration runs whole races across host and client peers over a live NATS server with
// JetStream enabled. Set NATS_URL to run it:
//
//	NATS_URL=nats://127.0.0.1:4222 go test -tags integration ./tests/integration/...
package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/nats-io/nats.go"

	"peakrace/internal/config"
	"peakrace/internal/peer"
	"peakrace/internal/ports/natsbus"
	"peakrace/internal/replication"
)

func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	return url
}

func quietLogger() runtime.Logger {
	return peer.NewStdLogger(os.Stderr, false)
}

// TestPeer is one process worth of race wiring on its own NATS connection.
type TestPeer struct {
	PlayerID string
	Conn     *nats.Conn
	Bus      *natsbus.Bus
	Client   *peer.ClientRunner
	Host     *peer.HostRunner
}

// NewTestPeer connects a peer to matchID. Host peers also run the authoritative loop.
func NewTestPeer(ctx context.Context, t *testing.T, cfg *config.RaceConfig, matchID, playerID string, host bool) *TestPeer {
	t.Helper()
	logger := quietLogger().WithField("player", playerID)

	nc, err := natsbus.Connect(natsURL(t), "it-"+playerID)
	if err != nil {
		t.Fatalf("Failed to connect %s: %v", playerID, err)
	}
	store, err := natsbus.NewPropertyStore(ctx, nc, matchID, logger)
	if err != nil {
		t.Fatalf("Failed to open property store: %v", err)
	}
	bus := natsbus.NewBus(nc, matchID, cfg.ArrivalTimeout(), logger)

	p := &TestPeer{PlayerID: playerID, Conn: nc, Bus: bus}
	if host {
		p.Host = peer.NewHostRunner(cfg, config.NewCheckpointTable(cfg.Progression, cfg.Checkpoints), store, bus, logger)
		go p.Host.Serve(ctx, bus, bus)
		// presence is core NATS; give the host time to subscribe before anyone announces
		time.Sleep(200 * time.Millisecond)
	}
	p.Client = peer.NewClientRunner(peer.ClientOptions{
		PlayerID:   playerID,
		Retries:    cfg.ArrivalRetries,
		RetryDelay: cfg.RetryDelay(),
	}, store, bus, bus, bus, peer.LogWorld{PlayerID: playerID, Logger: logger}, logger)
	go p.Client.Run(ctx)
	return p
}

func (p *TestPeer) Close() {
	if p.Conn != nil {
		p.Conn.Close()
	}
}

// WaitForView polls the peer's mirror until cond holds.
func (p *TestPeer) WaitForView(t *testing.T, what string, timeout time.Duration, cond func(replication.View) bool) replication.View {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		view := p.Client.Mirror().View()
		if cond(view) {
			return view
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for %s on %s: %+v", what, p.PlayerID, view)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func uniqueMatchID() string {
	return fmt.Sprintf("it_%d", time.Now().UnixNano())
}
