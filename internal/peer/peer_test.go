package peer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"peakrace/internal/config"
	"peakrace/internal/domain"
	"peakrace/internal/replication"
	"peakrace/internal/wire"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

// memStore keeps the last value per key. Watch replays them and waits for ctx.
type memStore struct {
	mu     sync.Mutex
	values map[string][]byte
	order  []string
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string][]byte)}
}

func (s *memStore) Put(ctx context.Context, props []wire.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range props {
		if _, ok := s.values[p.Key]; !ok {
			s.order = append(s.order, p.Key)
		}
		s.values[p.Key] = p.Value
	}
	return nil
}

func (s *memStore) Watch(ctx context.Context, fn func(wire.Property)) error {
	for _, p := range s.snapshot() {
		fn(p)
	}
	<-ctx.Done()
	return nil
}

func (s *memStore) snapshot() []wire.Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Property, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, wire.Property{Key: k, Value: s.values[k]})
	}
	return out
}

type recordingBus struct {
	mu   sync.Mutex
	sent []wire.Command
}

func (b *recordingBus) Broadcast(ctx context.Context, cmd wire.Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, cmd)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, fn func(wire.Command)) error {
	<-ctx.Done()
	return nil
}

func (b *recordingBus) commands() []wire.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]wire.Command(nil), b.sent...)
}

// flakyTransport fails the first failures sends, then acks.
type flakyTransport struct {
	failures int
	sent     []wire.Arrival
	ack      wire.Ack
}

func (f *flakyTransport) SendArrival(ctx context.Context, a wire.Arrival) (wire.Ack, error) {
	f.sent = append(f.sent, a)
	if len(f.sent) <= f.failures {
		return wire.Ack{}, errors.New("timeout")
	}
	ack := f.ack
	ack.MessageID = a.MessageID
	return ack, nil
}

func (f *flakyTransport) ServeArrivals(ctx context.Context, handle func(wire.Arrival) wire.Ack) error {
	<-ctx.Done()
	return nil
}

type worldCall struct {
	eliminateRound int
	restoreAt      *domain.Position
	inPlace        bool
}

type recordingWorld struct {
	calls []worldCall
}

func (w *recordingWorld) EliminateLocal(ctx context.Context, round int) error {
	w.calls = append(w.calls, worldCall{eliminateRound: round})
	return nil
}

func (w *recordingWorld) Restore(ctx context.Context, position domain.Position, inPlace bool) error {
	w.calls = append(w.calls, worldCall{restoreAt: &position, inPlace: inPlace})
	return nil
}

type fixedLocator struct{}

func (fixedLocator) NextCheckpointLocation(ctx context.Context, currentMapID string) (domain.Position, error) {
	return domain.Position{X: 1}, nil
}

func testConfig() *config.RaceConfig {
	cfg := config.Default()
	cfg.PlayersPerTeam = 2
	cfg.MaxTeams = 4
	cfg.Progression = domain.Progression{"Shore", "Alpine"}
	return cfg
}

// mirroredClient builds a client whose mirror holds the given host state.
func mirroredClient(t *testing.T, player string, state *domain.MatchState, transport *flakyTransport, world *recordingWorld) *ClientRunner {
	t.Helper()
	c := NewClientRunner(ClientOptions{PlayerID: player, Retries: 3}, newMemStore(), &recordingBus{}, transport, nil, world, noopLogger{})
	c.Mirror().ApplyBatch(replication.Snapshot(state, replication.TimerState{}))
	return c
}

func startedState(t *testing.T, players ...string) *domain.MatchState {
	t.Helper()
	state := domain.NewMatchState(domain.ScoringConfig{})
	if err := state.Teams.InitializeTeams(2, 2); err != nil {
		t.Fatalf("InitializeTeams: %v", err)
	}
	state.Teams.Balance(players)
	if err := state.StartMatch(); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if err := state.StartRound("Shore"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	return state
}

func TestCommandGate(t *testing.T) {
	gate := NewCommandGate()

	tests := []struct {
		name string
		cmd  wire.Command
		want bool
	}{
		{name: "FirstEliminate", cmd: wire.Command{Kind: wire.CommandEliminateAll, Round: 1}, want: true},
		{name: "RepeatedEliminate", cmd: wire.Command{Kind: wire.CommandEliminateAll, Round: 1}, want: false},
		{name: "RepositionSameRound", cmd: wire.Command{Kind: wire.CommandRepositionAll, Round: 1}, want: true},
		{name: "NextRound", cmd: wire.Command{Kind: wire.CommandEliminateAll, Round: 2}, want: true},
		{name: "RepositionRepeated", cmd: wire.Command{Kind: wire.CommandRepositionAll, Round: 1}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.Admit(tt.cmd); got != tt.want {
				t.Fatalf("Admit(%s, %d) = %v, want %v", tt.cmd.Kind, tt.cmd.Round, got, tt.want)
			}
		})
	}
}

func TestCommandGateNewMatchReusesRounds(t *testing.T) {
	gate := NewCommandGate()
	kinds := []wire.CommandKind{wire.CommandEliminateAll, wire.CommandRepositionAll}
	for round := 1; round <= 7; round++ {
		for _, k := range kinds {
			if !gate.Admit(wire.Command{Kind: k, Match: 1, Round: round}) {
				t.Fatalf("match 1 %s round %d rejected", k, round)
			}
		}
	}

	for round := 1; round <= 7; round++ {
		for _, k := range kinds {
			cmd := wire.Command{Kind: k, Match: 2, Round: round}
			if !gate.Admit(cmd) {
				t.Fatalf("match 2 %s round %d rejected", k, round)
			}
			if gate.Admit(cmd) {
				t.Fatalf("match 2 %s round %d admitted twice", k, round)
			}
		}
	}

	if gate.Admit(wire.Command{Kind: wire.CommandEliminateAll, Match: 1, Round: 8}) {
		t.Fatalf("command from a finished match admitted")
	}
}

func TestClientHandleCommandOnce(t *testing.T) {
	world := &recordingWorld{}
	c := mirroredClient(t, "u1", startedState(t, "u1", "u2"), &flakyTransport{}, world)
	ctx := context.Background()

	c.HandleCommand(ctx, wire.Command{Kind: wire.CommandEliminateAll, Round: 1})
	c.HandleCommand(ctx, wire.Command{Kind: wire.CommandEliminateAll, Round: 1})
	c.HandleCommand(ctx, wire.Command{Kind: wire.CommandRepositionAll, Round: 1, Location: domain.Position{Y: 3}, ArrivedPlayers: []string{"u1"}})

	if len(world.calls) != 2 {
		t.Fatalf("world calls = %d, want 2", len(world.calls))
	}
	if world.calls[0].eliminateRound != 1 {
		t.Fatalf("eliminate call = %+v", world.calls[0])
	}
	if restore := world.calls[1]; restore.restoreAt == nil || !restore.inPlace {
		t.Fatalf("arrived player should be restored in place: %+v", restore)
	}

	other := &recordingWorld{}
	c2 := mirroredClient(t, "u2", startedState(t, "u1", "u2"), &flakyTransport{}, other)
	c2.HandleCommand(ctx, wire.Command{Kind: wire.CommandRepositionAll, Round: 1, Location: domain.Position{Y: 3}, ArrivedPlayers: []string{"u1"}})
	if len(other.calls) != 1 || other.calls[0].inPlace || *other.calls[0].restoreAt != (domain.Position{Y: 3}) {
		t.Fatalf("non-arrived player should move to the checkpoint: %+v", other.calls)
	}
}

func TestReportArrivalRetriesUntilAck(t *testing.T) {
	transport := &flakyTransport{failures: 2, ack: wire.Ack{Outcome: domain.OutcomeAccepted}}
	c := mirroredClient(t, "u2", startedState(t, "u1", "u2"), transport, &recordingWorld{})

	ack, err := c.ReportArrival(context.Background(), true)
	if err != nil {
		t.Fatalf("ReportArrival: %v", err)
	}
	if ack.Outcome != domain.OutcomeAccepted || len(transport.sent) != 3 {
		t.Fatalf("ack = %+v after %d sends", ack, len(transport.sent))
	}
	first := transport.sent[0]
	for _, a := range transport.sent {
		if a.MessageID != first.MessageID {
			t.Fatalf("retries must reuse the message id")
		}
	}
	if first.PlayerID != "u2" || first.TeamID != 1 || !first.Ghost || first.Round != 1 {
		t.Fatalf("arrival = %+v", first)
	}
}

func TestReportArrivalGivesUp(t *testing.T) {
	transport := &flakyTransport{failures: 10}
	c := mirroredClient(t, "u1", startedState(t, "u1"), transport, &recordingWorld{})

	if _, err := c.ReportArrival(context.Background(), false); err == nil {
		t.Fatalf("expected error after retries")
	}
	if len(transport.sent) != 4 {
		t.Fatalf("sends = %d, want 1 + 3 retries", len(transport.sent))
	}
}

func TestReportArrivalPreconditions(t *testing.T) {
	idle := domain.NewMatchState(domain.ScoringConfig{})
	c := mirroredClient(t, "u1", idle, &flakyTransport{}, &recordingWorld{})
	if _, err := c.ReportArrival(context.Background(), false); !errors.Is(err, domain.ErrRoundNotActive) {
		t.Fatalf("idle err = %v", err)
	}

	c = mirroredClient(t, "u9", startedState(t, "u1"), &flakyTransport{}, &recordingWorld{})
	if _, err := c.ReportArrival(context.Background(), false); !errors.Is(err, ErrNoTeam) {
		t.Fatalf("spectator err = %v", err)
	}

	c = mirroredClient(t, "u1", startedState(t, "u1"), &flakyTransport{ack: wire.Ack{Error: "no"}}, &recordingWorld{})
	if _, err := c.ReportArrival(context.Background(), false); !errors.Is(err, ErrArrivalRejected) {
		t.Fatalf("rejected err = %v", err)
	}
}

func TestHostRunnerPublishesAndBroadcasts(t *testing.T) {
	store := newMemStore()
	bus := &recordingBus{}
	runner := NewHostRunner(testConfig(), fixedLocator{}, store, bus, noopLogger{})
	runner.clock = func() time.Time { return time.Unix(500, 0) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	for _, p := range []string{"u1", "u2"} {
		if err := runner.Join(ctx, p); err != nil {
			t.Fatalf("Join(%s): %v", p, err)
		}
	}
	if err := runner.StartMatch(ctx); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}

	client := NewClientRunner(ClientOptions{PlayerID: "u1"}, store, bus, nil, nil, &recordingWorld{}, noopLogger{})
	client.Mirror().ApplyBatch(store.snapshot())
	view := client.Mirror().View()
	if !view.RoundActive || view.CurrentRound != 1 || view.MapID != "Shore" {
		t.Fatalf("mirrored view = %+v", view)
	}
	team, ok := view.TeamOf("u1")
	if !ok {
		t.Fatalf("u1 has no team in the mirror")
	}

	for i, p := range []string{"u1", "u2"} {
		ack, err := runner.RecordArrival(ctx, wire.Arrival{MessageID: p, PlayerID: p, TeamID: team.ID, Round: 1})
		if err != nil || ack.Outcome != domain.OutcomeAccepted {
			t.Fatalf("arrival %d ack = %+v, %v", i, ack, err)
		}
	}
	cmds := bus.commands()
	if len(cmds) != 1 || cmds[0].Kind != wire.CommandEliminateAll || cmds[0].Round != 1 {
		t.Fatalf("commands = %+v", cmds)
	}

	if err := runner.StartMatch(ctx); err == nil {
		t.Fatalf("second StartMatch should fail while the match is active")
	}
}

func TestClientRunnerMirrorsStore(t *testing.T) {
	store := newMemStore()
	_ = store.Put(context.Background(), replication.Snapshot(startedState(t, "u1"), replication.TimerState{Active: true, Remaining: 42}))

	c := NewClientRunner(ClientOptions{PlayerID: "u1"}, store, &recordingBus{}, &flakyTransport{}, nil, &recordingWorld{}, noopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Mirror().View().TimerActive {
		if time.Now().After(deadline) {
			t.Fatalf("mirror never caught up")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := c.Mirror().View().TimerRemaining; got != 42 {
		t.Fatalf("TimerRemaining = %d", got)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestStdLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLogger(&buf, false)
	logger.WithFields(map[string]interface{}{"match": "m1", "b": 2}).Warn("round %d ended", 3)
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "WARN round 3 ended b=2 match=m1") {
		t.Fatalf("log line = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug logged without debug enabled")
	}
	if len(logger.Fields()) != 0 {
		t.Fatalf("WithFields must not modify the parent")
	}
}
