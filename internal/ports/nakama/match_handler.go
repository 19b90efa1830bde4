package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"peakrace/internal/app"
	"peakrace/internal/config"
	"peakrace/internal/domain"
	"peakrace/internal/ports"
	"peakrace/internal/replication"
	"peakrace/internal/wire"

	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// MatchState holds the authoritative runtime state for the Nakama match handler.
type MatchState struct {
	Host       *app.Host                   `json:"-"`            // Coordinator owning match, timer and transition
	Publisher  *replication.Publisher      `json:"-"`            // Changed-key tracker for property batches
	Presences  map[string]runtime.Presence `json:"-"`            // Map UserId -> Presence for targeted messaging
	Owner      string                      `json:"owner"`        // User allowed to use host controls
	Capacity   int                         `json:"capacity"`     // Max present players
	TickRate   int                         `json:"tick_rate"`    // Loop ticks per second
	Epoch      time.Time                   `json:"epoch"`        // Wall time of tick 0
	Tick       int64                       `json:"tick"`         // Current loop tick
	FreeForAll bool                        `json:"free_for_all"` // One team per player, one voice channel
	label      string
}

// Now converts the current tick into match time. Ticks are the only clock inside the loop.
func (ms *MatchState) Now() time.Time {
	rate := ms.TickRate
	if rate <= 0 {
		rate = 1
	}
	return ms.Epoch.Add(time.Duration(ms.Tick) * time.Second / time.Duration(rate))
}

// isOwner reports whether userID may use host controls.
func (ms *MatchState) isOwner(userID string) bool {
	return userID != "" && userID == ms.Owner
}

// electOwner keeps the current owner while present, else hands ownership to the earliest present player.
func (ms *MatchState) electOwner() {
	if _, ok := ms.Presences[ms.Owner]; ok {
		return
	}
	ms.Owner = ""
	for _, p := range ms.Host.Players() {
		if _, ok := ms.Presences[p]; ok {
			ms.Owner = p
			return
		}
	}
}

type matchHandler struct {
	cfg     *config.RaceConfig
	locator ports.CheckpointLocator
	clock   func() time.Time
}

// newMatchHandler builds a handler over cfg; nil uses the loaded race config and its checkpoint table.
func newMatchHandler(cfg *config.RaceConfig, locator ports.CheckpointLocator) *matchHandler {
	if cfg == nil {
		cfg = config.GetRaceConfig()
	}
	if locator == nil {
		locator = config.NewCheckpointTable(cfg.Progression, cfg.Checkpoints)
	}
	return &matchHandler{cfg: cfg, locator: locator, clock: time.Now}
}

// NewMatch is the factory function registered with Nakama.
func NewMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
	return newMatchHandler(nil, nil), nil
}

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	logger.Debug("MatchInit: Initializing race match.")

	tickRate := mh.cfg.TickRate
	if tickRate <= 0 {
		tickRate = 1
	}
	state := &MatchState{
		Host:       app.NewHost(mh.cfg, mh.locator, logger),
		Publisher:  replication.NewPublisher(),
		Presences:  make(map[string]runtime.Presence),
		Capacity:   mh.cfg.MaxTeams * mh.cfg.PlayersPerTeam,
		TickRate:   tickRate,
		Epoch:      mh.clock(),
		FreeForAll: mh.cfg.FreeForAll,
	}

	label, err := encodeLabel(domain.ComputeLabel(state.Host.State(), 0, state.Capacity))
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}
	state.label = label
	return state, tickRate, label
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}
	if _, rejoin := matchState.Presences[presence.GetUserId()]; rejoin {
		return state, true, ""
	}
	if matchState.Capacity > 0 && len(matchState.Presences) >= matchState.Capacity {
		return state, false, "Match full"
	}
	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		matchState.Presences[p.GetUserId()] = p
		mh.dispatchEvents(ctx, matchState, dispatcher, logger, matchState.Host.Join(p.GetUserId()))
	}
	matchState.electOwner()
	logger.Debug("MatchJoin: %d present, owner %s.", len(matchState.Presences), matchState.Owner)

	// Late joiners need every key, not just the next delta.
	mh.sendSnapshot(matchState, dispatcher, logger, presences)

	mh.updateLabel(matchState, dispatcher, logger)
	mh.publish(matchState, dispatcher, logger)
	return matchState
}

// MatchLeave is called when one or more players leave the match.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	matchState.Tick = tick
	now := matchState.Now()
	for _, p := range presences {
		delete(matchState.Presences, p.GetUserId())
		logger.Debug("MatchLeave: User %s left.", p.GetUserId())
		mh.dispatchEvents(ctx, matchState, dispatcher, logger, matchState.Host.Leave(p.GetUserId(), now))
	}

	if len(matchState.Presences) == 0 {
		logger.Info("MatchLeave: Terminating match with no players.")
		return nil
	}
	matchState.electOwner()

	mh.updateLabel(matchState, dispatcher, logger)
	mh.publish(matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	matchState.Tick = tick
	now := matchState.Now()

	// Messages are consumed in arrival order; this loop is the only writer.
	for _, msg := range messages {
		switch msg.GetOpCode() {
		case OpStartMatch:
			mh.handleStartMatch(ctx, matchState, dispatcher, logger, msg)
		case OpArrival:
			mh.handleArrival(ctx, matchState, dispatcher, logger, msg, now)
		case OpAssignTeam:
			mh.handleAssignTeam(ctx, matchState, dispatcher, logger, msg)
		case OpBalanceTeam:
			mh.handleBalanceTeams(ctx, matchState, dispatcher, logger, msg)
		case OpEndMatch:
			mh.handleEndMatch(ctx, matchState, dispatcher, logger, msg)
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		}
	}

	mh.dispatchEvents(ctx, matchState, dispatcher, logger, matchState.Host.Tick(ctx, now))

	mh.updateLabel(matchState, dispatcher, logger)
	mh.publish(matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) handleStartMatch(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	if !state.isOwner(senderID) {
		logger.Warn("StartMatch: User %s tried to start the match but is not owner (owner=%s)", senderID, state.Owner)
		mh.sendError(state, dispatcher, logger, senderID, errCodeNotOwner, app.ErrNotOwner.Error())
		return
	}

	events, err := state.Host.StartMatch()
	if err != nil {
		logger.Warn("StartMatch: Failed to start match: %v", err)
		mh.sendError(state, dispatcher, logger, senderID, errCodeRejected, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
	logger.Info("StartMatch: Match started with %d players.", len(state.Host.Players()))
}

func (mh *matchHandler) handleArrival(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData, now time.Time) {
	senderID := msg.GetUserId()
	arrival, err := wire.DecodeArrival(msg.GetData())
	if err != nil {
		logger.Warn("handleArrival: Invalid arrival from %s: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, errCodeBadPayload, err.Error())
		return
	}

	if arrival.PlayerID != senderID && !state.isOwner(senderID) {
		// only the owner may report on behalf of other players
		ack := wire.Ack{MessageID: arrival.MessageID, Outcome: domain.OutcomeRejected, Error: app.ErrNotOwner.Error()}
		mh.sendTo(state, dispatcher, logger, senderID, OpArrivalAck, wire.EncodeAck(ack))
		return
	}

	ack, events := state.Host.AcceptArrival(arrival, now)
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
	mh.sendTo(state, dispatcher, logger, senderID, OpArrivalAck, wire.EncodeAck(ack))
}

func (mh *matchHandler) handleAssignTeam(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	if !state.isOwner(senderID) {
		mh.sendError(state, dispatcher, logger, senderID, errCodeNotOwner, app.ErrNotOwner.Error())
		return
	}
	assignment, err := wire.DecodeAssignment(msg.GetData())
	if err != nil {
		logger.Warn("handleAssignTeam: Invalid assignment from %s: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, errCodeBadPayload, err.Error())
		return
	}
	events, err := state.Host.AssignPlayer(assignment.PlayerID, assignment.TeamID)
	if err != nil {
		logger.Warn("handleAssignTeam: Cannot assign %s to team %d: %v", assignment.PlayerID, assignment.TeamID, err)
		mh.sendError(state, dispatcher, logger, senderID, errCodeRejected, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) handleBalanceTeams(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	if !state.isOwner(senderID) {
		mh.sendError(state, dispatcher, logger, senderID, errCodeNotOwner, app.ErrNotOwner.Error())
		return
	}
	events, err := state.Host.BalanceTeams()
	if err != nil {
		logger.Warn("handleBalanceTeams: %v", err)
		mh.sendError(state, dispatcher, logger, senderID, errCodeRejected, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) handleEndMatch(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	if !state.isOwner(senderID) {
		mh.sendError(state, dispatcher, logger, senderID, errCodeNotOwner, app.ErrNotOwner.Error())
		return
	}
	events, err := state.Host.EndMatch()
	if err != nil {
		logger.Warn("handleEndMatch: %v", err)
		mh.sendError(state, dispatcher, logger, senderID, errCodeRejected, err.Error())
		return
	}
	mh.dispatchEvents(ctx, state, dispatcher, logger, events)
}

// dispatchEvents turns transition events into broadcast commands. Every other event is already
// reflected by the next property batch and is only logged.
func (mh *matchHandler) dispatchEvents(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, events []app.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case app.EventEliminateAll:
			p := ev.Payload.(app.EliminateAllPayload)
			cmd := wire.Command{Kind: wire.CommandEliminateAll, Match: p.Match, Round: p.Round}
			mh.broadcast(dispatcher, logger, OpEliminateAll, wire.EncodeCommand(cmd))
		case app.EventRepositionAll:
			p := ev.Payload.(app.RepositionAllPayload)
			cmd := wire.Command{
				Kind:           wire.CommandRepositionAll,
				Match:          p.Match,
				Round:          p.Round,
				Location:       p.Location,
				ArrivedPlayers: p.ArrivedPlayers,
			}
			mh.broadcast(dispatcher, logger, OpRepositionAll, wire.EncodeCommand(cmd))
		case app.EventTeamFinished:
			p := ev.Payload.(app.TeamFinishedPayload)
			logger.Info("Event: %s finished #%d (+%d bonus) %s", p.Name, p.FinishPlacement, p.Bonus, p.Breakdown)
		case app.EventRoundEnded:
			p := ev.Payload.(app.RoundEndedPayload)
			logger.Info("Event: round %d on %s ended (%s)", p.Round, p.MapID, p.Reason)
		case app.EventMatchEnded:
			p := ev.Payload.(app.MatchEndedPayload)
			if p.WinningTeam != nil {
				logger.Info("Event: match ended, winner team %d", *p.WinningTeam)
			} else {
				logger.Info("Event: match ended without a single winner")
			}
		default:
			logger.Debug("Event: %s %+v", ev.Kind, ev.Payload)
		}
	}
}

// publish broadcasts the keys that changed since the previous batch.
func (mh *matchHandler) publish(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	props := state.Publisher.Publish(state.Host.State(), state.Host.TimerState(state.Now()))
	if len(props) == 0 {
		return
	}
	mh.broadcast(dispatcher, logger, OpPropertyBatch, wire.EncodeProperties(props))
}

func (mh *matchHandler) sendSnapshot(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, presences []runtime.Presence) {
	if len(presences) == 0 {
		return
	}
	props := replication.Snapshot(state.Host.State(), state.Host.TimerState(state.Now()))
	if err := dispatcher.BroadcastMessage(OpPropertyBatch, wire.EncodeProperties(props), presences, nil, true); err != nil {
		logger.Error("sendSnapshot: Failed to send snapshot: %v", err)
	}
}

func (mh *matchHandler) broadcast(dispatcher runtime.MatchDispatcher, logger runtime.Logger, opCode int64, data []byte) {
	if err := dispatcher.BroadcastMessage(opCode, data, nil, nil, true); err != nil {
		logger.Error("Failed to broadcast opcode %d: %v", opCode, err)
	}
}

func (mh *matchHandler) sendTo(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, opCode int64, data []byte) {
	presence, ok := state.Presences[userID]
	if !ok {
		logger.Warn("Cannot send opcode %d to %s: Presence not found", opCode, userID)
		return
	}
	if err := dispatcher.BroadcastMessage(opCode, data, []runtime.Presence{presence}, nil, true); err != nil {
		logger.Error("Failed to send opcode %d to %s: %v", opCode, userID, err)
	}
}

// sendError sends an error message to a specific user.
func (mh *matchHandler) sendError(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID, code, message string) {
	mh.sendTo(state, dispatcher, logger, userID, OpError, wire.EncodeError(wire.ErrorMessage{Code: code, Message: message}))
}

// encodeLabel renders the label as JSON so Nakama can index it for match listing queries.
func encodeLabel(l domain.LabelPayload) (string, error) {
	st, err := structpb.NewStruct(map[string]interface{}{
		"open":    l.Open,
		"game":    l.Game,
		"phase":   l.Phase,
		"round":   l.Round,
		"map_id":  l.MapID,
		"teams":   l.Teams,
		"players": l.Players,
	})
	if err != nil {
		return "", err
	}
	b, err := protojson.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	label, err := encodeLabel(domain.ComputeLabel(state.Host.State(), len(state.Host.Players()), state.Capacity))
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if label == state.label {
		return
	}
	if err := dispatcher.MatchLabelUpdate(label); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
		return
	}
	state.label = label
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: Match terminated with %d grace seconds", graceSeconds)
	return state
}

// teamOfReply is the MatchSignal answer to "team_of:<user>".
type teamOfReply struct {
	TeamID     int  `json:"team_id"`
	HasTeam    bool `json:"has_team"`
	FreeForAll bool `json:"free_for_all"`
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, ""
	}
	userID, found := strings.CutPrefix(data, signalTeamOf)
	if !found {
		logger.Warn("MatchSignal: Unknown signal %q", data)
		return state, ""
	}
	teamID, hasTeam := matchState.Host.TeamOf(userID)
	b, err := json.Marshal(teamOfReply{TeamID: teamID, HasTeam: hasTeam, FreeForAll: matchState.FreeForAll})
	if err != nil {
		logger.Error("MatchSignal: Failed to marshal reply: %v", err)
		return state, ""
	}
	return state, string(b)
}
