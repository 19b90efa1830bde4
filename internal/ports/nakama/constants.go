package nakama

const (
	// RpcQuickMatch is the Nakama RPC id clients call to find or create a lobby-capable match.
	RpcQuickMatch = "quick_match"
	// RpcFindMatch returns any match with room left, creating one when none exists.
	RpcFindMatch = "find_match"
	// RpcVivoxToken issues a Vivox login or join token for the caller.
	RpcVivoxToken = "vivox_token"
	// RpcTeamVoiceToken issues a Vivox join token for the caller's team channel.
	RpcTeamVoiceToken = "team_voice_token"

	// MatchNameRace is the authoritative match handler name registered with Nakama.
	MatchNameRace = "peakrace_match"
)

// Op codes for client messages and host broadcasts.
const (
	// Client -> Host
	OpStartMatch  int64 = 1
	OpArrival     int64 = 2
	OpAssignTeam  int64 = 3
	OpBalanceTeam int64 = 4
	OpEndMatch    int64 = 5

	// Host -> Client
	OpPropertyBatch int64 = 101
	OpEliminateAll  int64 = 102
	OpRepositionAll int64 = 103
	OpArrivalAck    int64 = 104 // sent privately
	OpError         int64 = 105 // sent privately
)

// Match signal prefixes handled by MatchSignal.
const (
	signalTeamOf = "team_of:"
)

// Error codes carried by OpError.
const (
	errCodeBadPayload = "bad_payload"
	errCodeNotOwner   = "not_owner"
	errCodeRejected   = "rejected"
)
