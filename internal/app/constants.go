package app

// MinPlayersToStartMatch is the fallback when the race config leaves min_players_to_start unset.
const MinPlayersToStartMatch = 1

// MatchChannelSuffix names the voice channel shared by the whole match.
const MatchChannelSuffix = "all"
