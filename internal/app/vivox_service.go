package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"
)

var (
	ErrVoiceDisabled       = errors.New("vivox config is incomplete")
	ErrVoiceChannelMissing = errors.New("channel name is required for join tokens")
	ErrVoiceAction         = errors.New("unsupported vivox action")
)

const (
	VivoxTokenActionLogin = "login"
	VivoxTokenActionJoin  = "join"
)

// VoiceTokenTTL bounds how long a signed voice token is accepted.
const VoiceTokenTTL = time.Hour

// VivoxService signs Vivox access tokens for race voice channels.
type VivoxService struct {
	secret string
	issuer string
	domain string
	now    func() time.Time
}

// NewVivoxService builds a token issuer; an empty secret, issuer or domain disables token generation.
func NewVivoxService(secret, issuer, domain string) *VivoxService {
	return &VivoxService{secret: secret, issuer: issuer, domain: domain, now: time.Now}
}

// VoiceSeat is where a player sits in a match for voice purposes.
type VoiceSeat struct {
	MatchID    string
	TeamID     int
	HasTeam    bool
	FreeForAll bool
}

// Channel is the voice channel the seat joins.
func (v VoiceSeat) Channel() string {
	return VoiceChannelFor(v.MatchID, v.TeamID, v.HasTeam, v.FreeForAll)
}

// SeatJoinToken signs a join token for the seat's channel and returns it with the channel name.
func (s *VivoxService) SeatJoinToken(user string, seat VoiceSeat) (token, channel string, err error) {
	if seat.MatchID == "" {
		return "", "", ErrVoiceChannelMissing
	}
	channel = seat.Channel()
	token, err = s.GenerateToken(user, VivoxTokenActionJoin, channel)
	return token, channel, err
}

// GenerateToken signs a Vivox access token for user. Join tokens need a channel name.
func (s *VivoxService) GenerateToken(user, action, channelName string) (string, error) {
	if s == nil || s.secret == "" || s.issuer == "" || s.domain == "" {
		return "", ErrVoiceDisabled
	}
	if user == "" {
		return "", errors.New("user is required")
	}

	from := s.sipUser(user)
	var to string
	switch action {
	case VivoxTokenActionLogin:
		to = from
	case VivoxTokenActionJoin:
		if channelName == "" {
			return "", ErrVoiceChannelMissing
		}
		to = s.sipChannel(channelName)
	default:
		return "", fmt.Errorf("%w: %q", ErrVoiceAction, action)
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": user,
		"exp": now.Add(VoiceTokenTTL).Unix(),
		"vxa": action,
		"vxi": uuid.NewString(),
		"f":   from,
		"t":   to,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
}

func (s *VivoxService) sipUser(user string) string {
	return fmt.Sprintf("sip:.%s.%s.@%s", s.issuer, user, s.domain)
}

func (s *VivoxService) sipChannel(channel string) string {
	return fmt.Sprintf("sip:confctl-g-%s@%s", channel, s.domain)
}

// TeamChannel names the voice channel of one team in a match. Ghosts only hear their own team.
func TeamChannel(matchID string, teamID int) string {
	return fmt.Sprintf("race-%s-team-%d", channelSafe(matchID), teamID)
}

// MatchChannel names the voice channel shared by every player of a match.
func MatchChannel(matchID string) string {
	return fmt.Sprintf("race-%s-%s", channelSafe(matchID), MatchChannelSuffix)
}

// VoiceChannelFor picks the channel a player joins: the match channel in free-for-all or when the
// player has no team, their team channel otherwise.
func VoiceChannelFor(matchID string, teamID int, hasTeam, freeForAll bool) string {
	if freeForAll || !hasTeam {
		return MatchChannel(matchID)
	}
	return TeamChannel(matchID, teamID)
}

// channelSafe keeps the characters Vivox accepts in channel names.
func channelSafe(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, id)
}
