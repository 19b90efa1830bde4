// Package natsbus carries race replication over NATS: a JetStream key/value bucket for properties,
// a subject for transition commands and request/reply for arrivals.
package natsbus

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultURL is used when no NATS url is configured.
const DefaultURL = "nats://localhost:4222"

// Connect dials NATS with reconnects. An empty name gets a random peer name.
func Connect(url, name string) (*nats.Conn, error) {
	if url == "" {
		url = DefaultURL
	}
	if name == "" {
		name = "peakrace-peer-" + uuid.NewString()
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
	}
	return nats.Connect(url, opts...)
}

// BucketName is the key/value bucket holding one match's properties.
func BucketName(matchID string) string {
	return "peakrace_" + safeToken(matchID)
}

// CommandSubject carries host transition commands for a match.
func CommandSubject(matchID string) string {
	return "peakrace." + safeToken(matchID) + ".commands"
}

// ArrivalSubject carries client arrivals to the host of a match.
func ArrivalSubject(matchID string) string {
	return "peakrace." + safeToken(matchID) + ".arrivals"
}

// PresenceSubject carries join and leave announcements for a match.
func PresenceSubject(matchID string) string {
	return "peakrace." + safeToken(matchID) + ".presence"
}

// safeToken keeps characters valid in both bucket names and subject tokens.
func safeToken(id string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
	if token == "" {
		return "default"
	}
	return token
}
