package storage

import (
	"time"

	"github.com/google/uuid"
)

// Server is one configured dedicated server, owned by a guild. The sync
// engine reads it; only administrative commands mutate it. The UUID is
// assigned when the server is added and never changes, so per-server caches
// stay keyed correctly even when the secret or URL is edited.
type Server struct {
	ID               uuid.UUID
	GuildID          string
	Name             string
	BaseURL          string
	SharedSecret     string
	ChatChannelID    string
	JoinLogChannelID string
	CreatedAt        time.Time
}

// Tenant stores per-guild configuration: the optional status channel and
// the id of the live status message the aggregator edits in place.
type Tenant struct {
	GuildID         string
	StatusChannelID string
	StatusMessageID string
	CreatedAt       time.Time
}
