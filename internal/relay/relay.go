// Package relay contains the background synchronization engine: three
// polling loops that reconcile dedicated-server state (chat, presence,
// world status) into Discord channels, and the scheduler that runs them.
//
// Every per-server unit of work is its own failure domain: a transport or
// decode error for one server skips that server for the current cycle and
// never aborts the cycle for other servers.
package relay

import (
	"context"

	"github.com/google/uuid"

	"sebridge/internal/storage"
	"sebridge/internal/vrage"
)

// API is the slice of the remote API the sync loops consume.
type API interface {
	Players(ctx context.Context) ([]vrage.Player, error)
	Chat(ctx context.Context, count int, since int64) ([]vrage.ChatMessage, error)
	ServerInfo(ctx context.Context) (*vrage.ServerInfo, error)
	Asteroids(ctx context.Context) ([]vrage.Asteroid, error)
	FloatingObjects(ctx context.Context) ([]vrage.FloatingObject, error)
	Grids(ctx context.Context) ([]vrage.Grid, error)
	Planets(ctx context.Context) ([]vrage.Planet, error)
}

// ClientFactory builds a signed client for a configured server.
type ClientFactory func(server *storage.Server) (API, error)

// NewClient is the production factory.
func NewClient(server *storage.Server) (API, error) {
	return vrage.New(server.BaseURL, server.SharedSecret)
}

// Source supplies the loops their configuration each cycle. Backed by the
// server registry in production; loops never cache configuration, so
// servers added or removed between cycles take effect immediately.
type Source interface {
	Servers() ([]*storage.Server, error)
	ServersForGuild(guildID string) ([]*storage.Server, error)
	Tenants() ([]*storage.Tenant, error)
	SetStatusMessageID(guildID, messageID string) error
}

// Key identifies a server's cache entries across cycles. It is a stable
// composite of tenant and server identity, never a position in the
// configured server list, which is mutable between cycles.
type Key struct {
	GuildID  string
	ServerID uuid.UUID
}

func keyFor(server *storage.Server) Key {
	return Key{GuildID: server.GuildID, ServerID: server.ID}
}
