package relay

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sebridge/internal/storage"
	"sebridge/internal/vrage"
)

func onlineAPI(world string, players int) *fakeAPI {
	return &fakeAPI{
		info: &vrage.ServerInfo{
			ServerName: "srv", WorldName: world, Players: players,
			SimSpeed: 1.0, SimulationCpuLoad: 15.0, Version: "1.204.15", UsedPCU: 5000,
		},
		roids:   make([]vrage.Asteroid, 3),
		objects: make([]vrage.FloatingObject, 2),
		grids:   make([]vrage.Grid, 7),
		planets: make([]vrage.Planet, 1),
	}
}

func TestStatusPartialFailureRendersBoth(t *testing.T) {
	alpha := testServer("guild-1", "Alpha", "", "")
	beta := testServer("guild-1", "Beta", "", "")
	source := &fakeSource{
		servers: []*storage.Server{alpha, beta},
		tenants: []*storage.Tenant{{GuildID: "guild-1", StatusChannelID: "chan-status"}},
	}
	notifier := &fakeNotifier{}
	agg := NewStatusAggregator(
		source,
		factoryFor(map[uuid.UUID]*fakeAPI{
			alpha.ID: {infoErr: errDown, countsErr: errDown},
			beta.ID:  onlineAPI("Alien Planet", 4),
		}),
		notifier,
		testLogger(),
	)

	agg.RunCycle(context.Background())

	upserts := notifier.upserted()
	require.Len(t, upserts, 1)
	content := upserts[0].content
	assert.Equal(t, "chan-status", upserts[0].channelID)
	assert.True(t, strings.HasPrefix(content, "🔴"), "one unreachable server turns the indicator red")
	assert.Contains(t, content, "**Alpha** — offline")
	assert.Contains(t, content, "**Beta** — Alien Planet")
	assert.Contains(t, content, "Players: 4")
	assert.Contains(t, content, "Asteroids: 3")
	assert.Contains(t, content, "Grids: 7")
}

func TestStatusAllHealthyIsGreen(t *testing.T) {
	server := testServer("guild-1", "Alpha", "", "")
	source := &fakeSource{
		servers: []*storage.Server{server},
		tenants: []*storage.Tenant{{GuildID: "guild-1", StatusChannelID: "chan-status"}},
	}
	notifier := &fakeNotifier{}
	agg := NewStatusAggregator(source,
		factoryFor(map[uuid.UUID]*fakeAPI{server.ID: onlineAPI("Earthlike", 2)}),
		notifier, testLogger())

	agg.RunCycle(context.Background())

	upserts := notifier.upserted()
	require.Len(t, upserts, 1)
	assert.True(t, strings.HasPrefix(upserts[0].content, "🟢"))
}

func TestStatusUpsertsSingleMessageAcrossCycles(t *testing.T) {
	server := testServer("guild-1", "Alpha", "", "")
	tenant := &storage.Tenant{GuildID: "guild-1", StatusChannelID: "chan-status"}
	source := &fakeSource{
		servers: []*storage.Server{server},
		tenants: []*storage.Tenant{tenant},
	}
	notifier := &fakeNotifier{}
	agg := NewStatusAggregator(source,
		factoryFor(map[uuid.UUID]*fakeAPI{server.ID: onlineAPI("Earthlike", 2)}),
		notifier, testLogger())
	ctx := context.Background()

	agg.RunCycle(ctx)
	agg.RunCycle(ctx)
	agg.RunCycle(ctx)

	notifier.mu.Lock()
	newSends := notifier.newSends
	notifier.mu.Unlock()
	assert.Equal(t, 1, newSends, "later cycles must edit, not resend")
	assert.Equal(t, "msg-1", tenant.StatusMessageID, "message id persisted for restarts")
	assert.Len(t, notifier.upserted(), 3)
}

func TestStatusSkipsTenantsWithoutChannel(t *testing.T) {
	server := testServer("guild-1", "Alpha", "", "")
	source := &fakeSource{
		servers: []*storage.Server{server},
		tenants: []*storage.Tenant{{GuildID: "guild-1"}},
	}
	notifier := &fakeNotifier{}
	agg := NewStatusAggregator(source,
		factoryFor(map[uuid.UUID]*fakeAPI{server.ID: onlineAPI("Earthlike", 2)}),
		notifier, testLogger())

	agg.RunCycle(context.Background())
	assert.Empty(t, notifier.upserted())
}

func TestStatusTenantWithoutServersSendsNothing(t *testing.T) {
	source := &fakeSource{
		tenants: []*storage.Tenant{{GuildID: "guild-1", StatusChannelID: "chan-status"}},
	}
	notifier := &fakeNotifier{}
	agg := NewStatusAggregator(source, factoryFor(nil), notifier, testLogger())

	agg.RunCycle(context.Background())
	assert.Empty(t, notifier.upserted())
}
