package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"sebridge/internal/notify"
	"sebridge/internal/storage"
	"sebridge/internal/vrage"
)

// StatusAggregator renders a live world-status summary per guild and keeps
// exactly one status message alive in the guild's status channel, editing
// it in place every cycle.
type StatusAggregator struct {
	source  Source
	clients ClientFactory
	notify  notify.Notifier
	log     *slog.Logger
}

// NewStatusAggregator creates the status polling loop.
func NewStatusAggregator(source Source, clients ClientFactory, notifier notify.Notifier, log *slog.Logger) *StatusAggregator {
	return &StatusAggregator{
		source:  source,
		clients: clients,
		notify:  notifier,
		log:     log,
	}
}

// RunCycle renders status for every guild with a status channel configured.
func (a *StatusAggregator) RunCycle(ctx context.Context) {
	tenants, err := a.source.Tenants()
	if err != nil {
		a.log.Error("status aggregator failed to load tenants", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, tenant := range tenants {
		if tenant.StatusChannelID == "" {
			continue
		}
		wg.Add(1)
		go func(tenant *storage.Tenant) {
			defer wg.Done()
			a.renderTenant(ctx, tenant)
		}(tenant)
	}
	wg.Wait()
}

// serverStatus is one server's rendered state for a cycle.
type serverStatus struct {
	name    string
	online  bool
	info    *vrage.ServerInfo
	roids   int
	objects int
	grids   int
	planets int
}

func (a *StatusAggregator) renderTenant(ctx context.Context, tenant *storage.Tenant) {
	servers, err := a.source.ServersForGuild(tenant.GuildID)
	if err != nil {
		a.log.Error("status aggregator failed to load servers", "guild", tenant.GuildID, "error", err)
		return
	}
	if len(servers) == 0 {
		return
	}

	statuses := make([]serverStatus, len(servers))
	var wg sync.WaitGroup
	for i, server := range servers {
		wg.Add(1)
		go func(i int, server *storage.Server) {
			defer wg.Done()
			statuses[i] = a.fetchServer(ctx, server)
		}(i, server)
	}
	wg.Wait()

	allUp := true
	for _, st := range statuses {
		if !st.online {
			allUp = false
		}
	}

	var b strings.Builder
	if allUp {
		b.WriteString("🟢 **Space Engineers Status**\n\n")
	} else {
		b.WriteString("🔴 **Space Engineers Status**\n\n")
	}
	for _, st := range statuses {
		writeServerBlock(&b, st)
	}

	messageID, err := a.notify.Upsert(tenant.StatusChannelID, tenant.StatusMessageID, b.String())
	if err != nil {
		a.log.Error("failed to upsert status message", "guild", tenant.GuildID, "error", err)
		return
	}
	if messageID != tenant.StatusMessageID {
		if err := a.source.SetStatusMessageID(tenant.GuildID, messageID); err != nil {
			a.log.Error("failed to persist status message id", "guild", tenant.GuildID, "error", err)
		}
	}
}

// fetchServer collects one server's info and world counts. The five calls
// go out concurrently; any failure marks the whole server offline for this
// cycle without touching other servers.
func (a *StatusAggregator) fetchServer(ctx context.Context, server *storage.Server) serverStatus {
	client, err := a.clients(server)
	if err != nil {
		a.log.Error("status aggregator skipping misconfigured server", "server", server.Name, "error", err)
		return serverStatus{name: server.Name}
	}

	st := serverStatus{name: server.Name}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	wg.Add(5)
	go func() {
		defer wg.Done()
		info, err := client.ServerInfo(ctx)
		if err != nil {
			fail(err)
			return
		}
		st.info = info
	}()
	go func() {
		defer wg.Done()
		roids, err := client.Asteroids(ctx)
		if err != nil {
			fail(err)
			return
		}
		st.roids = len(roids)
	}()
	go func() {
		defer wg.Done()
		objects, err := client.FloatingObjects(ctx)
		if err != nil {
			fail(err)
			return
		}
		st.objects = len(objects)
	}()
	go func() {
		defer wg.Done()
		grids, err := client.Grids(ctx)
		if err != nil {
			fail(err)
			return
		}
		st.grids = len(grids)
	}()
	go func() {
		defer wg.Done()
		planets, err := client.Planets(ctx)
		if err != nil {
			fail(err)
			return
		}
		st.planets = len(planets)
	}()
	wg.Wait()

	if firstErr != nil {
		a.log.Warn("status fetch failed", "server", server.Name, "error", firstErr)
		return serverStatus{name: server.Name}
	}

	st.online = true
	return st
}

func writeServerBlock(b *strings.Builder, st serverStatus) {
	if !st.online {
		fmt.Fprintf(b, "**%s** — offline\n\n", st.name)
		return
	}
	fmt.Fprintf(b, "**%s** — %s\n", st.name, st.info.WorldName)
	fmt.Fprintf(b, "Players: %d | Sim speed: %.2f | CPU load: %.1f%% | Query: %.1fms | Version: %s\n",
		st.info.Players, st.info.SimSpeed, st.info.SimulationCpuLoad, st.info.QueryTimeMS, st.info.Version)
	fmt.Fprintf(b, "PCU: %d | Asteroids: %d | Grids: %d | Planets: %d | Floating objects: %d\n\n",
		st.info.UsedPCU, st.roids, st.grids, st.planets, st.objects)
}
