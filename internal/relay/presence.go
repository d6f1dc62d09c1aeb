package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"sebridge/internal/notify"
	"sebridge/internal/storage"
	"sebridge/internal/vrage"
)

// rosterState is the per-server presence state machine. Like the chat
// watermark it starts unprimed: the first successful roster fetch is stored
// without emitting events, so a bot restart does not announce that everyone
// currently online "just joined".
type rosterState struct {
	primed bool
	roster map[uint64]vrage.Player
}

// PresenceDiff polls each server's player roster and posts join/leave
// events to the server's join-log channel. Players are identified by steam
// id only: a rename is not a leave+join, and a reconnect is not a
// duplicate.
type PresenceDiff struct {
	source  Source
	clients ClientFactory
	notify  notify.Notifier
	log     *slog.Logger

	mu     sync.Mutex
	states map[Key]*rosterState
}

// NewPresenceDiff creates the presence polling loop.
func NewPresenceDiff(source Source, clients ClientFactory, notifier notify.Notifier, log *slog.Logger) *PresenceDiff {
	return &PresenceDiff{
		source:  source,
		clients: clients,
		notify:  notifier,
		log:     log,
		states:  make(map[Key]*rosterState),
	}
}

// RunCycle polls every server with a join-log channel configured.
func (p *PresenceDiff) RunCycle(ctx context.Context) {
	servers, err := p.source.Servers()
	if err != nil {
		p.log.Error("presence diff failed to load servers", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, server := range servers {
		if server.JoinLogChannelID == "" {
			continue
		}
		wg.Add(1)
		go func(server *storage.Server) {
			defer wg.Done()
			p.pollServer(ctx, server)
		}(server)
	}
	wg.Wait()
}

func (p *PresenceDiff) pollServer(ctx context.Context, server *storage.Server) {
	client, err := p.clients(server)
	if err != nil {
		p.log.Error("presence diff skipping misconfigured server", "server", server.Name, "error", err)
		return
	}

	players, err := client.Players(ctx)
	if err != nil {
		// Snapshot untouched; compared against next cycle.
		p.log.Warn("roster poll failed", "server", server.Name, "error", err)
		return
	}

	current := make(map[uint64]vrage.Player, len(players))
	for _, pl := range players {
		current[pl.SteamID] = pl
	}

	key := keyFor(server)
	previous, primed := p.swap(key, current)
	if !primed {
		p.log.Info("roster snapshot primed", "server", server.Name, "players", len(current))
		return
	}

	var joined, left []vrage.Player
	for id, pl := range current {
		if _, ok := previous[id]; !ok {
			joined = append(joined, pl)
		}
	}
	for id, pl := range previous {
		if _, ok := current[id]; !ok {
			left = append(left, pl)
		}
	}

	lines := make([]string, 0, len(joined)+len(left))
	lines = append(lines, presenceLines(joined, "joined", server.Name)...)
	lines = append(lines, presenceLines(left, "left", server.Name)...)
	if len(lines) == 0 {
		return
	}

	if err := p.notify.Send(server.JoinLogChannelID, strings.Join(lines, "\n")); err != nil {
		p.log.Error("failed to post join log", "server", server.Name, "error", err)
	}
}

// presenceLines formats one event line per player, skipping records with an
// empty display name: incomplete roster entries from the remote server must
// not produce spurious events (they still live in the snapshot for future
// diffing).
func presenceLines(players []vrage.Player, verb, serverName string) []string {
	sort.Slice(players, func(i, j int) bool { return players[i].SteamID < players[j].SteamID })

	var lines []string
	for _, pl := range players {
		if pl.DisplayName == "" {
			continue
		}
		if pl.FactionTag != "" {
			lines = append(lines, fmt.Sprintf("%s [%s] (%d) has %s %s", pl.DisplayName, pl.FactionTag, pl.SteamID, verb, serverName))
		} else {
			lines = append(lines, fmt.Sprintf("%s (%d) has %s %s", pl.DisplayName, pl.SteamID, verb, serverName))
		}
	}
	return lines
}

// swap stores the new snapshot unconditionally and returns the previous one,
// so future cycles always compare against the freshest known state.
func (p *PresenceDiff) swap(key Key, current map[uint64]vrage.Player) (previous map[uint64]vrage.Player, primed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, ok := p.states[key]
	p.states[key] = &rosterState{primed: true, roster: current}
	if !ok {
		return nil, false
	}
	return old.roster, old.primed
}
