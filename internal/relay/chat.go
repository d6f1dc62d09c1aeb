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
)

const chatFetchCount = 50

// RelaySenderPrefix marks chat messages the bridge itself injected into the
// game. The poller drops them on the way back out so a bidirectionally
// bridged channel does not echo.
const RelaySenderPrefix = "[Discord]"

// The Space Engineers client emits private-use-area glyphs for a couple of
// chat icons; substitute printable equivalents before relaying.
var iconReplacer = strings.NewReplacer("", "♪", "", "☠")

// chatState is the per-server watermark state machine. A server starts
// unprimed; its first successful poll stores a watermark without relaying
// anything, so a freshly added server does not flood the channel with
// message history. Only primed servers relay.
type chatState struct {
	primed    bool
	watermark int64
}

// ChatRelay polls each configured server for new chat messages and
// forwards them to the server's chat channel.
type ChatRelay struct {
	source  Source
	clients ClientFactory
	notify  notify.Notifier
	log     *slog.Logger

	mu     sync.Mutex
	states map[Key]*chatState
}

// NewChatRelay creates the chat polling loop.
func NewChatRelay(source Source, clients ClientFactory, notifier notify.Notifier, log *slog.Logger) *ChatRelay {
	return &ChatRelay{
		source:  source,
		clients: clients,
		notify:  notifier,
		log:     log,
		states:  make(map[Key]*chatState),
	}
}

// RunCycle polls every server with a chat channel configured, fanning out
// per server so one unreachable server does not delay the others.
func (r *ChatRelay) RunCycle(ctx context.Context) {
	servers, err := r.source.Servers()
	if err != nil {
		r.log.Error("chat relay failed to load servers", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, server := range servers {
		if server.ChatChannelID == "" {
			continue
		}
		wg.Add(1)
		go func(server *storage.Server) {
			defer wg.Done()
			r.pollServer(ctx, server)
		}(server)
	}
	wg.Wait()
}

func (r *ChatRelay) pollServer(ctx context.Context, server *storage.Server) {
	client, err := r.clients(server)
	if err != nil {
		// Bad secret or URL: fatal for this server until an admin fixes it.
		r.log.Error("chat relay skipping misconfigured server", "server", server.Name, "error", err)
		return
	}

	key := keyFor(server)
	state := r.state(key)

	if !state.primed {
		r.prime(ctx, client, server, key)
		return
	}

	messages, err := client.Chat(ctx, chatFetchCount, state.watermark)
	if err != nil {
		// Transient: watermark stays put, retried next cycle.
		r.log.Warn("chat poll failed", "server", server.Name, "error", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	// Advance the watermark past everything in the batch before filtering;
	// it never regresses even when the server returns out-of-order rows.
	oldWatermark := state.watermark
	newWatermark := oldWatermark
	for _, m := range messages {
		if m.Timestamp+1 > newWatermark {
			newWatermark = m.Timestamp + 1
		}
	}
	r.setState(key, chatState{primed: true, watermark: newWatermark})

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})

	seen := make(map[string]struct{}, len(messages))
	var lines []string
	for _, m := range messages {
		// Some server versions return slightly more than requested.
		if m.Timestamp < oldWatermark {
			continue
		}
		if strings.HasPrefix(m.DisplayName, RelaySenderPrefix) {
			continue
		}
		// The server has been observed to duplicate rows within a batch.
		dedupe := m.DisplayName + "\x00" + m.Content
		if _, dup := seen[dedupe]; dup {
			continue
		}
		seen[dedupe] = struct{}{}

		lines = append(lines, iconReplacer.Replace(fmt.Sprintf("%s: %s", m.DisplayName, m.Content)))
	}
	if len(lines) == 0 {
		return
	}

	if err := r.notify.Send(server.ChatChannelID, strings.Join(lines, "\n")); err != nil {
		r.log.Error("failed to relay chat", "server", server.Name, "error", err)
	}
}

// prime performs the first poll for a server: record a watermark past the
// existing history, relay nothing.
func (r *ChatRelay) prime(ctx context.Context, client API, server *storage.Server, key Key) {
	messages, err := client.Chat(ctx, chatFetchCount, -1)
	if err != nil {
		r.log.Warn("chat priming poll failed", "server", server.Name, "error", err)
		return
	}

	var watermark int64
	for _, m := range messages {
		if m.Timestamp+1 > watermark {
			watermark = m.Timestamp + 1
		}
	}
	r.setState(key, chatState{primed: true, watermark: watermark})
	r.log.Info("chat watermark primed", "server", server.Name, "watermark", watermark)
}

func (r *ChatRelay) state(key Key) chatState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[key]; ok {
		return *s
	}
	return chatState{}
}

func (r *ChatRelay) setState(key Key, state chatState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[key] = &state
}
