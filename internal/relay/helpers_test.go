package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"sebridge/internal/storage"
	"sebridge/internal/vrage"
)

var errDown = errors.New("connection refused")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServer(guildID, name, chatChannel, joinChannel string) *storage.Server {
	return &storage.Server{
		ID:               uuid.New(),
		GuildID:          guildID,
		Name:             name,
		BaseURL:          "http://example",
		SharedSecret:     "c2VjcmV0",
		ChatChannelID:    chatChannel,
		JoinLogChannelID: joinChannel,
	}
}

// fakeSource serves configuration from memory.
type fakeSource struct {
	mu      sync.Mutex
	servers []*storage.Server
	tenants []*storage.Tenant
}

func (f *fakeSource) Servers() ([]*storage.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*storage.Server(nil), f.servers...), nil
}

func (f *fakeSource) ServersForGuild(guildID string) ([]*storage.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*storage.Server
	for _, s := range f.servers {
		if s.GuildID == guildID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) Tenants() ([]*storage.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*storage.Tenant(nil), f.tenants...), nil
}

func (f *fakeSource) SetStatusMessageID(guildID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t.GuildID == guildID {
			t.StatusMessageID = messageID
		}
	}
	return nil
}

// fakeAPI is a scripted remote API for one server.
type fakeAPI struct {
	mu sync.Mutex

	chatBatches [][]vrage.ChatMessage // consumed one per Chat call
	chatSince   []int64               // records the since bound of each call
	chatErr     error

	players    []vrage.Player
	playersErr error

	info      *vrage.ServerInfo
	infoErr   error
	countsErr error
	roids     []vrage.Asteroid
	objects   []vrage.FloatingObject
	grids     []vrage.Grid
	planets   []vrage.Planet
}

func (f *fakeAPI) Chat(ctx context.Context, count int, since int64) ([]vrage.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	f.chatSince = append(f.chatSince, since)
	if len(f.chatBatches) == 0 {
		return nil, nil
	}
	batch := f.chatBatches[0]
	f.chatBatches = f.chatBatches[1:]
	return batch, nil
}

func (f *fakeAPI) Players(ctx context.Context) ([]vrage.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playersErr != nil {
		return nil, f.playersErr
	}
	return append([]vrage.Player(nil), f.players...), nil
}

func (f *fakeAPI) setPlayers(players []vrage.Player, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.players = players
	f.playersErr = err
}

func (f *fakeAPI) sinceBounds() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.chatSince...)
}

func (f *fakeAPI) ServerInfo(ctx context.Context) (*vrage.ServerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info, nil
}

func (f *fakeAPI) Asteroids(ctx context.Context) ([]vrage.Asteroid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roids, f.countsErr
}

func (f *fakeAPI) FloatingObjects(ctx context.Context) ([]vrage.FloatingObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects, f.countsErr
}

func (f *fakeAPI) Grids(ctx context.Context) ([]vrage.Grid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grids, f.countsErr
}

func (f *fakeAPI) Planets(ctx context.Context) ([]vrage.Planet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.planets, f.countsErr
}

// factoryFor routes each server to its scripted API.
func factoryFor(apis map[uuid.UUID]*fakeAPI) ClientFactory {
	return func(server *storage.Server) (API, error) {
		api, ok := apis[server.ID]
		if !ok {
			return nil, fmt.Errorf("no fake API for server %s", server.Name)
		}
		return api, nil
	}
}

type sentMessage struct {
	channelID string
	content   string
}

// fakeNotifier records deliveries. Upsert behaves like the Discord
// implementation: a non-empty incoming id is an edit, an empty one is a
// fresh send with a new id.
type fakeNotifier struct {
	mu       sync.Mutex
	sends    []sentMessage
	upserts  []sentMessage
	newSends int
	nextID   int
}

func (f *fakeNotifier) Send(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMessage{channelID: channelID, content: content})
	return nil
}

func (f *fakeNotifier) Upsert(channelID, messageID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, sentMessage{channelID: channelID, content: content})
	if messageID != "" {
		return messageID, nil
	}
	f.newSends++
	f.nextID++
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *fakeNotifier) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sends...)
}

func (f *fakeNotifier) upserted() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.upserts...)
}

func msg(sender, content string, ts int64) vrage.ChatMessage {
	return vrage.ChatMessage{SteamID: 1, DisplayName: sender, Content: content, Timestamp: ts}
}
