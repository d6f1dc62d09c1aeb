package vrage

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// verifySignature recomputes the HMAC the way the dedicated server does and
// fails the test if the Authorization header does not match.
func verifySignature(t *testing.T, r *http.Request) {
	t.Helper()

	auth := r.Header.Get("Authorization")
	date := r.Header.Get("Date")
	require.NotEmpty(t, auth, "request is missing Authorization header")
	require.NotEmpty(t, date, "request is missing Date header")

	nonce, sig, found := strings.Cut(auth, ":")
	require.True(t, found, "Authorization header is not nonce:hmac")

	key, err := base64.StdEncoding.DecodeString(testSecret)
	require.NoError(t, err)

	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(r.URL.RequestURI() + "\r\n" + nonce + "\r\n" + date + "\r\n"))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, expected, sig, "signature does not cover the request path")
}

func TestPlayersSignsAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vrageremote/v1/session/players", r.URL.Path)
		verifySignature(t, r)
		w.Write([]byte(`{
			"data": {"Players": [
				{"SteamID": 76561198000000001, "DisplayName": "Kara", "FactionName": "Red Fleet", "FactionTag": "RED", "PromoteLevel": 0, "Ping": 41},
				{"SteamID": 76561198000000002, "DisplayName": "Oz", "FactionName": "", "FactionTag": "", "PromoteLevel": 2, "Ping": 9}
			]},
			"meta": {"apiVersion": "1.0", "queryTime": 3.2}
		}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL, testSecret)
	require.NoError(t, err)

	players, err := client.Players(context.Background())
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, uint64(76561198000000001), players[0].SteamID)
	assert.Equal(t, "Kara", players[0].DisplayName)
	assert.Equal(t, "RED", players[0].FactionTag)
}

func TestChatQueryCarriesWatermark(t *testing.T) {
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		verifySignature(t, r)
		w.Write([]byte(`{"data": {"Messages": []}, "meta": {"apiVersion": "1.0", "queryTime": 1.1}}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL, testSecret)
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), 50, 1200)
	require.NoError(t, err)
	assert.Equal(t, "/vrageremote/v1/session/chat?MessageCount=50&Date=1200", gotURI)

	_, err = client.Chat(context.Background(), 50, -1)
	require.NoError(t, err)
	assert.Equal(t, "/vrageremote/v1/session/chat?MessageCount=50", gotURI, "priming fetch must omit the Date bound")
}

func TestNon2xxReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := New(srv.URL, testSecret)
	require.NoError(t, err)

	_, err = client.ServerInfo(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "/vrageremote/v1/server", apiErr.Path)
	assert.NotContains(t, err.Error(), testSecret)
}

// recordingHandler captures warn-level log records.
type recordingHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(name string) slog.Handler { return h }

func TestUnknownFieldWarnsButDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": {"Players": [
				{"SteamID": 1, "DisplayName": "Kara", "FactionName": "", "FactionTag": "", "PromoteLevel": 0, "Ping": 0, "NewShinyField": true}
			]},
			"meta": {"apiVersion": "1.0", "queryTime": 1.0}
		}`))
	}))
	defer srv.Close()

	rec := &recordingHandler{}
	client, err := New(srv.URL, testSecret, WithLogger(slog.New(rec)))
	require.NoError(t, err)

	players, err := client.Players(context.Background())
	require.NoError(t, err, "schema drift must not fail the call")
	require.Len(t, players, 1)
	assert.Equal(t, "Kara", players[0].DisplayName)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.messages, 1)
	assert.Contains(t, rec.messages[0], "unrecognized field")
}

func TestServerInfoCarriesQueryTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": {"ServerName": "Hydra", "WorldName": "Alien Planet", "Players": 4, "SimSpeed": 0.98,
				"SimulationCpuLoad": 22.5, "TotalTime": 86400, "UsedPCU": 120443, "Version": "1.204.15",
				"Game": "Space Engineers", "IsReady": true},
			"meta": {"apiVersion": "1.0", "queryTime": 12.7}
		}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL, testSecret)
	require.NoError(t, err)

	info, err := client.ServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hydra", info.ServerName)
	assert.Equal(t, 0.98, info.SimSpeed)
	assert.Equal(t, 12.7, info.QueryTimeMS)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New("not a url", testSecret)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}
