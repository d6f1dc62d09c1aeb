// Package vrage is a client for the Space Engineers dedicated server
// remote API. Every request is individually signed with an HMAC over the
// resource path, a fresh nonce and the current timestamp; the server
// rejects stale or replayed signatures.
package vrage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	basePath       = "/vrageremote/v1"
	defaultTimeout = 10 * time.Second
)

// APIError is a non-2xx response from the remote API. The sync loops treat
// it as transient: log, skip the server for this cycle, try again next
// cycle. It never carries the request's signed headers or the secret.
type APIError struct {
	Status int
	Path   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote call failed: %s returned status %d", e.Path, e.Status)
}

// Client issues signed requests against one dedicated server.
type Client struct {
	baseURL string
	signer  *Signer
	httpc   *http.Client
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 10s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the server at baseURL, authenticating with the
// base64-encoded shared secret. Malformed secrets and base URLs fail here
// with ErrConfig rather than at request time.
func New(baseURL, sharedSecret string, opts ...Option) (*Client, error) {
	signer, err := NewSigner(sharedSecret)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid base URL %q", ErrConfig, baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		httpc:   &http.Client{Timeout: defaultTimeout},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do sends one signed request. The signature covers resource exactly as
// sent (path plus query string); the server validates against the path, so
// the same string must be used for both the URL and the signature.
func (c *Client) do(ctx context.Context, method, resource string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+resource, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	date, auth, err := c.signer.Sign(resource)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Date", date)
	req.Header.Set("Authorization", auth)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &APIError{Status: resp.StatusCode, Path: resource}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", resource, err)
	}

	env := &envelope{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, env); err != nil {
			return nil, fmt.Errorf("failed to decode response from %s: %w", resource, err)
		}
	}
	return env, nil
}

// Players returns the currently connected player roster.
func (c *Client) Players(ctx context.Context) ([]Player, error) {
	resource := basePath + "/session/players"
	env, err := c.do(ctx, http.MethodGet, resource, nil)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Players json.RawMessage `json:"Players"`
	}
	if err := json.Unmarshal(env.Data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", resource, err)
	}

	var players []Player
	if err := decodeCheckedList(c.log, resource, wrapper.Players, &players); err != nil {
		return nil, err
	}
	return players, nil
}

// Chat returns up to count chat messages. A negative since fetches with no
// lower bound; otherwise the server is asked for messages at or after the
// since watermark. The watermark is the server's opaque message counter,
// not wall-clock time, and some server versions return slightly more than
// requested, so callers re-filter against their own watermark.
func (c *Client) Chat(ctx context.Context, count int, since int64) ([]ChatMessage, error) {
	resource := fmt.Sprintf("%s/session/chat?MessageCount=%d", basePath, count)
	if since >= 0 {
		resource += fmt.Sprintf("&Date=%d", since)
	}

	env, err := c.do(ctx, http.MethodGet, resource, nil)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Messages json.RawMessage `json:"Messages"`
	}
	if err := json.Unmarshal(env.Data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", resource, err)
	}

	var messages []ChatMessage
	if err := decodeCheckedList(c.log, resource, wrapper.Messages, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

type sendChatRequest struct {
	Message     string `json:"Message"`
	DisplayName string `json:"DisplayName"`
}

// SendChat posts a message into the in-game chat under the given sender
// name. Relay senders carry a recognizable prefix so the chat poller can
// filter its own messages back out.
func (c *Client) SendChat(ctx context.Context, sender, message string) error {
	_, err := c.do(ctx, http.MethodPost, basePath+"/session/chat", sendChatRequest{
		Message:     message,
		DisplayName: sender,
	})
	return err
}

// ServerInfo returns the server's self-reported state. QueryTimeMS is
// filled from the response metadata.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	resource := basePath + "/server"
	env, err := c.do(ctx, http.MethodGet, resource, nil)
	if err != nil {
		return nil, err
	}

	info := &ServerInfo{}
	if err := decodeChecked(c.log, resource, env.Data, info); err != nil {
		return nil, err
	}
	info.QueryTimeMS = env.Meta.QueryTime
	return info, nil
}

// Asteroids returns all asteroid entities in the world.
func (c *Client) Asteroids(ctx context.Context) ([]Asteroid, error) {
	return listResource[Asteroid](ctx, c, basePath+"/session/asteroids", "Asteroids")
}

// Planets returns all planet entities in the world.
func (c *Client) Planets(ctx context.Context) ([]Planet, error) {
	return listResource[Planet](ctx, c, basePath+"/session/planets", "Planets")
}

// Grids returns all ships and stations in the world.
func (c *Client) Grids(ctx context.Context) ([]Grid, error) {
	return listResource[Grid](ctx, c, basePath+"/session/grids", "Grids")
}

// FloatingObjects returns loose debris and dropped items.
func (c *Client) FloatingObjects(ctx context.Context) ([]FloatingObject, error) {
	return listResource[FloatingObject](ctx, c, basePath+"/session/floatingObjects", "FloatingObjects")
}

// listResource fetches a wrapped entity list.
func listResource[T any](ctx context.Context, c *Client, resource, key string) ([]T, error) {
	env, err := c.do(ctx, http.MethodGet, resource, nil)
	if err != nil {
		return nil, err
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", resource, err)
	}

	var items []T
	if err := decodeCheckedList(c.log, resource, wrapper[key], &items); err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteFloatingObject removes a floating object from the world by entity id.
func (c *Client) DeleteFloatingObject(ctx context.Context, entityID int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/session/floatingObjects/%d", basePath, entityID), nil)
	return err
}

// KickPlayer kicks a player from the server by steam id.
func (c *Client) KickPlayer(ctx context.Context, steamID uint64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/admin/kickedPlayers/%d", basePath, steamID), nil)
	return err
}

// BanPlayer bans a player by steam id.
func (c *Client) BanPlayer(ctx context.Context, steamID uint64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/admin/bannedPlayers/%d", basePath, steamID), nil)
	return err
}

// PromotePlayer raises a player's promote level by steam id.
func (c *Client) PromotePlayer(ctx context.Context, steamID uint64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/admin/promotedPlayers/%d", basePath, steamID), nil)
	return err
}

// SaveWorld asks the server to save the session.
func (c *Client) SaveWorld(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPatch, basePath+"/session", nil)
	return err
}

// StopServer shuts the dedicated server down.
func (c *Client) StopServer(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, basePath+"/server", nil)
	return err
}
