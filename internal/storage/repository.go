package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			guild_id VARCHAR(20) PRIMARY KEY,
			status_channel_id VARCHAR(20) NOT NULL DEFAULT '',
			status_message_id VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS servers (
			id VARCHAR(36) PRIMARY KEY,
			guild_id VARCHAR(20) NOT NULL,
			name VARCHAR(100) NOT NULL,
			base_url TEXT NOT NULL,
			shared_secret TEXT NOT NULL,
			chat_channel_id VARCHAR(20) NOT NULL DEFAULT '',
			join_log_channel_id VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_servers_guild ON servers(guild_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Server operations

// CreateServer inserts a new server configuration. The caller assigns the
// UUID so it can be reported back to the admin immediately.
func (r *Repository) CreateServer(s *Server) error {
	_, err := r.db.Exec(
		`INSERT INTO servers (id, guild_id, name, base_url, shared_secret, chat_channel_id, join_log_channel_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.GuildID, s.Name, s.BaseURL, s.SharedSecret, s.ChatChannelID, s.JoinLogChannelID,
	)
	return err
}

// DeleteServer removes a server configuration from a guild.
func (r *Repository) DeleteServer(guildID string, id uuid.UUID) error {
	_, err := r.db.Exec(
		`DELETE FROM servers WHERE guild_id = ? AND id = ?`,
		guildID, id.String(),
	)
	return err
}

// GetServersByGuild returns all servers configured for a guild.
func (r *Repository) GetServersByGuild(guildID string) ([]*Server, error) {
	rows, err := r.db.Query(
		`SELECT id, guild_id, name, base_url, shared_secret, chat_channel_id, join_log_channel_id, created_at
		 FROM servers WHERE guild_id = ? ORDER BY created_at`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanServers(rows)
}

// GetAllServers returns every configured server across all guilds.
func (r *Repository) GetAllServers() ([]*Server, error) {
	rows, err := r.db.Query(
		`SELECT id, guild_id, name, base_url, shared_secret, chat_channel_id, join_log_channel_id, created_at
		 FROM servers ORDER BY guild_id, created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanServers(rows)
}

func scanServers(rows *sql.Rows) ([]*Server, error) {
	var servers []*Server
	for rows.Next() {
		s := &Server{}
		var id string
		if err := rows.Scan(&id, &s.GuildID, &s.Name, &s.BaseURL, &s.SharedSecret, &s.ChatChannelID, &s.JoinLogChannelID, &s.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("corrupt server id %q: %w", id, err)
		}
		s.ID = parsed
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// SetChatChannel updates a server's chat relay channel.
func (r *Repository) SetChatChannel(id uuid.UUID, channelID string) error {
	_, err := r.db.Exec(
		`UPDATE servers SET chat_channel_id = ? WHERE id = ?`,
		channelID, id.String(),
	)
	return err
}

// SetJoinLogChannel updates a server's join/leave log channel.
func (r *Repository) SetJoinLogChannel(id uuid.UUID, channelID string) error {
	_, err := r.db.Exec(
		`UPDATE servers SET join_log_channel_id = ? WHERE id = ?`,
		channelID, id.String(),
	)
	return err
}

// Tenant operations

// UpsertStatusChannel creates or updates a guild's status channel. Changing
// the channel resets the stored message id so the aggregator sends a fresh
// message into the new channel.
func (r *Repository) UpsertStatusChannel(guildID, channelID string) error {
	_, err := r.db.Exec(
		`INSERT INTO tenants (guild_id, status_channel_id, status_message_id) VALUES (?, ?, '')
		 ON CONFLICT(guild_id) DO UPDATE SET status_channel_id = excluded.status_channel_id, status_message_id = ''`,
		guildID, channelID,
	)
	return err
}

// SetStatusMessageID persists the id of the live status message for a guild.
func (r *Repository) SetStatusMessageID(guildID, messageID string) error {
	_, err := r.db.Exec(
		`UPDATE tenants SET status_message_id = ? WHERE guild_id = ?`,
		messageID, guildID,
	)
	return err
}

// GetTenant retrieves a guild's configuration.
func (r *Repository) GetTenant(guildID string) (*Tenant, error) {
	t := &Tenant{}
	err := r.db.QueryRow(
		`SELECT guild_id, status_channel_id, status_message_id, created_at FROM tenants WHERE guild_id = ?`,
		guildID,
	).Scan(&t.GuildID, &t.StatusChannelID, &t.StatusMessageID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetAllTenants returns every guild with tenant configuration.
func (r *Repository) GetAllTenants() ([]*Tenant, error) {
	rows, err := r.db.Query(
		`SELECT guild_id, status_channel_id, status_message_id, created_at FROM tenants`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t := &Tenant{}
		if err := rows.Scan(&t.GuildID, &t.StatusChannelID, &t.StatusMessageID, &t.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
