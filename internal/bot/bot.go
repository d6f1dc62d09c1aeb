package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"sebridge/internal/config"
	"sebridge/internal/notify"
	"sebridge/internal/registry"
	"sebridge/internal/relay"
	"sebridge/internal/storage"
	"sebridge/internal/vrage"
)

// Bot represents the Discord bot instance
type Bot struct {
	config    *config.Config
	session   *discordgo.Session
	repo      *storage.Repository
	registry  *registry.Registry
	scheduler *relay.Scheduler
	commands  []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents; message content is needed for the discord-to-game bridge
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	b := &Bot{
		config:   cfg,
		session:  session,
		repo:     repo,
		registry: registry.New(repo),
	}

	// Register event handlers
	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts the sync loops
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Start the sync loops
	notifier := notify.NewDiscord(b.session)
	log := slog.Default()
	b.scheduler = relay.NewScheduler(
		relay.NewChatRelay(b.registry, relay.NewClient, notifier, log),
		relay.NewPresenceDiff(b.registry, relay.NewClient, notifier, log),
		relay.NewStatusAggregator(b.registry, relay.NewClient, notifier, log),
		b.config.ChatInterval, b.config.PresenceInterval, b.config.StatusInterval,
		log,
	)
	b.scheduler.Start(ctx)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop the sync loops
	if b.scheduler != nil {
		b.scheduler.Stop()
	}

	// Close storage
	if b.repo != nil {
		b.repo.Close()
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(b.handleMessage)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction processes slash command interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case "addserver":
		b.handleAddServer(s, i)
	case "removeserver":
		b.handleRemoveServer(s, i)
	case "servers":
		b.handleServers(s, i)
	case "chatchannel":
		b.handleChatChannel(s, i)
	case "joinlog":
		b.handleJoinLog(s, i)
	case "statuschannel":
		b.handleStatusChannel(s, i)
	case "players":
		b.handlePlayers(s, i)
	case "say":
		b.handleSay(s, i)
	case "kick":
		b.handleModeration(s, i, "kick")
	case "ban":
		b.handleModeration(s, i, "ban")
	case "promote":
		b.handleModeration(s, i, "promote")
	case "saveworld":
		b.handleSaveWorld(s, i)
	case "stopserver":
		b.handleStopServer(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}

// handleMessage bridges messages typed in a configured chat channel into the
// game. The in-game sender carries the relay prefix, which the chat poller
// recognizes and drops, so bridged messages do not echo back to Discord.
func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" || m.Content == "" {
		return
	}

	servers, err := b.registry.ServersForGuild(m.GuildID)
	if err != nil {
		slog.Error("Failed to load servers for bridge", "guild", m.GuildID, "error", err)
		return
	}

	for _, server := range servers {
		if server.ChatChannelID != m.ChannelID {
			continue
		}
		client, err := clientFor(server)
		if err != nil {
			slog.Error("Bridge skipping misconfigured server", "server", server.Name, "error", err)
			continue
		}
		sender := relay.RelaySenderPrefix + " " + m.Author.Username
		if err := client.SendChat(context.Background(), sender, m.Content); err != nil {
			slog.Warn("Failed to bridge message into game", "server", server.Name, "error", err)
		}
	}
}

// clientFor builds a signed client for a configured server.
func clientFor(server *storage.Server) (*vrage.Client, error) {
	return vrage.New(server.BaseURL, server.SharedSecret)
}

// truncate shortens s for inline display in replies.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "…"
}
