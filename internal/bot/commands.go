package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"sebridge/internal/relay"
	"sebridge/internal/storage"
	"sebridge/internal/vrage"
)

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	serverOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "server",
		Description: "Configured server name (partial names match when unambiguous)",
		Required:    true,
	}
	steamIDOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "steam_id",
		Description: "The player's Steam ID",
		Required:    true,
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "addserver",
			Description: "Add a Space Engineers dedicated server to this guild",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "A name for the server (used in other commands)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "url",
					Description: "Remote API base URL (e.g. http://host:8080)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "secret",
					Description: "The remote API security key (base64)",
					Required:    true,
				},
			},
		},
		{
			Name:        "removeserver",
			Description: "Remove a configured server from this guild",
			Options:     []*discordgo.ApplicationCommandOption{serverOption},
		},
		{
			Name:        "servers",
			Description: "List the servers configured in this guild",
		},
		{
			Name:        "chatchannel",
			Description: "Bridge a server's in-game chat with a channel",
			Options: []*discordgo.ApplicationCommandOption{
				serverOption,
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "The channel to relay chat to (and from)",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:        "joinlog",
			Description: "Set the channel for a server's join/leave events",
			Options: []*discordgo.ApplicationCommandOption{
				serverOption,
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "The channel to post join/leave events to",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:        "statuschannel",
			Description: "Set the channel for the live server status message",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "The channel to keep the status message in",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:        "players",
			Description: "Show who is online on a server",
			Options:     []*discordgo.ApplicationCommandOption{serverOption},
		},
		{
			Name:        "say",
			Description: "Send a message into a server's in-game chat",
			Options: []*discordgo.ApplicationCommandOption{
				serverOption,
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "The message to send",
					Required:    true,
				},
			},
		},
		{
			Name:        "kick",
			Description: "Kick a player from a server",
			Options:     []*discordgo.ApplicationCommandOption{serverOption, steamIDOption},
		},
		{
			Name:        "ban",
			Description: "Ban a player from a server",
			Options:     []*discordgo.ApplicationCommandOption{serverOption, steamIDOption},
		},
		{
			Name:        "promote",
			Description: "Raise a player's promote level on a server",
			Options:     []*discordgo.ApplicationCommandOption{serverOption, steamIDOption},
		},
		{
			Name:        "saveworld",
			Description: "Save a server's world",
			Options:     []*discordgo.ApplicationCommandOption{serverOption},
		},
		{
			Name:        "stopserver",
			Description: "Stop a dedicated server",
			Options:     []*discordgo.ApplicationCommandOption{serverOption},
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// handleAddServer handles the /addserver command
func (b *Bot) handleAddServer(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := optionMap(i)
	name := strings.TrimSpace(options["name"].StringValue())
	baseURL := strings.TrimSpace(options["url"].StringValue())
	secret := strings.TrimSpace(options["secret"].StringValue())

	// Respond immediately to avoid timeout; the reachability probe can take
	// up to the full request timeout.
	deferResponse(s, i)

	// A bad secret or URL fails here, before anything is stored.
	client, err := vrage.New(baseURL, secret)
	if err != nil {
		b.editResponse(s, i, fmt.Sprintf("Invalid server configuration: %s", configErrorText(err)))
		return
	}

	// Probe the server so obvious typos surface now. An unreachable server
	// is still stored; it will show as offline until it comes up.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reachable := true
	if _, err := client.ServerInfo(ctx); err != nil {
		slog.Warn("New server is not reachable", "name", name, "error", err)
		reachable = false
	}

	server := &storage.Server{
		ID:           uuid.New(),
		GuildID:      i.GuildID,
		Name:         name,
		BaseURL:      baseURL,
		SharedSecret: secret,
	}
	if err := b.repo.CreateServer(server); err != nil {
		slog.Error("Failed to save server", "error", err)
		b.editResponse(s, i, "Failed to save the server. Please try again.")
		return
	}

	reply := fmt.Sprintf("Added server `%s`. Use `/chatchannel`, `/joinlog` and `/statuschannel` to set up relaying.", name)
	if !reachable {
		reply += "\nThe server did not respond to a test request; it will show as offline until it does."
	}
	b.editResponse(s, i, reply)
}

// handleRemoveServer handles the /removeserver command
func (b *Bot) handleRemoveServer(s *discordgo.Session, i *discordgo.InteractionCreate) {
	server, ok := b.resolveServer(s, i)
	if !ok {
		return
	}

	if err := b.repo.DeleteServer(i.GuildID, server.ID); err != nil {
		slog.Error("Failed to delete server", "error", err)
		respondWithMessage(s, i, "Failed to remove the server. Please try again.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("Removed server `%s`.", server.Name))
}

// handleServers handles the /servers command
func (b *Bot) handleServers(s *discordgo.Session, i *discordgo.InteractionCreate) {
	servers, err := b.registry.ServersForGuild(i.GuildID)
	if err != nil {
		slog.Error("Failed to get servers", "error", err)
		respondWithMessage(s, i, "Failed to retrieve the server list.")
		return
	}

	if len(servers) == 0 {
		respondWithMessage(s, i, "No servers are configured in this guild.\nUse `/addserver` to add one!")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Configured Servers:**\n\n")
	for idx, server := range servers {
		sb.WriteString(fmt.Sprintf("%d. **%s** — `%s`\n", idx+1, server.Name, truncate(server.BaseURL, 60)))
		sb.WriteString(fmt.Sprintf("   Chat: %s | Join log: %s\n", channelRef(server.ChatChannelID), channelRef(server.JoinLogChannelID)))
	}

	respondWithMessage(s, i, sb.String())
}

// handleChatChannel handles the /chatchannel command
func (b *Bot) handleChatChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	server, ok := b.resolveServer(s, i)
	if !ok {
		return
	}
	channel := optionMap(i)["channel"].ChannelValue(s)

	if err := b.repo.SetChatChannel(server.ID, channel.ID); err != nil {
		slog.Error("Failed to set chat channel", "error", err)
		respondWithMessage(s, i, "Failed to set the chat channel. Please try again.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("In-game chat for `%s` is now bridged with <#%s>.", server.Name, channel.ID))
}

// handleJoinLog handles the /joinlog command
func (b *Bot) handleJoinLog(s *discordgo.Session, i *discordgo.InteractionCreate) {
	server, ok := b.resolveServer(s, i)
	if !ok {
		return
	}
	channel := optionMap(i)["channel"].ChannelValue(s)

	if err := b.repo.SetJoinLogChannel(server.ID, channel.ID); err != nil {
		slog.Error("Failed to set join log channel", "error", err)
		respondWithMessage(s, i, "Failed to set the join log channel. Please try again.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("Join/leave events for `%s` will be posted to <#%s>.", server.Name, channel.ID))
}

// handleStatusChannel handles the /statuschannel command
func (b *Bot) handleStatusChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channel := optionMap(i)["channel"].ChannelValue(s)

	if err := b.repo.UpsertStatusChannel(i.GuildID, channel.ID); err != nil {
		slog.Error("Failed to set status channel", "error", err)
		respondWithMessage(s, i, "Failed to set the status channel. Please try again.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("The live status message will be kept in <#%s>.", channel.ID))
}

// handlePlayers handles the /players command
func (b *Bot) handlePlayers(s *discordgo.Session, i *discordgo.InteractionCreate) {
	server, ok := b.resolveServer(s, i)
	if !ok {
		return
	}

	deferResponse(s, i)

	client, err := clientFor(server)
	if err != nil {
		b.editResponse(s, i, fmt.Sprintf("Server `%s` is misconfigured: %s", server.Name, configErrorText(err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	players, err := client.Players(ctx)
	if err != nil {
		slog.Warn("Failed to fetch players", "server", server.Name, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Could not reach `%s`.", server.Name))
		return
	}

	if len(players) == 0 {
		b.editResponse(s, i, fmt.Sprintf("Nobody is online on `%s`.", server.Name))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Online on %s (%d):**\n", server.Name, len(players)))
	for _, p := range players {
		if p.FactionTag != "" {
			sb.WriteString(fmt.Sprintf("- %s [%s] (%d)\n", p.DisplayName, p.FactionTag, p.SteamID))
		} else {
			sb.WriteString(fmt.Sprintf("- %s (%d)\n", p.DisplayName, p.SteamID))
		}
	}
	b.editResponse(s, i, sb.String())
}

// handleSay handles the /say command
func (b *Bot) handleSay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	server, ok := b.resolveServer(s, i)
	if !ok {
		return
	}
	message := optionMap(i)["message"].StringValue()

	deferResponse(s, i)

	client, err := clientFor(server)
	if err != nil {
		b.editResponse(s, i, fmt.Sprintf("Server `%s` is misconfigured: %s", server.Name, configErrorText(err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sender := relay.RelaySenderPrefix + " " + i.Member.User.Username
	if err := client.SendChat(ctx, sender, message); err != nil {
		slog.Warn("Failed to send chat", "server", server.Name, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Could not send the message to `%s`.", server.Name))
		return
	}

	b.editResponse(s, i, fmt.Sprintf("Sent to `%s`: %s", server.Name, truncate(message, 200)))
}

// handleModeration handles /kick, /ban and /promote
func (b *Bot) handleModeration(s *discordgo.Session, i *discordgo.InteractionCreate, verb string) {
	server, ok := b.resolveServer(s, i)
	if !ok {
		return
	}

	rawID := optionMap(i)["steam_id"].StringValue()
	steamID, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		respondWithMessage(s, i, fmt.Sprintf("`%s` is not a valid Steam ID.", rawID))
		return
	}

	deferResponse(s, i)

	client, err := clientFor(server)
	if err != nil {
		b.editResponse(s, i, fmt.Sprintf("Server `%s` is misconfigured: %s", server.Name, configErrorText(err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch verb {
	case "kick":
		err = client.KickPlayer(ctx, steamID)
	case "ban":
		err = client.BanPlayer(ctx, steamID)
	case "promote":
		err = client.PromotePlayer(ctx, steamID)
	}
	if err != nil {
		slog.Warn("Moderation call failed", "action", verb, "server", server.Name, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Failed to %s `%d` on `%s`.", verb, steamID, server.Name))
		return
	}

	b.editResponse(s, i, fmt.Sprintf("Done: %s `%d` on `%s`.", verb, steamID, server.Name))
}

// handleSaveWorld handles the /saveworld command
func (b *Bot) handleSaveWorld(s *discordgo.Session, i *discordgo.InteractionCreate) {
	server, ok := b.resolveServer(s, i)
	if !ok {
		return
	}

	deferResponse(s, i)

	client, err := clientFor(server)
	if err != nil {
		b.editResponse(s, i, fmt.Sprintf("Server `%s` is misconfigured: %s", server.Name, configErrorText(err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.SaveWorld(ctx); err != nil {
		slog.Warn("Save world failed", "server", server.Name, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Could not save the world on `%s`.", server.Name))
		return
	}

	b.editResponse(s, i, fmt.Sprintf("World save requested on `%s`.", server.Name))
}

// handleStopServer handles the /stopserver command
func (b *Bot) handleStopServer(s *discordgo.Session, i *discordgo.InteractionCreate) {
	server, ok := b.resolveServer(s, i)
	if !ok {
		return
	}

	deferResponse(s, i)

	client, err := clientFor(server)
	if err != nil {
		b.editResponse(s, i, fmt.Sprintf("Server `%s` is misconfigured: %s", server.Name, configErrorText(err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.StopServer(ctx); err != nil {
		slog.Warn("Stop server failed", "server", server.Name, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Could not stop `%s`.", server.Name))
		return
	}

	b.editResponse(s, i, fmt.Sprintf("Stop requested on `%s`.", server.Name))
}

// Helper functions

// resolveServer looks up the command's "server" option in this guild,
// replying with the lookup error (unknown name, ambiguous match) itself.
func (b *Bot) resolveServer(s *discordgo.Session, i *discordgo.InteractionCreate) (*storage.Server, bool) {
	name := optionMap(i)["server"].StringValue()
	server, err := b.registry.Lookup(i.GuildID, name)
	if err != nil {
		respondWithMessage(s, i, err.Error())
		return nil, false
	}
	return server, true
}

// optionMap indexes a command's options by name.
func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

// configErrorText renders a configuration error without ever echoing the
// shared secret back into the channel.
func configErrorText(err error) string {
	if errors.Is(err, vrage.ErrConfig) {
		return strings.TrimPrefix(err.Error(), "configuration error: ")
	}
	return "invalid configuration"
}

func channelRef(channelID string) string {
	if channelID == "" {
		return "not set"
	}
	return fmt.Sprintf("<#%s>", channelID)
}

func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
}
