package notify

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Discord sends through a discordgo session.
type Discord struct {
	session *discordgo.Session
}

// NewDiscord wraps a connected session.
func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

// Send delivers content to a channel, paginated at line boundaries.
func (d *Discord) Send(channelID, content string) error {
	for _, page := range Paginate(content, MaxMessageLen) {
		if _, err := d.session.ChannelMessageSend(channelID, page); err != nil {
			return fmt.Errorf("failed to send to channel %s: %w", channelID, err)
		}
	}
	return nil
}

// Upsert edits the message in place when possible, otherwise sends a new
// one. The returned id is whichever message is now live, so the caller
// keeps at most one message regardless of how many cycles run.
func (d *Discord) Upsert(channelID, messageID, content string) (string, error) {
	pages := Paginate(content, MaxMessageLen)
	if len(pages) == 0 {
		return messageID, nil
	}
	// The upserted message stays a single message; anything beyond the
	// ceiling cannot be edited in.
	content = pages[0]

	if messageID != "" {
		msg, err := d.session.ChannelMessageEdit(channelID, messageID, content)
		if err == nil {
			return msg.ID, nil
		}
		slog.Debug("status message no longer editable, sending a new one",
			"channel", channelID, "message", messageID, "error", err)
	}

	msg, err := d.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", fmt.Errorf("failed to send to channel %s: %w", channelID, err)
	}
	return msg.ID, nil
}
