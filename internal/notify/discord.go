package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordNotifier posts lifecycle events to a Discord channel via a bot
// session opened once at construction and reused across calls.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordNotifier opens a Discord bot session authenticated with token
// and bound to channelID.
func NewDiscordNotifier(token, channelID string) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordNotifier{session: session, channelID: channelID}, nil
}

func (d *DiscordNotifier) Notify(_ context.Context, ev Event) error {
	text := fmt.Sprintf("[%s] %s %s: %s", ev.Name, ev.TaskID, ev.RunID, ev.Message)
	_, err := d.session.ChannelMessageSend(d.channelID, text)
	return err
}

// Close releases the underlying Discord session.
func (d *DiscordNotifier) Close() error { return d.session.Close() }
