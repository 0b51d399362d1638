package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Sender is the subset of *discordgo.Session used to post messages.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var (
	_ Notifier = (*Discord)(nil)
	_ Sender   = (*discordgo.Session)(nil)
)

// Discord posts alerts to a Discord channel.
type Discord struct {
	sender    Sender
	channelID string
}

// DiscordParams configures a Discord notifier. Sender defaults to a bot
// session created from Config.Token.
type DiscordParams struct {
	Config DiscordConfig
	Sender Sender
}

func NewDiscord(p DiscordParams) (*Discord, error) {
	if p.Config.ChannelID == "" {
		return nil, errors.New("discord channel id is required")
	}
	sender := p.Sender
	if sender == nil {
		session, err := discordgo.New("Bot " + p.Config.Token)
		if err != nil {
			return nil, fmt.Errorf("create discord session: %w", err)
		}
		sender = session
	}
	return &Discord{sender: sender, channelID: p.Config.ChannelID}, nil
}

func (d *Discord) Notify(ctx context.Context, msg string) error {
	_, err := d.sender.ChannelMessageSend(d.channelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("post to discord channel %s: %w", d.channelID, err)
	}
	return nil
}
