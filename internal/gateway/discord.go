package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const discordMaxMessage = 2000

// channelSender is the part of *discordgo.Session used to post messages.
type channelSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts notifications to a single channel over the REST API.
// It never opens a gateway websocket.
type DiscordNotifier struct {
	Session   channelSender
	ChannelID string
}

func NewDiscordNotifier(token, channelID string) (*DiscordNotifier, error) {
	if channelID == "" {
		return nil, fmt.Errorf("discord channel ID is not configured")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &DiscordNotifier{Session: session, ChannelID: channelID}, nil
}

func (d *DiscordNotifier) Notify(ctx context.Context, text string) error {
	for _, part := range chunk(text, discordMaxMessage) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := d.Session.ChannelMessageSend(d.ChannelID, part, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to post to discord channel %s: %w", d.ChannelID, err)
		}
	}
	return nil
}
