package discord

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/sweetginger/Nyogi/internal/discord"
)

// Discord rejects message content longer than this.
const maxMessageContentRunes = 2000

// Client sends messages over the Discord REST API only; no gateway
// connection is opened.
type Client struct {
	session *discordgo.Session
}

func NewClient(token string) (discordpkg.Client, error) {
	if token == "" {
		return noopClient{}, nil
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Client{session: s}, nil
}

func (c *Client) SendChannelMessageWithFile(msg discordpkg.FileMessage) error {
	if msg.ChannelID == "" {
		return nil
	}
	send := &discordgo.MessageSend{Content: truncateRunes(msg.Content, maxMessageContentRunes)}
	if len(msg.FileBody) > 0 {
		send.Files = []*discordgo.File{
			{Name: msg.Filename, ContentType: "text/plain", Reader: bytes.NewReader(msg.FileBody)},
		}
	}
	if _, err := c.session.ChannelMessageSendComplex(msg.ChannelID, send); err != nil {
		return fmt.Errorf("send discord message to %s: %w", msg.ChannelID, err)
	}
	slog.Info("discord message sent", "channel_id", msg.ChannelID, "filename", msg.Filename)
	return nil
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

type noopClient struct{}

func (noopClient) SendChannelMessageWithFile(discordpkg.FileMessage) error { return nil }
