package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sweetginger/Nyogi/internal/discord"
	"github.com/sweetginger/Nyogi/internal/webhook"
)

type Notifier interface {
	NotifyCompleted(ctx context.Context, c Completion) error
}

// CompletionNotifier fans a finished transcript out to the webhook and the
// Discord channel. Either may be unconfigured.
type CompletionNotifier struct {
	webhook          webhook.Sender
	discord          discord.Client
	discordChannelID string
}

func NewCompletionNotifier(sender webhook.Sender, dc discord.Client, channelID string) *CompletionNotifier {
	return &CompletionNotifier{webhook: sender, discord: dc, discordChannelID: channelID}
}

func (n *CompletionNotifier) NotifyCompleted(ctx context.Context, c Completion) error {
	var errs []error
	if n.webhook != nil {
		if err := n.webhook.SendTranscript(ctx, buildTranscriptWebhookPayload(c)); err != nil {
			errs = append(errs, fmt.Errorf("transcript webhook: %w", err))
		}
	}
	if n.discord != nil && n.discordChannelID != "" {
		title := c.Meeting.Title
		if title == "" {
			title = c.Meeting.ID
		}
		err := n.discord.SendChannelMessageWithFile(discord.FileMessage{
			ChannelID: n.discordChannelID,
			Content:   fmt.Sprintf("Transcript ready: %s (%d captions)", title, len(c.Captions)),
			Filename:  fmt.Sprintf("transcript-%s.txt", c.Session.ID),
			FileBody:  buildTranscriptText(c),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("discord notice: %w", err))
		}
	}
	return errors.Join(errs...)
}

type noopNotifier struct{}

func (noopNotifier) NotifyCompleted(context.Context, Completion) error { return nil }

func logNotifyError(c Completion, err error) {
	slog.Warn("failed to send completion notice", "meeting_id", c.Meeting.ID, "session_id", c.Session.ID, "error", err)
}
