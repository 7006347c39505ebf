package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/sweetginger/Nyogi/internal/repository"
	"github.com/sweetginger/Nyogi/internal/webhook"
)

// Kept apart from time.DateTime so the transcript layout can change on its own.
const transcriptTimeLayout = "2006-01-02 15:04:05"

// Completion is everything known about a finished batch run.
type Completion struct {
	Meeting   repository.Meeting
	Session   repository.Session
	Captions  []repository.Caption
	Summaries []repository.Summary
	Text      string
}

func (c Completion) endedAt() time.Time {
	if c.Session.EndedAt != nil {
		return *c.Session.EndedAt
	}
	return c.Session.StartedAt
}

func buildTranscriptText(c Completion) []byte {
	title := c.Meeting.Title
	if title == "" {
		title = c.Meeting.ID
	}
	lines := []string{
		fmt.Sprintf("Meeting: %s", title),
		fmt.Sprintf("Session: %s", c.Session.ID),
		fmt.Sprintf("Period: %s ~ %s (UTC)", c.Session.StartedAt.UTC().Format(transcriptTimeLayout), c.endedAt().UTC().Format(transcriptTimeLayout)),
		fmt.Sprintf("Languages: %s", strings.Join(c.Meeting.Languages, ", ")),
		"",
	}
	for _, caption := range c.Captions {
		elapsed := formatElapsedHMS(time.Duration(caption.StartMs) * time.Millisecond)
		lines = append(lines, fmt.Sprintf("%s %s [%s] %s", elapsed, caption.Speaker, caption.SourceLang, caption.SourceText))
		if caption.TargetLang != caption.SourceLang {
			lines = append(lines, fmt.Sprintf("%s %s [%s] %s", elapsed, caption.Speaker, caption.TargetLang, caption.TargetText))
		}
	}
	for _, s := range c.Summaries {
		lines = append(lines, "", fmt.Sprintf("Summary (%s):", s.Lang), s.Content)
	}
	return []byte(strings.Join(lines, "\n"))
}

func buildTranscriptWebhookPayload(c Completion) webhook.TranscriptWebhookPayload {
	captions := make([]webhook.TranscriptWebhookCaption, 0, len(c.Captions))
	for _, caption := range c.Captions {
		captions = append(captions, webhook.TranscriptWebhookCaption{
			Seq:        caption.Seq,
			Speaker:    caption.Speaker,
			StartMs:    caption.StartMs,
			EndMs:      caption.EndMs,
			SourceLang: caption.SourceLang,
			SourceText: caption.SourceText,
			TargetLang: caption.TargetLang,
			TargetText: caption.TargetText,
		})
	}
	summaries := make([]webhook.TranscriptWebhookSummary, 0, len(c.Summaries))
	for _, s := range c.Summaries {
		summaries = append(summaries, webhook.TranscriptWebhookSummary{Lang: s.Lang, Content: s.Content})
	}

	endedAt := c.endedAt()
	durationSeconds := int64(endedAt.Sub(c.Session.StartedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	return webhook.TranscriptWebhookPayload{
		SchemaVersion:   webhook.TranscriptWebhookSchemaVersion,
		MeetingID:       c.Meeting.ID,
		MeetingTitle:    c.Meeting.Title,
		SessionID:       c.Session.ID,
		StartedBy:       c.Session.StartedBy,
		StartAt:         c.Session.StartedAt.UTC().Format(time.RFC3339),
		EndAt:           endedAt.UTC().Format(time.RFC3339),
		DurationSeconds: durationSeconds,
		Languages:       c.Meeting.Languages,
		CaptionCount:    len(c.Captions),
		Captions:        captions,
		Summaries:       summaries,
		Transcript:      c.Text,
	}
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
