package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweetginger/Nyogi/internal/discord"
	"github.com/sweetginger/Nyogi/internal/repository"
	"github.com/sweetginger/Nyogi/internal/webhook"
)

func sampleCompletion() Completion {
	startedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	endedAt := startedAt.Add(90 * time.Second)
	return Completion{
		Meeting: repository.Meeting{ID: "m1", Title: "Weekly sync", Languages: []string{"ko", "en"}},
		Session: repository.Session{ID: "s1", MeetingID: "m1", StartedBy: "u1", StartedAt: startedAt, EndedAt: &endedAt},
		Captions: []repository.Caption{
			{Seq: 1, Speaker: "S1", StartMs: 0, EndMs: 30000, SourceLang: "ko", SourceText: "안녕하세요.", TargetLang: "en", TargetText: "Hello."},
			{Seq: 2, Speaker: "S1", StartMs: 75000, EndMs: 90000, SourceLang: "en", SourceText: "Thanks.", TargetLang: "ko", TargetText: "감사합니다."},
		},
		Summaries: []repository.Summary{{MeetingID: "m1", Lang: "en", Content: "Greetings were exchanged."}},
		Text:      "안녕하세요. Thanks.",
	}
}

func TestBuildTranscriptText(t *testing.T) {
	body := string(buildTranscriptText(sampleCompletion()))

	for _, want := range []string{
		"Meeting: Weekly sync",
		"Period: 2026-03-02 09:00:00 ~ 2026-03-02 09:01:30 (UTC)",
		"Languages: ko, en",
		"00:00:00 S1 [ko] 안녕하세요.",
		"00:00:00 S1 [en] Hello.",
		"00:01:15 S1 [en] Thanks.",
		"Summary (en):\nGreetings were exchanged.",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("%q not found in body: %s", want, body)
		}
	}
}

func TestBuildTranscriptWebhookPayload(t *testing.T) {
	p := buildTranscriptWebhookPayload(sampleCompletion())

	if p.SchemaVersion != webhook.TranscriptWebhookSchemaVersion {
		t.Fatalf("unexpected schema version: %s", p.SchemaVersion)
	}
	if p.StartAt != "2026-03-02T09:00:00Z" || p.EndAt != "2026-03-02T09:01:30Z" {
		t.Fatalf("unexpected time range: %s ~ %s", p.StartAt, p.EndAt)
	}
	if p.DurationSeconds != 90 {
		t.Fatalf("unexpected duration: %d", p.DurationSeconds)
	}
	if p.CaptionCount != 2 || p.Captions[1].TargetText != "감사합니다." {
		t.Fatalf("unexpected captions: %+v", p.Captions)
	}
	if len(p.Summaries) != 1 || p.Summaries[0].Lang != "en" {
		t.Fatalf("unexpected summaries: %+v", p.Summaries)
	}
	if p.Transcript != "안녕하세요. Thanks." {
		t.Fatalf("unexpected transcript: %q", p.Transcript)
	}
}

func TestFormatElapsedHMS(t *testing.T) {
	if got := formatElapsedHMS(3*time.Hour + 4*time.Minute + 5*time.Second); got != "03:04:05" {
		t.Fatalf("unexpected value: %s", got)
	}
}

type mockSender struct {
	payloads []webhook.TranscriptWebhookPayload
	err      error
}

func (m *mockSender) SendTranscript(_ context.Context, p webhook.TranscriptWebhookPayload) error {
	m.payloads = append(m.payloads, p)
	return m.err
}

type mockDiscordClient struct {
	messages []discord.FileMessage
	err      error
}

func (m *mockDiscordClient) SendChannelMessageWithFile(msg discord.FileMessage) error {
	m.messages = append(m.messages, msg)
	return m.err
}

func TestCompletionNotifier_SendsBoth(t *testing.T) {
	sender := &mockSender{}
	dc := &mockDiscordClient{}
	n := NewCompletionNotifier(sender, dc, "ch-1")

	if err := n.NotifyCompleted(context.Background(), sampleCompletion()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.payloads) != 1 || sender.payloads[0].SessionID != "s1" {
		t.Fatalf("unexpected webhook payloads: %+v", sender.payloads)
	}
	if len(dc.messages) != 1 {
		t.Fatalf("expected one discord message, got %d", len(dc.messages))
	}
	msg := dc.messages[0]
	if msg.ChannelID != "ch-1" || msg.Filename != "transcript-s1.txt" {
		t.Fatalf("unexpected discord message: %+v", msg)
	}
	if !strings.Contains(msg.Content, "Weekly sync") || !strings.Contains(string(msg.FileBody), "Thanks.") {
		t.Fatalf("unexpected discord content: %+v", msg)
	}
}

func TestCompletionNotifier_WebhookFailureStillPostsDiscord(t *testing.T) {
	sender := &mockSender{err: errors.New("status 500")}
	dc := &mockDiscordClient{}
	n := NewCompletionNotifier(sender, dc, "ch-1")

	if err := n.NotifyCompleted(context.Background(), sampleCompletion()); err == nil {
		t.Fatal("expected error")
	}
	if len(dc.messages) != 1 {
		t.Fatalf("discord must still be posted, got %d messages", len(dc.messages))
	}
}

func TestCompletionNotifier_SkipsDiscordWithoutChannel(t *testing.T) {
	dc := &mockDiscordClient{}
	n := NewCompletionNotifier(&mockSender{}, dc, "")
	if err := n.NotifyCompleted(context.Background(), sampleCompletion()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dc.messages) != 0 {
		t.Fatalf("expected no discord message, got %d", len(dc.messages))
	}
}
