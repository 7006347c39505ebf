package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sweetginger/Nyogi/internal/webhook"
)

func TestSendTranscript_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	if err := sender.SendTranscript(context.Background(), webhook.TranscriptWebhookPayload{SessionID: "s1"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSendTranscript_Success(t *testing.T) {
	var got webhook.TranscriptWebhookPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %s", ct)
		}
		if ev := r.Header.Get("X-Nyogi-Event"); ev != "transcript.completed" {
			t.Fatalf("unexpected event header: %s", ev)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	payload := webhook.TranscriptWebhookPayload{
		SchemaVersion: webhook.TranscriptWebhookSchemaVersion,
		MeetingID:     "m1",
		SessionID:     "s1",
		CaptionCount:  1,
		Captions: []webhook.TranscriptWebhookCaption{
			{Seq: 1, Speaker: "S1", SourceLang: "en", SourceText: "Hello.", TargetLang: "ko", TargetText: "안녕하세요."},
		},
		Summaries: []webhook.TranscriptWebhookSummary{{Lang: "en", Content: "Greeting."}},
	}
	if err := sender.SendTranscript(context.Background(), payload); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.SessionID != "s1" || len(got.Captions) != 1 || got.Captions[0].TargetText != "안녕하세요." {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.SchemaVersion != webhook.TranscriptWebhookSchemaVersion {
		t.Fatalf("unexpected schema version: %q", got.SchemaVersion)
	}
	if len(got.Summaries) != 1 || got.Summaries[0].Lang != "en" {
		t.Fatalf("unexpected summaries: %+v", got.Summaries)
	}
}

func TestSendTranscript_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendTranscript(context.Background(), webhook.TranscriptWebhookPayload{SessionID: "s1"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
