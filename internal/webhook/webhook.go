package webhook

import "context"

const TranscriptWebhookSchemaVersion = "1"

type TranscriptWebhookCaption struct {
	Seq        int    `json:"seq"`
	Speaker    string `json:"speaker"`
	StartMs    int64  `json:"start_ms"`
	EndMs      int64  `json:"end_ms"`
	SourceLang string `json:"source_lang"`
	SourceText string `json:"source_text"`
	TargetLang string `json:"target_lang"`
	TargetText string `json:"target_text"`
}

type TranscriptWebhookSummary struct {
	Lang    string `json:"lang"`
	Content string `json:"content"`
}

type TranscriptWebhookPayload struct {
	SchemaVersion   string                     `json:"schema_version"`
	MeetingID       string                     `json:"meeting_id"`
	MeetingTitle    string                     `json:"meeting_title"`
	SessionID       string                     `json:"session_id"`
	StartedBy       string                     `json:"started_by"`
	StartAt         string                     `json:"start_at"`
	EndAt           string                     `json:"end_at"`
	DurationSeconds int64                      `json:"duration_seconds"`
	Languages       []string                   `json:"languages"`
	CaptionCount    int                        `json:"caption_count"`
	Captions        []TranscriptWebhookCaption `json:"captions"`
	Summaries       []TranscriptWebhookSummary `json:"summaries"`
	Transcript      string                     `json:"transcript"`
}

type Sender interface {
	SendTranscript(ctx context.Context, payload TranscriptWebhookPayload) error
}
