package config

import (
	"fmt"
	"time"
)

const (
	DatabaseDriverPostgres = "postgres"
	DatabaseDriverSQLite   = "sqlite"

	BackendOpenAI = "openai"
	BackendGoogle = "google"
)

type Config struct {
	Env      string
	HTTPAddr string

	DatabaseDriver string
	DatabaseURL    string

	TranscriberBackend string
	TranslatorBackend  string

	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAITranscribeModel string
	OpenAIChatModel       string
	OpenAIMaxRetries      int

	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string

	BackendCallTimeoutSec     int
	BatchTranscribeTimeoutSec int
	TranslateConcurrency      int
	DefaultBatchDurationMs    int64
	FailSessionOnPersistError bool
	MaxUploadMB               int

	StreamFlushIntervalMs   int
	StreamSilenceTimeoutMs  int
	StreamStrictSequence    bool
	StreamDefaultSampleRate int
	LiveSourceLang          string
	LiveTargetLang          string

	TranscriptWebhookURL   string
	DiscordToken           string
	DiscordNotifyChannelID string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.DatabaseDriver {
	case DatabaseDriverPostgres, DatabaseDriverSQLite:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DatabaseDriverPostgres, DatabaseDriverSQLite, c.DatabaseDriver)
	}
	for _, b := range []requiredEnvField{
		{name: "TRANSCRIBER_BACKEND", value: c.TranscriberBackend},
		{name: "TRANSLATOR_BACKEND", value: c.TranslatorBackend},
	} {
		if b.value != BackendOpenAI && b.value != BackendGoogle {
			return fmt.Errorf("%s must be %q or %q, got %q", b.name, BackendOpenAI, BackendGoogle, b.value)
		}
	}
	if c.usesGoogle() {
		if c.GoogleCloudProjectID == "" || c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON are required when a google backend is selected")
		}
	}
	for _, p := range c.positiveFieldChecks() {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.OpenAIMaxRetries < 0 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must not be negative, got %d", c.OpenAIMaxRetries)
	}
	if c.DefaultBatchDurationMs <= 0 {
		return fmt.Errorf("DEFAULT_BATCH_DURATION_MS must be positive, got %d", c.DefaultBatchDurationMs)
	}
	if c.DiscordToken != "" && c.DiscordNotifyChannelID == "" {
		return fmt.Errorf("DISCORD_NOTIFY_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "OPENAI_API_KEY", value: c.OpenAIAPIKey},
		{name: "LIVE_SOURCE_LANG", value: c.LiveSourceLang},
		{name: "LIVE_TARGET_LANG", value: c.LiveTargetLang},
	}
}

type positiveEnvField struct {
	name  string
	value int
}

func (c *Config) positiveFieldChecks() []positiveEnvField {
	return []positiveEnvField{
		{name: "BACKEND_CALL_TIMEOUT_SEC", value: c.BackendCallTimeoutSec},
		{name: "BATCH_TRANSCRIBE_TIMEOUT_SEC", value: c.BatchTranscribeTimeoutSec},
		{name: "TRANSLATE_CONCURRENCY", value: c.TranslateConcurrency},
		{name: "MAX_UPLOAD_MB", value: c.MaxUploadMB},
		{name: "STREAM_FLUSH_INTERVAL_MS", value: c.StreamFlushIntervalMs},
		{name: "STREAM_SILENCE_TIMEOUT_MS", value: c.StreamSilenceTimeoutMs},
		{name: "STREAM_DEFAULT_SAMPLE_RATE", value: c.StreamDefaultSampleRate},
	}
}

func (c *Config) usesGoogle() bool {
	return c.TranscriberBackend == BackendGoogle || c.TranslatorBackend == BackendGoogle
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) BackendCallTimeout() time.Duration {
	return time.Duration(c.BackendCallTimeoutSec) * time.Second
}

func (c *Config) BatchTranscribeTimeout() time.Duration {
	return time.Duration(c.BatchTranscribeTimeoutSec) * time.Second
}

func (c *Config) StreamFlushInterval() time.Duration {
	return time.Duration(c.StreamFlushIntervalMs) * time.Millisecond
}

func (c *Config) StreamSilenceTimeout() time.Duration {
	return time.Duration(c.StreamSilenceTimeoutMs) * time.Millisecond
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
