package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/sweetginger/Nyogi/internal/config"
)

type envConfig struct {
	Env      string `env:"ENV" envDefault:"production"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL,required"`

	TranscriberBackend string `env:"TRANSCRIBER_BACKEND" envDefault:"openai"`
	TranslatorBackend  string `env:"TRANSLATOR_BACKEND" envDefault:"openai"`

	OpenAIAPIKey          string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL         string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAITranscribeModel string `env:"OPENAI_TRANSCRIBE_MODEL" envDefault:"whisper-1"`
	OpenAIChatModel       string `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIMaxRetries      int    `env:"OPENAI_MAX_RETRIES" envDefault:"2"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"long"`

	BackendCallTimeoutSec     int   `env:"BACKEND_CALL_TIMEOUT_SEC" envDefault:"60"`
	BatchTranscribeTimeoutSec int   `env:"BATCH_TRANSCRIBE_TIMEOUT_SEC" envDefault:"600"`
	TranslateConcurrency      int   `env:"TRANSLATE_CONCURRENCY" envDefault:"4"`
	DefaultBatchDurationMs    int64 `env:"DEFAULT_BATCH_DURATION_MS" envDefault:"60000"`
	FailSessionOnPersistError bool  `env:"FAIL_SESSION_ON_PERSIST_ERROR" envDefault:"true"`
	MaxUploadMB               int   `env:"MAX_UPLOAD_MB" envDefault:"200"`

	StreamFlushIntervalMs   int    `env:"STREAM_FLUSH_INTERVAL_MS" envDefault:"2000"`
	StreamSilenceTimeoutMs  int    `env:"STREAM_SILENCE_TIMEOUT_MS" envDefault:"1500"`
	StreamStrictSequence    bool   `env:"STREAM_STRICT_SEQUENCE" envDefault:"false"`
	StreamDefaultSampleRate int    `env:"STREAM_DEFAULT_SAMPLE_RATE" envDefault:"16000"`
	LiveSourceLang          string `env:"LIVE_SOURCE_LANG" envDefault:"ko"`
	LiveTargetLang          string `env:"LIVE_TARGET_LANG" envDefault:"en"`

	TranscriptWebhookURL   string `env:"TRANSCRIPT_WEBHOOK_URL"`
	DiscordToken           string `env:"DISCORD_TOKEN"`
	DiscordNotifyChannelID string `env:"DISCORD_NOTIFY_CHANNEL_ID"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		HTTPAddr:                   raw.HTTPAddr,
		DatabaseDriver:             raw.DatabaseDriver,
		DatabaseURL:                raw.DatabaseURL,
		TranscriberBackend:         raw.TranscriberBackend,
		TranslatorBackend:          raw.TranslatorBackend,
		OpenAIAPIKey:               raw.OpenAIAPIKey,
		OpenAIBaseURL:              raw.OpenAIBaseURL,
		OpenAITranscribeModel:      raw.OpenAITranscribeModel,
		OpenAIChatModel:            raw.OpenAIChatModel,
		OpenAIMaxRetries:           raw.OpenAIMaxRetries,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		BackendCallTimeoutSec:      raw.BackendCallTimeoutSec,
		BatchTranscribeTimeoutSec:  raw.BatchTranscribeTimeoutSec,
		TranslateConcurrency:       raw.TranslateConcurrency,
		DefaultBatchDurationMs:     raw.DefaultBatchDurationMs,
		FailSessionOnPersistError:  raw.FailSessionOnPersistError,
		MaxUploadMB:                raw.MaxUploadMB,
		StreamFlushIntervalMs:      raw.StreamFlushIntervalMs,
		StreamSilenceTimeoutMs:     raw.StreamSilenceTimeoutMs,
		StreamStrictSequence:       raw.StreamStrictSequence,
		StreamDefaultSampleRate:    raw.StreamDefaultSampleRate,
		LiveSourceLang:             raw.LiveSourceLang,
		LiveTargetLang:             raw.LiveTargetLang,
		TranscriptWebhookURL:       raw.TranscriptWebhookURL,
		DiscordToken:               raw.DiscordToken,
		DiscordNotifyChannelID:     raw.DiscordNotifyChannelID,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
