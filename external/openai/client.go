package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sweetginger/Nyogi/internal/apperr"
	"github.com/sweetginger/Nyogi/internal/transcriber"
	"github.com/sweetginger/Nyogi/internal/translator"
)

const backendName = "openai"

const (
	translateTemperature = 0.3
	translateMaxTokens   = 1000
	summaryTemperature   = 0.7
	summaryMaxTokens     = 500
)

var translatePrompts = map[string]string{
	"ko": "You are a professional translator. Translate the following Korean text to English. Provide only the translation, no explanations.",
	"en": "You are a professional translator. Translate the following English text to Korean. Provide only the translation, no explanations.",
}

var summaryPrompts = map[string]string{
	"ko": "다음 회의록을 간결하게 요약해주세요. 주요 내용과 결정사항을 포함하세요.",
	"en": "Please summarize the following meeting transcript concisely. Include key points and decisions.",
}

type Config struct {
	BaseURL         string
	APIKey          string
	TranscribeModel string
	ChatModel       string
	MaxRetries      int
}

// Client speaks the OpenAI-compatible audio transcription and chat
// completion endpoints.
type Client struct {
	api             oai.Client
	transcribeModel string
	chatModel       string
}

var (
	_ transcriber.Transcriber = (*Client)(nil)
	_ translator.Translator   = (*Client)(nil)
	_ translator.Summarizer   = (*Client)(nil)
)

func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	return &Client{
		api:             oai.NewClient(opts...),
		transcribeModel: cfg.TranscribeModel,
		chatModel:       cfg.ChatModel,
	}
}

// verboseTranscription is the verbose_json body; the SDK type only models
// the text, so segments are read from the raw response.
type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (transcriber.Result, error) {
	if filename == "" {
		filename = "audio.wav"
	}
	resp, err := c.api.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		File:                   oai.File(bytes.NewReader(audio), filepath.Base(filename), "application/octet-stream"),
		Model:                  oai.AudioModel(c.transcribeModel),
		ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	})
	if err != nil {
		return transcriber.Result{}, backendError(err)
	}

	var out verboseTranscription
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return transcriber.Result{}, &apperr.BackendError{Backend: backendName, Code: "DECODE_ERROR", Err: err}
		}
	} else {
		out.Text = resp.Text
	}
	res := transcriber.Result{Text: strings.TrimSpace(out.Text), Language: out.Language}
	for _, s := range out.Segments {
		res.Segments = append(res.Segments, transcriber.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	return res, nil
}

func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if sourceLang == targetLang {
		return text, nil
	}
	prompt, ok := translatePrompts[sourceLang]
	if !ok {
		return "", fmt.Errorf("unsupported source language %q", sourceLang)
	}
	out, err := c.chat(ctx, prompt, text, translateTemperature, translateMaxTokens)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return text, nil
	}
	return out, nil
}

func (c *Client) Summarize(ctx context.Context, transcript, lang string) (string, error) {
	prompt, ok := summaryPrompts[lang]
	if !ok {
		return "", fmt.Errorf("unsupported summary language %q", lang)
	}
	return c.chat(ctx, prompt, transcript, summaryTemperature, summaryMaxTokens)
}

func (c *Client) chat(ctx context.Context, system, user string, temperature float64, maxTokens int64) (string, error) {
	completion, err := c.api.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: oai.ChatModel(c.chatModel),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
		Temperature: oai.Float(temperature),
		MaxTokens:   oai.Int(maxTokens),
	})
	if err != nil {
		return "", backendError(err)
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}

// backendError keeps the API's error code (or its HTTP status) so callers can
// report it.
func backendError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		body := parseErrorBody(apiErr)
		code := firstNonEmpty(apiErr.Code, body.code, apiErr.Type, body.Type)
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", apiErr.StatusCode)
		}
		return &apperr.BackendError{
			Backend:    backendName,
			Code:       code,
			StatusCode: apiErr.StatusCode,
			Err:        fmt.Errorf("status %d: %s", apiErr.StatusCode, firstNonEmpty(apiErr.Message, body.Message, "request failed")),
		}
	}
	code := "NETWORK_ERROR"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = "DEADLINE_EXCEEDED"
	case errors.Is(err, context.Canceled):
		code = "CANCELED"
	}
	return &apperr.BackendError{Backend: backendName, Code: code, Err: err}
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
	code    string
}

// parseErrorBody reads the {"error": {...}} envelope from the raw response.
func parseErrorBody(apiErr *oai.Error) errorBody {
	raw := apiErr.RawJSON()
	if raw == "" && apiErr.Response != nil && apiErr.Response.Body != nil {
		b, _ := io.ReadAll(io.LimitReader(apiErr.Response.Body, 64<<10))
		raw = string(b)
	}
	var envelope struct {
		Error errorBody `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return errorBody{}
	}
	body := envelope.Error
	switch v := body.Code.(type) {
	case string:
		body.code = v
	case float64:
		body.code = fmt.Sprintf("%d", int(v))
	}
	return body
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
