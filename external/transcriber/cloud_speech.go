package transcriber

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/sweetginger/Nyogi/internal/apperr"
	"github.com/sweetginger/Nyogi/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	backendName           = "google-speech"
)

// Recognition is restricted to the two meeting languages of the product.
var recognitionLanguageCodes = []string{"ko-KR", "en-US"}

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

type CloudSpeechTranscriber struct {
	client     *speech.Client
	recognizer string
	model      string
}

func NewCloudSpeechTranscriber(ctx context.Context, cfg CloudSpeechConfig) (*CloudSpeechTranscriber, error) {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(cfg.CredentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", location, speechAPIEndpointPort)))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return newCloudSpeechTranscriber(client, cfg.ProjectID, location, cfg.Model), nil
}

func newCloudSpeechTranscriber(client *speech.Client, projectID, location, model string) *CloudSpeechTranscriber {
	return &CloudSpeechTranscriber{
		client:     client,
		recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", projectID, location),
		model:      strings.TrimSpace(model),
	}
}

func (t *CloudSpeechTranscriber) Close() error {
	return t.client.Close()
}

func (t *CloudSpeechTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (transcriber.Result, error) {
	slog.Info("starting cloud speech recognition", "recognizer", t.recognizer, "model", t.model, "bytes", len(audio), "filename", filename)
	resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Recognizer: t.recognizer,
		Config: &speechpb.RecognitionConfig{
			Model:         t.model,
			LanguageCodes: recognitionLanguageCodes,
			DecodingConfig: &speechpb.RecognitionConfig_AutoDecodingConfig{
				AutoDecodingConfig: &speechpb.AutoDetectDecodingConfig{},
			},
			Features: &speechpb.RecognitionFeatures{
				EnableAutomaticPunctuation: true,
				EnableWordTimeOffsets:      true,
			},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{Content: audio},
	})
	if err != nil {
		return transcriber.Result{}, speechError(err)
	}
	return resultFromResponse(resp), nil
}

// resultFromResponse flattens recognition results into consecutive segments;
// each result starts where the previous one ended.
func resultFromResponse(resp *speechpb.RecognizeResponse) transcriber.Result {
	var res transcriber.Result
	var texts []string
	prevEnd := 0.0
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		text := strings.TrimSpace(alts[0].GetTranscript())
		end := r.GetResultEndOffset().AsDuration().Seconds()
		if text == "" {
			prevEnd = end
			continue
		}
		if res.Language == "" {
			res.Language = r.GetLanguageCode()
		}
		res.Segments = append(res.Segments, transcriber.Segment{Start: prevEnd, End: end, Text: text})
		texts = append(texts, text)
		prevEnd = end
	}
	res.Text = strings.Join(texts, " ")
	return res
}

func speechError(err error) error {
	return &apperr.BackendError{Backend: backendName, Code: status.Code(err).String(), Err: err}
}
