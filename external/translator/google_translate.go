package translator

import (
	"context"
	"errors"
	"fmt"
	"html"

	"cloud.google.com/go/auth/credentials"
	"github.com/sweetginger/Nyogi/internal/apperr"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"
)

const backendName = "google-translate"

type GoogleTranslator struct {
	svc *translate.Service
}

func NewGoogleTranslator(ctx context.Context, credentialsJSON string, opts ...option.ClientOption) (*GoogleTranslator, error) {
	if credentialsJSON != "" {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			CredentialsJSON: []byte(credentialsJSON),
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-translation"},
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials: %w", err)
		}
		opts = append([]option.ClientOption{option.WithAuthCredentials(creds)}, opts...)
	}
	svc, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create translate service: %w", err)
	}
	return &GoogleTranslator{svc: svc}, nil
}

func (t *GoogleTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if sourceLang == targetLang {
		return text, nil
	}
	resp, err := t.svc.Translations.List([]string{text}, targetLang).
		Source(sourceLang).
		Format("text").
		Context(ctx).
		Do()
	if err != nil {
		return "", translateError(err)
	}
	if len(resp.Translations) == 0 || resp.Translations[0].TranslatedText == "" {
		return text, nil
	}
	return html.UnescapeString(resp.Translations[0].TranslatedText), nil
}

func translateError(err error) error {
	code := "UNKNOWN"
	status := 0
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		status = gerr.Code
		code = fmt.Sprintf("HTTP_%d", gerr.Code)
		if len(gerr.Errors) > 0 && gerr.Errors[0].Reason != "" {
			code = gerr.Errors[0].Reason
		}
	}
	return &apperr.BackendError{Backend: backendName, Code: code, StatusCode: status, Err: err}
}
