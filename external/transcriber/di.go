package transcriber

import (
	"context"

	"github.com/samber/do/v2"
	"github.com/sweetginger/Nyogi/external/openai"
	"github.com/sweetginger/Nyogi/internal/config"
	"github.com/sweetginger/Nyogi/internal/transcriber"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcriber.Transcriber, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.TranscriberBackend != config.BackendGoogle {
			return do.MustInvoke[*openai.Client](i), nil
		}
		t, err := NewCloudSpeechTranscriber(context.Background(), CloudSpeechConfig{
			ProjectID:       c.GoogleCloudProjectID,
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
			Location:        c.GoogleCloudSpeechLocation,
			Model:           c.GoogleCloudSpeechModel,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	})
}
