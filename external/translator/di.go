package translator

import (
	"context"

	"github.com/samber/do/v2"
	"github.com/sweetginger/Nyogi/external/openai"
	"github.com/sweetginger/Nyogi/internal/config"
	"github.com/sweetginger/Nyogi/internal/translator"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (translator.Translator, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.TranslatorBackend != config.BackendGoogle {
			return do.MustInvoke[*openai.Client](i), nil
		}
		t, err := NewGoogleTranslator(context.Background(), c.GoogleCloudCredentialsJSON)
		if err != nil {
			return nil, err
		}
		return t, nil
	})
	do.Provide(injector, func(i do.Injector) (translator.Summarizer, error) {
		return do.MustInvoke[*openai.Client](i), nil
	})
}
