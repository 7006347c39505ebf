package openai

import (
	"github.com/samber/do/v2"
	"github.com/sweetginger/Nyogi/internal/config"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Client, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewClient(Config{
			BaseURL:         c.OpenAIBaseURL,
			APIKey:          c.OpenAIAPIKey,
			TranscribeModel: c.OpenAITranscribeModel,
			ChatModel:       c.OpenAIChatModel,
			MaxRetries:      c.OpenAIMaxRetries,
		}), nil
	})
}
