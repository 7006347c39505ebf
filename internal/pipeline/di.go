package pipeline

import (
	"github.com/samber/do/v2"
	"github.com/sweetginger/Nyogi/internal/config"
	"github.com/sweetginger/Nyogi/internal/discord"
	"github.com/sweetginger/Nyogi/internal/repository"
	"github.com/sweetginger/Nyogi/internal/session"
	"github.com/sweetginger/Nyogi/internal/transcriber"
	"github.com/sweetginger/Nyogi/internal/translator"
	"github.com/sweetginger/Nyogi/internal/webhook"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (Notifier, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewCompletionNotifier(
			do.MustInvoke[webhook.Sender](i),
			do.MustInvoke[discord.Client](i),
			c.DiscordNotifyChannelID,
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*Pipeline, error) {
		c := do.MustInvoke[*config.Config](i)
		return New(
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[*session.Machine](i),
			do.MustInvoke[transcriber.Transcriber](i),
			do.MustInvoke[translator.Translator](i),
			do.MustInvoke[translator.Summarizer](i),
			do.MustInvoke[Notifier](i),
			Config{
				TranscribeTimeout:         c.BatchTranscribeTimeout(),
				CallTimeout:               c.BackendCallTimeout(),
				Concurrency:               c.TranslateConcurrency,
				DefaultDurationMs:         c.DefaultBatchDurationMs,
				FailSessionOnPersistError: c.FailSessionOnPersistError,
			},
		), nil
	})
}
