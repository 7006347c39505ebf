package server

import (
	"github.com/samber/do/v2"
	"github.com/sweetginger/Nyogi/internal/audio"
	"github.com/sweetginger/Nyogi/internal/config"
	"github.com/sweetginger/Nyogi/internal/live"
	"github.com/sweetginger/Nyogi/internal/pipeline"
	"github.com/sweetginger/Nyogi/internal/repository"
	"github.com/sweetginger/Nyogi/internal/session"
	"github.com/sweetginger/Nyogi/internal/transcriber"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		c := do.MustInvoke[*config.Config](i)
		return New(
			Config{
				Addr:           c.HTTPAddr,
				MaxUploadBytes: c.MaxUploadBytes(),
				Segmenter: live.Config{
					FlushInterval:     c.StreamFlushInterval(),
					SilenceTimeout:    c.StreamSilenceTimeout(),
					CallTimeout:       c.BackendCallTimeout(),
					StrictSequence:    c.StreamStrictSequence,
					DefaultSampleRate: c.StreamDefaultSampleRate,
				},
				LiveSourceLang: c.LiveSourceLang,
				LiveTargetLang: c.LiveTargetLang,
			},
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[*session.Machine](i),
			do.MustInvoke[*pipeline.Pipeline](i),
			do.MustInvoke[transcriber.Transcriber](i),
			do.MustInvoke[audio.DecoderFactory](i),
		), nil
	})
}
