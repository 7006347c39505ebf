package audio

import (
	"github.com/samber/do/v2"
	"github.com/sweetginger/Nyogi/internal/audio"
)

func RegisterDI(injector do.Injector) {
	do.ProvideValue(injector, audio.DecoderFactory(NewOpusDecoder))
}
