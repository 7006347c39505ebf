//go:build !opus

package audio

import (
	"fmt"

	"github.com/sweetginger/Nyogi/internal/audio"
)

// NewOpusDecoder is unavailable unless built with -tags opus (libopus).
func NewOpusDecoder(_, _ int) (audio.Decoder, error) {
	return nil, fmt.Errorf("%w: opus support not compiled in", audio.ErrUnsupportedEncoding)
}
