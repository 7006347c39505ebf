//go:build !opus

package audio

import (
	"errors"
	"testing"

	"github.com/sweetginger/Nyogi/internal/audio"
)

func TestNewOpusDecoder_Unsupported(t *testing.T) {
	_, err := NewOpusDecoder(48000, 2)
	if !errors.Is(err, audio.ErrUnsupportedEncoding) {
		t.Fatalf("expected unsupported encoding error, got %v", err)
	}
}
