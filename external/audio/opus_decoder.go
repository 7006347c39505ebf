//go:build opus

package audio

import (
	"fmt"

	"github.com/hraban/opus"
	"github.com/sweetginger/Nyogi/internal/audio"
)

// Longest Opus frame is 120 ms.
const maxFrameMs = 120

type OpusDecoder struct {
	dec      *opus.Decoder
	channels int
	pcm      []int16
}

func NewOpusDecoder(sampleRate, channels int) (audio.Decoder, error) {
	if channels <= 0 {
		channels = 1
	}
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusDecoder{
		dec:      dec,
		channels: channels,
		pcm:      make([]int16, sampleRate*maxFrameMs/1000*channels),
	}, nil
}

func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, nil
	}
	n, err := d.dec.Decode(packet, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("decode opus packet: %w", err)
	}
	total := n * d.channels
	if total > len(d.pcm) {
		total = len(d.pcm)
	}
	return audio.DownmixPCM16(audio.SamplesToBytes(d.pcm[:total]), d.channels), nil
}

func (d *OpusDecoder) Close() {
	d.dec = nil
}
