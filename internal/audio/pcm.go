// Package audio holds PCM helpers shared by the streaming path.
package audio

import (
	"encoding/binary"
	"errors"
)

var ErrUnsupportedEncoding = errors.New("unsupported audio encoding")

// Decoder turns encoded packets (Opus) into PCM16LE mono.
type Decoder interface {
	Decode(packet []byte) ([]byte, error)
	Close()
}

type DecoderFactory func(sampleRate, channels int) (Decoder, error)

// DownmixPCM16 averages interleaved PCM16LE channels into mono. A trailing
// partial frame is dropped.
func DownmixPCM16(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for f := 0; f < frames; f++ {
		var sum int32
		for c := 0; c < channels; c++ {
			off := f*frameBytes + c*2
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		binary.LittleEndian.PutUint16(out[f*2:], uint16(clampPCM(sum/int32(channels))))
	}
	return out
}

// SamplesToBytes encodes samples as PCM16LE.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DurationMs is the playback length of PCM16LE mono at sampleRate.
func DurationMs(pcm []byte, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(len(pcm)/2) * 1000 / int64(sampleRate)
}

func clampPCM(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
