package audio

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := SamplesToBytes([]int16{1, -1, 300})
	wav := EncodeWAV(pcm, 16000)

	if len(wav) != wavHeaderSize+len(pcm) {
		t.Fatalf("unexpected length: %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("unexpected chunk ids: %q", wav[:40])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Fatalf("unexpected riff size: %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Fatalf("expected mono, got %d channels", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("unexpected sample rate: %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Fatalf("unexpected byte rate: %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("unexpected data size: %d", got)
	}
}

func TestDownmixPCM16(t *testing.T) {
	stereo := SamplesToBytes([]int16{100, 300, -32768, -32768, 32767, 32767})
	mono := DownmixPCM16(stereo, 2)

	want := []int16{200, -32768, 32767}
	if len(mono) != len(want)*2 {
		t.Fatalf("unexpected length: %d", len(mono))
	}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(mono[i*2:])); got != w {
			t.Fatalf("sample %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestDownmixPCM16_MonoPassthrough(t *testing.T) {
	pcm := SamplesToBytes([]int16{5, 6})
	if got := DownmixPCM16(pcm, 1); len(got) != len(pcm) {
		t.Fatalf("mono input must pass through, got %d bytes", len(got))
	}
}

func TestDurationMs(t *testing.T) {
	pcm := make([]byte, 16000*2)
	if got := DurationMs(pcm, 16000); got != 1000 {
		t.Fatalf("unexpected duration: %d", got)
	}
	if got := DurationMs(pcm, 0); got != 0 {
		t.Fatalf("expected 0 for invalid rate, got %d", got)
	}
}
