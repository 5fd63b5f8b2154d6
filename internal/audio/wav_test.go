package audio

import (
	"bytes"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	wav := BuildWAV(pcm, 8000, 1, 16)

	info, err := ParseWAV(wav)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.SampleRate != 8000 || info.Channels != 1 || info.Bits != 16 {
		t.Fatalf("unexpected header: %+v", info)
	}
	if !bytes.Equal(info.Data, pcm) {
		t.Fatalf("data mismatch: %v", info.Data)
	}
}

func TestParseWAVRejectsGarbage(t *testing.T) {
	if _, err := ParseWAV([]byte("not a riff container")); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}
