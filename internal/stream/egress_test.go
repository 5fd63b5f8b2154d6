package stream

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/sania040/aiagent/internal/audio"
)

func newTestEgress() (*Egress, *[]time.Duration) {
	e := NewEgress(20 * time.Millisecond)
	var sleeps []time.Duration
	e.SetSleep(func(d time.Duration) { sleeps = append(sleeps, d) })
	return e, &sleeps
}

func TestEgressFramesAreFixedSize(t *testing.T) {
	e, sleeps := newTestEgress()
	ft := &fakeTransport{}

	// 2.5 frames of PCM; the final partial frame must be padded, not dropped
	data := make([]byte, 800)
	outcome, err := e.Stream(context.Background(), ft, data, audio.FormatPCM, "MZ1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if outcome != EgressCompleted {
		t.Fatalf("outcome = %s, want completed", outcome)
	}

	if len(ft.written) != 5 { // start mark, 3 media, end mark
		t.Fatalf("expected 5 frames, got %d", len(ft.written))
	}
	if ft.written[0].Mark == nil || ft.written[0].Mark.Name != MarkResponseStart {
		t.Fatalf("first frame is not the response-start mark: %+v", ft.written[0])
	}
	if ft.written[4].Mark == nil || ft.written[4].Mark.Name != MarkResponseEnd {
		t.Fatalf("last frame is not the response-end mark: %+v", ft.written[4])
	}
	for i, f := range ft.written[1:4] {
		mulaw, derr := base64.StdEncoding.DecodeString(f.Media.Payload)
		if derr != nil {
			t.Fatalf("frame %d payload not base64: %v", i, derr)
		}
		// 20ms at 8kHz is 160 mu-law bytes, every frame, padding included
		if len(mulaw) != 160 {
			t.Fatalf("frame %d carries %d bytes, want 160", i, len(mulaw))
		}
	}
	if len(*sleeps) != 3 {
		t.Fatalf("expected one pacing sleep per media frame, got %d", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != 20*time.Millisecond {
			t.Fatalf("pacing sleep %v, want 20ms", d)
		}
	}
}

func TestEgressPadsSilence(t *testing.T) {
	e, _ := newTestEgress()
	ft := &fakeTransport{}

	// half a frame of nonzero samples
	data := make([]byte, 160)
	for i := range data {
		data[i] = 0x10
	}
	if _, err := e.Stream(context.Background(), ft, data, audio.FormatPCM, "MZ1"); err != nil {
		t.Fatalf("stream: %v", err)
	}
	mulaw, _ := base64.StdEncoding.DecodeString(ft.written[1].Media.Payload)
	pcm := audio.DecodeMulaw(mulaw)
	// padded region decodes back to silence
	for i := 160; i < len(pcm); i += 2 {
		if pcm[i] != 0 || pcm[i+1] != 0 {
			t.Fatalf("padding not silent at byte %d", i)
		}
	}
}

func TestEgressStopsWhenTransportCloses(t *testing.T) {
	e, _ := newTestEgress()
	ft := &fakeTransport{}

	data := make([]byte, 3200) // 10 frames
	sent := 0
	e.SetSleep(func(time.Duration) {
		sent++
		if sent == 2 {
			ft.closed = true
		}
	})
	outcome, err := e.Stream(context.Background(), ft, data, audio.FormatPCM, "MZ1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if outcome != EgressTransportClosed {
		t.Fatalf("outcome = %s, want transport_closed", outcome)
	}
	// start mark + the two frames that went out before closure
	if len(ft.written) != 3 {
		t.Fatalf("expected 3 frames before closure, got %d", len(ft.written))
	}
}

func TestEgressInterruptedByContext(t *testing.T) {
	e, _ := newTestEgress()
	ft := &fakeTransport{}
	ctx, cancel := context.WithCancel(context.Background())

	data := make([]byte, 3200)
	sent := 0
	e.SetSleep(func(time.Duration) {
		sent++
		if sent == 1 {
			cancel()
		}
	})
	outcome, err := e.Stream(ctx, ft, data, audio.FormatPCM, "MZ1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if outcome != EgressInterrupted {
		t.Fatalf("outcome = %s, want interrupted", outcome)
	}
}

func TestEgressRejectsBadAudio(t *testing.T) {
	e, _ := newTestEgress()
	ft := &fakeTransport{}
	if _, err := e.Stream(context.Background(), ft, []byte{1}, audio.FormatPCM, "MZ1"); err == nil {
		t.Fatal("expected conversion error for odd-length pcm")
	}
	if len(ft.written) != 0 {
		t.Fatal("nothing may be written when conversion fails")
	}
}
