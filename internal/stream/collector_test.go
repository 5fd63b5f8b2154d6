package stream

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/sania040/aiagent/internal/audio"
	"github.com/sania040/aiagent/internal/vad"
)

// scripted fake transport: returns its steps in order, then read timeouts.
type fakeTransport struct {
	steps   []step
	idx     int
	written []*Frame
	closed  bool
	onRead  func()
}

type step struct {
	f   *Frame
	err error
}

func (t *fakeTransport) ReadFrame(time.Duration) (*Frame, error) {
	if t.onRead != nil {
		t.onRead()
	}
	if t.closed {
		return nil, ErrClosed
	}
	if t.idx >= len(t.steps) {
		return nil, ErrReadTimeout
	}
	s := t.steps[t.idx]
	t.idx++
	return s.f, s.err
}

func (t *fakeTransport) WriteFrame(f *Frame) error {
	if t.closed {
		return ErrClosed
	}
	t.written = append(t.written, f)
	return nil
}

func (t *fakeTransport) Closed() bool { return t.closed }
func (t *fakeTransport) Close() error { t.closed = true; return nil }

func startFrame(streamSID, callSID string) step {
	return step{f: &Frame{Event: EventStart, Start: &StartPayload{StreamSID: streamSID, CallSID: callSID}}}
}

func stopFrame() step {
	return step{f: &Frame{Event: EventStop}}
}

// mediaStep encodes a constant-amplitude PCM chunk as a wire media frame.
func mediaStep(t *testing.T, amplitude int16, samples int) step {
	t.Helper()
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		pcm[i*2] = byte(uint16(amplitude))
		pcm[i*2+1] = byte(uint16(amplitude) >> 8)
	}
	mulaw, err := audio.EncodeMulaw(pcm)
	if err != nil {
		t.Fatalf("encode test chunk: %v", err)
	}
	payload := base64.StdEncoding.EncodeToString(mulaw)
	return step{f: &Frame{Event: EventMedia, Media: &MediaPayload{Payload: payload}}}
}

func newTestCollector() (*Collector, *time.Time) {
	det := vad.New(vad.Config{
		EnergyThreshold: 500,
		WindowChunks:    2,
		MaxSilence:      200 * time.Millisecond,
		MinSpeech:       50 * time.Millisecond,
		MaxSpeechFrames: 1000,
	})
	c := NewCollector(det, 100*time.Millisecond, 5*time.Second)
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	c.SetClock(clock)
	det.SetClock(clock)
	return c, &now
}

func TestCollectSilenceGapTrimsTrailingSilence(t *testing.T) {
	c, now := newTestCollector()

	// 2s of speech, then silence; the finalized utterance must carry the
	// speech, not the trailing-silence tail.
	steps := []step{startFrame("MZ1", "CA1")}
	speechChunks := 100 // 100 x 20ms = 2s
	for i := 0; i < speechChunks; i++ {
		steps = append(steps, mediaStep(t, 4000, 160))
	}
	for i := 0; i < 100; i++ {
		steps = append(steps, mediaStep(t, 0, 160))
	}
	ft := &fakeTransport{steps: steps}
	ft.onRead = func() { *now = now.Add(20 * time.Millisecond) }

	res := c.Collect(ft)
	if res.Outcome != OutcomeUtterance {
		t.Fatalf("outcome = %s, want utterance", res.Outcome)
	}
	if res.CallSID != "CA1" || res.StreamSID != "MZ1" {
		t.Fatalf("identifiers not captured: %+v", res)
	}
	// speech is 100 chunks x 320 bytes; allow the window-smearing chunks
	// at the boundary but not the full silence tail
	speechBytes := speechChunks * 320
	if len(res.PCM) < speechBytes || len(res.PCM) > speechBytes+5*320 {
		t.Fatalf("finalized %d bytes, want about %d", len(res.PCM), speechBytes)
	}

	// start handshake must have been acknowledged
	if len(ft.written) != 1 || ft.written[0].Event != EventMark || ft.written[0].Mark.Name != MarkReady {
		t.Fatalf("expected a single ready mark ack, got %+v", ft.written)
	}
}

func TestCollectStopReturnsBuffer(t *testing.T) {
	c, _ := newTestCollector()
	ft := &fakeTransport{steps: []step{
		startFrame("MZ2", "CA2"),
		mediaStep(t, 4000, 160),
		stopFrame(),
	}}
	res := c.Collect(ft)
	if res.Outcome != OutcomeStreamStopped {
		t.Fatalf("outcome = %s, want stream_stopped", res.Outcome)
	}
	if len(res.PCM) != 320 {
		t.Fatalf("buffered %d bytes, want 320", len(res.PCM))
	}
}

func TestCollectIdleTimeout(t *testing.T) {
	c, now := newTestCollector()
	ft := &fakeTransport{}
	ft.onRead = func() { *now = now.Add(500 * time.Millisecond) }

	res := c.Collect(ft)
	if res.Outcome != OutcomeIdleTimeout {
		t.Fatalf("outcome = %s, want idle_timeout", res.Outcome)
	}
}

func TestCollectTransportError(t *testing.T) {
	c, _ := newTestCollector()
	ft := &fakeTransport{steps: []step{{err: ErrClosed}}}
	res := c.Collect(ft)
	if res.Outcome != OutcomeTransportError {
		t.Fatalf("outcome = %s, want transport_error", res.Outcome)
	}
}

func TestCollectSkipsMalformedFrames(t *testing.T) {
	c, _ := newTestCollector()
	ft := &fakeTransport{steps: []step{
		startFrame("MZ3", "CA3"),
		{err: ErrMalformed},
		{f: &Frame{Event: EventMedia, Media: &MediaPayload{Payload: "%%%not-base64%%%"}}},
		stopFrame(),
	}}
	res := c.Collect(ft)
	if res.Outcome != OutcomeStreamStopped {
		t.Fatalf("outcome = %s, want stream_stopped", res.Outcome)
	}
	if len(res.PCM) != 0 {
		t.Fatalf("undecodable chunks must be dropped, got %d bytes", len(res.PCM))
	}
}

func TestAwaitStartHandshake(t *testing.T) {
	c, _ := newTestCollector()
	ft := &fakeTransport{steps: []step{startFrame("MZ4", "CA4")}}
	if got := c.AwaitStart(ft); got != OutcomeUtterance {
		t.Fatalf("await start = %s", got)
	}
	if !c.Started() || c.StreamSID() != "MZ4" || c.CallSID() != "CA4" {
		t.Fatalf("handshake state not captured: started=%v stream=%s call=%s", c.Started(), c.StreamSID(), c.CallSID())
	}
	if len(ft.written) != 1 || ft.written[0].Mark.Name != MarkReady {
		t.Fatalf("expected ready ack, got %+v", ft.written)
	}
	// second call is a no-op once started
	if got := c.AwaitStart(ft); got != OutcomeUtterance {
		t.Fatalf("repeat await start = %s", got)
	}
}

func TestAwaitStartStop(t *testing.T) {
	c, _ := newTestCollector()
	ft := &fakeTransport{steps: []step{stopFrame()}}
	if got := c.AwaitStart(ft); got != OutcomeStreamStopped {
		t.Fatalf("await start = %s, want stream_stopped", got)
	}
}
