package stream

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/sania040/aiagent/internal/audio"
	"github.com/sania040/aiagent/internal/logging"
	"github.com/sania040/aiagent/internal/vad"
)

// Outcome reports how a collection cycle ended.
type Outcome string

const (
	// OutcomeUtterance means the VAD finalized a complete utterance.
	OutcomeUtterance Outcome = "utterance"
	// OutcomeStreamStopped means the far end sent a stop frame; the result
	// carries whatever was buffered, possibly nothing.
	OutcomeStreamStopped Outcome = "stream_stopped"
	// OutcomeIdleTimeout means no activity arrived within the idle ceiling.
	OutcomeIdleTimeout Outcome = "idle_timeout"
	// OutcomeTransportError means the transport failed or disconnected.
	OutcomeTransportError Outcome = "transport_error"
)

// Result is the product of one collection cycle. PCM ownership moves to the
// caller; the collector holds no reference to it afterwards.
type Result struct {
	PCM       []byte
	Outcome   Outcome
	StreamSID string
	CallSID   string
}

// Collector owns the per-call buffering state machine: it accumulates PCM,
// drives the VAD and yields one finalized utterance per Collect call.
// Exactly one collection cycle runs per session at a time.
type Collector struct {
	det         *vad.Detector
	readTimeout time.Duration
	idleCeiling time.Duration

	// carried across cycles within one call
	started   bool
	streamSID string
	callSID   string

	now func() time.Time
}

func NewCollector(det *vad.Detector, readTimeout, idleCeiling time.Duration) *Collector {
	return &Collector{
		det:         det,
		readTimeout: readTimeout,
		idleCeiling: idleCeiling,
		now:         time.Now,
	}
}

// SetClock overrides the time source for tests.
func (c *Collector) SetClock(now func() time.Time) { c.now = now }

// AwaitStart reads frames until the start handshake completes, so a greeting
// can play before the first collection cycle. It returns OutcomeUtterance
// once the stream is ready (no audio is buffered here), or the terminal
// outcome that prevented it.
func (c *Collector) AwaitStart(t Transport) Outcome {
	if c.started {
		return OutcomeUtterance
	}
	deadline := c.now().Add(c.idleCeiling)
	for {
		f, err := t.ReadFrame(c.readTimeout)
		switch {
		case errors.Is(err, ErrReadTimeout):
			if c.now().After(deadline) {
				logging.Warnw("collector: no start frame within idle ceiling")
				return OutcomeIdleTimeout
			}
			continue
		case errors.Is(err, ErrMalformed):
			logging.Warnw("collector: dropping malformed frame", "err", err)
			continue
		case err != nil:
			return OutcomeTransportError
		}
		switch f.Event {
		case EventStart:
			c.started = true
			if f.Start != nil {
				c.streamSID = f.Start.StreamSID
				c.callSID = f.Start.CallSID
			}
			if c.streamSID == "" {
				c.streamSID = f.StreamSID
			}
			logging.Infow("collector: stream started", "call.sid", c.callSID, "stream.sid", c.streamSID)
			if werr := t.WriteFrame(markFrame(c.streamSID, MarkReady)); werr != nil {
				logging.Warnw("collector: ready ack failed", "call.sid", c.callSID, "err", werr)
				return OutcomeTransportError
			}
			return OutcomeUtterance
		case EventStop:
			return OutcomeStreamStopped
		default:
			logging.Debugw("collector: ignoring pre-start event", "event", f.Event)
		}
	}
}

// Collect reads frames until an utterance finalizes, the stream stops, the
// idle ceiling passes, or the transport fails. Per-chunk decode errors are
// logged and skipped; they never abort the cycle.
func (c *Collector) Collect(t Transport) Result {
	c.det.Reset()
	var buf []byte
	// buffer length at the last chunk the VAD counted as speech; a
	// silence-gap finalize truncates back to it so the utterance doesn't
	// carry the trailing-silence tail into transcription.
	speechEnd := 0
	lastActivity := c.now()

	for {
		f, err := t.ReadFrame(c.readTimeout)
		now := c.now()
		switch {
		case errors.Is(err, ErrReadTimeout):
			if c.det.ShouldFinalize() {
				return c.finalize(buf, speechEnd)
			}
			if now.Sub(lastActivity) >= c.idleCeiling {
				logging.Infow("collector: idle ceiling reached", "call.sid", c.callSID, "buffered_bytes", len(buf))
				return Result{PCM: buf, Outcome: OutcomeIdleTimeout, StreamSID: c.streamSID, CallSID: c.callSID}
			}
			continue
		case errors.Is(err, ErrMalformed):
			logging.Warnw("collector: dropping malformed frame", "call.sid", c.callSID, "err", err)
			continue
		case err != nil:
			logging.Warnw("collector: transport read failed", "call.sid", c.callSID, "err", err)
			return Result{PCM: buf, Outcome: OutcomeTransportError, StreamSID: c.streamSID, CallSID: c.callSID}
		}

		lastActivity = now
		switch f.Event {
		case EventStart:
			c.started = true
			if f.Start != nil {
				c.streamSID = f.Start.StreamSID
				c.callSID = f.Start.CallSID
			}
			if c.streamSID == "" {
				c.streamSID = f.StreamSID
			}
			logging.Infow("collector: stream started", "call.sid", c.callSID, "stream.sid", c.streamSID)
			// The far end waits for this acknowledgment before sending
			// media; skipping it stalls the stream.
			if werr := t.WriteFrame(markFrame(c.streamSID, MarkReady)); werr != nil {
				logging.Warnw("collector: ready ack failed", "call.sid", c.callSID, "err", werr)
				return Result{PCM: buf, Outcome: OutcomeTransportError, StreamSID: c.streamSID, CallSID: c.callSID}
			}
		case EventMedia:
			if f.Media == nil {
				logging.Warnw("collector: media frame without payload", "call.sid", c.callSID)
				continue
			}
			mulaw, derr := base64.StdEncoding.DecodeString(f.Media.Payload)
			if derr != nil {
				logging.Warnw("collector: dropping undecodable media chunk", "call.sid", c.callSID, "err", derr)
				continue
			}
			pcm := audio.DecodeMulaw(mulaw)
			buf = append(buf, pcm...)
			before := c.det.State().SpeechFrameCount
			c.det.Observe(pcm)
			if c.det.State().SpeechFrameCount > before {
				speechEnd = len(buf)
			}
			if c.det.ShouldFinalize() {
				return c.finalize(buf, speechEnd)
			}
		case EventStop:
			logging.Infow("collector: stream stopped", "call.sid", c.callSID, "buffered_bytes", len(buf))
			return Result{PCM: buf, Outcome: OutcomeStreamStopped, StreamSID: c.streamSID, CallSID: c.callSID}
		case EventMark:
			// informational echo of our own checkpoints
			name := ""
			if f.Mark != nil {
				name = f.Mark.Name
			}
			logging.Debugw("collector: mark echo", "call.sid", c.callSID, "name", name)
		default:
			logging.Debugw("collector: ignoring unknown event", "call.sid", c.callSID, "event", f.Event)
		}
	}
}

// StreamSID returns the stream identifier seen on the start frame, if any.
func (c *Collector) StreamSID() string { return c.streamSID }

// CallSID returns the call identifier seen on the start frame, if any.
func (c *Collector) CallSID() string { return c.callSID }

// Started reports whether a start frame has been received on this call.
func (c *Collector) Started() bool { return c.started }

func (c *Collector) finalize(buf []byte, speechEnd int) Result {
	if speechEnd > 0 && speechEnd < len(buf) {
		buf = buf[:speechEnd]
	}
	logging.Infow("collector: utterance finalized", "call.sid", c.callSID,
		"bytes", len(buf), "speech_frames", c.det.State().SpeechFrameCount)
	return Result{PCM: buf, Outcome: OutcomeUtterance, StreamSID: c.streamSID, CallSID: c.callSID}
}
