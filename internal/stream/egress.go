package stream

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/sania040/aiagent/internal/audio"
	"github.com/sania040/aiagent/internal/logging"
)

// EgressOutcome reports how an outbound playback ended.
type EgressOutcome string

const (
	EgressCompleted       EgressOutcome = "completed"
	EgressInterrupted     EgressOutcome = "interrupted"
	EgressTransportClosed EgressOutcome = "transport_closed"
)

// Egress serializes a synthesized audio buffer into wire frames and streams
// them at wall-clock pace so playback timing is correct and the outbound
// buffer can't fill faster than the far end drains it.
type Egress struct {
	chunkDur time.Duration

	sleep func(time.Duration)
}

func NewEgress(chunkDur time.Duration) *Egress {
	if chunkDur <= 0 {
		chunkDur = 20 * time.Millisecond
	}
	return &Egress{chunkDur: chunkDur, sleep: time.Sleep}
}

// SetSleep overrides the pacing sleep for tests.
func (e *Egress) SetSleep(sleep func(time.Duration)) { e.sleep = sleep }

// Stream reformats the buffer to the telephony profile once, then sends it
// as paced media frames bracketed by response marks. A conversion failure is
// returned as an error; transport closure is an outcome, not an error.
func (e *Egress) Stream(ctx context.Context, t Transport, data []byte, format audio.Format, streamSID string) (EgressOutcome, error) {
	pcm, err := audio.ToTelephonyPCM(data, format)
	if err != nil {
		return EgressInterrupted, err
	}

	frameBytes := int(e.chunkDur.Seconds()*float64(audio.SampleRate)) * audio.BytesPerSample
	if err := t.WriteFrame(markFrame(streamSID, MarkResponseStart)); err != nil {
		logging.Warnw("egress: transport closed before playback", "stream.sid", streamSID, "err", err)
		return EgressTransportClosed, nil
	}

	sent := 0
	for off := 0; off < len(pcm); off += frameBytes {
		if ctx.Err() != nil {
			logging.Infow("egress: playback interrupted", "stream.sid", streamSID, "frames_sent", sent)
			return EgressInterrupted, nil
		}
		if t.Closed() {
			logging.Infow("egress: transport closed mid-stream", "stream.sid", streamSID, "frames_sent", sent)
			return EgressTransportClosed, nil
		}

		end := off + frameBytes
		var chunk []byte
		if end <= len(pcm) {
			chunk = pcm[off:end]
		} else {
			// final partial chunk is zero-padded to the fixed frame size,
			// never dropped
			chunk = make([]byte, frameBytes)
			copy(chunk, pcm[off:])
		}
		mulaw, merr := audio.EncodeMulaw(chunk)
		if merr != nil {
			// cannot happen for frame-aligned chunks; treated as a
			// conversion failure if it ever does
			return EgressInterrupted, merr
		}
		payload := base64.StdEncoding.EncodeToString(mulaw)
		if werr := t.WriteFrame(mediaFrame(streamSID, payload)); werr != nil {
			logging.Infow("egress: transport closed mid-stream", "stream.sid", streamSID, "frames_sent", sent)
			return EgressTransportClosed, nil
		}
		sent++
		e.sleep(e.chunkDur)
	}

	if err := t.WriteFrame(markFrame(streamSID, MarkResponseEnd)); err != nil {
		return EgressTransportClosed, nil
	}
	logging.Infow("egress: playback complete", "stream.sid", streamSID, "frames_sent", sent, "pcm_bytes", len(pcm))
	return EgressCompleted, nil
}
