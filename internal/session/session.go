// Package session runs the per-call conversation loop: collect an
// utterance, transcribe it, generate a reply, synthesize it and stream it
// back, until the caller hangs up or the dialogue signals completion.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sania040/aiagent/internal/audio"
	"github.com/sania040/aiagent/internal/config"
	"github.com/sania040/aiagent/internal/logging"
	"github.com/sania040/aiagent/internal/providers"
	"github.com/sania040/aiagent/internal/stream"
	"github.com/sania040/aiagent/internal/vad"
)

// Deps are the constructed collaborators injected at session start. The
// provider clients are stateless and shared read-only across sessions.
type Deps struct {
	STT       providers.STT
	Dialogue  providers.Dialogue
	TTS       providers.TTS
	Extractor Extractor
	Store     *TranscriptStore
}

// Session orchestrates one call. All state is confined to the session's own
// task; the lead accumulator has its own lock because the detached
// extraction task merges into it.
type Session struct {
	cfg  config.Config
	deps Deps

	collector *stream.Collector
	egress    *stream.Egress

	active    bool
	turnCount int
	startedAt time.Time

	transcript []Entry
	history    []providers.Message

	leadMu sync.Mutex
	lead   LeadInfo

	wg sync.WaitGroup
}

func New(cfg config.Config, deps Deps) *Session {
	det := vad.New(vad.Config{
		EnergyThreshold: cfg.Vad.EnergyThreshold,
		WindowChunks:    cfg.Vad.WindowChunks,
		MaxSilence:      cfg.Vad.MaxSilence,
		MinSpeech:       cfg.Vad.MinSpeech,
		MaxSpeechFrames: cfg.Vad.MaxSpeechFrames,
	})
	return &Session{
		cfg:       cfg,
		deps:      deps,
		collector: stream.NewCollector(det, cfg.Stream.ReadTimeout, cfg.Stream.IdleCeiling),
		egress:    stream.NewEgress(cfg.Stream.ChunkDuration),
		startedAt: time.Now(),
	}
}

// minUtteranceBytes is the noise floor: buffers shorter than this much audio
// are discarded without invoking STT.
func (s *Session) minUtteranceBytes() int {
	return int(s.cfg.Session.MinUtterance.Seconds() * float64(audio.SampleRate) * float64(audio.BytesPerSample))
}

// Run drives the call to completion. It always finalizes: transcript flush,
// buffer release and an idempotent transport close.
func (s *Session) Run(ctx context.Context, t stream.Transport) {
	s.active = true
	defer s.end(t)

	// Greeting precedes the loop; it needs the start handshake so frames
	// carry the right stream identifier.
	switch s.collector.AwaitStart(t) {
	case stream.OutcomeUtterance:
	default:
		logging.Infow("session: stream never started", "call.sid", s.collector.CallSID())
		return
	}
	if s.cfg.Session.Greeting != "" {
		cid := uuid.NewString()
		played, alive := s.speak(ctx, t, s.cfg.Session.Greeting, cid)
		if !alive {
			return
		}
		if played {
			s.transcript = append(s.transcript, Entry{Speaker: "agent", Text: s.cfg.Session.Greeting, At: time.Now()})
		}
	}

	for s.active && ctx.Err() == nil {
		res := s.collector.Collect(t)
		switch res.Outcome {
		case stream.OutcomeUtterance:
			if len(res.PCM) < s.minUtteranceBytes() {
				logging.Debugw("session: discarding sub-floor utterance", "call.sid", res.CallSID, "bytes", len(res.PCM))
				continue
			}
			s.runTurn(ctx, t, res)
		case stream.OutcomeStreamStopped:
			if len(res.PCM) >= s.minUtteranceBytes() {
				// the far end stopped mid-utterance; process what we have
				s.runTurn(ctx, t, res)
			}
			s.active = false
		case stream.OutcomeIdleTimeout:
			logging.Infow("session: caller idle, ending call", logging.CallFields(res.CallSID)...)
			s.active = false
		case stream.OutcomeTransportError:
			s.active = false
		}
	}
}

// runTurn takes one finalized utterance through STT, dialogue and TTS. A
// provider failure ends the turn with a spoken fallback, never the call.
func (s *Session) runTurn(ctx context.Context, t stream.Transport, res stream.Result) {
	cid := uuid.NewString()
	fields := logging.TurnFields(res.CallSID, s.turnCount+1, cid)

	sttCtx, cancel := context.WithTimeout(ctx, s.cfg.Providers.SttTimeout)
	text, err := s.deps.STT.Transcribe(sttCtx, res.PCM, cid)
	cancel()
	if err != nil || text == "" {
		if err != nil {
			logging.Warnw("session: transcription unavailable", append(fields, "err", err)...)
		} else {
			logging.Infow("session: empty transcript, asking to repeat", fields...)
		}
		s.speak(ctx, t, s.cfg.Session.Clarification, cid)
		return
	}
	s.transcript = append(s.transcript, Entry{Speaker: "caller", Text: text, At: time.Now()})
	logging.Infow("session: caller said", append(fields, "text", text)...)

	dlgCtx, cancel := context.WithTimeout(ctx, s.cfg.Providers.DialogueTimeout)
	reply, err := s.deps.Dialogue.Reply(dlgCtx, s.history, text, cid)
	cancel()
	if err != nil || reply.Text == "" {
		logging.Warnw("session: dialogue unavailable", append(fields, "err", err)...)
		s.speak(ctx, t, s.cfg.Session.Apology, cid)
		return
	}
	s.turnCount++
	s.history = append(s.history,
		providers.Message{Role: "user", Content: text},
		providers.Message{Role: "assistant", Content: reply.Text},
	)
	logging.Infow("session: agent replies", append(fields, "text", reply.Text, "done", reply.Done)...)

	// Detached best-effort side work; the session never waits on it and
	// its failure is only logged.
	if s.deps.Extractor != nil {
		turnText := text + "\n" + reply.Text
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			info, xerr := s.deps.Extractor.Extract(context.Background(), turnText)
			if xerr != nil {
				logging.Debugw("session: lead extraction failed", append(fields, "err", xerr)...)
				return
			}
			if !info.Empty() {
				s.leadMu.Lock()
				s.lead.Merge(info)
				s.leadMu.Unlock()
				logging.Debugw("session: lead info updated", fields...)
			}
		}()
	}

	played, alive := s.speak(ctx, t, reply.Text, cid)
	if played {
		s.transcript = append(s.transcript, Entry{Speaker: "agent", Text: reply.Text, At: time.Now()})
	}
	if !alive {
		return
	}
	if reply.Done {
		logging.Infow("session: conversation complete", fields...)
		s.active = false
	}
}

// speak synthesizes text and streams it to the caller, falling back to the
// apology line when synthesis fails. It reports whether the given text was
// actually played, so only heard speech enters the transcript, and whether
// the transport is still usable; on closure it short-circuits to Ended.
func (s *Session) speak(ctx context.Context, t stream.Transport, text, correlationID string) (played, alive bool) {
	lines := []string{text}
	if text != s.cfg.Session.Apology {
		lines = append(lines, s.cfg.Session.Apology)
	}
	for i, line := range lines {
		data, format, err := s.synthesize(ctx, line, correlationID)
		if err != nil {
			logging.Warnw("session: synthesis failed", "err", err, "correlation_id", correlationID)
			continue
		}
		outcome, serr := s.egress.Stream(ctx, t, data, format, s.collector.StreamSID())
		if serr != nil {
			logging.Warnw("session: playback conversion failed", "err", serr, "correlation_id", correlationID)
			return false, true
		}
		if outcome == stream.EgressTransportClosed {
			s.active = false
			return false, false
		}
		return i == 0, true
	}
	logging.Warnw("session: all synthesis attempts failed, skipping playback", "correlation_id", correlationID)
	return false, true
}

func (s *Session) synthesize(ctx context.Context, text, correlationID string) ([]byte, audio.Format, error) {
	ttsCtx, cancel := context.WithTimeout(ctx, s.cfg.Providers.TtsTimeout)
	defer cancel()
	return s.deps.TTS.Synthesize(ttsCtx, text, correlationID)
}

// end flushes the transcript, waits briefly for detached work, and closes
// the transport. Close is idempotent; calling it on an already-gone
// transport is a no-op.
func (s *Session) end(t stream.Transport) {
	s.active = false
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logging.Debugw("session: abandoning detached work at call end")
	}

	rec := Record{
		CallSID:    s.collector.CallSID(),
		StartedAt:  s.startedAt,
		EndedAt:    time.Now(),
		TurnCount:  s.turnCount,
		Transcript: s.transcript,
	}
	s.leadMu.Lock()
	if !s.lead.Empty() {
		lead := s.lead
		rec.Lead = &lead
	}
	s.leadMu.Unlock()
	_ = s.deps.Store.Flush(rec)

	_ = t.Close()
	logging.Infow("session: ended", append(logging.CallFields(rec.CallSID), "turns", s.turnCount, "entries", len(s.transcript))...)
}

// TurnCount reports completed dialogue turns.
func (s *Session) TurnCount() int { return s.turnCount }

// Transcript returns the ordered (speaker, text) log.
func (s *Session) Transcript() []Entry { return s.transcript }

// Lead returns a copy of the accumulated lead info.
func (s *Session) Lead() LeadInfo {
	s.leadMu.Lock()
	defer s.leadMu.Unlock()
	return s.lead
}
