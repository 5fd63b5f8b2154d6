// Package vad classifies a stream of PCM chunks into speech and silence and
// decides when the caller has finished an utterance.
package vad

import (
	"encoding/binary"
	"math"
	"time"
)

// Config holds the finalize-trigger thresholds. These are tuning knobs, not
// fixed requirements; defaults come from internal/config.
type Config struct {
	// EnergyThreshold is compared against the mean RMS over the window.
	EnergyThreshold float64
	// WindowChunks is the ring-buffer capacity of per-chunk RMS values.
	WindowChunks int
	// MaxSilence is the trailing silence gap that ends an utterance.
	MaxSilence time.Duration
	// MinSpeech guards against finalizing on a single cough or micro-pause.
	MinSpeech time.Duration
	// MaxSpeechFrames caps continuous speech so a monologue cannot grow the
	// buffer without bound.
	MaxSpeechFrames int
}

// State tracks speech observations within one collection cycle. It is reset
// at the start of each cycle and never mid-utterance.
type State struct {
	SpeechDetected   bool
	SpeechStartTime  time.Time
	LastSpeechTime   time.Time
	SpeechFrameCount int
}

// Detector consumes PCM chunks and exposes the end-of-utterance decision.
// It is owned by a single collection loop and is not safe for concurrent use.
type Detector struct {
	cfg    Config
	window []float64
	head   int
	filled int
	state  State

	now func() time.Time
}

func New(cfg Config) *Detector {
	if cfg.WindowChunks <= 0 {
		cfg.WindowChunks = 10
	}
	return &Detector{
		cfg:    cfg,
		window: make([]float64, cfg.WindowChunks),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Tests use this to drive the silence
// gap without sleeping.
func (d *Detector) SetClock(now func() time.Time) { d.now = now }

// State returns a copy of the current utterance state.
func (d *Detector) State() State { return d.state }

// Observe feeds one PCM16LE chunk into the energy window and updates the
// speech state.
func (d *Detector) Observe(pcm []byte) {
	d.window[d.head] = rms(pcm)
	d.head = (d.head + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}

	var sum float64
	for i := 0; i < d.filled; i++ {
		sum += d.window[i]
	}
	mean := sum / float64(d.filled)

	if mean > d.cfg.EnergyThreshold {
		now := d.now()
		if !d.state.SpeechDetected {
			d.state.SpeechDetected = true
			d.state.SpeechStartTime = now
		}
		d.state.LastSpeechTime = now
		d.state.SpeechFrameCount++
	}
}

// ShouldFinalize reports whether the current utterance is complete. It is
// checked after every chunk and on idle-timeout polling, so it must be pure
// with respect to the collected state.
func (d *Detector) ShouldFinalize() bool {
	if !d.state.SpeechDetected {
		return false
	}
	if d.state.SpeechFrameCount > d.cfg.MaxSpeechFrames {
		return true
	}
	now := d.now()
	silence := now.Sub(d.state.LastSpeechTime)
	spoken := d.state.LastSpeechTime.Sub(d.state.SpeechStartTime)
	return silence > d.cfg.MaxSilence && spoken > d.cfg.MinSpeech
}

// Reset clears the window and utterance state for a new collection cycle.
func (d *Detector) Reset() {
	for i := range d.window {
		d.window[i] = 0
	}
	d.head = 0
	d.filled = 0
	d.state = State{}
}

// rms computes the root-mean-square magnitude of a PCM16LE chunk.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sumSq += s * s
	}
	return math.Sqrt(sumSq / float64(n))
}
