package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sania040/aiagent/internal/audio"
	"github.com/sania040/aiagent/internal/logging"
)

// STT transcribes finalized utterances. The service is treated as a blocking
// opaque call; an empty transcript is a valid result the session handles
// with a clarification prompt.
type STT interface {
	Transcribe(ctx context.Context, pcm []byte, correlationID string) (string, error)
}

// STTClient wraps raw PCM16LE into a WAV and POSTs it to a Whisper-style
// transcription endpoint.
type STTClient struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
	Client    *http.Client
}

func NewSTTClient(url, authToken string, timeout time.Duration) *STTClient {
	return &STTClient{
		URL:       url,
		AuthToken: authToken,
		Timeout:   timeout,
		Client:    &http.Client{Timeout: timeout},
	}
}

func (c *STTClient) Transcribe(ctx context.Context, pcm []byte, correlationID string) (string, error) {
	if c.URL == "" {
		return "", fmt.Errorf("%w: STT_URL not configured", ErrPermanent)
	}
	wav := audio.BuildWAV(pcm, audio.SampleRate, audio.Channels, 16)
	durationMs := len(pcm) / audio.BytesPerSample * 1000 / audio.SampleRate
	logging.Debugw("stt: sending audio", "bytes", len(pcm), "duration_ms", durationMs, "correlation_id", correlationID)

	sendTs := time.Now()
	resp, err := postWithRetries(ctx, c.Client, c.URL, "audio/wav", wav, c.AuthToken, c.Timeout, 3, correlationID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if derr := json.NewDecoder(resp.Body).Decode(&out); derr != nil {
		return "", fmt.Errorf("%w: decode error: %v", ErrTransient, derr)
	}
	transcript := strings.TrimSpace(out.Text)
	logging.Infow("stt: response received", "status", resp.StatusCode,
		"latency_ms", time.Since(sendTs).Milliseconds(), "transcript_len", len(transcript), "correlation_id", correlationID)
	return transcript, nil
}
