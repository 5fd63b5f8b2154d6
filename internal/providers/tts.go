package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sania040/aiagent/internal/audio"
	"github.com/sania040/aiagent/internal/logging"
)

// TTS synthesizes reply text to an audio buffer plus its format. A nil
// buffer with an error is a failed synthesis; the session falls back to a
// spoken apology.
type TTS interface {
	Synthesize(ctx context.Context, text, correlationID string) ([]byte, audio.Format, error)
}

// TTSClient posts reply text to a synthesis endpoint and classifies the
// returned audio by Content-Type.
type TTSClient struct {
	URL       string
	AuthToken string
	Voice     string
	Timeout   time.Duration
	Client    *http.Client
}

func NewTTSClient(url, authToken, voice string, timeout time.Duration) *TTSClient {
	return &TTSClient{
		URL:       url,
		AuthToken: authToken,
		Voice:     voice,
		Timeout:   timeout,
		Client:    &http.Client{Timeout: timeout},
	}
}

func (c *TTSClient) Synthesize(ctx context.Context, text, correlationID string) ([]byte, audio.Format, error) {
	if c.URL == "" {
		return nil, "", fmt.Errorf("%w: TTS_URL not configured", ErrPermanent)
	}
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("%w: no text provided", ErrPermanent)
	}
	body, _ := json.Marshal(map[string]string{"text": text, "voice": c.Voice})
	resp, err := postWithRetries(ctx, c.Client, c.URL, "application/json", body, c.AuthToken, c.Timeout, 2, correlationID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}
	audioBytes, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTransient, rerr)
	}
	format := formatFromContentType(resp.Header.Get("Content-Type"))
	logging.Infow("tts: audio received", "bytes", len(audioBytes), "format", string(format), "correlation_id", correlationID)
	return audioBytes, format, nil
}

func formatFromContentType(ct string) audio.Format {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return audio.FormatMP3
	case strings.Contains(ct, "wav"), strings.Contains(ct, "wave"):
		return audio.FormatWAV
	default:
		return audio.FormatPCM
	}
}
