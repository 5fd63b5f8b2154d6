package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the gateway.
type Config struct {
	Server    ServerConfig
	Vad       VadConfig
	Stream    StreamConfig
	Providers ProvidersConfig
	Twilio    TwilioConfig
	Session   SessionConfig
}

type ServerConfig struct {
	Addr      string
	PublicURL string // externally reachable base URL (https://...), used in TwiML
}

type VadConfig struct {
	// EnergyThreshold is the mean-RMS level above which a chunk window
	// counts as speech. Tuned against the silence floor of 8kHz mu-law
	// telephony audio.
	EnergyThreshold float64
	WindowChunks    int
	MaxSilence      time.Duration
	MinSpeech       time.Duration
	// MaxSpeechFrames caps continuous monologues; at 20ms chunks the
	// default is about ten seconds of audio.
	MaxSpeechFrames int
}

type StreamConfig struct {
	ReadTimeout   time.Duration // per-frame read deadline
	IdleCeiling   time.Duration // give up waiting for any activity
	ChunkDuration time.Duration // outbound frame duration, 10-20ms
}

type ProvidersConfig struct {
	SttURL          string
	SttToken        string
	SttTimeout      time.Duration
	DialogueURL     string
	DialogueToken   string
	DialogueModel   string
	FallbackModel   string
	DialogueTimeout time.Duration
	TtsURL          string
	TtsToken        string
	TtsVoice        string
	TtsTimeout      time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	ToNumber   string
	APIBaseURL string
}

type SessionConfig struct {
	Greeting      string
	Clarification string
	Apology       string
	// MinUtterance discards buffers shorter than this much audio as noise.
	MinUtterance  time.Duration
	TranscriptDir string
}

// Load resolves configuration from environment variables and sensible
// defaults. Durations are configured in milliseconds.
func Load() Config {
	cfg := Config{
		Server: ServerConfig{
			Addr:      envOrDefault("GATEWAY_ADDR", ":8080"),
			PublicURL: strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_URL")), "/"),
		},
		Vad: VadConfig{
			EnergyThreshold: envOrDefaultFloat("VAD_ENERGY_THRESHOLD", 500),
			WindowChunks:    envOrDefaultInt("VAD_WINDOW", 10),
			MaxSilence:      envOrDefaultMs("VAD_MAX_SILENCE_MS", 1500),
			MinSpeech:       envOrDefaultMs("VAD_MIN_SPEECH_MS", 1000),
			MaxSpeechFrames: envOrDefaultInt("VAD_MAX_SPEECH_FRAMES", 500),
		},
		Stream: StreamConfig{
			ReadTimeout:   envOrDefaultMs("STREAM_READ_TIMEOUT_MS", 500),
			IdleCeiling:   envOrDefaultMs("STREAM_IDLE_CEILING_MS", 10000),
			ChunkDuration: envOrDefaultMs("STREAM_CHUNK_MS", 20),
		},
		Providers: ProvidersConfig{
			SttURL:          strings.TrimSpace(os.Getenv("STT_URL")),
			SttToken:        strings.TrimSpace(os.Getenv("STT_AUTH_TOKEN")),
			SttTimeout:      envOrDefaultMs("STT_TIMEOUT_MS", 15000),
			DialogueURL:     strings.TrimSpace(os.Getenv("DIALOGUE_URL")),
			DialogueToken:   strings.TrimSpace(os.Getenv("DIALOGUE_AUTH_TOKEN")),
			DialogueModel:   strings.TrimSpace(os.Getenv("DIALOGUE_MODEL")),
			FallbackModel:   strings.TrimSpace(os.Getenv("DIALOGUE_FALLBACK_MODEL")),
			DialogueTimeout: envOrDefaultMs("DIALOGUE_TIMEOUT_MS", 30000),
			TtsURL:          strings.TrimSpace(os.Getenv("TTS_URL")),
			TtsToken:        strings.TrimSpace(os.Getenv("TTS_AUTH_TOKEN")),
			TtsVoice:        envOrDefault("TTS_VOICE", "nova"),
			TtsTimeout:      envOrDefaultMs("TTS_TIMEOUT_MS", 10000),
		},
		Twilio: TwilioConfig{
			AccountSID: strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
			AuthToken:  strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
			FromNumber: strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER")),
			ToNumber:   strings.TrimSpace(os.Getenv("CALL_TO_NUMBER")),
			APIBaseURL: envOrDefault("TWILIO_API_BASE", "https://api.twilio.com/2010-04-01"),
		},
		Session: SessionConfig{
			Greeting:      envOrDefault("GREETING_TEXT", "Hello, this is your assistant. How can I help you today?"),
			Clarification: envOrDefault("CLARIFICATION_TEXT", "Sorry, I didn't catch that. Could you say it again?"),
			Apology:       envOrDefault("APOLOGY_TEXT", "Sorry, I'm having trouble right now. Could you repeat that?"),
			MinUtterance:  envOrDefaultMs("MIN_UTTERANCE_MS", 500),
			TranscriptDir: strings.TrimSpace(os.Getenv("TRANSCRIPT_DIR")),
		},
	}

	if cfg.Vad.WindowChunks <= 0 {
		cfg.Vad.WindowChunks = 10
	}
	if cfg.Vad.MaxSpeechFrames <= 0 {
		cfg.Vad.MaxSpeechFrames = 500
	}
	if cfg.Stream.ReadTimeout <= 0 {
		cfg.Stream.ReadTimeout = 500 * time.Millisecond
	}
	// Chunks below 10ms add framing overhead with no jitter benefit;
	// above 20ms the far end hears choppy pacing.
	if cfg.Stream.ChunkDuration < 10*time.Millisecond {
		cfg.Stream.ChunkDuration = 10 * time.Millisecond
	}
	if cfg.Stream.ChunkDuration > 20*time.Millisecond {
		cfg.Stream.ChunkDuration = 20 * time.Millisecond
	}

	return cfg
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultMs(key string, defMs int) time.Duration {
	return time.Duration(envOrDefaultInt(key, defMs)) * time.Millisecond
}
