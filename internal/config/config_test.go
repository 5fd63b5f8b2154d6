package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Vad.EnergyThreshold != 500 {
		t.Fatalf("energy threshold = %v", cfg.Vad.EnergyThreshold)
	}
	if cfg.Vad.MaxSilence != 1500*time.Millisecond {
		t.Fatalf("max silence = %v", cfg.Vad.MaxSilence)
	}
	if cfg.Stream.ChunkDuration != 20*time.Millisecond {
		t.Fatalf("chunk duration = %v", cfg.Stream.ChunkDuration)
	}
	if cfg.Session.Greeting == "" || cfg.Session.Clarification == "" || cfg.Session.Apology == "" {
		t.Fatal("fallback prompts must have defaults")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VAD_ENERGY_THRESHOLD", "750.5")
	t.Setenv("STREAM_READ_TIMEOUT_MS", "250")
	t.Setenv("PUBLIC_URL", "https://gw.example.com/")
	t.Setenv("TTS_VOICE", "alloy")

	cfg := Load()
	if cfg.Vad.EnergyThreshold != 750.5 {
		t.Fatalf("energy threshold = %v", cfg.Vad.EnergyThreshold)
	}
	if cfg.Stream.ReadTimeout != 250*time.Millisecond {
		t.Fatalf("read timeout = %v", cfg.Stream.ReadTimeout)
	}
	// trailing slash is normalized away
	if cfg.Server.PublicURL != "https://gw.example.com" {
		t.Fatalf("public url = %q", cfg.Server.PublicURL)
	}
	if cfg.Providers.TtsVoice != "alloy" {
		t.Fatalf("voice = %q", cfg.Providers.TtsVoice)
	}
}

func TestChunkDurationClamped(t *testing.T) {
	t.Setenv("STREAM_CHUNK_MS", "5")
	if cfg := Load(); cfg.Stream.ChunkDuration != 10*time.Millisecond {
		t.Fatalf("chunk duration = %v, want clamp to 10ms", cfg.Stream.ChunkDuration)
	}
	t.Setenv("STREAM_CHUNK_MS", "40")
	if cfg := Load(); cfg.Stream.ChunkDuration != 20*time.Millisecond {
		t.Fatalf("chunk duration = %v, want clamp to 20ms", cfg.Stream.ChunkDuration)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("VAD_WINDOW", "not-a-number")
	if cfg := Load(); cfg.Vad.WindowChunks != 10 {
		t.Fatalf("window = %d, want default 10", cfg.Vad.WindowChunks)
	}
}
