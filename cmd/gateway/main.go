package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sania040/aiagent/internal/config"
	"github.com/sania040/aiagent/internal/logging"
	"github.com/sania040/aiagent/internal/providers"
	"github.com/sania040/aiagent/internal/session"
	"github.com/sania040/aiagent/internal/stream"
	"github.com/sania040/aiagent/internal/telephony"
)

// maxCallSeconds bounds a single call leg; sessions normally hang up well
// before this through the idle timeout or a completed conversation.
const maxCallSeconds = 600

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The media stream connects from the telephony provider's cloud, not
	// a browser; origin checks don't apply.
	CheckOrigin: func(*http.Request) bool { return true },
}

type gateway struct {
	cfg     config.Config
	deps    session.Deps
	tel     *telephony.Client
	active  atomic.Int64
	rootCtx context.Context
}

func (g *gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"active_calls": g.active.Load(),
	})
}

// handleVoice answers the provider's webhook when a call connects: it
// returns the instruction document that opens the media stream back to us.
func (g *gateway) handleVoice(w http.ResponseWriter, r *http.Request) {
	wsURL := g.mediaURL()
	body, err := telephony.StreamTwiML(wsURL, maxCallSeconds)
	if err != nil {
		logging.Errorw("voice webhook: render failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	logging.Infow("voice webhook: streaming instructions served", "call.sid", r.FormValue("CallSid"), "ws_url", wsURL)
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(body)
}

// handleCall places an outbound call. The number comes from the request
// body, falling back to the configured default.
func (g *gateway) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		To string `json:"to"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	to := req.To
	if to == "" {
		to = g.cfg.Twilio.ToNumber
	}
	if to == "" {
		http.Error(w, "no destination number", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	sid, err := g.tel.PlaceCall(ctx, to, g.cfg.Server.PublicURL+"/voice", g.cfg.Server.PublicURL+"/status")
	if err != nil {
		logging.Errorw("call placement failed", "to", to, "err", err)
		http.Error(w, "call placement failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"call_sid": sid, "status": "initiated"})
}

// handleStatus receives the provider's lifecycle callbacks. They are logged
// for operators; the session tracks call state through the stream itself.
func (g *gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	logging.Infow("call status update",
		"call.sid", r.FormValue("CallSid"),
		"status", r.FormValue("CallStatus"),
		"duration", r.FormValue("CallDuration"),
	)
	w.WriteHeader(http.StatusNoContent)
}

// handleMedia upgrades to a websocket and runs one call session on it.
func (g *gateway) handleMedia(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("media upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	g.active.Add(1)
	logging.Infow("media stream connected", "remote", r.RemoteAddr)

	go func() {
		defer g.active.Add(-1)
		t := stream.NewWSTransport(conn)
		sess := session.New(g.cfg, g.deps)
		sess.Run(g.rootCtx, t)
	}()
}

// mediaURL derives the websocket endpoint from the public base URL.
func (g *gateway) mediaURL() string {
	base := g.cfg.Server.PublicURL
	switch {
	case len(base) > 8 && base[:8] == "https://":
		return "wss://" + base[8:] + "/media"
	case len(base) > 7 && base[:7] == "http://":
		return "ws://" + base[7:] + "/media"
	default:
		return base + "/media"
	}
}

func main() {
	sugar := logging.Init()
	if sugar == nil {
		l, _ := zap.NewProduction()
		defer l.Sync()
		sugar = l.Sugar()
	}

	cfg := config.Load()
	if cfg.Providers.SttURL == "" || cfg.Providers.DialogueURL == "" || cfg.Providers.TtsURL == "" {
		sugar.Fatal("STT_URL, DIALOGUE_URL and TTS_URL are required")
	}
	if cfg.Server.PublicURL == "" {
		sugar.Warn("PUBLIC_URL not set; voice webhooks will emit unusable stream URLs")
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := &gateway{
		cfg: cfg,
		deps: session.Deps{
			STT:       providers.NewSTTClient(cfg.Providers.SttURL, cfg.Providers.SttToken, cfg.Providers.SttTimeout),
			Dialogue:  providers.NewDialogueClient(cfg.Providers.DialogueURL, cfg.Providers.DialogueToken, cfg.Providers.DialogueModel, cfg.Providers.FallbackModel, cfg.Providers.DialogueTimeout),
			TTS:       providers.NewTTSClient(cfg.Providers.TtsURL, cfg.Providers.TtsToken, cfg.Providers.TtsVoice, cfg.Providers.TtsTimeout),
			Extractor: session.PatternExtractor{},
			Store:     session.NewTranscriptStore(cfg.Session.TranscriptDir),
		},
		tel:     telephony.NewClient(cfg.Twilio),
		rootCtx: rootCtx,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/voice", g.handleVoice)
	mux.HandleFunc("/call", g.handleCall)
	mux.HandleFunc("/status", g.handleStatus)
	mux.HandleFunc("/media", g.handleMedia)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("gateway listening", "addr", cfg.Server.Addr, "public_url", cfg.Server.PublicURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sugar.Infow("shutdown signal received, draining sessions")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("server shutdown: %v", err)
	}

	if l := zap.L(); l != nil {
		_ = l.Sync()
	}
	sugar.Info("shutdown complete")
}
