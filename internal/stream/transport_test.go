package stream

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newWSPair upgrades a real websocket connection and returns the transport
// over the client side plus the raw server side acting as the far end.
func newWSPair(t *testing.T) (*WSTransport, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- c
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	tr := NewWSTransport(client)
	t.Cleanup(func() { tr.Close() })
	peer := <-serverSide
	t.Cleanup(func() { peer.Close() })
	return tr, peer
}

func TestWSTransportFrameAfterTimeout(t *testing.T) {
	tr, peer := newWSPair(t)

	// a quiet interval must surface as a recoverable timeout
	if _, err := tr.ReadFrame(100 * time.Millisecond); !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("read on quiet stream: %v, want ErrReadTimeout", err)
	}

	// the connection must still deliver frames sent after the timeout
	if err := peer.WriteJSON(&Frame{Event: EventMedia, Media: &MediaPayload{Payload: "AAAA"}}); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	f, err := tr.ReadFrame(2 * time.Second)
	if err != nil {
		t.Fatalf("read after timeout: %v", err)
	}
	if f.Event != EventMedia || f.Media == nil || f.Media.Payload != "AAAA" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestWSTransportPeerClose(t *testing.T) {
	tr, peer := newWSPair(t)
	peer.Close()

	var err error
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, err = tr.ReadFrame(time.Second)
		if err != nil && !errors.Is(err, ErrReadTimeout) {
			break
		}
	}
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("read after peer close: %v, want ErrClosed", err)
	}
	if !tr.Closed() {
		t.Fatal("Closed() must report true after peer close")
	}
	if werr := tr.WriteFrame(markFrame("MZ", MarkReady)); !errors.Is(werr, ErrClosed) {
		t.Fatalf("write after close: %v, want ErrClosed", werr)
	}
}

func TestWSTransportMalformedFrameRecoverable(t *testing.T) {
	tr, peer := newWSPair(t)

	if err := peer.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	if _, err := tr.ReadFrame(2 * time.Second); !errors.Is(err, ErrMalformed) {
		t.Fatalf("garbage frame: %v, want ErrMalformed", err)
	}

	// the tagless-but-valid-JSON case is also dropped, not fatal
	if err := peer.WriteMessage(websocket.TextMessage, []byte(`{"foo":"bar"}`)); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	if _, err := tr.ReadFrame(2 * time.Second); !errors.Is(err, ErrMalformed) {
		t.Fatalf("tagless frame: %v, want ErrMalformed", err)
	}

	if err := peer.WriteJSON(&Frame{Event: EventStop}); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	f, err := tr.ReadFrame(2 * time.Second)
	if err != nil {
		t.Fatalf("read after malformed frames: %v", err)
	}
	if f.Event != EventStop {
		t.Fatalf("event = %q, want stop", f.Event)
	}
}

func TestWSTransportWriteReachesPeer(t *testing.T) {
	tr, peer := newWSPair(t)

	if err := tr.WriteFrame(markFrame("MZ9", MarkResponseStart)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var f Frame
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := peer.ReadJSON(&f); err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if f.Event != EventMark || f.Mark == nil || f.Mark.Name != MarkResponseStart || f.StreamSID != "MZ9" {
		t.Fatalf("peer received %+v", f)
	}
}

func TestWSTransportCloseIdempotent(t *testing.T) {
	tr, _ := newWSPair(t)

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !tr.Closed() {
		t.Fatal("Closed() false after Close")
	}
	if err := tr.WriteFrame(markFrame("MZ", MarkReady)); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after local close: %v, want ErrClosed", err)
	}
}
