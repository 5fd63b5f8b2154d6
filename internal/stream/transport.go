package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrReadTimeout reports that no frame arrived within the per-read
	// deadline. The collector uses it to re-evaluate idle-based finalize
	// conditions; it is not a transport failure.
	ErrReadTimeout = errors.New("frame read timed out")
	// ErrClosed reports that the transport is gone. Writes after closure
	// are a recoverable no-op for the caller, never an escalation.
	ErrClosed = errors.New("transport closed")
	// ErrMalformed reports a frame that could not be decoded. The frame is
	// dropped; the stream continues.
	ErrMalformed = errors.New("malformed frame")
)

// Transport is the bidirectional frame stream of one call. It is owned by a
// single session task; only that task may read or write it.
type Transport interface {
	// ReadFrame blocks up to timeout for the next inbound frame.
	ReadFrame(timeout time.Duration) (*Frame, error)
	WriteFrame(f *Frame) error
	// Closed reports whether the transport has been observed closed.
	Closed() bool
	// Close is idempotent.
	Close() error
}

// WSTransport adapts a websocket connection to the Transport interface,
// serializing frames as JSON text messages. A dedicated reader goroutine
// pumps inbound messages into a channel so that a ReadFrame timeout is a
// recoverable wait: the websocket library treats every read error, deadline
// expiry included, as fatal to the connection, so the read itself must
// never carry the deadline.
type WSTransport struct {
	conn    *websocket.Conn
	inbound chan readResult
	done    chan struct{}

	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

type readResult struct {
	frame *Frame
	err   error
}

func NewWSTransport(conn *websocket.Conn) *WSTransport {
	t := &WSTransport{
		conn:    conn,
		inbound: make(chan readResult, 16),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// readLoop owns all reads on the connection. Malformed frames are delivered
// as recoverable errors and reading continues; the first fatal read error
// is delivered and ends the loop.
func (t *WSTransport) readLoop() {
	defer close(t.inbound)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.markClosed()
			t.deliver(readResult{err: fmt.Errorf("%w: %v", ErrClosed, err)})
			return
		}
		var f Frame
		if jerr := json.Unmarshal(data, &f); jerr != nil {
			if !t.deliver(readResult{err: fmt.Errorf("%w: %v", ErrMalformed, jerr)}) {
				return
			}
			continue
		}
		if f.Event == "" {
			if !t.deliver(readResult{err: fmt.Errorf("%w: missing event tag", ErrMalformed)}) {
				return
			}
			continue
		}
		if !t.deliver(readResult{frame: &f}) {
			return
		}
	}
}

// deliver hands a read result to the session, giving up when the transport
// is locally closed so the loop cannot block on an abandoned channel.
func (t *WSTransport) deliver(r readResult) bool {
	select {
	case t.inbound <- r:
		return true
	case <-t.done:
		return false
	}
}

// ReadFrame waits up to timeout for the next inbound frame. A timeout is
// recoverable; a frame that arrives later is delivered to a later call.
func (t *WSTransport) ReadFrame(timeout time.Duration) (*Frame, error) {
	select {
	case r, ok := <-t.inbound:
		if !ok {
			return nil, ErrClosed
		}
		return r.frame, r.err
	case <-time.After(timeout):
		return nil, ErrReadTimeout
	}
}

func (t *WSTransport) WriteFrame(f *Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err := t.conn.WriteJSON(f); err != nil {
		t.closed = true
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (t *WSTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *WSTransport) Close() error {
	t.markClosed()
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

func (t *WSTransport) markClosed() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}
