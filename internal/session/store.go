package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sania040/aiagent/internal/logging"
)

// Entry is one line of the call transcript, in utterance order.
type Entry struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Record is the unit flushed to disk when a call ends.
type Record struct {
	CallSID    string    `json:"call_sid"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	TurnCount  int       `json:"turn_count"`
	Transcript []Entry   `json:"transcript"`
	Lead       *LeadInfo `json:"lead,omitempty"`
}

// TranscriptStore persists call records as JSON files, one per call. A store
// with an empty directory is a no-op.
type TranscriptStore struct {
	Dir string
}

func NewTranscriptStore(dir string) *TranscriptStore {
	return &TranscriptStore{Dir: dir}
}

// Flush writes the record atomically. Failure to persist is a resource
// error: it is logged and the call still ends gracefully.
func (s *TranscriptStore) Flush(rec Record) error {
	if s == nil || s.Dir == "" {
		return nil
	}
	name := rec.CallSID
	if name == "" {
		name = rec.StartedAt.UTC().Format("20060102T150405.000Z")
	}
	path := filepath.Join(s.Dir, fmt.Sprintf("call_%s.json", name))
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := saveFileAtomic(path, b, 0o644); err != nil {
		logging.Warnw("transcript: flush failed", "path", path, "err", err, "call.sid", rec.CallSID)
		return err
	}
	logging.Infow("transcript: flushed", "path", path, "entries", len(rec.Transcript), "call.sid", rec.CallSID)
	return nil
}

// saveFileAtomic writes data to path atomically by writing to a tmp file in
// the same directory, fsyncing, closing, and renaming into place.
func saveFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
