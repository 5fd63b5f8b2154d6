// Package stream implements the media-streaming side of a call: the wire
// frame protocol, the per-call transport, inbound utterance collection and
// outbound paced playback.
package stream

// Frame event tags. Ordering within a connection is significant; frames
// arrive in send order on a single logical stream.
const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
	EventMark  = "mark"
)

// Mark names used as application-level checkpoints. MarkReady acknowledges
// the start handshake; the response marks bracket agent speech so the far
// end can distinguish it from silence.
const (
	MarkReady         = "ready"
	MarkResponseStart = "responseStart"
	MarkResponseEnd   = "responseEnd"
)

// Frame is one discrete message of the media-streaming protocol. Exactly one
// of the payload fields is set, matching the Event tag.
type Frame struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Mark      *MarkPayload  `json:"mark,omitempty"`
}

// StartPayload carries call metadata on the opening frame.
type StartPayload struct {
	StreamSID  string   `json:"streamSid"`
	CallSID    string   `json:"callSid"`
	AccountSID string   `json:"accountSid,omitempty"`
	Tracks     []string `json:"tracks,omitempty"`
}

// MediaPayload carries one block of base64-encoded mu-law samples.
type MediaPayload struct {
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
}

// MarkPayload names a checkpoint signal, echoed back by the far end.
type MarkPayload struct {
	Name string `json:"name"`
}

// markFrame builds an outbound mark frame for the given stream.
func markFrame(streamSID, name string) *Frame {
	return &Frame{Event: EventMark, StreamSID: streamSID, Mark: &MarkPayload{Name: name}}
}

// mediaFrame builds an outbound media frame with an already base64-encoded
// payload.
func mediaFrame(streamSID, payload string) *Frame {
	return &Frame{Event: EventMedia, StreamSID: streamSID, Media: &MediaPayload{Payload: payload}}
}
