package telephony

import (
	"encoding/xml"
)

// VoiceResponse is the instruction document returned to the telephony
// provider when a call connects. The Start/Stream pair tells it to open a
// bidirectional media stream to our websocket endpoint.
type VoiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Start   *Start   `xml:"Start,omitempty"`
	Pause   *Pause   `xml:"Pause,omitempty"`
}

type Start struct {
	Stream Stream `xml:"Stream"`
}

type Stream struct {
	URL string `xml:"url,attr"`
}

// Pause keeps the call leg open while the media stream carries the actual
// conversation.
type Pause struct {
	Length int `xml:"length,attr"`
}

// StreamTwiML renders the voice document pointing the media stream at
// wsURL. maxSeconds bounds the call; the session normally ends it sooner.
func StreamTwiML(wsURL string, maxSeconds int) ([]byte, error) {
	doc := VoiceResponse{
		Start: &Start{Stream: Stream{URL: wsURL}},
		Pause: &Pause{Length: maxSeconds},
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
