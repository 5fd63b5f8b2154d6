// Package audio converts between the 8-bit mu-law companded samples used on
// the telephony wire and the linear 16-bit 8kHz mono PCM used by the STT and
// TTS providers. All functions are stateless and operate on whole chunks.
package audio

import (
	"encoding/binary"
	"fmt"
)

// Fixed telephony audio profile: 8kHz, mono, 16-bit linear PCM on the
// provider side, 8-bit mu-law on the wire.
const (
	SampleRate     = 8000
	Channels       = 1
	BytesPerSample = 2
)

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// MulawToLinear expands one mu-law byte to a linear 16-bit sample.
func MulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int(mant) << 3) + mulawBias
	value <<= uint(exp)
	value -= mulawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// LinearToMulaw compands one linear 16-bit sample to a mu-law byte.
func LinearToMulaw(sample int16) byte {
	s := int32(sample)
	sign := byte(0)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias
	exp := byte(7)
	for mask := int32(0x4000); s&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := byte((s >> (exp + 3)) & 0x0F)
	return ^(sign | exp<<4 | mant)
}

// DecodeMulaw expands a chunk of mu-law bytes to PCM16LE.
func DecodeMulaw(mulaw []byte) []byte {
	pcm := make([]byte, len(mulaw)*BytesPerSample)
	for i, u := range mulaw {
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(MulawToLinear(u)))
	}
	return pcm
}

// EncodeMulaw compands a chunk of PCM16LE to mu-law bytes. The chunk must
// hold whole samples; an odd length is a malformed chunk and is reported to
// the caller rather than silently truncated.
func EncodeMulaw(pcm []byte) ([]byte, error) {
	if len(pcm)%BytesPerSample != 0 {
		return nil, fmt.Errorf("pcm chunk has odd length %d", len(pcm))
	}
	out := make([]byte, len(pcm)/BytesPerSample)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		out[i] = LinearToMulaw(s)
	}
	return out, nil
}
