package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// Format identifies the container/encoding of a synthesized audio buffer.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	// FormatPCM is raw 16-bit little-endian samples already at the
	// telephony rate, mono.
	FormatPCM Format = "pcm"
)

// ToTelephonyPCM converts an arbitrary synthesized audio buffer into the
// fixed telephony profile (8kHz, mono, 16-bit PCM). This runs once per
// response before the buffer is framed for the wire.
func ToTelephonyPCM(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatMP3:
		pcm, rate, channels, err := decodeMP3(data)
		if err != nil {
			return nil, err
		}
		return Reformat(pcm, rate, channels)
	case FormatWAV:
		info, err := ParseWAV(data)
		if err != nil {
			return nil, err
		}
		return Reformat(info.Data, info.SampleRate, info.Channels)
	case FormatPCM:
		if len(data)%BytesPerSample != 0 {
			return nil, fmt.Errorf("raw pcm buffer has odd length %d", len(data))
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported audio format %q", format)
	}
}

// decodeMP3 returns interleaved PCM16LE plus its rate and channel count.
// go-mp3 always emits 16-bit stereo.
func decodeMP3(data []byte) ([]byte, int, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("mp3 decode: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("mp3 decode: %w", err)
	}
	return pcm, dec.SampleRate(), 2, nil
}

// Reformat downmixes interleaved PCM16LE to mono and resamples it to the
// telephony rate by linear interpolation. Interpolation is acceptable here:
// the target is narrowband 8kHz speech that gets companded to 8 bits anyway.
func Reformat(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid pcm profile rate=%d channels=%d", sampleRate, channels)
	}
	if len(pcm)%(BytesPerSample*channels) != 0 {
		return nil, fmt.Errorf("pcm length %d not aligned to %d channel frames", len(pcm), channels)
	}
	frames := len(pcm) / (BytesPerSample * channels)
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var acc int32
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			acc += int32(int16(binary.LittleEndian.Uint16(pcm[off : off+2])))
		}
		mono[i] = int16(acc / int32(channels))
	}
	if sampleRate == SampleRate {
		return samplesToBytes(mono), nil
	}

	outFrames := frames * SampleRate / sampleRate
	out := make([]int16, outFrames)
	ratio := float64(sampleRate) / float64(SampleRate)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= frames-1 {
			out[i] = mono[frames-1]
			continue
		}
		frac := pos - float64(j)
		a := float64(mono[j])
		b := float64(mono[j+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return samplesToBytes(out), nil
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}
