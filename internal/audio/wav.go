package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BuildWAV creates a simple RIFF/WAVE header for 16-bit PCM and returns the
// concatenated bytes (header + data). sampleRate in Hz, channels,
// bitsPerSample (commonly 16) are used to populate the header.
func BuildWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))
	riffSize := uint32(4 + (8 + 16) + (8 + dataLen))

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)
	return buf.Bytes()
}

// WAVInfo describes the PCM payload extracted from a RIFF/WAVE container.
type WAVInfo struct {
	SampleRate int
	Channels   int
	Bits       int
	Data       []byte
}

// ParseWAV extracts 16-bit PCM from a RIFF/WAVE container, as produced by
// TTS services. Only uncompressed PCM (format tag 1) is supported; anything
// else is an error the caller handles as a failed synthesis.
func ParseWAV(b []byte) (WAVInfo, error) {
	var info WAVInfo
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return info, fmt.Errorf("not a RIFF/WAVE container")
	}
	off := 12
	haveFmt := false
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(b) {
			return info, fmt.Errorf("truncated %q chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return info, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(b[off : off+2])
			if format != 1 {
				return info, fmt.Errorf("unsupported wav format tag %d", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(b[off+2 : off+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
			info.Bits = int(binary.LittleEndian.Uint16(b[off+14 : off+16]))
			haveFmt = true
		case "data":
			info.Data = b[off : off+size]
		}
		off += size
		// chunks are word-aligned
		if size%2 == 1 {
			off++
		}
	}
	if !haveFmt || info.Data == nil {
		return info, fmt.Errorf("wav missing fmt or data chunk")
	}
	if info.Bits != 16 {
		return info, fmt.Errorf("unsupported wav bit depth %d", info.Bits)
	}
	return info, nil
}
