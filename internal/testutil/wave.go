package testutil

import (
	"bytes"
	"encoding/binary"
)

// Wave builds a canonical 44-byte-header PCM WAVE file: 16-bit samples at
// 44.1kHz with the given channel count, leadingZeroFrames frames of digital
// silence, then audio.
func Wave(channels, leadingZeroFrames int, audio []byte) []byte {
	const rate = 44100
	const bits = 16
	blockAlign := channels * bits / 8
	dataSize := leadingZeroFrames*blockAlign + len(audio)

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataSize))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(channels))
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*blockAlign))
	binary.Write(&b, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&b, binary.LittleEndian, uint16(bits))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataSize))
	b.Write(make([]byte, leadingZeroFrames*blockAlign))
	b.Write(audio)
	return b.Bytes()
}

// Noise returns n deterministic non-zero bytes.
func Noise(n int, seed byte) []byte {
	out := make([]byte, n)
	x := uint32(seed) | 1
	for i := range out {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		out[i] = byte(x) | 1
	}
	return out
}
