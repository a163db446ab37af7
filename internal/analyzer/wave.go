package analyzer

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	fmtMinSize      = 16
)

// IsWave reports whether block starts with a RIFF/WAVE header.
func IsWave(block []byte) bool {
	return len(block) >= riffHeaderSize &&
		bytes.Equal(block[0:4], []byte("RIFF")) &&
		bytes.Equal(block[8:12], []byte("WAVE"))
}

// analyzeWave walks the RIFF subchunks until it reaches the data chunk.
func analyzeWave(block []byte) (Result, error) {
	res := Result{
		Type: TypeWave,
		Size: int64(binary.LittleEndian.Uint32(block[4:8])),
	}

	var byteRate uint32
	var dataSize uint32
	haveFmt := false

	for off := riffHeaderSize; off+chunkHeaderSize <= len(block); {
		id := string(block[off : off+4])
		size := binary.LittleEndian.Uint32(block[off+4 : off+8])
		body := off + chunkHeaderSize

		switch id {
		case "fmt ":
			if size < fmtMinSize || body+fmtMinSize > len(block) {
				return Result{}, errors.New("truncated fmt subchunk")
			}
			res.Channels = int(binary.LittleEndian.Uint16(block[body+2 : body+4]))
			res.Bitrate = int(binary.LittleEndian.Uint32(block[body+4 : body+8]))
			byteRate = binary.LittleEndian.Uint32(block[body+8 : body+12])
			res.DataBlockSize = int(binary.LittleEndian.Uint16(block[body+12 : body+14]))
			res.Resolution = int(binary.LittleEndian.Uint16(block[body+14 : body+16]))
			haveFmt = true
		case "data":
			res.SubchunkID = id
			res.SubchunkByte = off
			dataSize = size
		}
		if res.SubchunkID == "data" {
			break
		}
		// subchunks are word aligned
		off = body + int(size) + int(size&1)
	}

	if !haveFmt {
		return Result{}, errors.New("wave header without fmt subchunk")
	}
	if byteRate > 0 {
		if res.SubchunkID != "data" {
			dataSize = 0
		}
		res.Duration = float64(dataSize) / float64(byteRate)
	}
	return res, nil
}

// waveBoundary scans the data subchunk one sample frame at a time and
// returns the offset of the first non-zero frame, or 0 if none is found
// before the end of the block.
func waveBoundary(block []byte, res Result) int {
	step := res.DataBlockSize
	if res.SubchunkID != "data" || step <= 0 {
		return 0
	}
	for off := res.SubchunkByte + chunkHeaderSize; off+step < len(block); off += step {
		if !isZero(block[off : off+step]) {
			return off
		}
	}
	return 0
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
