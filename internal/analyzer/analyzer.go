// Package analyzer inspects the first block of an upload, identifies known
// media containers and, for linear PCM audio, finds the dedup boundary: the
// offset of the first non-silent sample.
package analyzer

import (
	"bytes"
	"fmt"

	"github.com/jaywantadh/BlockStash/pkg/logging"
	"github.com/sirupsen/logrus"
)

// Media types reported in Result.Type.
const (
	TypeUnknown = "unknown"
	TypeWave    = "wave"
	TypeMP3     = "mp3"
	TypeFLAC    = "flac"
	TypeAIFF    = "aiff"
)

// Result describes what was learned from a block. Only Type is meaningful
// for formats recognized by signature alone.
type Result struct {
	Type          string  `json:"type"`
	Size          int64   `json:"size,omitempty"`
	Channels      int     `json:"channels,omitempty"`
	Bitrate       int     `json:"bitrate,omitempty"`
	Resolution    int     `json:"resolution,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	DataBlockSize int     `json:"data_block_size,omitempty"`
	SubchunkID    string  `json:"subchunk_id,omitempty"`
	SubchunkByte  int     `json:"subchunk_byte,omitempty"`

	// Boundary is the dedup boundary inside the analyzed block, or 0 when
	// the block should be stored whole.
	Boundary int `json:"boundary,omitempty"`
}

// Recognized reports whether the block matched any known container.
func (r Result) Recognized() bool {
	return r.Type != "" && r.Type != TypeUnknown
}

// Analyzer is the pluggable block analysis contract.
type Analyzer interface {
	Analyze(block []byte) Result
}

// Detector is the default Analyzer.
type Detector struct {
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Detector {
	return &Detector{log: logging.Or(log)}
}

// Analyze never fails: malformed headers downgrade the result to unknown.
func (d *Detector) Analyze(block []byte) (result Result) {
	result.Type = TypeUnknown
	defer func() {
		if r := recover(); r != nil {
			d.log.Warnf("exception analyzing media type: %v", r)
			result = Result{Type: TypeUnknown}
		}
	}()

	switch {
	case IsWave(block):
		res, err := analyzeWave(block)
		if err != nil {
			d.log.Warnf("exception analyzing media type: %v", err)
			return Result{Type: TypeUnknown}
		}
		res.Boundary = waveBoundary(block, res)
		return res
	case isFLAC(block):
		return Result{Type: TypeFLAC}
	case isAIFF(block):
		return Result{Type: TypeAIFF}
	case isMP3(block):
		return Result{Type: TypeMP3}
	}
	return result
}

// AudioOffset returns where a block of defaultSize bytes should be cut, or
// defaultSize when no boundary applies.
func AudioOffset(result Result, defaultSize int) int {
	if b := result.Boundary; b > 0 && b < defaultSize {
		return b
	}
	return defaultSize
}

func isFLAC(block []byte) bool {
	return bytes.HasPrefix(block, []byte("fLaC"))
}

func isAIFF(block []byte) bool {
	return len(block) >= 12 && bytes.Equal(block[0:4], []byte("FORM")) &&
		(bytes.Equal(block[8:12], []byte("AIFF")) || bytes.Equal(block[8:12], []byte("AIFC")))
}

func isMP3(block []byte) bool {
	if bytes.HasPrefix(block, []byte("ID3")) {
		return true
	}
	// MPEG audio frame sync: 11 set bits, layer bits not reserved.
	return len(block) >= 2 && block[0] == 0xFF && block[1]&0xE0 == 0xE0 && block[1]&0x06 != 0
}

func (r Result) String() string {
	if !r.Recognized() {
		return TypeUnknown
	}
	return fmt.Sprintf("%s channels=%d rate=%d bits=%d duration=%.2fs", r.Type, r.Channels, r.Bitrate, r.Resolution, r.Duration)
}
