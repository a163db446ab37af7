package compressor

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses block payloads stored as a sibling object named
// <block_hash><Suffix>.
type Codec struct {
	Name   string
	Suffix string

	compress   func([]byte) ([]byte, error)
	decompress func([]byte) ([]byte, error)
}

func (c Codec) Compress(data []byte) ([]byte, error) {
	out, err := c.compress(data)
	if err != nil {
		return nil, fmt.Errorf("%s compression failed: %w", c.Name, err)
	}
	return out, nil
}

func (c Codec) Decompress(data []byte) ([]byte, error) {
	out, err := c.decompress(data)
	if err != nil {
		return nil, fmt.Errorf("%s decompression failed: %w", c.Name, err)
	}
	return out, nil
}

// Probe order for compressed siblings. .gz comes first since that is the
// layout older deployments wrote.
var codecs = []Codec{
	{Name: "gzip", Suffix: ".gz", compress: compressGzip, decompress: decompressGzip},
	{Name: "lz4", Suffix: ".lz4", compress: compressLZ4, decompress: decompressLZ4},
	{Name: "zstd", Suffix: ".zst", compress: compressZstd, decompress: decompressZstd},
}

// All returns every known codec in probe order.
func All() []Codec {
	out := make([]Codec, len(codecs))
	copy(out, codecs)
	return out
}

// ForName looks a codec up by configuration name. "" and "none" report false.
func ForName(name string) (Codec, bool) {
	name = strings.ToLower(name)
	for _, c := range codecs {
		if c.Name == name {
			return c, true
		}
	}
	return Codec{}, false
}

// ForSuffix looks a codec up by the object suffix it writes.
func ForSuffix(suffix string) (Codec, bool) {
	for _, c := range codecs {
		if c.Suffix == suffix {
			return c, true
		}
	}
	return Codec{}, false
}

func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(reader)
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressZstd(data []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(data, nil)
}
