package metadata

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

const DefaultContentType = "application/octet-stream"

// BlockRef points at one stored block of a file.
type BlockRef struct {
	BlockHash string `json:"block_hash"`
	// LastSeen is the storage location path holding the block.
	LastSeen string `json:"last_seen,omitempty"`
}

// FileMetadata is the inode of a stored file. Blocks are in byte order.
type FileMetadata struct {
	URL         string `json:"url"`
	Fingerprint string `json:"fingerprint"`
	Created     int64  `json:"created"` // unix milliseconds
	Version     int    `json:"version"`
	Private     bool   `json:"private"`
	Encrypted   bool   `json:"encrypted"`
	Cipher      string `json:"cipher,omitempty"`
	AccessKey   string `json:"access_key"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
	BlockSize   int    `json:"block_size"`

	MediaType       string  `json:"media_type,omitempty"`
	MediaSize       int64   `json:"media_size,omitempty"`
	MediaChannels   int     `json:"media_channels,omitempty"`
	MediaBitrate    int     `json:"media_bitrate,omitempty"`
	MediaResolution int     `json:"media_resolution,omitempty"`
	MediaDuration   float64 `json:"media_duration,omitempty"`

	Blocks []BlockRef `json:"blocks"`
}

// Fingerprint identifies a url's inode independent of its content.
func Fingerprint(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// NewFileMetadata returns the initial inode for url: fingerprint computed,
// access key defaulted to the fingerprint.
func NewFileMetadata(url string, blockSize int) *FileMetadata {
	fp := Fingerprint(url)
	return &FileMetadata{
		URL:         url,
		Fingerprint: fp,
		Created:     time.Now().UnixMilli(),
		AccessKey:   fp,
		ContentType: DefaultContentType,
		BlockSize:   blockSize,
		Blocks:      []BlockRef{},
	}
}

// Key is the object name the inode is stored under in every location.
func (m *FileMetadata) Key() string {
	return m.Fingerprint + ".json"
}

// Clone returns a deep copy.
func (m *FileMetadata) Clone() *FileMetadata {
	c := *m
	c.Blocks = append([]BlockRef(nil), m.Blocks...)
	if c.Blocks == nil {
		c.Blocks = []BlockRef{}
	}
	return &c
}
