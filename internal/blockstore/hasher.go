package blockstore

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

// Hasher names a block by its content.
type Hasher func(data []byte) string

// NewHasher returns the hasher for a configured algorithm. sha1 matches the
// layout older deployments wrote.
func NewHasher(algorithm string) (Hasher, error) {
	switch strings.ToLower(algorithm) {
	case "", "sha1":
		return sha1Hex, nil
	case "blake3":
		return blake3Hex, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func blake3Hex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewDigest returns a streaming hash matching the algorithm that produced
// digest, judged by its length.
func NewDigest(digest string) (hash.Hash, bool) {
	switch len(digest) {
	case 2 * sha1.Size:
		return sha1.New(), true
	case 2 * blake3Size:
		return blake3.New(), true
	default:
		return nil, false
	}
}

const blake3Size = 32
