// Package blockstore stores content-addressed blocks across the configured
// storage locations. A block already present anywhere is never written
// again; new blocks are striped round-robin.
package blockstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jaywantadh/BlockStash/config"
	"github.com/jaywantadh/BlockStash/internal/compressor"
	"github.com/jaywantadh/BlockStash/internal/metadata"
	"github.com/jaywantadh/BlockStash/internal/storage"
	"github.com/jaywantadh/BlockStash/pkg/logging"
	"github.com/sirupsen/logrus"
)

// ErrBlockNotFound means no location holds the requested block.
var ErrBlockNotFound = errors.New("block not found")

type Store struct {
	backend   storage.Backend
	locations []config.StorageLocation
	cursor    *Cursor
	codec     *compressor.Codec
	ratio     float64
	log       logrus.FieldLogger
}

type Option func(*Store)

// WithCursor shares a striping cursor between stores.
func WithCursor(c *Cursor) Option {
	return func(s *Store) { s.cursor = c }
}

// WithCompression stores new blocks as compressed siblings when the codec
// shrinks them to at most ratio of their size.
func WithCompression(codec compressor.Codec, ratio float64) Option {
	return func(s *Store) {
		s.codec = &codec
		s.ratio = ratio
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

func New(backend storage.Backend, locations []config.StorageLocation, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		locations: locations,
		ratio:     1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cursor == nil {
		s.cursor = NewCursor(0)
	}
	s.log = logging.Or(s.log)
	return s
}

// Commit deduplicates and places one block. The cursor advances once per
// commit whether or not the block was already stored.
func (s *Store) Commit(ctx context.Context, data []byte, hash string) (metadata.BlockRef, error) {
	ref := metadata.BlockRef{BlockHash: hash}
	log := s.log.WithField("block", hash)

	if len(s.locations) == 0 {
		log.Warn("no storage locations configured, block not written to disk")
		return ref, nil
	}
	next := s.locations[s.cursor.Next(len(s.locations))]

	found, ok, err := s.Locate(ctx, hash)
	if err != nil {
		return ref, err
	}
	if ok {
		log.Infof("duplicate block found in %s, not written to disk", found)
		ref.LastSeen = found
		return ref, nil
	}

	name, payload := hash, data
	if s.codec != nil {
		compressed, err := s.codec.Compress(data)
		switch {
		case err != nil:
			log.Debugf("storing uncompressed: %v", err)
		case float64(len(compressed)) <= s.ratio*float64(len(data)):
			name, payload = hash+s.codec.Suffix, compressed
		}
	}

	if err := s.backend.Write(ctx, storage.Join(next.Path, name), payload); err != nil {
		return ref, fmt.Errorf("failed to write block %s to %s: %w", hash, next.Path, err)
	}
	ref.LastSeen = next.Path
	log.Infof("new block written to %s", next.Path)
	return ref, nil
}

// Locate runs the dedup probe: locations in configured order, compressed
// siblings before the raw object, first hit wins. Probe failures at one
// location count as a miss there.
func (s *Store) Locate(ctx context.Context, hash string) (string, bool, error) {
	for _, loc := range s.locations {
		for _, name := range objectNames(hash) {
			if err := ctx.Err(); err != nil {
				return "", false, err
			}
			ok, err := s.backend.Exists(ctx, storage.Join(loc.Path, name))
			if err != nil {
				s.log.WithField("block", hash).Infof("block not found in %s: %v", loc.Path, err)
				continue
			}
			if ok {
				return loc.Path, true, nil
			}
		}
	}
	return "", false, nil
}

// Fetch returns the stored bytes of a block, decompressing siblings.
func (s *Store) Fetch(ctx context.Context, ref metadata.BlockRef) ([]byte, error) {
	rc, err := s.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read block %s: %w", ref.BlockHash, err)
	}
	return data, nil
}

// Open streams a block, trying ref.LastSeen first and then every configured
// location in order.
func (s *Store) Open(ctx context.Context, ref metadata.BlockRef) (io.ReadCloser, error) {
	var lastErr error
	for _, prefix := range s.candidates(ref) {
		raw := storage.Join(prefix, ref.BlockHash)
		rc, err := s.backend.StreamRead(ctx, raw)
		if err == nil {
			return rc, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			lastErr = err
			continue
		}

		for _, codec := range compressor.All() {
			data, err := s.backend.Read(ctx, raw+codec.Suffix)
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					lastErr = err
				}
				continue
			}
			plain, err := codec.Decompress(data)
			if err != nil {
				lastErr = err
				continue
			}
			return io.NopCloser(bytes.NewReader(plain)), nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("block %s unreadable: %w", ref.BlockHash, lastErr)
	}
	return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, ref.BlockHash)
}

func (s *Store) candidates(ref metadata.BlockRef) []string {
	out := make([]string, 0, len(s.locations)+1)
	if ref.LastSeen != "" {
		out = append(out, ref.LastSeen)
	}
	for _, loc := range s.locations {
		if loc.Path != ref.LastSeen {
			out = append(out, loc.Path)
		}
	}
	return out
}

func objectNames(hash string) []string {
	codecs := compressor.All()
	names := make([]string, 0, len(codecs)+1)
	for _, c := range codecs {
		names = append(names, hash+c.Suffix)
	}
	return append(names, hash)
}
