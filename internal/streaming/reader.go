// Package streaming reads stored files back block by block, verifying each
// block against its hash as it goes.
package streaming

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/jaywantadh/BlockStash/internal/blockstore"
	"github.com/jaywantadh/BlockStash/internal/encryptor"
	"github.com/jaywantadh/BlockStash/internal/metadata"
)

// ErrCorruptBlock means a block no longer matches its hash.
var ErrCorruptBlock = errors.New("block content does not match its hash")

var errReaderClosed = errors.New("reader closed")

// BlockSource opens the stored bytes of a block.
type BlockSource interface {
	Open(ctx context.Context, ref metadata.BlockRef) (io.ReadCloser, error)
}

// Progress reports how far a Reader got through a file.
type Progress struct {
	BytesRead   int64
	TotalBytes  int64
	Block       int
	TotalBlocks int
}

func (p Progress) Percentage() float64 {
	if p.TotalBytes == 0 {
		return 100
	}
	return float64(p.BytesRead) / float64(p.TotalBytes) * 100
}

type Option func(*Reader)

// WithProgress calls fn after every completed block.
func WithProgress(fn func(Progress)) Option {
	return func(r *Reader) { r.onProgress = fn }
}

// Reader is an io.ReadCloser over a stored file. Only one block is open at
// a time; encrypted blocks are read whole since they decrypt as a unit.
type Reader struct {
	ctx        context.Context
	meta       *metadata.FileMetadata
	source     BlockSource
	cipher     encryptor.Cipher
	onProgress func(Progress)

	next   int
	ref    metadata.BlockRef
	rc     io.ReadCloser
	body   io.Reader
	digest hash.Hash

	read int64
	err  error
}

func NewReader(ctx context.Context, meta *metadata.FileMetadata, source BlockSource, opts ...Option) (*Reader, error) {
	r := &Reader{ctx: ctx, meta: meta, source: source}
	if meta.Encrypted {
		c, err := encryptor.ForName(meta.Cipher)
		if err != nil {
			return nil, err
		}
		r.cipher = c
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	for {
		if r.body == nil {
			if r.next >= len(r.meta.Blocks) {
				r.err = r.finish()
				return 0, r.err
			}
			if err := r.openNext(); err != nil {
				r.err = err
				return 0, err
			}
		}

		n, err := r.body.Read(p)
		r.read += int64(n)
		switch {
		case err == io.EOF:
			if err := r.closeBlock(); err != nil {
				r.err = err
				return n, err
			}
		case err != nil:
			r.err = fmt.Errorf("failed to read block %d: %w", r.next, err)
			return n, r.err
		}
		if n > 0 {
			return n, nil
		}
	}
}

// Close releases the open block, if any.
func (r *Reader) Close() error {
	if r.err == nil {
		r.err = errReaderClosed
	}
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc, r.body = nil, nil
	return err
}

func (r *Reader) openNext() error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	r.ref = r.meta.Blocks[r.next]
	rc, err := r.source.Open(r.ctx, r.ref)
	if err != nil {
		return fmt.Errorf("failed to fetch block %d: %w", r.next, err)
	}

	r.digest, _ = blockstore.NewDigest(r.ref.BlockHash)
	if r.cipher == nil {
		r.rc = rc
		r.body = rc
		if r.digest != nil {
			r.body = io.TeeReader(rc, r.digest)
		}
		return nil
	}

	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("failed to read block %d: %w", r.next, err)
	}
	if err := r.verify(data); err != nil {
		return err
	}
	plain, err := r.cipher.Decrypt(data, r.meta.AccessKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt block %d: %w", r.next, err)
	}
	r.body = bytes.NewReader(plain)
	r.rc = io.NopCloser(r.body)
	r.digest = nil
	return nil
}

func (r *Reader) verify(data []byte) error {
	if r.digest == nil {
		return nil
	}
	r.digest.Write(data)
	return r.checkDigest()
}

func (r *Reader) checkDigest() error {
	if r.digest == nil {
		return nil
	}
	if hex.EncodeToString(r.digest.Sum(nil)) != r.ref.BlockHash {
		return fmt.Errorf("%w: block %d (%s)", ErrCorruptBlock, r.next, r.ref.BlockHash)
	}
	return nil
}

func (r *Reader) closeBlock() error {
	r.rc.Close()
	r.rc, r.body = nil, nil
	if err := r.checkDigest(); err != nil {
		return err
	}
	r.next++
	if r.onProgress != nil {
		r.onProgress(Progress{
			BytesRead:   r.read,
			TotalBytes:  r.meta.FileSize,
			Block:       r.next,
			TotalBlocks: len(r.meta.Blocks),
		})
	}
	return nil
}

func (r *Reader) finish() error {
	if r.read != r.meta.FileSize {
		return fmt.Errorf("read %d bytes, inode records %d", r.read, r.meta.FileSize)
	}
	return io.EOF
}
