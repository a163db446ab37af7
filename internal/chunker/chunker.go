// Package chunker turns a byte stream into committed blocks and an inode.
package chunker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jaywantadh/BlockStash/internal/analyzer"
	"github.com/jaywantadh/BlockStash/internal/blockstore"
	"github.com/jaywantadh/BlockStash/internal/encryptor"
	"github.com/jaywantadh/BlockStash/internal/metadata"
	"github.com/jaywantadh/BlockStash/pkg/logging"
	"github.com/sirupsen/logrus"
)

// State of a write session.
type State int

const (
	StateInit State = iota
	StateReceiving
	StateFlushing
	StateClosed
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReceiving:
		return "receiving"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrSessionClosed is returned when data arrives after the session stopped
// receiving.
var ErrSessionClosed = errors.New("session is not receiving")

// BlockCommitter places one content-addressed block.
type BlockCommitter interface {
	Commit(ctx context.Context, data []byte, hash string) (metadata.BlockRef, error)
}

// InodeSaver persists finished file metadata.
type InodeSaver interface {
	Save(ctx context.Context, meta *metadata.FileMetadata) (*metadata.FileMetadata, error)
}

// Deps are the collaborators a session drives. Analyzer, Hasher and Log
// have defaults; a nil Cipher makes encryption unavailable.
type Deps struct {
	Blocks   BlockCommitter
	Inodes   InodeSaver
	Analyzer analyzer.Analyzer
	Cipher   encryptor.Cipher
	Hasher   blockstore.Hasher
	Log      logrus.FieldLogger
}

// Options set the policy fields of a new inode.
type Options struct {
	BlockSize   int
	ContentType string
	Private     bool
	Encrypted   bool
	// AccessKey overrides the default key (the url fingerprint).
	AccessKey string
	Version   int
	// Created keeps the original creation time on rewrite. Zero means now.
	Created int64
}

// Session ingests one upload. It is not safe for concurrent use: blocks are
// committed strictly in arrival order.
type Session struct {
	id        string
	ctx       context.Context
	deps      Deps
	log       logrus.FieldLogger
	blockSize int

	state    State
	err      error
	buf      []byte
	analyzed bool
	meta     *metadata.FileMetadata
}

// NewSession initializes the inode for url and starts receiving.
func NewSession(ctx context.Context, url string, deps Deps, opts Options) (*Session, error) {
	if url == "" {
		return nil, errors.New("url is required")
	}
	if opts.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", opts.BlockSize)
	}
	if deps.Blocks == nil || deps.Inodes == nil {
		return nil, errors.New("session needs a block store and an inode store")
	}

	id := uuid.New().String()
	log := logging.Or(deps.Log).WithFields(logrus.Fields{"session": id, "url": url})
	if deps.Analyzer == nil {
		deps.Analyzer = analyzer.New(log)
	}
	if deps.Hasher == nil {
		deps.Hasher, _ = blockstore.NewHasher("sha1")
	}

	s := &Session{
		id:        id,
		ctx:       ctx,
		deps:      deps,
		log:       log,
		blockSize: opts.BlockSize,
		state:     StateInit,
		meta:      metadata.NewFileMetadata(url, opts.BlockSize),
	}

	s.meta.Version = opts.Version
	s.meta.Private = opts.Private
	s.meta.Encrypted = opts.Encrypted
	if opts.ContentType != "" {
		s.meta.ContentType = opts.ContentType
	}
	if opts.AccessKey != "" {
		s.meta.AccessKey = opts.AccessKey
	}
	if opts.Created != 0 {
		s.meta.Created = opts.Created
	}

	s.state = StateReceiving
	return s, nil
}

func (s *Session) ID() string   { return s.id }
func (s *Session) State() State { return s.state }

// Buffered is the number of bytes waiting to become blocks.
func (s *Session) Buffered() int { return len(s.buf) }

// Metadata returns a copy of the inode as built so far.
func (s *Session) Metadata() *metadata.FileMetadata { return s.meta.Clone() }

// Write buffers p and drains whole blocks whenever more than one block is
// pending. It returns only once the buffer is back at or below the block
// size, which is what holds the upstream reader back. Input is taken at
// most one block at a time so the buffer never exceeds two blocks.
func (s *Session) Write(p []byte) (int, error) {
	if s.state != StateReceiving {
		if s.err != nil {
			return 0, s.err
		}
		return 0, ErrSessionClosed
	}

	written := 0
	for len(p) > 0 {
		n := min(len(p), s.blockSize)
		s.buf = append(s.buf, p[:n]...)
		p = p[n:]

		if len(s.buf) > s.blockSize {
			if err := s.processBuffer(false); err != nil {
				s.fail(err)
				return written, err
			}
		}
		written += n
	}
	return written, nil
}

// Close flushes every remaining byte as a final (possibly short) block,
// persists the inode and returns it. Nothing is persisted when any block
// fails to commit.
func (s *Session) Close() (*metadata.FileMetadata, error) {
	switch s.state {
	case StateReceiving:
	case StateFailed:
		return nil, s.err
	default:
		return nil, ErrSessionClosed
	}

	s.state = StateFlushing
	s.log.Debug("flushing remaining buffer")
	if err := s.processBuffer(true); err != nil {
		s.fail(err)
		return nil, err
	}

	saved, err := s.deps.Inodes.Save(s.ctx, s.meta)
	if err != nil {
		err = fmt.Errorf("failed to save inode: %w", err)
		s.fail(err)
		return nil, err
	}

	s.state = StateClosed
	s.log.WithFields(logrus.Fields{"blocks": len(saved.Blocks), "file_size": saved.FileSize}).Info("file stored")
	return saved, nil
}

// Abort drops buffered data. Blocks already committed stay in the block
// store; without an inode they are unreachable from this url.
func (s *Session) Abort() {
	if s.state == StateClosed {
		return
	}
	s.buf = nil
	s.state = StateAborted
	s.log.Info("session aborted")
}

func (s *Session) fail(err error) {
	s.err = err
	s.buf = nil
	s.state = StateFailed
	s.log.Errorf("session failed: %v", err)
}

func (s *Session) processBuffer(flush bool) error {
	threshold := s.blockSize
	if flush {
		threshold = 0
	}
	for len(s.buf) > threshold {
		if err := s.storeNextBlock(); err != nil {
			s.log.Debugf("process_buffer result: %v", err)
			return err
		}
	}
	return nil
}

func (s *Session) storeNextBlock() error {
	n := min(len(s.buf), s.blockSize)
	block := s.buf[:n]

	if !s.analyzed {
		s.analyzed = true
		result := s.deps.Analyzer.Analyze(block)
		s.log.Infof("block analysis result: %s", result)
		s.recordMedia(result)

		if cut := analyzer.AudioOffset(result, n); cut < n {
			s.log.Infof("storing the first %d bytes separately", cut)
			n = cut
			block = block[:n]
		}
	}

	payload, err := s.encrypt(block)
	if err != nil {
		return err
	}

	hash := s.deps.Hasher(payload)
	ref, err := s.deps.Blocks.Commit(s.ctx, payload, hash)
	if err != nil {
		return err
	}

	s.meta.Blocks = append(s.meta.Blocks, ref)
	s.meta.FileSize += int64(n)
	s.buf = s.buf[n:]
	return nil
}

// encrypt applies the file cipher. Whether a file is encrypted is settled
// on its first block; a cipher failure after that aborts the upload rather
// than mixing encrypted and plain blocks.
func (s *Session) encrypt(block []byte) ([]byte, error) {
	if !s.meta.Encrypted {
		return block, nil
	}
	first := len(s.meta.Blocks) == 0

	if s.deps.Cipher == nil || s.meta.AccessKey == "" {
		s.disableEncryption("no cipher or access key")
		return block, nil
	}

	out, err := s.deps.Cipher.Encrypt(block, s.meta.AccessKey)
	if err != nil {
		if !first {
			return nil, fmt.Errorf("%w: block %d: %v", encryptor.ErrEncryptionUnavailable, len(s.meta.Blocks), err)
		}
		s.disableEncryption(err.Error())
		return block, nil
	}
	s.meta.Cipher = s.deps.Cipher.Name()
	return out, nil
}

func (s *Session) disableEncryption(reason string) {
	s.log.Warnf("encryption disabled for file: %s", reason)
	s.meta.Encrypted = false
	s.meta.Cipher = ""
}

func (s *Session) recordMedia(r analyzer.Result) {
	s.meta.MediaType = r.Type
	if !r.Recognized() {
		return
	}
	s.meta.MediaSize = r.Size
	s.meta.MediaChannels = r.Channels
	s.meta.MediaBitrate = r.Bitrate
	s.meta.MediaResolution = r.Resolution
	s.meta.MediaDuration = r.Duration
}
