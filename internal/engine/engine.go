// Package engine wires configuration, storage and the block pipeline into
// the operations callers use: create, update, stat, read and delete files.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jaywantadh/BlockStash/config"
	"github.com/jaywantadh/BlockStash/internal/analyzer"
	"github.com/jaywantadh/BlockStash/internal/auth"
	"github.com/jaywantadh/BlockStash/internal/blockstore"
	"github.com/jaywantadh/BlockStash/internal/chunker"
	"github.com/jaywantadh/BlockStash/internal/compressor"
	"github.com/jaywantadh/BlockStash/internal/encryptor"
	"github.com/jaywantadh/BlockStash/internal/metadata"
	"github.com/jaywantadh/BlockStash/internal/storage"
	"github.com/jaywantadh/BlockStash/internal/streaming"
	"github.com/jaywantadh/BlockStash/pkg/logging"
	"github.com/sirupsen/logrus"
)

// ErrExists is returned by Create when the url already has an inode.
var ErrExists = errors.New("file already exists")

// WriteOptions are the per-file policy choices of an upload.
type WriteOptions struct {
	ContentType string
	Private     bool
	Encrypted   bool
	AccessKey   string
}

type Engine struct {
	cfg      config.AppConfig
	backend  storage.Backend
	blocks   *blockstore.Store
	inodes   *metadata.Store
	analyzer analyzer.Analyzer
	cipher   encryptor.Cipher
	hasher   blockstore.Hasher
	log      logrus.FieldLogger
}

type Option func(*Engine)

// WithBackend uses b instead of opening the configured backend. The engine
// takes ownership and closes it.
func WithBackend(b storage.Backend) Option {
	return func(e *Engine) { e.backend = b }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// New builds an engine from cfg.
func New(cfg *config.AppConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: *cfg}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.Or(e.log)

	var err error
	if e.backend == nil {
		e.backend, err = storage.Open(cfg.ConfiguredStorage, cfg.StorageRoot)
		if err != nil {
			return nil, err
		}
	}

	if e.hasher, err = blockstore.NewHasher(cfg.HashAlgorithm); err != nil {
		return nil, err
	}
	if e.cipher, err = encryptor.New(cfg.CipherMode); err != nil {
		return nil, err
	}

	blockOpts := []blockstore.Option{blockstore.WithLogger(e.log)}
	if name := strings.ToLower(cfg.Compression); name != "" && name != "none" {
		codec, ok := compressor.ForName(name)
		if !ok {
			return nil, fmt.Errorf("unknown compression %q", cfg.Compression)
		}
		blockOpts = append(blockOpts, blockstore.WithCompression(codec, cfg.CompressionRatio))
	}

	e.blocks = blockstore.New(e.backend, cfg.StorageLocations, blockOpts...)
	e.inodes = metadata.NewStore(e.backend, cfg.StorageLocations,
		metadata.WithRequireAll(cfg.RequireAllReplicas), metadata.WithLogger(e.log))
	e.analyzer = analyzer.New(e.log)

	e.log.WithFields(logrus.Fields{
		"storage":   cfg.ConfiguredStorage,
		"locations": len(cfg.StorageLocations),
		"block":     cfg.BlockSize,
	}).Debug("engine ready")
	return e, nil
}

// Create opens a write session for a url that has no inode yet.
func (e *Engine) Create(ctx context.Context, url string, opts WriteOptions) (*chunker.Session, error) {
	_, err := e.inodes.Load(ctx, url)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrExists, url)
	case !errors.Is(err, metadata.ErrNotFound):
		return nil, err
	}

	return chunker.NewSession(ctx, url, e.deps(), chunker.Options{
		BlockSize:   e.cfg.BlockSize,
		ContentType: opts.ContentType,
		Private:     opts.Private,
		Encrypted:   opts.Encrypted,
		AccessKey:   opts.AccessKey,
	})
}

// Update opens a session that replaces the content of an existing file. The
// caller must be authorized for method on the current inode. The new inode
// keeps the creation time and access key and bumps the version.
func (e *Engine) Update(ctx context.Context, url, method string, params auth.Params, opts WriteOptions) (*chunker.Session, error) {
	current, err := e.inodes.Load(ctx, url)
	if err != nil {
		return nil, err
	}
	if !auth.IsAuthorized(current, method, params) {
		return nil, fmt.Errorf("%w: %s %s", auth.ErrUnauthorized, method, url)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = current.ContentType
	}
	return chunker.NewSession(ctx, url, e.deps(), chunker.Options{
		BlockSize:   e.cfg.BlockSize,
		ContentType: contentType,
		Private:     opts.Private,
		Encrypted:   opts.Encrypted,
		AccessKey:   current.AccessKey,
		Version:     current.Version + 1,
		Created:     current.Created,
	})
}

// Stat returns the inode for url.
func (e *Engine) Stat(ctx context.Context, url string) (*metadata.FileMetadata, error) {
	return e.inodes.Load(ctx, url)
}

// Read streams the content of url to w.
func (e *Engine) Read(ctx context.Context, url string, w io.Writer) (*metadata.FileMetadata, error) {
	meta, err := e.inodes.Load(ctx, url)
	if err != nil {
		return nil, err
	}
	if _, err := chunker.Reassemble(ctx, meta, e.blocks, w); err != nil {
		return meta, err
	}
	return meta, nil
}

// Open returns a streaming reader over the content meta describes.
func (e *Engine) Open(ctx context.Context, meta *metadata.FileMetadata, opts ...streaming.Option) (*streaming.Reader, error) {
	return streaming.NewReader(ctx, meta, e.blocks, opts...)
}

// Delete removes the inode for url. Blocks stay, other files may share them.
func (e *Engine) Delete(ctx context.Context, url string) error {
	return e.inodes.Delete(ctx, url)
}

// Authorize applies the access policy for method on meta. Public files may
// be read without credentials; everything else needs the key or a token.
func (e *Engine) Authorize(meta *metadata.FileMetadata, method string, params auth.Params) error {
	if !meta.Private && isRead(method) {
		return nil
	}
	if auth.IsAuthorized(meta, method, params) {
		return nil
	}
	return fmt.Errorf("%w: %s %s", auth.ErrUnauthorized, method, meta.URL)
}

// Config returns the effective configuration.
func (e *Engine) Config() config.AppConfig { return e.cfg }

func (e *Engine) Close() error {
	return e.backend.Close()
}

func (e *Engine) deps() chunker.Deps {
	return chunker.Deps{
		Blocks:   e.blocks,
		Inodes:   e.inodes,
		Analyzer: e.analyzer,
		Cipher:   e.cipher,
		Hasher:   e.hasher,
		Log:      e.log,
	}
}

func isRead(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
