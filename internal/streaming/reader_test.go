package streaming_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/jaywantadh/BlockStash/config"
	"github.com/jaywantadh/BlockStash/internal/blockstore"
	"github.com/jaywantadh/BlockStash/internal/chunker"
	"github.com/jaywantadh/BlockStash/internal/encryptor"
	"github.com/jaywantadh/BlockStash/internal/metadata"
	"github.com/jaywantadh/BlockStash/internal/storage"
	"github.com/jaywantadh/BlockStash/internal/streaming"
	"github.com/jaywantadh/BlockStash/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var locations = []config.StorageLocation{{Path: "x/"}, {Path: "y/"}}

type fixture struct {
	backend *storage.MemoryStorage
	blocks  *blockstore.Store
}

func setup(t *testing.T, data []byte, blockSize int, cipher encryptor.Cipher) (*fixture, *metadata.FileMetadata) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	b := storage.NewMemoryStorage()
	f := &fixture{backend: b, blocks: blockstore.New(b, locations, blockstore.WithLogger(log))}
	inodes := metadata.NewStore(b, locations, metadata.WithLogger(log))

	s, err := chunker.NewSession(context.Background(), "/.com.example/stream", chunker.Deps{
		Blocks: f.blocks, Inodes: inodes, Cipher: cipher, Log: log,
	}, chunker.Options{BlockSize: blockSize, Encrypted: cipher != nil})
	require.NoError(t, err)
	_, err = s.Write(data)
	require.NoError(t, err)
	meta, err := s.Close()
	require.NoError(t, err)
	return f, meta
}

func TestReaderStreamsBlocksWithProgress(t *testing.T) {
	data := testutil.Noise(1000, 21)
	f, meta := setup(t, data, 300, nil)

	var seen []streaming.Progress
	r, err := streaming.NewReader(context.Background(), meta, f.blocks,
		streaming.WithProgress(func(p streaming.Progress) { seen = append(seen, p) }))
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.Len(t, seen, 4)
	assert.Equal(t, int64(300), seen[0].BytesRead)
	assert.Equal(t, 4, seen[3].Block)
	assert.Equal(t, 4, seen[3].TotalBlocks)
	assert.InDelta(t, 100.0, seen[3].Percentage(), 0.001)
}

func TestReaderDecryptsBlocks(t *testing.T) {
	legacy, err := encryptor.New("legacy")
	require.NoError(t, err)
	data := []byte("block-aligned secrets, two of them")
	f, meta := setup(t, data, 16, legacy)
	require.True(t, meta.Encrypted)

	r, err := streaming.NewReader(context.Background(), meta, f.blocks)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReaderDetectsCorruptBlock(t *testing.T) {
	data := testutil.Noise(64, 2)
	f, meta := setup(t, data, 32, nil)

	ref := meta.Blocks[1]
	require.NoError(t, f.backend.Write(context.Background(), storage.Join(ref.LastSeen, ref.BlockHash), testutil.Noise(32, 99)))

	r, err := streaming.NewReader(context.Background(), meta, f.blocks)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	assert.ErrorIs(t, err, streaming.ErrCorruptBlock)
	assert.Equal(t, data[:32], got[:32])
}

func TestReaderMissingBlock(t *testing.T) {
	f, meta := setup(t, []byte("gone soon"), 64, nil)
	ref := meta.Blocks[0]
	require.NoError(t, f.backend.Delete(context.Background(), storage.Join(ref.LastSeen, ref.BlockHash)))

	r, err := streaming.NewReader(context.Background(), meta, f.blocks)
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, blockstore.ErrBlockNotFound)
}

func TestReaderHonorsContext(t *testing.T) {
	f, meta := setup(t, []byte("abc"), 64, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := streaming.NewReader(ctx, meta, f.blocks)
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, r)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaderCloseMidway(t *testing.T) {
	f, meta := setup(t, bytes.Repeat([]byte{7}, 100), 10, nil)

	r, err := streaming.NewReader(context.Background(), meta, f.blocks)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = r.Read(buf)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	_, err = r.Read(buf)
	assert.Error(t, err)
}

func TestReaderClosedBeforeFirstBlock(t *testing.T) {
	f, meta := setup(t, bytes.Repeat([]byte{9}, 40), 10, nil)

	r, err := streaming.NewReader(context.Background(), meta, f.blocks)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	n, err := r.Read(make([]byte, 40))
	assert.Zero(t, n)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
