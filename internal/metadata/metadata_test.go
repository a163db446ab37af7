package metadata

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jaywantadh/BlockStash/config"
	"github.com/jaywantadh/BlockStash/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var locations = []config.StorageLocation{
	{Path: "loc1/", Capacity: 1 << 30},
	{Path: "loc2/", Capacity: 1 << 30},
	{Path: "loc3/", Capacity: 1 << 30},
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// flakyBackend fails writes for chosen prefixes and can hold every write
// until released.
type flakyBackend struct {
	*storage.MemoryStorage
	failWrites map[string]bool
	gate       chan struct{}

	mu       sync.Mutex
	attempts []string
}

func newFlaky() *flakyBackend {
	return &flakyBackend{MemoryStorage: storage.NewMemoryStorage(), failWrites: map[string]bool{}}
}

func (f *flakyBackend) Write(ctx context.Context, path string, data []byte) error {
	f.mu.Lock()
	f.attempts = append(f.attempts, path)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	for prefix := range f.failWrites {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return errors.New("disk on fire")
		}
	}
	return f.MemoryStorage.Write(ctx, path, data)
}

func TestFingerprint(t *testing.T) {
	// sha1("abc")
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", Fingerprint("abc"))

	m := NewFileMetadata("abc", 1024)
	assert.Equal(t, m.Fingerprint, m.AccessKey)
	assert.Equal(t, DefaultContentType, m.ContentType)
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d.json", m.Key())
	assert.NotNil(t, m.Blocks)
}

func TestSaveWritesEveryLocation(t *testing.T) {
	ctx := context.Background()
	b := newFlaky()
	s := NewStore(b, locations, WithLogger(quiet()))

	meta := NewFileMetadata("/.com.example/track.wav", 1024)
	meta.Blocks = append(meta.Blocks, BlockRef{BlockHash: "h1", LastSeen: "loc2/"})

	saved, err := s.Save(ctx, meta)
	require.NoError(t, err)
	assert.NotSame(t, meta, saved)
	assert.Equal(t, meta, saved)
	assert.Len(t, b.attempts, 3)

	saved.Blocks[0].BlockHash = "changed"
	assert.Equal(t, "h1", meta.Blocks[0].BlockHash)

	for _, loc := range locations {
		ok, err := b.Exists(ctx, storage.Join(loc.Path, meta.Key()))
		require.NoError(t, err)
		assert.True(t, ok, loc.Path)
	}
}

func TestSaveWaitsForAllWrites(t *testing.T) {
	b := newFlaky()
	b.gate = make(chan struct{})
	b.failWrites["loc2/"] = true
	s := NewStore(b, locations, WithLogger(quiet()))

	done := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background(), NewFileMetadata("u", 1))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Save returned before the writes completed")
	case <-time.After(50 * time.Millisecond):
	}

	close(b.gate)
	select {
	case err := <-done:
		assert.NoError(t, err, "one failed copy is tolerated")
	case <-time.After(5 * time.Second):
		t.Fatal("Save never returned")
	}
	assert.Len(t, b.attempts, 3)
}

func TestSaveRequireAll(t *testing.T) {
	b := newFlaky()
	b.failWrites["loc3/"] = true
	s := NewStore(b, locations, WithLogger(quiet()), WithRequireAll(true))

	_, err := s.Save(context.Background(), NewFileMetadata("u", 1))
	var repErr *ReplicationError
	require.ErrorAs(t, err, &repErr)
	assert.Equal(t, 3, repErr.Total)
	assert.Contains(t, repErr.Failed, "loc3/")
	assert.Contains(t, err.Error(), "2 of 3")
}

func TestSaveRequireAllRemovesWrittenCopies(t *testing.T) {
	ctx := context.Background()
	b := newFlaky()
	b.failWrites["loc2/"] = true
	s := NewStore(b, locations, WithLogger(quiet()), WithRequireAll(true))

	meta := NewFileMetadata("/.com.example/upload.wav", 32)
	_, err := s.Save(ctx, meta)
	var repErr *ReplicationError
	require.ErrorAs(t, err, &repErr)

	_, err = s.Load(ctx, meta.URL)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, b.Keys())
}

func TestSaveRequireAllRestoresPreviousVersion(t *testing.T) {
	ctx := context.Background()
	b := newFlaky()
	s := NewStore(b, locations, WithLogger(quiet()), WithRequireAll(true))

	v0 := NewFileMetadata("/.com.example/upload.wav", 32)
	v0.FileSize = 10
	_, err := s.Save(ctx, v0)
	require.NoError(t, err)

	b.failWrites["loc3/"] = true
	v1 := v0.Clone()
	v1.Version = 1
	v1.FileSize = 20
	_, err = s.Save(ctx, v1)
	require.Error(t, err)

	for _, loc := range locations {
		loaded, err := NewStore(b, []config.StorageLocation{loc}, WithLogger(quiet())).Load(ctx, v0.URL)
		require.NoError(t, err, loc.Path)
		assert.Equal(t, 0, loaded.Version, loc.Path)
		assert.Equal(t, int64(10), loaded.FileSize, loc.Path)
	}
}

func TestSaveAllFailed(t *testing.T) {
	b := newFlaky()
	for _, loc := range locations {
		b.failWrites[loc.Path] = true
	}
	s := NewStore(b, locations, WithLogger(quiet()))

	_, err := s.Save(context.Background(), NewFileMetadata("u", 1))
	var repErr *ReplicationError
	assert.ErrorAs(t, err, &repErr)
}

func TestSaveWithoutLocations(t *testing.T) {
	b := newFlaky()
	s := NewStore(b, nil, WithLogger(quiet()))
	meta := NewFileMetadata("u", 1)

	saved, err := s.Save(context.Background(), meta)
	require.NoError(t, err)
	assert.Equal(t, meta, saved)
	assert.Empty(t, b.attempts)
}

func TestLoadFromSecondLocation(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryStorage()
	s := NewStore(b, locations, WithLogger(quiet()))

	meta := NewFileMetadata("/.com.example/a.wav", 512)
	meta.FileSize = 42
	only := NewStore(b, locations[1:2], WithLogger(quiet()))
	_, err := only.Save(ctx, meta)
	require.NoError(t, err)

	loaded, err := s.Load(ctx, meta.URL)
	require.NoError(t, err)
	assert.Equal(t, meta.Fingerprint, loaded.Fingerprint)
	assert.Equal(t, int64(42), loaded.FileSize)
}

func TestLoadSkipsCorruptCopy(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryStorage()
	s := NewStore(b, locations, WithLogger(quiet()))

	meta := NewFileMetadata("u", 512)
	require.NoError(t, b.Write(ctx, storage.Join("loc1/", meta.Key()), []byte("{not json")))
	_, err := NewStore(b, locations[2:], WithLogger(quiet())).Save(ctx, meta)
	require.NoError(t, err)

	loaded, err := s.Load(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "u", loaded.URL)
}

func TestLoadNotFound(t *testing.T) {
	s := NewStore(storage.NewMemoryStorage(), locations, WithLogger(quiet()))

	_, err := s.Load(context.Background(), "/.com.example/missing")
	require.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "/.com.example/missing", nf.URL)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryStorage()
	s := NewStore(b, locations, WithLogger(quiet()))

	_, err := s.Save(ctx, NewFileMetadata("u", 1))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "u"))
	assert.Empty(t, b.Keys())

	assert.ErrorIs(t, s.Delete(ctx, "u"), ErrNotFound)
}

func TestClone(t *testing.T) {
	m := NewFileMetadata("u", 1)
	m.Blocks = append(m.Blocks, BlockRef{BlockHash: "a"})
	c := m.Clone()
	c.Blocks[0].BlockHash = "b"
	assert.Equal(t, "a", m.Blocks[0].BlockHash)
}
