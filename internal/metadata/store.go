package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jaywantadh/BlockStash/config"
	"github.com/jaywantadh/BlockStash/internal/storage"
	"github.com/jaywantadh/BlockStash/pkg/logging"
	"github.com/sirupsen/logrus"
)

// ErrNotFound matches any lookup that found no inode for a url.
var ErrNotFound = errors.New("inode not found")

// NotFoundError carries the url that could not be resolved.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("inode not found for %s", e.URL)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ReplicationError reports the locations an inode could not be written to.
type ReplicationError struct {
	Fingerprint string
	Total       int
	Failed      map[string]error
}

func (e *ReplicationError) Error() string {
	paths := make([]string, 0, len(e.Failed))
	for p := range e.Failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return fmt.Sprintf("inode %s written to %d of %d locations, failed: %s",
		e.Fingerprint, e.Total-len(e.Failed), e.Total, strings.Join(paths, ", "))
}

func (e *ReplicationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// Store persists inodes redundantly, one JSON copy per storage location.
type Store struct {
	backend    storage.Backend
	locations  []config.StorageLocation
	requireAll bool
	log        logrus.FieldLogger
}

type StoreOption func(*Store)

// WithRequireAll makes Save fail unless every location accepted the inode.
func WithRequireAll(requireAll bool) StoreOption {
	return func(s *Store) { s.requireAll = requireAll }
}

func WithLogger(log logrus.FieldLogger) StoreOption {
	return func(s *Store) { s.log = log }
}

func NewStore(backend storage.Backend, locations []config.StorageLocation, opts ...StoreOption) *Store {
	s := &Store{
		backend:   backend,
		locations: locations,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Or(s.log)
	return s
}

// Save writes meta to every location concurrently and returns a copy once
// all of them have answered. Partial replication is logged and tolerated
// unless the store requires all copies; losing every copy is always an
// error. When a required copy fails, the copies that were written are rolled
// back to what each location held before, so a failed save leaves no new
// inode addressable.
func (s *Store) Save(ctx context.Context, meta *FileMetadata) (*FileMetadata, error) {
	if len(s.locations) == 0 {
		s.log.Warnf("no storage locations configured, inode %s not written", meta.Fingerprint)
		return meta.Clone(), nil
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inode: %w", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failed   = make(map[string]error)
		previous = make(map[string][]byte)
	)
	for _, loc := range s.locations {
		wg.Add(1)
		go func(loc config.StorageLocation) {
			defer wg.Done()
			path := storage.Join(loc.Path, meta.Key())
			log := s.log.WithFields(logrus.Fields{"url": meta.URL, "location": loc.Path})

			var prev []byte
			if s.requireAll {
				prev, _ = s.backend.Read(ctx, path)
			}
			if err := s.backend.Write(ctx, path, payload); err != nil {
				log.Errorf("error saving inode: %v", err)
				mu.Lock()
				failed[loc.Path] = err
				mu.Unlock()
				return
			}
			mu.Lock()
			previous[loc.Path] = prev
			mu.Unlock()
			log.Info("inode saved to disk")
		}(loc)
	}
	wg.Wait()

	if len(failed) == 0 {
		return meta.Clone(), nil
	}
	repErr := &ReplicationError{Fingerprint: meta.Fingerprint, Total: len(s.locations), Failed: failed}
	if s.requireAll {
		s.rollback(context.WithoutCancel(ctx), meta, previous)
		return nil, repErr
	}
	if len(failed) == len(s.locations) {
		return nil, repErr
	}
	s.log.Warn(repErr.Error())
	return meta.Clone(), nil
}

// rollback restores the prior copy at each location in written, or removes
// the new copy where there was none. Failures are logged only.
func (s *Store) rollback(ctx context.Context, meta *FileMetadata, written map[string][]byte) {
	for loc, prev := range written {
		path := storage.Join(loc, meta.Key())
		log := s.log.WithFields(logrus.Fields{"url": meta.URL, "location": loc})

		var err error
		if prev != nil {
			err = s.backend.Write(ctx, path, prev)
		} else {
			err = s.backend.Delete(ctx, path)
		}
		if err != nil {
			log.Errorf("error rolling back inode: %v", err)
			continue
		}
		log.Info("inode rolled back")
	}
}

// Load returns the first readable, well-formed copy of the inode for url,
// probing locations in configured order.
func (s *Store) Load(ctx context.Context, url string) (*FileMetadata, error) {
	fingerprint := Fingerprint(url)
	s.log.Debugf("loading inode for %s", url)

	for _, loc := range s.locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := s.backend.Read(ctx, storage.Join(loc.Path, fingerprint+".json"))
		if err != nil {
			s.log.Debugf("error loading inode from %s: %v", loc.Path, err)
			continue
		}

		var meta FileMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			s.log.Debugf("corrupt inode at %s: %v", loc.Path, err)
			continue
		}
		if meta.Blocks == nil {
			meta.Blocks = []BlockRef{}
		}
		s.log.Infof("inode loaded from %s", loc.Path)
		return &meta, nil
	}

	s.log.Warnf("unable to load inode for requested URL: %s", url)
	return nil, &NotFoundError{URL: url}
}

// Delete removes every copy of the inode for url. Blocks are shared between
// files and are left in place.
func (s *Store) Delete(ctx context.Context, url string) error {
	fingerprint := Fingerprint(url)
	removed := 0
	var errs []error
	for _, loc := range s.locations {
		err := s.backend.Delete(ctx, storage.Join(loc.Path, fingerprint+".json"))
		switch {
		case err == nil:
			removed++
		case errors.Is(err, storage.ErrNotFound):
		default:
			errs = append(errs, fmt.Errorf("%s: %w", loc.Path, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if removed == 0 {
		return &NotFoundError{URL: url}
	}
	s.log.Infof("inode for %s removed from %d locations", url, removed)
	return nil
}
