package cachestore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// DiskStore is a Store persisting artifacts on the local filesystem,
// surviving across runs. Entries live under dir, addressed by the BLAKE3
// digest of their key, sharded by the first digest byte to keep directory
// fan-out sane. Each entry file is a one-byte compression tag followed by
// the (possibly compressed) artifact bytes.
//
// Writes go through a temp file and a rename, so concurrent puts to the
// same key cannot expose a torn entry: a reader sees either nothing or a
// complete artifact.
type DiskStore struct {
	dir string
	tag CompressionTag
}

// NewDiskStore opens (creating if needed) a disk store rooted at dir. New
// entries are written with the given compression; existing entries declare
// their own tag and remain readable regardless.
func NewDiskStore(dir string, tag CompressionTag) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &DiskStore{dir: dir, tag: tag}, nil
}

// Get implements Store. A hit refreshes the entry's mtime as a recency
// marker for external eviction tooling; failure to refresh is ignored.
func (s *DiskStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := s.entryPath(key)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	if len(raw) < 1 {
		return nil, false, fmt.Errorf("cache entry %s is truncated", filepath.Base(path))
	}

	data, err := decompress(raw[1:], CompressionTag(raw[0]))
	if err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", filepath.Base(path), err)
	}

	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return data, true, nil
}

// Put implements Store. An existing entry makes the write a no-op without
// touching the file, preserving idempotence and the recency marker.
func (s *DiskStore) Put(_ context.Context, key string, data []byte) error {
	path := s.entryPath(key)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache shard: %w", err)
	}

	payload, err := compress(data, s.tag)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("staging cache entry: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write([]byte{byte(s.tag)}); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	// Last writer wins; both writers carry identical content for a given
	// key, so the race is harmless.
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("committing cache entry: %w", err)
	}
	return nil
}

func (s *DiskStore) entryPath(key string) string {
	sum := blake3.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(s.dir, name[:2], name+".artifact")
}
