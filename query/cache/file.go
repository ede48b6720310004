package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/omegaalfa/QueryBuilder/internal/debug"
)

const fileSuffix = ".qbc"

// fileEntry is the on-disk envelope of one cached value
type fileEntry struct {
	Key       string `msgpack:"k"`
	ExpiresAt int64  `msgpack:"e"` // unix nanoseconds, zero means never
	Value     []byte `msgpack:"v"`
}

// FileStore is a Store keeping one file per key in a directory of an afero
// filesystem. Expired files are removed when they are read.
type FileStore struct {
	mu         sync.Mutex
	fs         afero.Fs
	dir        string
	defaultTTL time.Duration
	now        func() time.Time
}

// NewFileStore creates a store under dir, creating the directory when needed
func NewFileStore(fs afero.Fs, dir string, defaultTTL time.Duration) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{fs: fs, dir: dir, defaultTTL: defaultTTL, now: time.Now}, nil
}

func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+fileSuffix)
}

// Has reports whether a live entry exists for key
func (s *FileStore) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Get retrieves a value from the store
func (s *FileStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(key)
	entry, err := s.read(p)
	if err != nil {
		if !os.IsNotExist(err) {
			debug.Warn("Unreadable cache file", "path", p, "error", err)
		}
		return nil, false
	}
	if entry.Key != key {
		return nil, false
	}
	if s.expired(entry) {
		_ = s.fs.Remove(p)
		return nil, false
	}
	return entry.Value, true
}

// Set writes value for key. A zero ttl uses the default TTL.
func (s *FileStore) Set(key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	entry := fileEntry{Key: key, Value: value}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl).UnixNano()
	}
	data, err := msgpack.Marshal(&entry)
	if err != nil {
		return err
	}

	p := s.path(key)
	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, p)
}

// Invalidate removes a specific key from the store
func (s *FileStore) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.fs.Remove(s.path(key))
}

// InvalidatePattern removes every entry whose key matches pattern
func (s *FileStore) InvalidatePattern(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.walk(func(p string, entry *fileEntry) {
		if matchesPattern(entry.Key, pattern) {
			_ = s.fs.Remove(p)
		}
	})
}

// Clear removes every entry
func (s *FileStore) Clear() {
	s.InvalidatePattern("*")
}

// Prune removes expired entries and returns how many were removed
func (s *FileStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	s.walk(func(p string, entry *fileEntry) {
		if s.expired(entry) && s.fs.Remove(p) == nil {
			removed++
		}
	})
	return removed
}

func (s *FileStore) walk(fn func(path string, entry *fileEntry)) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		debug.Warn("Cannot list cache directory", "dir", s.dir, "error", err)
		return
	}
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), fileSuffix) {
			continue
		}
		p := filepath.Join(s.dir, info.Name())
		entry, err := s.read(p)
		if err != nil {
			continue
		}
		fn(p, entry)
	}
}

func (s *FileStore) read(p string) (*fileEntry, error) {
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, err
	}
	var entry fileEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *FileStore) expired(entry *fileEntry) bool {
	return entry.ExpiresAt != 0 && s.now().UnixNano() > entry.ExpiresAt
}
