package cache

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

type CacheEntry[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

type CacheService[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T) error
	GenerateKey(params ...interface{}) string
}

// FileCache stores one JSON file per key. Entries older than maxAge, or whose
// checksum no longer matches their data, are treated as misses.
type FileCache[T any] struct {
	dir    string
	maxAge time.Duration
	clock  clockwork.Clock
}

// NewFileCache creates a cache under dir. A zero maxAge never expires entries.
func NewFileCache[T any](dir string, maxAge time.Duration) *FileCache[T] {
	return &FileCache[T]{
		dir:    dir,
		maxAge: maxAge,
		clock:  clockwork.NewRealClock(),
	}
}

// GenerateKey hashes the textual form of params into a file name safe key.
func (fc *FileCache[T]) GenerateKey(params ...interface{}) string {
	var b strings.Builder
	for _, p := range params {
		fmt.Fprintf(&b, "%v_", p)
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func (fc *FileCache[T]) path(key string) string {
	return filepath.Join(fc.dir, key+".json")
}

func (fc *FileCache[T]) expired(entry CacheEntry[T]) bool {
	return fc.maxAge > 0 && fc.clock.Since(entry.CreatedAt) > fc.maxAge
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var zero T

	raw, err := os.ReadFile(fc.path(key))
	if err != nil {
		return zero, false
	}
	var entry CacheEntry[T]
	if err := json.Unmarshal(raw, &entry); err != nil || fc.expired(entry) {
		return zero, false
	}
	if sum, err := checksum(entry.Data); err != nil || sum != entry.Checksum {
		return zero, false
	}
	return entry.Data, true
}

// Set writes data through a temporary file in the cache directory so readers
// never see a partial entry, even with concurrent writers for the same key.
func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	sum, err := checksum(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(CacheEntry[T]{Data: data, CreatedAt: fc.clock.Now(), Checksum: sum})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(fc.dir, key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fc.path(key)); err != nil {
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}
	return nil
}

func checksum(data interface{}) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache data: %w", err)
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:]), nil
}
