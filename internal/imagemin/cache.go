package imagemin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/plugins"
)

// DefaultCacheEntries is the in-memory capacity of a cache.
const DefaultCacheEntries = 512

// Cache keeps compressed images keyed by compressor settings and input
// content. Entries live in an LRU and, when dir is set, in zstd compressed
// files under dir so they survive between builds.
type Cache struct {
	dir    string
	memory *lru.Cache[string, []byte]
}

// NewCache creates a cache. An empty dir keeps entries in memory only.
func NewCache(dir string, entries int) (*Cache, error) {
	if entries <= 0 {
		entries = DefaultCacheEntries
	}

	memory, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, err
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
	}

	return &Cache{dir: dir, memory: memory}, nil
}

// Key derives the cache key for data compressed with the settings prefix.
func (c *Cache) Key(prefix string, data []byte) string {
	return naming.Fingerprint([]byte(prefix)) + "-" + naming.Fingerprint(data) + fmt.Sprintf("-%x", len(data))
}

// Get returns the cached bytes for key.
func (c *Cache) Get(key string) ([]byte, bool) {
	if data, ok := c.memory.Get(key); ok {
		return data, true
	}
	if c.dir == "" {
		return nil, false
	}

	data, err := c.readFile(key)
	if err != nil {
		return nil, false
	}

	c.memory.Add(key, data)
	return data, true
}

// Put stores data under key.
func (c *Cache) Put(key string, data []byte) error {
	c.memory.Add(key, data)
	if c.dir == "" {
		return nil
	}
	return c.writeFile(key, data)
}

// Len returns the number of entries held in memory.
func (c *Cache) Len() int {
	return c.memory.Len()
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".zst")
}

func (c *Cache) readFile(key string) ([]byte, error) {
	f, err := os.Open(c.path(key))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	return io.ReadAll(dec)
}

func (c *Cache) writeFile(key string, data []byte) error {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		return errors.Join(err, enc.Close())
	}
	if err := enc.Close(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, "entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return errors.Join(err, tmp.Close(), os.Remove(tmp.Name()))
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(err, os.Remove(tmp.Name()))
	}
	return os.Rename(tmp.Name(), c.path(key))
}

// cacheKeyPrefix renders a compressor spec with its options in a stable
// order so that changing an option invalidates cached output.
func cacheKeyPrefix(spec plugins.CompressorSpec) string {
	keys := make([]string, 0, len(spec.Options))
	for k := range spec.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(spec.Name)
	for _, k := range keys {
		fmt.Fprintf(&sb, ";%s=%v", k, spec.Options[k])
	}
	return sb.String()
}
