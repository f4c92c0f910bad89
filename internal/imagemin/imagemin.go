// Package imagemin compresses emitted images with one compressor per image
// format. A compressor failing on one image is recorded and, unless the
// configuration bails, the original bytes are kept and the build continues.
package imagemin

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/plugins"
)

// Format is an image format handled by exactly one compressor.
type Format string

const (
	GIF  Format = "gif"
	JPEG Format = "jpeg"
	PNG  Format = "png"
	SVG  Format = "svg"
)

// FormatFromPath returns the image format of p, or false for anything that
// is not an image.
func FormatFromPath(p string) (Format, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".gif":
		return GIF, true
	case ".jpg", ".jpeg":
		return JPEG, true
	case ".png":
		return PNG, true
	case ".svg":
		return SVG, true
	default:
		return "", false
	}
}

// Compressor recompresses images of a single format.
type Compressor interface {
	Name() string
	Format() Format
	Compress(ctx context.Context, data []byte) ([]byte, error)
}

// Factory builds a compressor from its declared options.
type Factory func(opts map[string]any) (Compressor, error)

// ErrUnknownCompressor is returned for a compressor name without a factory.
var ErrUnknownCompressor = errors.New("unknown image compressor")

// Failure records one image that could not be compressed.
type Failure struct {
	Path       string `json:"path"`
	Compressor string `json:"compressor"`
	Reason     string `json:"reason"`
	Err        error  `json:"-"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed to compress %s: %v", f.Compressor, f.Path, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Result is the outcome of compressing one image.
type Result struct {
	Path     string
	Contents []byte
	// Saved is the number of bytes removed, zero when the original was kept.
	Saved   int
	Cached  bool
	Failure *Failure
}

// Minifier dispatches images to the compressor for their format.
type Minifier struct {
	bail        bool
	cache       *Cache
	compressors map[Format]Compressor
	keys        map[Format]string
}

// New builds a minifier for cfg. Every compressor named in cfg must have a
// factory. cache may be nil.
func New(cfg plugins.ImageminConfig, factories map[string]Factory, cache *Cache) (*Minifier, error) {
	m := &Minifier{
		bail:        cfg.Bail,
		compressors: make(map[Format]Compressor, len(cfg.Compressors)),
		keys:        make(map[Format]string, len(cfg.Compressors)),
	}
	if cfg.Cache {
		m.cache = cache
	}

	for _, spec := range cfg.Compressors {
		factory, ok := factories[spec.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCompressor, spec.Name)
		}

		c, err := factory(spec.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to configure %s: %w", spec.Name, err)
		}

		if prev, dup := m.compressors[c.Format()]; dup {
			return nil, fmt.Errorf("%s and %s both compress %s images", prev.Name(), c.Name(), c.Format())
		}

		m.compressors[c.Format()] = c
		m.keys[c.Format()] = cacheKeyPrefix(spec)
	}

	return m, nil
}

// Compress compresses a single image. Images without a compressor are
// returned unchanged. An error is only returned when the context is done or
// the minifier bails on failures; otherwise the failure is carried in the
// result along with the original bytes.
func (m *Minifier) Compress(ctx context.Context, p string, data []byte) (Result, error) {
	res := Result{Path: p, Contents: data}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	format, ok := FormatFromPath(p)
	if !ok {
		return res, nil
	}
	c, ok := m.compressors[format]
	if !ok {
		return res, nil
	}

	key := ""
	if m.cache != nil {
		key = m.cache.Key(m.keys[format], data)
		if out, ok := m.cache.Get(key); ok {
			res.Contents = out
			res.Saved = len(data) - len(out)
			res.Cached = true
			return res, nil
		}
	}

	out, err := c.Compress(ctx, data)
	if err != nil {
		failure := &Failure{Path: p, Compressor: c.Name(), Reason: err.Error(), Err: err}
		if m.bail {
			return res, failure
		}

		log.Warn().Err(err).Str("path", p).Str("compressor", c.Name()).Msg("Image compression failed, keeping original")
		res.Failure = failure
		return res, nil
	}

	if len(out) >= len(data) {
		out = data
	}

	if m.cache != nil {
		if err := m.cache.Put(key, out); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Failed to cache compressed image")
		}
	}

	res.Contents = out
	res.Saved = len(data) - len(out)

	log.Debug().Str("path", p).Str("compressor", c.Name()).Int("saved", res.Saved).Msg("Compressed image")
	return res, nil
}

// CompressAll compresses every image in files, replacing contents in place.
// Results are returned in path order.
func (m *Minifier) CompressAll(ctx context.Context, files map[string][]byte) ([]Result, error) {
	paths := make([]string, 0, len(files))
	for p := range files {
		if _, ok := FormatFromPath(p); ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		res, err := m.Compress(ctx, p, files[p])
		if err != nil {
			return results, err
		}
		files[p] = res.Contents
		results = append(results, res)
	}
	return results, nil
}

// Failures returns the failures recorded in results.
func Failures(results []Result) []*Failure {
	var failures []*Failure
	for _, res := range results {
		if res.Failure != nil {
			failures = append(failures, res.Failure)
		}
	}
	return failures
}
