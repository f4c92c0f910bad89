// Package vips adapts libvips to the raster image compressors named in the
// imagemin configuration. Startup must be called once before compressing.
package vips

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/imagemin"
	"github.com/wolfeidau/assetpipe/internal/plugins"
)

var (
	startOnce sync.Once
	started   atomic.Bool
)

// Startup initialises libvips with its logging routed through zerolog. Only
// the first call has an effect.
func Startup() {
	startOnce.Do(func() {
		vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
			log.Debug().Str("domain", domain).Int("level", int(level)).Msg(msg)
		}, vips.LogLevelWarning)
		vips.Startup(nil)
		started.Store(true)
	})
}

// Shutdown releases libvips if it was started. libvips cannot be started
// again afterwards.
func Shutdown() {
	if started.CompareAndSwap(true, false) {
		vips.Shutdown()
	}
}

// Factories returns the factories for the raster compressors.
func Factories() map[string]imagemin.Factory {
	return map[string]imagemin.Factory{
		plugins.Gifsicle: NewGIF,
		plugins.Jpegtran: NewJPEG,
		plugins.Optipng:  NewPNG,
	}
}

type compressor struct {
	name   string
	format imagemin.Format
	export func(img *vips.ImageRef) ([]byte, error)
}

func (c *compressor) Name() string            { return c.name }
func (c *compressor) Format() imagemin.Format { return c.format }

func (c *compressor) Compress(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer img.Close()

	return c.export(img)
}

// NewGIF re-encodes palette images. libvips writes GIFs without interlacing,
// so the interlaced option is accepted and logged only.
func NewGIF(opts map[string]any) (imagemin.Compressor, error) {
	if v, ok := opts["interlaced"].(bool); ok && v {
		log.Warn().Str("compressor", plugins.Gifsicle).Msg("GIF interlacing is not supported by libvips, writing non-interlaced output")
	}

	return &compressor{
		name:   plugins.Gifsicle,
		format: imagemin.GIF,
		export: func(img *vips.ImageRef) ([]byte, error) {
			params := vips.NewGifExportParams()
			params.StripMetadata = true
			params.Effort = 7
			out, _, err := img.ExportGIF(params)
			return out, err
		},
	}, nil
}

// NewJPEG re-encodes JPEGs with optimised Huffman tables, progressive when
// the progressive option is set.
func NewJPEG(opts map[string]any) (imagemin.Compressor, error) {
	progressive, _ := opts["progressive"].(bool)

	quality, err := intOption(opts, "quality", 85)
	if err != nil {
		return nil, err
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality %d out of range 1-100", quality)
	}

	return &compressor{
		name:   plugins.Jpegtran,
		format: imagemin.JPEG,
		export: func(img *vips.ImageRef) ([]byte, error) {
			params := vips.NewJpegExportParams()
			params.StripMetadata = true
			params.Quality = quality
			params.Interlace = progressive
			params.OptimizeCoding = true
			out, _, err := img.ExportJpeg(params)
			return out, err
		},
	}, nil
}

// NewPNG re-encodes PNGs losslessly. optimizationLevel follows the optipng
// scale of 0 to 7 and is mapped onto the zlib compression level.
func NewPNG(opts map[string]any) (imagemin.Compressor, error) {
	level, err := intOption(opts, "optimizationLevel", 2)
	if err != nil {
		return nil, err
	}
	if level < 0 || level > 7 {
		return nil, fmt.Errorf("optimizationLevel %d out of range 0-7", level)
	}

	return &compressor{
		name:   plugins.Optipng,
		format: imagemin.PNG,
		export: func(img *vips.ImageRef) ([]byte, error) {
			params := vips.NewPngExportParams()
			params.StripMetadata = true
			params.Compression = PNGCompression(level)
			params.Interlace = false
			out, _, err := img.ExportPng(params)
			return out, err
		},
	}, nil
}

// PNGCompression maps an optipng optimisation level to a zlib level.
func PNGCompression(level int) int {
	return min(9, level+2)
}

func intOption(opts map[string]any, key string, def int) (int, error) {
	v, ok := opts[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%s must be an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}
