package imagemin

import (
	"context"
	"errors"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/wolfeidau/assetpipe/internal/plugins"
)

const svgMediaType = "image/svg+xml"

// ErrRemoveViewBox is returned when an svg compressor is asked to strip the
// viewBox attribute, which the minifier always keeps.
var ErrRemoveViewBox = errors.New("removeViewBox is not supported")

type svgCompressor struct {
	m *minify.M
}

// NewSVG returns the vector compressor. The only recognised option is
// removeViewBox, which must be false.
func NewSVG(opts map[string]any) (Compressor, error) {
	if v, ok := opts["removeViewBox"].(bool); ok && v {
		return nil, ErrRemoveViewBox
	}

	m := minify.New()
	m.Add(svgMediaType, &svg.Minifier{})
	return &svgCompressor{m: m}, nil
}

func (c *svgCompressor) Name() string   { return plugins.Svgo }
func (c *svgCompressor) Format() Format { return SVG }

func (c *svgCompressor) Compress(_ context.Context, data []byte) ([]byte, error) {
	return c.m.Bytes(svgMediaType, data)
}
