package vips

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/imagemin"
	"github.com/wolfeidau/assetpipe/internal/plugins"
)

func TestFactories_DefaultCompressors(t *testing.T) {
	factories := Factories()

	formats := map[string]imagemin.Format{
		plugins.Gifsicle: imagemin.GIF,
		plugins.Jpegtran: imagemin.JPEG,
		plugins.Optipng:  imagemin.PNG,
	}

	for _, spec := range plugins.DefaultCompressors() {
		if spec.Name == plugins.Svgo {
			continue
		}
		factory, ok := factories[spec.Name]
		require.True(t, ok, spec.Name)

		c, err := factory(spec.Options)
		require.NoError(t, err, spec.Name)
		require.Equal(t, spec.Name, c.Name())
		require.Equal(t, formats[spec.Name], c.Format())
	}
}

func TestNewPNG_Options(t *testing.T) {
	tests := []struct {
		name    string
		opts    map[string]any
		wantErr bool
	}{
		{name: "default", opts: nil},
		{name: "int", opts: map[string]any{"optimizationLevel": 5}},
		{name: "yaml float", opts: map[string]any{"optimizationLevel": float64(7)}},
		{name: "fraction", opts: map[string]any{"optimizationLevel": 2.5}, wantErr: true},
		{name: "out of range", opts: map[string]any{"optimizationLevel": 8}, wantErr: true},
		{name: "string", opts: map[string]any{"optimizationLevel": "5"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPNG(tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewJPEG_QualityRange(t *testing.T) {
	_, err := NewJPEG(map[string]any{"quality": 0})
	require.Error(t, err)

	_, err = NewJPEG(map[string]any{"progressive": true, "quality": 70})
	require.NoError(t, err)
}

func TestPNGCompression(t *testing.T) {
	require.Equal(t, 2, PNGCompression(0))
	require.Equal(t, 7, PNGCompression(5))
	require.Equal(t, 9, PNGCompression(7))
}

func TestNewGIF_InterlacedWarns(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)
	t.Cleanup(func() { log.Logger = previous })

	_, err := NewGIF(map[string]any{"interlaced": false})
	require.NoError(t, err)
	require.Empty(t, buf.String())

	c, err := NewGIF(map[string]any{"interlaced": true})
	require.NoError(t, err)
	require.Equal(t, plugins.Gifsicle, c.Name())
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.Contains(t, buf.String(), "interlacing is not supported")
}
