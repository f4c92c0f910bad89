package imagemin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/plugins"
)

var errCorrupt = errors.New("corrupt image")

// fakeCompressor strips a fixed header and rejects anything without it.
type fakeCompressor struct {
	name   string
	format Format
	calls  int
}

func (f *fakeCompressor) Name() string   { return f.name }
func (f *fakeCompressor) Format() Format { return f.format }

func (f *fakeCompressor) Compress(_ context.Context, data []byte) ([]byte, error) {
	f.calls++
	if !bytes.HasPrefix(data, []byte("IMG:")) {
		return nil, errCorrupt
	}
	return bytes.TrimPrefix(data, []byte("IMG:")), nil
}

func fakeFactories(png *fakeCompressor) map[string]Factory {
	return map[string]Factory{
		plugins.Optipng: func(map[string]any) (Compressor, error) { return png, nil },
		plugins.Svgo:    NewSVG,
	}
}

func config(bail, cache bool) plugins.ImageminConfig {
	return plugins.ImageminConfig{
		Bail:  bail,
		Cache: cache,
		Compressors: []plugins.CompressorSpec{
			{Name: plugins.Optipng, Options: map[string]any{"optimizationLevel": 5}},
			{Name: plugins.Svgo, Options: map[string]any{"removeViewBox": false}},
		},
	}
}

func TestCompressAll_NoBailRecordsFailure(t *testing.T) {
	png := &fakeCompressor{name: plugins.Optipng, format: PNG}
	m, err := New(config(false, false), fakeFactories(png), nil)
	require.NoError(t, err)

	files := map[string][]byte{
		"img/broken.png": []byte("garbage"),
		"img/logo.png":   []byte("IMG:pixels"),
		"js/main.js":     []byte("console.log(1)"),
	}

	results, err := m.CompressAll(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, results, 2, "only images are compressed")

	failures := Failures(results)
	require.Len(t, failures, 1)
	require.Equal(t, "img/broken.png", failures[0].Path)
	require.Equal(t, plugins.Optipng, failures[0].Compressor)
	require.ErrorIs(t, failures[0], errCorrupt)

	require.Equal(t, "pixels", string(files["img/logo.png"]))
	require.Equal(t, "garbage", string(files["img/broken.png"]), "original bytes are kept")
	require.Equal(t, "console.log(1)", string(files["js/main.js"]))
}

func TestCompressAll_Bail(t *testing.T) {
	png := &fakeCompressor{name: plugins.Optipng, format: PNG}
	m, err := New(config(true, false), fakeFactories(png), nil)
	require.NoError(t, err)

	_, err = m.CompressAll(context.Background(), map[string][]byte{
		"a.png": []byte("garbage"),
	})

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, "a.png", failure.Path)
}

func TestCompress_KeepsSmallerOutput(t *testing.T) {
	grow := Factory(func(map[string]any) (Compressor, error) {
		return &growCompressor{}, nil
	})
	m, err := New(plugins.ImageminConfig{
		Compressors: []plugins.CompressorSpec{{Name: plugins.Jpegtran}},
	}, map[string]Factory{plugins.Jpegtran: grow}, nil)
	require.NoError(t, err)

	res, err := m.Compress(context.Background(), "photo.JPG", []byte("abc"))
	require.NoError(t, err)
	require.Equal(t, "abc", string(res.Contents))
	require.Zero(t, res.Saved)
}

type growCompressor struct{}

func (growCompressor) Name() string   { return plugins.Jpegtran }
func (growCompressor) Format() Format { return JPEG }
func (growCompressor) Compress(_ context.Context, data []byte) ([]byte, error) {
	return append(data, data...), nil
}

func TestCompress_UsesCache(t *testing.T) {
	cache, err := NewCache(t.TempDir(), 0)
	require.NoError(t, err)

	png := &fakeCompressor{name: plugins.Optipng, format: PNG}
	m, err := New(config(false, true), fakeFactories(png), cache)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := m.Compress(ctx, "a.png", []byte("IMG:data"))
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := m.Compress(ctx, "b.png", []byte("IMG:data"))
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.Contents, second.Contents)
	require.Equal(t, 1, png.calls)
}

func TestCompress_CacheDisabled(t *testing.T) {
	cache, err := NewCache("", 0)
	require.NoError(t, err)

	png := &fakeCompressor{name: plugins.Optipng, format: PNG}
	m, err := New(config(false, false), fakeFactories(png), cache)
	require.NoError(t, err)

	for range 2 {
		_, err := m.Compress(context.Background(), "a.png", []byte("IMG:data"))
		require.NoError(t, err)
	}
	require.Equal(t, 2, png.calls)
	require.Zero(t, cache.Len())
}

func TestCache_DiskRoundTripAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	c1, err := NewCache(dir, 4)
	require.NoError(t, err)
	key := c1.Key("optipng;optimizationLevel=5", []byte("input"))
	require.NoError(t, c1.Put(key, []byte("compressed")))

	c2, err := NewCache(dir, 4)
	require.NoError(t, err)
	got, ok := c2.Get(key)
	require.True(t, ok)
	require.Equal(t, "compressed", string(got))

	_, ok = c2.Get(c2.Key("optipng;optimizationLevel=2", []byte("input")))
	require.False(t, ok, "option changes invalidate entries")
}

func TestNew_Errors(t *testing.T) {
	png := &fakeCompressor{name: plugins.Optipng, format: PNG}

	_, err := New(plugins.ImageminConfig{
		Compressors: []plugins.CompressorSpec{{Name: "pngquant"}},
	}, fakeFactories(png), nil)
	require.ErrorIs(t, err, ErrUnknownCompressor)

	_, err = New(plugins.ImageminConfig{
		Compressors: []plugins.CompressorSpec{{Name: plugins.Svgo, Options: map[string]any{"removeViewBox": true}}},
	}, fakeFactories(png), nil)
	require.ErrorIs(t, err, ErrRemoveViewBox)

	dup := map[string]Factory{
		"a": func(map[string]any) (Compressor, error) { return &fakeCompressor{name: "a", format: PNG}, nil },
		"b": func(map[string]any) (Compressor, error) { return &fakeCompressor{name: "b", format: PNG}, nil },
	}
	_, err = New(plugins.ImageminConfig{
		Compressors: []plugins.CompressorSpec{{Name: "a"}, {Name: "b"}},
	}, dup, nil)
	require.ErrorContains(t, err, "both compress png")
}

func TestSVG(t *testing.T) {
	c, err := NewSVG(nil)
	require.NoError(t, err)

	in := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10">
    <!-- logo -->
    <rect x="0" y="0" width="10" height="10" />
</svg>`
	out, err := c.Compress(context.Background(), []byte(in))
	require.NoError(t, err)
	assert.Less(t, len(out), len(in))
	assert.Contains(t, string(out), "viewBox")
	assert.NotContains(t, string(out), "logo")
}

func TestFormatFromPath(t *testing.T) {
	for p, expected := range map[string]Format{
		"a.gif":  GIF,
		"a.JPG":  JPEG,
		"a.jpeg": JPEG,
		"a.png":  PNG,
		"a.svg":  SVG,
	} {
		got, ok := FormatFromPath(p)
		require.True(t, ok, p)
		require.Equal(t, expected, got, p)
	}

	_, ok := FormatFromPath("font.woff2")
	require.False(t, ok)
}

func ExampleFailure() {
	f := &Failure{Path: "img/broken.png", Compressor: plugins.Optipng, Err: errCorrupt}
	fmt.Println(f)
	// Output: optipng failed to compress img/broken.png: corrupt image
}
