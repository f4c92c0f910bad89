package transform

import (
	"context"
	"errors"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/rules"
)

func TestRegistry_RunOrder(t *testing.T) {
	var calls []string
	record := func(name string) Transformer {
		return Func(func(_ context.Context, in Asset, opts Options) (Asset, error) {
			calls = append(calls, name+":"+opts.String("tag", ""))
			in.Contents = append(in.Contents, name...)
			return in, nil
		})
	}

	r := NewRegistry().Register("a", record("a")).Register("b", record("b"))
	out, err := r.Run(context.Background(), []rules.Step{
		{Name: "a", Options: map[string]any{"tag": "first"}},
		{Name: "b"},
		{Name: "a"},
	}, Asset{Path: "x", Contents: []byte(">")})
	require.NoError(t, err)

	require.Equal(t, ">aba", string(out.Contents))
	require.Equal(t, []string{"a:first", "b:", "a:"}, calls)
	require.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_RunErrors(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry().Register("fail", Func(func(context.Context, Asset, Options) (Asset, error) {
		return Asset{}, boom
	}))

	_, err := r.Run(context.Background(), []rules.Step{{Name: "fail"}}, Asset{Path: "src/a.js"})
	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, "fail", terr.Step)
	require.Equal(t, "src/a.js", terr.Path)
	require.ErrorIs(t, err, boom)

	_, err = r.Run(context.Background(), []rules.Step{{Name: "missing"}}, Asset{Path: "src/a.js"})
	require.ErrorIs(t, err, ErrUnknownStep)
}

func TestRegistry_RunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRegistry().Register("css", CSS()).Run(ctx, []rules.Step{{Name: "css"}}, Asset{Kind: KindCSS})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_EmptyChain(t *testing.T) {
	in := Asset{Path: "a.json", Contents: []byte("{}"), Kind: KindJSON}
	out, err := NewRegistry().Run(context.Background(), nil, in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestCSSAndExtract(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry().Register(rules.StepCSS, CSS()).Register(rules.StepExtractCSS, ExtractCSS())

	out, err := r.Run(ctx, []rules.Step{{Name: rules.StepCSS}, {Name: rules.StepExtractCSS}},
		Asset{Path: "a.css", Contents: []byte("a{}"), Kind: KindCSS})
	require.NoError(t, err)
	require.True(t, out.Extract)
	require.Equal(t, "relative", out.PublicPath)

	_, err = r.Run(ctx, []rules.Step{{Name: rules.StepCSS}}, Asset{Path: "a.scss", Kind: KindSass})
	require.ErrorContains(t, err, "expected css input")

	_, err = r.Run(ctx, []rules.Step{{Name: rules.StepExtractCSS, Options: map[string]any{"publicPath": "/abs/"}}},
		Asset{Path: "a.css", Kind: KindCSS})
	require.ErrorContains(t, err, "unsupported publicPath")
}

func TestHTML(t *testing.T) {
	out, err := HTML().Transform(context.Background(), Asset{
		Path:     "partial.html",
		Contents: []byte("<p class=\"x\">hi</p>\n"),
		Kind:     KindHTML,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, KindJS, out.Kind)
	require.Equal(t, "export default \"\\u003cp class=\\\"x\\\"\\u003ehi\\u003c/p\\u003e\\n\";\n", string(out.Contents))
}

func TestFile(t *testing.T) {
	out, err := File().Transform(context.Background(), Asset{Path: "a.png", Contents: []byte{1}, Kind: KindFile}, nil)
	require.NoError(t, err)
	require.Equal(t, KindFile, out.Kind)
	require.Equal(t, []byte{1}, out.Contents)
}

func TestBabel(t *testing.T) {
	b := NewBabel(api.ES2015, false)

	out, err := b.Transform(context.Background(), Asset{
		Path:     "src/js/math.js",
		Contents: []byte("export const cube = (n) => n ** 3;\n"),
		Kind:     KindJS,
	}, nil)
	require.NoError(t, err)

	code := string(out.Contents)
	assert.Contains(t, code, "Math.pow")
	assert.Contains(t, code, "export", "module syntax is preserved for the bundler")
}

func TestBabel_SyntaxError(t *testing.T) {
	_, err := NewBabel(api.ES2015, false).Transform(context.Background(), Asset{
		Path:     "src/js/broken.js",
		Contents: []byte("export const = ;"),
		Kind:     KindJS,
	}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken.js")
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("ES2015")
	require.NoError(t, err)
	require.Equal(t, api.ES2015, target)

	_, err = ParseTarget("es1999")
	require.Error(t, err)
}

func TestKindFromPath(t *testing.T) {
	tests := map[string]Kind{
		"a.js":       KindJS,
		"a.MJS":      KindJS,
		"a.css":      KindCSS,
		"a.scss":     KindSass,
		"a.sass":     KindSass,
		"a.json":     KindJSON,
		"index.html": KindHTML,
		"logo.png":   KindFile,
	}
	for p, expected := range tests {
		require.Equal(t, expected, KindFromPath(p), p)
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry(DefaultOptions{Target: api.ES2015})
	for _, name := range []string{rules.StepHTML, rules.StepCSS, rules.StepExtractCSS, rules.StepSass, rules.StepFile, rules.StepBabel} {
		_, ok := r.Lookup(name)
		require.True(t, ok, name)
	}
	require.NoError(t, r.Close(), "sass was never started")
}
