package plugins

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/mode"
)

var defaultOpts = Options{
	Template:   "index.html",
	AssetsDir:  "assets",
	CopyAssets: true,
}

func TestBuild_Development(t *testing.T) {
	stages := Build(mode.Development, defaultOpts)

	require.Equal(t, []Name{HTML, Clean, ExtractCSS, Copy}, Names(stages))
	for _, s := range stages {
		require.True(t, s.AlwaysRun)
		require.False(t, s.ProdOnly)
	}

	html := stages[0].Config.(*HTMLConfig)
	require.False(t, html.CollapseWhitespace)
	require.Equal(t, "index.html", html.Filename)

	css := stages[2].Config.(*ExtractCSSConfig)
	require.Equal(t, "css/main.css", css.Filename.Name("main", "css", []byte("x")))

	require.NoError(t, Validate(mode.Development, stages))
}

func TestBuild_Production(t *testing.T) {
	stages := Build(mode.Production, defaultOpts)

	require.Equal(t, []Name{HTML, Clean, ExtractCSS, Copy, Imagemin}, Names(stages))
	require.True(t, stages[0].Config.(*HTMLConfig).CollapseWhitespace)

	img := stages[4]
	require.True(t, img.ProdOnly)
	require.False(t, img.AlwaysRun)

	cfg := img.Config.(*ImageminConfig)
	require.False(t, cfg.Bail)
	require.True(t, cfg.Cache)

	names := make([]string, 0, len(cfg.Compressors))
	for _, c := range cfg.Compressors {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{Gifsicle, Jpegtran, Optipng, Svgo}, names)
	require.Equal(t, true, cfg.Compressors[0].Options["interlaced"])
	require.Equal(t, true, cfg.Compressors[1].Options["progressive"])
	require.Equal(t, 5, cfg.Compressors[2].Options["optimizationLevel"])
	require.Equal(t, false, cfg.Compressors[3].Options["removeViewBox"])

	require.NoError(t, Validate(mode.Production, stages))
}

func TestBuild_CopyDisabled(t *testing.T) {
	opts := defaultOpts
	opts.CopyAssets = false

	stages := Build(mode.Production, opts)
	require.Equal(t, []Name{HTML, Clean, ExtractCSS, Imagemin}, Names(stages))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mode   mode.Mode
		stages []Name
		errMsg string
	}{
		{
			name:   "copy before clean",
			mode:   mode.Production,
			stages: []Name{HTML, Copy, Clean},
			errMsg: `"clean" must run before "copy"`,
		},
		{
			name:   "imagemin before html",
			mode:   mode.Production,
			stages: []Name{Imagemin, HTML},
			errMsg: `"html" must run before "imagemin"`,
		},
		{
			name:   "imagemin before extract",
			mode:   mode.Production,
			stages: []Name{HTML, Imagemin, ExtractCSS},
			errMsg: `"extract-css" must run before "imagemin"`,
		},
		{
			name:   "duplicate",
			mode:   mode.Production,
			stages: []Name{HTML, HTML},
			errMsg: "declared twice",
		},
		{
			name:   "extract before html is fine",
			mode:   mode.Production,
			stages: []Name{ExtractCSS, HTML, Clean, Copy, Imagemin},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stages := make([]Stage, 0, len(tt.stages))
			for _, n := range tt.stages {
				stages = append(stages, Stage{Name: n})
			}
			err := Validate(tt.mode, stages)
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestValidate_ProdOnlyInDevelopment(t *testing.T) {
	stages := Build(mode.Production, defaultOpts)
	require.ErrorContains(t, Validate(mode.Development, stages), "production only")
}

func TestAssembly_AddIf(t *testing.T) {
	a := NewAssembly().
		Add(Stage{Name: HTML}).
		AddIf(false, Stage{Name: Copy}).
		AddIf(true, Stage{Name: Clean})

	stages := a.Stages()
	require.Equal(t, []Name{HTML, Clean}, Names(stages))

	stages[0].Name = "mutated"
	require.Equal(t, HTML, a.Stages()[0].Name)
}
