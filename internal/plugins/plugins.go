// Package plugins assembles the ordered post-processing stages of a build.
package plugins

import (
	"fmt"

	"github.com/wolfeidau/assetpipe/internal/mode"
	"github.com/wolfeidau/assetpipe/internal/naming"
)

// Name identifies a stage.
type Name string

const (
	HTML       Name = "html"
	Clean      Name = "clean"
	ExtractCSS Name = "extract-css"
	Copy       Name = "copy"
	Imagemin   Name = "imagemin"
)

// Stage is one step of the post-processing assembly. Config holds one of the
// *Config types below, matching Name.
type Stage struct {
	Name      Name `yaml:"name"`
	AlwaysRun bool `yaml:"alwaysRun"`
	ProdOnly  bool `yaml:"prodOnly"`
	Config    any  `yaml:"config"`
}

type HTMLConfig struct {
	// Template is relative to the source root.
	Template string `yaml:"template"`
	// Filename is relative to the output root.
	Filename           string `yaml:"filename"`
	CollapseWhitespace bool   `yaml:"collapseWhitespace"`
}

type CleanConfig struct {
	// Keep lists output-relative glob patterns that survive cleanup.
	Keep []string `yaml:"keep,omitempty"`
}

type ExtractCSSConfig struct {
	Filename naming.Policy `yaml:"filename"`
}

type CopyPattern struct {
	// From is relative to the source root, To to the output root.
	From   string   `yaml:"from"`
	To     string   `yaml:"to"`
	Ignore []string `yaml:"ignore,omitempty"`
}

type CopyConfig struct {
	Patterns []CopyPattern `yaml:"patterns"`
}

// CompressorSpec selects one per-format image compressor.
type CompressorSpec struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

type ImageminConfig struct {
	// Bail aborts the build on the first image that fails to compress.
	Bail        bool             `yaml:"bail"`
	Cache       bool             `yaml:"cache"`
	Compressors []CompressorSpec `yaml:"compressors"`
}

// Compressor names.
const (
	Gifsicle = "gifsicle"
	Jpegtran = "jpegtran"
	Optipng  = "optipng"
	Svgo     = "svgo"
)

// DefaultCompressors returns the fixed compressor list used in production.
func DefaultCompressors() []CompressorSpec {
	return []CompressorSpec{
		{Name: Gifsicle, Options: map[string]any{"interlaced": true}},
		{Name: Jpegtran, Options: map[string]any{"progressive": true}},
		{Name: Optipng, Options: map[string]any{"optimizationLevel": 5}},
		{Name: Svgo, Options: map[string]any{"removeViewBox": false}},
	}
}

// Options are the inputs that are not derived from the mode.
type Options struct {
	Template   string
	AssetsDir  string
	CopyAssets bool
	CopyIgnore []string
	CleanKeep  []string
}

// Assembly is a builder for an ordered list of stages.
type Assembly struct {
	stages []Stage
}

func NewAssembly() *Assembly {
	return &Assembly{stages: make([]Stage, 0, 5)}
}

// Add appends a stage unconditionally.
func (a *Assembly) Add(s Stage) *Assembly {
	a.stages = append(a.stages, s)
	return a
}

// AddIf appends a stage only if cond is true.
func (a *Assembly) AddIf(cond bool, s Stage) *Assembly {
	if cond {
		a.Add(s)
	}
	return a
}

// Stages returns a copy of the assembled stages.
func (a *Assembly) Stages() []Stage {
	out := make([]Stage, len(a.stages))
	copy(out, a.stages)
	return out
}

// Build assembles the stages for m.
func Build(m mode.Mode, opts Options) []Stage {
	return NewAssembly().
		Add(Stage{
			Name:      HTML,
			AlwaysRun: true,
			Config: &HTMLConfig{
				Template:           opts.Template,
				Filename:           "index.html",
				CollapseWhitespace: m.IsProduction(),
			},
		}).
		Add(Stage{
			Name:      Clean,
			AlwaysRun: true,
			Config:    &CleanConfig{Keep: opts.CleanKeep},
		}).
		Add(Stage{
			Name:      ExtractCSS,
			AlwaysRun: true,
			Config:    &ExtractCSSConfig{Filename: naming.ForMode(m, "css")},
		}).
		AddIf(opts.CopyAssets, Stage{
			Name:      Copy,
			AlwaysRun: true,
			Config: &CopyConfig{
				Patterns: []CopyPattern{{From: opts.AssetsDir, To: ".", Ignore: opts.CopyIgnore}},
			},
		}).
		AddIf(m.IsProduction(), Stage{
			Name:     Imagemin,
			ProdOnly: true,
			Config: &ImageminConfig{
				Bail:        false,
				Cache:       true,
				Compressors: DefaultCompressors(),
			},
		}).
		Stages()
}

// Validate checks the ordering constraints between stages: cleanup before
// copy, and markup and stylesheet emission before image compression.
func Validate(m mode.Mode, stages []Stage) error {
	index := make(map[Name]int, len(stages))
	for i, s := range stages {
		if _, dup := index[s.Name]; dup {
			return fmt.Errorf("stage %q declared twice", s.Name)
		}
		if s.ProdOnly && m.IsDevelopment() {
			return fmt.Errorf("stage %q is production only", s.Name)
		}
		index[s.Name] = i
	}

	before := func(a, b Name) error {
		ia, okA := index[a]
		ib, okB := index[b]
		if okA && okB && ia > ib {
			return fmt.Errorf("stage %q must run before %q", a, b)
		}
		return nil
	}

	for _, pair := range [][2]Name{
		{Clean, Copy},
		{HTML, Imagemin},
		{ExtractCSS, Imagemin},
		{Copy, Imagemin},
	} {
		if err := before(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the stage names in order.
func Names(stages []Stage) []Name {
	names := make([]Name, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name)
	}
	return names
}
