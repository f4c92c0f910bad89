package transform

import (
	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpipe/internal/rules"
)

// DefaultOptions configures the built in transformers.
type DefaultOptions struct {
	Target     api.Target
	SourceMap  bool
	SassBinary string
	SassPaths  []string
}

// NewDefaultRegistry registers a transformer for every step name used by
// the default rule table.
func NewDefaultRegistry(opts DefaultOptions) *Registry {
	return NewRegistry().
		Register(rules.StepHTML, HTML()).
		Register(rules.StepCSS, CSS()).
		Register(rules.StepExtractCSS, ExtractCSS()).
		Register(rules.StepSass, NewSass(opts.SassBinary, opts.SassPaths...)).
		Register(rules.StepFile, File()).
		Register(rules.StepBabel, NewBabel(opts.Target, opts.SourceMap))
}
