package optimization

import "github.com/wolfeidau/assetpipe/internal/mode"

// Minimizer identifiers, run in the order they appear in a Policy.
const (
	CSSMinimizer = "css-minimizer"
	JSMinimizer  = "terser"
)

// ChunksAll extracts every module shared between chunks exactly once,
// regardless of how it is referenced.
const ChunksAll = "all"

type SplitChunks struct {
	Chunks string `yaml:"chunks"`
}

// Policy describes chunk splitting and minification for one build.
type Policy struct {
	SplitChunks SplitChunks `yaml:"splitChunks"`
	// Minimizers run in order. Later minimizers may depend on the output of
	// earlier ones, so the order is part of the contract.
	Minimizers []string `yaml:"minimizers,omitempty"`
	// Enabled mirrors the production flag of the mode.
	Enabled bool `yaml:"minimize"`
}

// Build returns the policy for m.
func Build(m mode.Mode) Policy {
	p := Policy{
		SplitChunks: SplitChunks{Chunks: ChunksAll},
		Enabled:     m.IsProduction(),
	}
	if m.IsProduction() {
		p.Minimizers = []string{CSSMinimizer, JSMinimizer}
	}
	return p
}

// Splitting reports whether shared modules are extracted into chunks.
func (p Policy) Splitting() bool {
	return p.SplitChunks.Chunks == ChunksAll
}
