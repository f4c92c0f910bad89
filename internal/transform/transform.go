// Package transform runs the named transform chains selected by the rule
// table. Every stage is a Transformer so that concrete compilers can be
// swapped out, in particular in tests.
package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/rules"
)

// Kind is the content type of an asset between transform steps.
type Kind string

const (
	KindJS   Kind = "js"
	KindCSS  Kind = "css"
	KindJSON Kind = "json"
	KindHTML Kind = "html"
	KindSass Kind = "sass"
	KindFile Kind = "file"
)

// Asset is the unit flowing through a chain.
type Asset struct {
	// Path is the source path the asset was loaded from.
	Path     string
	Contents []byte
	Kind     Kind
	// Extract is set once the stylesheet has been marked for extraction
	// into its own output file.
	Extract bool
	// PublicPath is how url() references inside an extracted stylesheet are
	// rewritten. Only "relative" is supported.
	PublicPath string
}

// Options are the per-step options declared in the rule.
type Options map[string]any

// Bool returns the boolean option key, or def when unset.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// String returns the string option key, or def when unset.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

// Transformer is one delegated transform capability.
type Transformer interface {
	Transform(ctx context.Context, in Asset, opts Options) (Asset, error)
}

// Func adapts a function to the Transformer interface.
type Func func(ctx context.Context, in Asset, opts Options) (Asset, error)

func (f Func) Transform(ctx context.Context, in Asset, opts Options) (Asset, error) {
	return f(ctx, in, opts)
}

// Error is a TransformFailure: a step of a chain reported an error.
type Error struct {
	Step string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %s failed for %s: %v", e.Step, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnknownStep is returned when a chain names a step nobody registered.
var ErrUnknownStep = errors.New("unknown transform step")

// Registry maps step names to transformers.
type Registry struct {
	transformers map[string]Transformer
}

func NewRegistry() *Registry {
	return &Registry{transformers: make(map[string]Transformer)}
}

// Register adds or replaces the transformer for name.
func (r *Registry) Register(name string, t Transformer) *Registry {
	r.transformers[name] = t
	return r
}

func (r *Registry) Lookup(name string) (Transformer, bool) {
	t, ok := r.transformers[name]
	return t, ok
}

// Names returns the registered step names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.transformers))
	for name := range r.transformers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run applies steps to in, left to right.
func (r *Registry) Run(ctx context.Context, steps []rules.Step, in Asset) (Asset, error) {
	out := in
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return Asset{}, err
		}

		t, ok := r.transformers[step.Name]
		if !ok {
			return Asset{}, &Error{Step: step.Name, Path: in.Path, Err: ErrUnknownStep}
		}

		var err error
		out, err = t.Transform(ctx, out, Options(step.Options))
		if err != nil {
			return Asset{}, &Error{Step: step.Name, Path: in.Path, Err: err}
		}

		log.Debug().Str("path", in.Path).Str("step", step.Name).Str("kind", string(out.Kind)).Msg("Transformed")
	}
	return out, nil
}

// Close releases transformers holding external resources.
func (r *Registry) Close() error {
	var errs []error
	for name, t := range r.transformers {
		if c, ok := t.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// KindFromPath infers the initial kind of a source file from its extension.
func KindFromPath(p string) Kind {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".js", ".mjs", ".cjs", ".jsx":
		return KindJS
	case ".css":
		return KindCSS
	case ".scss", ".sass":
		return KindSass
	case ".json":
		return KindJSON
	case ".html", ".htm":
		return KindHTML
	default:
		return KindFile
	}
}
