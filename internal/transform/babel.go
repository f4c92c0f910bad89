package transform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// ParseTarget maps a language level such as "es2015" to the esbuild target.
func ParseTarget(s string) (api.Target, error) {
	t, ok := targets[strings.ToLower(s)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown script target %q", s)
	}
	return t, nil
}

// Babel transpiles modern script syntax down to the configured target. Module
// syntax is preserved so the bundler can still follow imports.
type Babel struct {
	target    api.Target
	sourceMap bool
}

func NewBabel(target api.Target, sourceMap bool) *Babel {
	return &Babel{target: target, sourceMap: sourceMap}
}

func (b *Babel) Transform(_ context.Context, in Asset, _ Options) (Asset, error) {
	if in.Kind != KindJS {
		return Asset{}, fmt.Errorf("expected js input, got %s", in.Kind)
	}

	loader := api.LoaderJS
	if strings.EqualFold(filepath.Ext(in.Path), ".jsx") {
		loader = api.LoaderJSX
	}

	result := api.Transform(string(in.Contents), api.TransformOptions{
		Loader:     loader,
		Target:     b.target,
		Sourcefile: in.Path,
		Sourcemap:  cond(b.sourceMap, api.SourceMapInline, api.SourceMapNone),
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return Asset{}, MessagesError(result.Errors)
	}

	return Asset{
		Path:     in.Path,
		Contents: result.Code,
		Kind:     KindJS,
	}, nil
}

// MessagesError joins esbuild error messages into one error.
func MessagesError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location != nil {
			errs = append(errs, fmt.Errorf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
			continue
		}
		errs = append(errs, errors.New(msg.Text))
	}
	return errors.Join(errs...)
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
