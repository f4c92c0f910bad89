package transform

import (
	"context"
	"fmt"
)

// CSS accepts stylesheet input. Import and url() resolution happen in the
// bundler, which sees the result as a CSS module.
func CSS() Transformer {
	return Func(func(_ context.Context, in Asset, _ Options) (Asset, error) {
		if in.Kind != KindCSS {
			return Asset{}, fmt.Errorf("expected css input, got %s", in.Kind)
		}
		return in, nil
	})
}

// ExtractCSS marks a stylesheet to be written to its own file instead of
// being embedded in script output.
func ExtractCSS() Transformer {
	return Func(func(_ context.Context, in Asset, opts Options) (Asset, error) {
		if in.Kind != KindCSS {
			return Asset{}, fmt.Errorf("expected css input, got %s", in.Kind)
		}

		publicPath := opts.String("publicPath", "relative")
		if publicPath != "relative" {
			return Asset{}, fmt.Errorf("unsupported publicPath %q", publicPath)
		}

		out := in
		out.Extract = true
		out.PublicPath = publicPath
		return out, nil
	})
}
