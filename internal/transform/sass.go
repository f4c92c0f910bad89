package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
	"github.com/rs/zerolog/log"
)

// Sass compiles .scss and .sass sources with the embedded dart-sass
// protocol. The compiler process is started on first use.
type Sass struct {
	binary       string
	includePaths []string

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// NewSass returns a Sass transformer using the dart-sass executable at
// binary (looked up on PATH when empty).
func NewSass(binary string, includePaths ...string) *Sass {
	return &Sass{
		binary:       binary,
		includePaths: includePaths,
	}
}

func (s *Sass) Transform(ctx context.Context, in Asset, opts Options) (Asset, error) {
	if in.Kind != KindSass && in.Kind != KindCSS {
		return Asset{}, fmt.Errorf("expected sass input, got %s", in.Kind)
	}
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}

	t, err := s.start()
	if err != nil {
		return Asset{}, err
	}

	syntax := godartsass.SourceSyntaxSCSS
	switch strings.ToLower(filepath.Ext(in.Path)) {
	case ".sass":
		syntax = godartsass.SourceSyntaxSASS
	case ".css":
		syntax = godartsass.SourceSyntaxCSS
	}

	style := godartsass.OutputStyleExpanded
	if opts.Bool("compressed", false) {
		style = godartsass.OutputStyleCompressed
	}

	abs, err := filepath.Abs(in.Path)
	if err != nil {
		return Asset{}, err
	}

	result, err := t.Execute(godartsass.Args{
		Source:       string(in.Contents),
		URL:          "file://" + filepath.ToSlash(abs),
		IncludePaths: append([]string{filepath.Dir(abs)}, s.includePaths...),
		OutputStyle:  style,
		SourceSyntax: syntax,
	})
	if err != nil {
		return Asset{}, err
	}

	return Asset{
		Path:     in.Path,
		Contents: []byte(result.CSS),
		Kind:     KindCSS,
	}, nil
}

func (s *Sass) start() (*godartsass.Transpiler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transpiler != nil {
		return s.transpiler, nil
	}

	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: s.binary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start dart-sass: %w", err)
	}

	log.Debug().Str("binary", s.binary).Msg("Started dart-sass")
	s.transpiler = t
	return t, nil
}

func (s *Sass) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transpiler == nil {
		return nil
	}
	err := s.transpiler.Close()
	s.transpiler = nil
	return err
}
