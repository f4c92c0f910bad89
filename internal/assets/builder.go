package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpipe/internal/config"
	"github.com/wolfeidau/assetpipe/internal/logger"
	"github.com/wolfeidau/assetpipe/internal/plugins"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
	"github.com/wolfeidau/assetpipe/internal/transform"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Build runs one build invocation: bundle, minimize, run the assembled
// stages in order and write the output root.
func (p *Pipeline) Build(ctx context.Context) (*Report, error) {
	started := time.Now()
	buildID := uuid.NewString()
	ctx = logger.WithBuild(ctx, buildID, p.config.Mode.String())

	metrics := telemetry.GetMetrics()
	modeAttr := metric.WithAttributes(attribute.String("mode", p.config.Mode.String()))
	metrics.BuildsTotal.Add(ctx, 1, modeAttr)

	ctx, span := telemetry.Tracer().Start(ctx, "build", trace.WithAttributes(
		attribute.String("build.id", buildID),
		attribute.String("build.mode", p.config.Mode.String()),
	))
	defer span.End()

	report, err := p.build(ctx, buildID)
	metrics.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()), modeAttr)
	if err != nil {
		metrics.BuildErrorsTotal.Add(ctx, 1, modeAttr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report.Duration = time.Since(started)
	return report, nil
}

func (p *Pipeline) build(ctx context.Context, buildID string) (*Report, error) {
	outDir, err := filepath.Abs(p.config.Output.Path)
	if err != nil {
		return nil, err
	}

	c := &compilation{
		config:      p.config,
		outDir:      outDir,
		files:       make(map[string][]byte),
		stylesheets: make(map[string]string),
	}

	if err := p.stage(ctx, "bundle", func(ctx context.Context) error {
		return p.bundle(ctx, c)
	}); err != nil {
		return nil, err
	}

	for _, name := range p.config.Optimization.Minimizers {
		if err := p.stage(ctx, name, func(ctx context.Context) error {
			return p.minimize(name, c)
		}); err != nil {
			return nil, err
		}
	}

	if err := p.stage(ctx, "name-outputs", func(context.Context) error {
		if err := c.nameChunks(); err != nil {
			return err
		}
		return c.nameEntries()
	}); err != nil {
		return nil, err
	}

	for _, s := range p.config.Plugins {
		if err := p.stage(ctx, string(s.Name), func(ctx context.Context) error {
			return p.runStage(ctx, c, s)
		}); err != nil {
			return nil, fmt.Errorf("stage %s failed: %w", s.Name, err)
		}
	}

	var assets []EmittedAsset
	if err := p.stage(ctx, "emit", func(ctx context.Context) error {
		assets, err = p.emit(ctx, c)
		return err
	}); err != nil {
		return nil, err
	}

	entries := c.entryOutputs()

	p.mu.Lock()
	p.metadata = c.metadata
	p.entries = entries
	p.mu.Unlock()

	return &Report{
		BuildID:  buildID,
		Mode:     p.config.Mode,
		Entries:  entries,
		Assets:   assets,
		Failures: c.failures,
	}, nil
}

// stage runs fn inside a span and records its duration.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "stage."+name)
	defer span.End()

	done := logger.Timed(ctx, "Stage "+name)
	started := time.Now()

	err := fn(ctx)

	telemetry.GetMetrics().StageDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(attribute.String("stage", name)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	done(err)
	return err
}

func (p *Pipeline) runStage(ctx context.Context, c *compilation, s plugins.Stage) error {
	switch cfg := s.Config.(type) {
	case *plugins.HTMLConfig:
		return c.renderHTML(cfg)
	case *plugins.CleanConfig:
		return c.clean(ctx, cfg)
	case *plugins.ExtractCSSConfig:
		return c.extractCSS(cfg)
	case *plugins.CopyConfig:
		return c.copyAssets(ctx, cfg)
	case *plugins.ImageminConfig:
		return p.compressImages(ctx, c)
	default:
		return fmt.Errorf("unsupported stage %q with config %T", s.Name, s.Config)
	}
}

// bundle runs esbuild with the rules plugin and loads the outputs and
// metadata into the compilation.
func (p *Pipeline) bundle(ctx context.Context, c *compilation) error {
	entryPoints := make([]string, 0, len(p.config.Entries))
	for _, e := range p.config.Entries {
		entryPoints = append(entryPoints, filepath.Join(p.config.Context, e.Path))
	}

	zerolog.Ctx(ctx).Info().Strs("entrypoints", entryPoints).Msg("Building assets")

	rp := newRulesPlugin(ctx, p, c.stylesheetDir())

	result := api.Build(api.BuildOptions{
		EntryPoints:   entryPoints,
		AbsWorkingDir: p.workDir,
		Bundle:        true,
		Splitting:     p.config.Optimization.Splitting(),
		Write:         false,
		Outdir:        c.outDir,
		EntryNames:    p.config.Output.Scripts.Pattern(),
		ChunkNames:    path.Join(p.config.Output.Chunks.Dir, "[name]-[hash]"),
		Format:        api.FormatESModule,
		Target:        p.target,
		TreeShaking:   api.TreeShakingTrue,
		Sourcemap:     cond(p.config.DevTool == config.DevToolSourceMap, api.SourceMapLinked, api.SourceMapNone),
		Metafile:      true,
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{rp.plugin()},
	})

	if err := rp.firstError(); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			zerolog.Ctx(ctx).Error().Str("error", msg.Text).Msg("Build error")
		}
		return fmt.Errorf("bundle failed: %w", transform.MessagesError(result.Errors))
	}
	for _, msg := range result.Warnings {
		zerolog.Ctx(ctx).Warn().Str("warning", msg.Text).Msg("Build warning")
	}

	for _, file := range result.OutputFiles {
		rel, err := c.outRel(file.Path)
		if err != nil {
			return err
		}
		c.files[rel] = file.Contents
		zerolog.Ctx(ctx).Debug().Str("file", rel).Msg("Built file")
	}
	for name, data := range rp.files {
		c.files[name] = data
	}

	metadata, err := p.loadMetadata(c, result.Metafile)
	if err != nil {
		return err
	}
	c.metadata = metadata

	return c.matchEntries(p.config.Entries, p.config.Context, p.workDir)
}

// loadMetadata parses the bundler metafile and rebases its paths onto the
// output root.
func (p *Pipeline) loadMetadata(c *compilation, metafile string) (*BuildMetadata, error) {
	var raw BuildMetadata
	if err := json.Unmarshal([]byte(metafile), &raw); err != nil {
		return nil, err
	}

	rebase := func(rel string) (string, error) {
		return c.outRel(filepath.Join(p.workDir, filepath.FromSlash(rel)))
	}

	metadata := &BuildMetadata{Outputs: make(map[string]OutputInfo, len(raw.Outputs))}
	for outputPath, info := range raw.Outputs {
		key, err := rebase(outputPath)
		if err != nil {
			return nil, err
		}

		if info.CSSBundle != "" {
			if info.CSSBundle, err = rebase(info.CSSBundle); err != nil {
				return nil, err
			}
		}

		imports := make([]ImportInfo, 0, len(info.Imports))
		for _, imp := range info.Imports {
			if !imp.External {
				if imp.Path, err = rebase(imp.Path); err != nil {
					return nil, err
				}
			}
			imports = append(imports, imp)
		}
		info.Imports = imports

		metadata.Outputs[key] = info
	}

	return metadata, nil
}

// LoadScripts returns the ordered list of script paths needed for the given
// entry and the entry's own script path, both relative to the output root.
func (p *Pipeline) LoadScripts(entryName string) ([]string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return nil, "", errors.New("assets not built yet, call Build() first")
	}

	for _, e := range p.entries {
		if e.Name == entryName {
			return p.metadata.Scripts(e.Script, false), e.Script, nil
		}
	}

	return nil, "", fmt.Errorf("entry %q not found in metadata", entryName)
}

// Scripts returns the script and its chunk dependencies in load order.
// Dynamic imports are followed only when dynamic is set.
func (m *BuildMetadata) Scripts(script string, dynamic bool) []string {
	scripts := []string{script}
	visited := map[string]bool{script: true}
	if info, ok := m.Outputs[script]; ok {
		m.addDependencies(info, dynamic, &scripts, visited)
	}
	return scripts
}

func (m *BuildMetadata) addDependencies(output OutputInfo, dynamic bool, scripts *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if imp.External || visited[imp.Path] || !strings.HasSuffix(imp.Path, ".js") {
			continue
		}
		if imp.Kind != ImportStatement && !(dynamic && imp.Kind == DynamicImport) {
			continue
		}

		visited[imp.Path] = true
		*scripts = append(*scripts, imp.Path)

		if chunkInfo, exists := m.Outputs[imp.Path]; exists {
			m.addDependencies(chunkInfo, dynamic, scripts, visited)
		}
	}
}

// emit writes every file of the compilation, then the manifest.
func (p *Pipeline) emit(ctx context.Context, c *compilation) ([]EmittedAsset, error) {
	paths := make([]string, 0, len(c.files))
	for name := range c.files {
		paths = append(paths, name)
	}
	sort.Strings(paths)

	metrics := telemetry.GetMetrics()
	assets := make([]EmittedAsset, 0, len(paths))
	for _, name := range paths {
		data := c.files[name]
		if err := writeFile(filepath.Join(c.outDir, filepath.FromSlash(name)), data); err != nil {
			return nil, err
		}
		assets = append(assets, EmittedAsset{Path: name, Size: len(data)})
		metrics.AssetsEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("ext", path.Ext(name))))
		metrics.AssetBytesEmitted.Add(ctx, int64(len(data)))
	}

	if p.options.Metafile != "" {
		data, err := json.MarshalIndent(c.metadata, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := writeFile(filepath.Join(c.outDir, p.options.Metafile), data); err != nil {
			return nil, err
		}
	}

	zerolog.Ctx(ctx).Info().Int("files", len(assets)).Str("output", p.config.Output.Path).Msg("Wrote assets")
	return assets, nil
}

func writeFile(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	return os.WriteFile(name, data, 0o644) //nolint:gosec
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
