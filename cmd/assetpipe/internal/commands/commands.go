package commands

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/config"
	"github.com/wolfeidau/assetpipe/internal/imagemin"
	"github.com/wolfeidau/assetpipe/internal/imagemin/vips"
	"github.com/wolfeidau/assetpipe/internal/logger"
	"github.com/wolfeidau/assetpipe/internal/mode"
	"github.com/wolfeidau/assetpipe/internal/plugins"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

type Globals struct {
	Debug   bool
	Version string
}

// ProjectFlags locate the project and select the mode.
type ProjectFlags struct {
	Mode    string `help:"Build mode. Only development selects development, anything else builds for production." env:"NODE_ENV"`
	Config  string `help:"Path to the config file." default:"assetpipe.yaml" env:"ASSETPIPE_CONFIG"`
	Context string `help:"Source root, overrides the config file." env:"ASSETPIPE_CONTEXT"`
	Output  string `help:"Output root, overrides the config file." env:"ASSETPIPE_OUTPUT"`
}

// Load resolves the configuration: defaults, then the config file, then
// flags. The mode comes from the flag or environment, falling back to the
// config file.
func (f *ProjectFlags) Load() (config.Config, error) {
	configFile := configFileOr(f.Config)

	file, err := config.LoadFile(configFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || configFile != config.DefaultFile {
			return config.Config{}, err
		}
		log.Debug().Str("config", configFile).Msg("No config file, using defaults")
	}

	m := mode.FromEnv(f.Mode)
	if f.Mode == "" {
		if m, err = file.ResolveMode(m); err != nil {
			return config.Config{}, err
		}
	}

	opts := file.Apply(config.DefaultOptions())
	if f.Context != "" {
		opts.Context = f.Context
	}
	if f.Output != "" {
		opts.Output = f.Output
	}

	return config.Build(m, opts)
}

// RuntimeFlags configure the external tools a build runs.
type RuntimeFlags struct {
	CacheDir   string   `help:"Directory for cached compressed images, empty keeps them in memory." default:".assetpipe/cache" env:"ASSETPIPE_CACHE_DIR"`
	SassBinary string   `help:"Path to the dart-sass executable." default:"sass" env:"DART_SASS_BINARY"`
	SassPath   []string `help:"Additional Sass load paths." env:"SASS_PATH"`
	Tracing    bool     `help:"Export traces and metrics over OTLP." default:"false" env:"ASSETPIPE_TRACING"`
}

// setupLogger installs the global logger and returns ctx carrying it.
func setupLogger(ctx context.Context, globals *Globals) (context.Context, zerolog.Logger) {
	l := logger.Setup(globals.Debug)
	log.Logger = l
	return l.WithContext(ctx), l
}

// setupTelemetry starts telemetry when enabled and returns its shutdown.
func (r *RuntimeFlags) setupTelemetry(ctx context.Context, globals *Globals) func() {
	if !r.Tracing {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, "assetpipe", globals.Version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

// newPipeline wires the real transformers and image compressors for cfg.
// The returned func releases the transformers. libvips stays up until
// vips.Shutdown.
func (r *RuntimeFlags) newPipeline(cfg config.Config) (*assets.Pipeline, func(), error) {
	target, err := transform.ParseTarget(cfg.Target)
	if err != nil {
		return nil, nil, err
	}

	registry := transform.NewDefaultRegistry(transform.DefaultOptions{
		Target:     target,
		SourceMap:  cfg.DevTool == config.DevToolSourceMap,
		SassBinary: r.SassBinary,
		SassPaths:  r.SassPath,
	})

	compressors := vips.Factories()
	compressors[plugins.Svgo] = imagemin.NewSVG

	for _, s := range cfg.Plugins {
		if s.Name == plugins.Imagemin {
			vips.Startup()
		}
	}

	opts := assets.DefaultOptions()
	opts.Registry = registry
	opts.Compressors = compressors
	opts.CacheDir = r.CacheDir

	release := func() {
		if err := registry.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop transformers")
		}
	}

	p, err := assets.New(cfg, opts)
	if err != nil {
		release()
		return nil, nil, err
	}
	return p, release, nil
}

func logReport(l zerolog.Logger, report *assets.Report) {
	total := 0
	for _, a := range report.Assets {
		total += a.Size
	}

	for _, e := range report.Entries {
		l.Info().Str("entry", e.Name).Str("script", e.Script).Str("stylesheet", e.Stylesheet).Msg("Entry")
	}
	for _, f := range report.Failures {
		l.Warn().Str("path", f.Path).Str("compressor", f.Compressor).Str("reason", f.Reason).Msg("Asset failed to compress, original kept")
	}

	l.Info().
		Str("build_id", report.BuildID).
		Str("mode", report.Mode.String()).
		Int("files", len(report.Assets)).
		Int("bytes", total).
		Int("failures", len(report.Failures)).
		Dur("duration", report.Duration).
		Msg("Build complete")
}

func configFileOr(path string) string {
	if path == "" {
		return config.DefaultFile
	}
	return path
}
